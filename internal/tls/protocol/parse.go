package protocol

// Parsing of inbound server messages. Only the fields the harness
// matches on are decoded; everything else stays opaque.

import (
	"encoding/binary"
	"fmt"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

// Handshake is one handshake message split out of a record payload.
type Handshake struct {
	Type spec.HandshakeType
	Body []byte
}

// SplitHandshakes splits a handshake-record payload into individual
// messages. A server may pack its whole flight into one record.
func SplitHandshakes(payload []byte) ([]Handshake, error) {
	var msgs []Handshake
	for len(payload) > 0 {
		if len(payload) < 4 {
			return nil, fmt.Errorf("truncated handshake header: %d bytes", len(payload))
		}
		length := int(payload[1])<<16 | int(payload[2])<<8 | int(payload[3])
		if len(payload) < 4+length {
			return nil, fmt.Errorf("truncated %s body: have %d, want %d",
				spec.HandshakeType(payload[0]), len(payload)-4, length)
		}
		msgs = append(msgs, Handshake{
			Type: spec.HandshakeType(payload[0]),
			Body: payload[4 : 4+length],
		})
		payload = payload[4+length:]
	}
	return msgs, nil
}

// ServerHello is the decoded server_hello message.
type ServerHello struct {
	Version     spec.ProtocolVersion
	Random      [32]byte
	SessionID   []byte
	CipherSuite spec.CipherSuite
	Compression byte
	Extensions  []Extension
}

// HasExtension reports whether the hello carries the given extension.
func (sh *ServerHello) HasExtension(et spec.ExtensionType) bool {
	for _, ext := range sh.Extensions {
		if ext.Type == et {
			return true
		}
	}
	return false
}

// ParseServerHello decodes a server_hello body.
func ParseServerHello(body []byte) (*ServerHello, error) {
	if len(body) < 2+32+1 {
		return nil, fmt.Errorf("server_hello too short: %d bytes", len(body))
	}
	sh := &ServerHello{
		Version: spec.ProtocolVersion(binary.BigEndian.Uint16(body[0:2])),
	}
	copy(sh.Random[:], body[2:34])
	rest := body[34:]

	sidLen := int(rest[0])
	rest = rest[1:]
	if sidLen > 32 || len(rest) < sidLen {
		return nil, fmt.Errorf("bad session ID length %d", sidLen)
	}
	sh.SessionID = append([]byte(nil), rest[:sidLen]...)
	rest = rest[sidLen:]

	if len(rest) < 3 {
		return nil, fmt.Errorf("server_hello truncated after session ID")
	}
	sh.CipherSuite = spec.CipherSuite(binary.BigEndian.Uint16(rest[0:2]))
	sh.Compression = rest[2]
	rest = rest[3:]

	if len(rest) == 0 {
		return sh, nil
	}
	if len(rest) < 2 {
		return nil, fmt.Errorf("server_hello truncated extensions length")
	}
	extLen := int(binary.BigEndian.Uint16(rest[0:2]))
	rest = rest[2:]
	if extLen != len(rest) {
		return nil, fmt.Errorf("extensions length %d does not match remaining %d", extLen, len(rest))
	}
	for len(rest) > 0 {
		if len(rest) < 4 {
			return nil, fmt.Errorf("truncated extension header")
		}
		et := spec.ExtensionType(binary.BigEndian.Uint16(rest[0:2]))
		dataLen := int(binary.BigEndian.Uint16(rest[2:4]))
		rest = rest[4:]
		if len(rest) < dataLen {
			return nil, fmt.Errorf("truncated %s extension data", et)
		}
		sh.Extensions = append(sh.Extensions, Extension{
			Type: et,
			Data: append([]byte(nil), rest[:dataLen]...),
		})
		rest = rest[dataLen:]
	}
	return sh, nil
}

// Alert is the decoded alert message.
type Alert struct {
	Level       spec.AlertLevel
	Description spec.AlertDescription
}

func (a Alert) String() string {
	return fmt.Sprintf("%v %v", a.Level, a.Description)
}

// ParseAlert decodes an alert-record payload.
func ParseAlert(payload []byte) (Alert, error) {
	if len(payload) != 2 {
		return Alert{}, fmt.Errorf("alert payload must be 2 bytes, got %d", len(payload))
	}
	return Alert{
		Level:       spec.AlertLevel(payload[0]),
		Description: spec.AlertDescription(payload[1]),
	}, nil
}
