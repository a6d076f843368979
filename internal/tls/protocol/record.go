package protocol

// Record-layer framing. The harness only speaks plaintext records; the
// cryptographic record protections are out of scope.

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

// RecordHeaderLen is the size of the record-layer header.
const RecordHeaderLen = 5

// MaxRecordLen is the largest fragment length a peer may send.
const MaxRecordLen = 1 << 14

// Record is one record-layer record.
type Record struct {
	Type    spec.ContentType
	Version spec.ProtocolVersion
	Payload []byte
}

// EncodeRecord frames a payload into a record.
func EncodeRecord(ct spec.ContentType, version spec.ProtocolVersion, payload []byte) ([]byte, error) {
	if len(payload) > 0xFFFF {
		return nil, fmt.Errorf("record payload too long: %d bytes", len(payload))
	}
	buf := make([]byte, RecordHeaderLen+len(payload))
	buf[0] = byte(ct)
	binary.BigEndian.PutUint16(buf[1:3], uint16(version))
	binary.BigEndian.PutUint16(buf[3:5], uint16(len(payload)))
	copy(buf[RecordHeaderLen:], payload)
	return buf, nil
}

// ReadRecord reads one record from r. It does not enforce MaxRecordLen;
// an oversized fragment is the target's problem to report, not ours to
// mask.
func ReadRecord(r io.Reader) (Record, error) {
	var header [RecordHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Record{}, err
	}
	length := int(binary.BigEndian.Uint16(header[3:5]))
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Record{}, fmt.Errorf("short record payload: %w", err)
	}
	return Record{
		Type:    spec.ContentType(header[0]),
		Version: spec.ProtocolVersion(binary.BigEndian.Uint16(header[1:3])),
		Payload: payload,
	}, nil
}
