package protocol

// Client-side handshake message construction. Messages are serialized to
// the handshake-message level (type + 24-bit length + body); record
// framing is applied separately so that byte-level mutations land on the
// message, not on the record header.

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

// Extension is a raw hello extension (type plus opaque data).
type Extension struct {
	Type spec.ExtensionType
	Data []byte
}

// ClientHelloSpec describes a ClientHello to build. Extensions is nil for
// an extension-less hello; an empty non-nil slice still emits the
// (zero-length) extensions field.
type ClientHelloSpec struct {
	Version      spec.ProtocolVersion
	Random       [32]byte
	SessionID    []byte
	CipherSuites []spec.CipherSuite
	Compression  []byte
	Extensions   []Extension
}

// BuildClientHello serializes the hello as a handshake message.
func BuildClientHello(hs ClientHelloSpec) ([]byte, error) {
	if len(hs.SessionID) > 32 {
		return nil, fmt.Errorf("session ID too long: %d bytes", len(hs.SessionID))
	}
	if len(hs.CipherSuites) == 0 {
		return nil, fmt.Errorf("no cipher suites")
	}

	var body bytes.Buffer
	var u16 [2]byte

	binary.BigEndian.PutUint16(u16[:], uint16(hs.Version))
	body.Write(u16[:])
	body.Write(hs.Random[:])

	body.WriteByte(byte(len(hs.SessionID)))
	body.Write(hs.SessionID)

	binary.BigEndian.PutUint16(u16[:], uint16(2*len(hs.CipherSuites)))
	body.Write(u16[:])
	for _, cs := range hs.CipherSuites {
		binary.BigEndian.PutUint16(u16[:], uint16(cs))
		body.Write(u16[:])
	}

	compression := hs.Compression
	if compression == nil {
		compression = []byte{0}
	}
	body.WriteByte(byte(len(compression)))
	body.Write(compression)

	if hs.Extensions != nil {
		var exts bytes.Buffer
		for _, ext := range hs.Extensions {
			binary.BigEndian.PutUint16(u16[:], uint16(ext.Type))
			exts.Write(u16[:])
			binary.BigEndian.PutUint16(u16[:], uint16(len(ext.Data)))
			exts.Write(u16[:])
			exts.Write(ext.Data)
		}
		binary.BigEndian.PutUint16(u16[:], uint16(exts.Len()))
		body.Write(u16[:])
		body.Write(exts.Bytes())
	}

	return wrapHandshake(spec.HTClientHello, body.Bytes()), nil
}

// wrapHandshake prepends the 4-byte handshake header.
func wrapHandshake(ht spec.HandshakeType, body []byte) []byte {
	msg := make([]byte, 4+len(body))
	msg[0] = byte(ht)
	msg[1] = byte(len(body) >> 16)
	msg[2] = byte(len(body) >> 8)
	msg[3] = byte(len(body))
	copy(msg[4:], body)
	return msg
}

// BuildAlert serializes a 2-byte alert message.
func BuildAlert(level spec.AlertLevel, desc spec.AlertDescription) []byte {
	return []byte{byte(level), byte(desc)}
}

// BuildChangeCipherSpec serializes the single-byte CCS message.
func BuildChangeCipherSpec() []byte {
	return []byte{1}
}

// RenegotiationInfoExtension returns an initial-handshake
// renegotiation_info extension (empty renegotiated_connection).
func RenegotiationInfoExtension() Extension {
	return Extension{Type: spec.ETRenegotiationInfo, Data: []byte{0}}
}

// ExtendedMasterSecretExtension returns the (empty) EMS extension.
func ExtendedMasterSecretExtension() Extension {
	return Extension{Type: spec.ETExtendedMasterSecret, Data: []byte{}}
}

// SupportedGroupsExtension builds a supported_groups extension for the
// given groups.
func SupportedGroupsExtension(groups []spec.NamedGroup) Extension {
	data := make([]byte, 2+2*len(groups))
	binary.BigEndian.PutUint16(data, uint16(2*len(groups)))
	for i, g := range groups {
		binary.BigEndian.PutUint16(data[2+2*i:], uint16(g))
	}
	return Extension{Type: spec.ETSupportedGroups, Data: data}
}

// SignatureAlgorithmsExtension builds a signature_algorithms extension.
func SignatureAlgorithmsExtension(schemes []spec.SignatureScheme) Extension {
	return signatureSchemesExtension(spec.ETSignatureAlgorithms, schemes)
}

// SignatureAlgorithmsCertExtension builds a signature_algorithms_cert
// extension.
func SignatureAlgorithmsCertExtension(schemes []spec.SignatureScheme) Extension {
	return signatureSchemesExtension(spec.ETSignatureAlgorithmsCert, schemes)
}

func signatureSchemesExtension(et spec.ExtensionType, schemes []spec.SignatureScheme) Extension {
	data := make([]byte, 2+2*len(schemes))
	binary.BigEndian.PutUint16(data, uint16(2*len(schemes)))
	for i, s := range schemes {
		binary.BigEndian.PutUint16(data[2+2*i:], uint16(s))
	}
	return Extension{Type: et, Data: data}
}

// DefaultSignatureSchemes is the fixed hash/signature pair list the
// harness advertises. Fixed so that hello lengths stay stable between
// runs, which the fuzz sweeps depend on.
var DefaultSignatureSchemes = []spec.SignatureScheme{
	spec.SigSchemeECDSASHA1,
	spec.SigSchemeRSAPKCS1SHA1,
	spec.SigSchemeECDSASecp256r1,
	spec.SigSchemeRSAPKCS1SHA256,
	spec.SigSchemeECDSASecp384r1,
	spec.SigSchemeRSAPKCS1SHA384,
	spec.SigSchemeECDSASecp521r1,
	spec.SigSchemeRSAPKCS1SHA512,
}

// DefaultGroups is the fixed named-group list for ephemeral key exchange.
var DefaultGroups = []spec.NamedGroup{
	spec.GroupSecp256r1,
	spec.GroupFfdhe2048,
}
