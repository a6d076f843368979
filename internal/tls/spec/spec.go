package spec

// TLS protocol constants and name tables used by the fuzzing harness.
// Values follow the IANA TLS registries.

import "fmt"

// ContentType identifies a record-layer record.
type ContentType uint8

// Record-layer content types.
const (
	CTChangeCipherSpec ContentType = 20
	CTAlert            ContentType = 21
	CTHandshake        ContentType = 22
	CTApplicationData  ContentType = 23
)

func (ct ContentType) String() string {
	if name, ok := contentTypeNames[ct]; ok {
		return name
	}
	return fmt.Sprintf("{ContentType %d}", uint8(ct))
}

var contentTypeNames = map[ContentType]string{
	CTChangeCipherSpec: "change_cipher_spec",
	CTAlert:            "alert",
	CTHandshake:        "handshake",
	CTApplicationData:  "application_data",
}

// ProtocolVersion is a TLS protocol version number.
type ProtocolVersion uint16

// Protocol versions.
const (
	VersionSSL30 ProtocolVersion = 0x0300
	VersionTLS10 ProtocolVersion = 0x0301
	VersionTLS11 ProtocolVersion = 0x0302
	VersionTLS12 ProtocolVersion = 0x0303
	VersionTLS13 ProtocolVersion = 0x0304
)

func (v ProtocolVersion) String() string {
	if name, ok := protocolVersionNames[v]; ok {
		return name
	}
	return fmt.Sprintf("%04x", uint16(v))
}

var protocolVersionNames = map[ProtocolVersion]string{
	VersionSSL30: "SSL 3.0",
	VersionTLS10: "TLS 1.0",
	VersionTLS11: "TLS 1.1",
	VersionTLS12: "TLS 1.2",
	VersionTLS13: "TLS 1.3",
}

// HandshakeType identifies a handshake message.
type HandshakeType uint8

// Handshake message types.
const (
	HTHelloRequest       HandshakeType = 0
	HTClientHello        HandshakeType = 1
	HTServerHello        HandshakeType = 2
	HTNewSessionTicket   HandshakeType = 4
	HTCertificate        HandshakeType = 11
	HTServerKeyExchange  HandshakeType = 12
	HTCertificateRequest HandshakeType = 13
	HTServerHelloDone    HandshakeType = 14
	HTCertificateVerify  HandshakeType = 15
	HTClientKeyExchange  HandshakeType = 16
	HTFinished           HandshakeType = 20
)

func (ht HandshakeType) String() string {
	if name, ok := handshakeTypeNames[ht]; ok {
		return name
	}
	return fmt.Sprintf("{HandshakeType %d}", uint8(ht))
}

var handshakeTypeNames = map[HandshakeType]string{
	HTHelloRequest:       "hello_request",
	HTClientHello:        "client_hello",
	HTServerHello:        "server_hello",
	HTNewSessionTicket:   "new_session_ticket",
	HTCertificate:        "certificate",
	HTServerKeyExchange:  "server_key_exchange",
	HTCertificateRequest: "certificate_request",
	HTServerHelloDone:    "server_hello_done",
	HTCertificateVerify:  "certificate_verify",
	HTClientKeyExchange:  "client_key_exchange",
	HTFinished:           "finished",
}

// AlertLevel is the severity of an alert message.
type AlertLevel uint8

// Alert levels.
const (
	AlertLevelWarning AlertLevel = 1
	AlertLevelFatal   AlertLevel = 2
)

func (level AlertLevel) String() string {
	switch level {
	case AlertLevelWarning:
		return "warning"
	case AlertLevelFatal:
		return "fatal"
	default:
		return fmt.Sprintf("{AlertLevel %d}", uint8(level))
	}
}

// AlertDescription identifies the reason for an alert.
type AlertDescription uint8

// Alert descriptions.
const (
	AlertCloseNotify            AlertDescription = 0
	AlertUnexpectedMessage      AlertDescription = 10
	AlertBadRecordMAC           AlertDescription = 20
	AlertRecordOverflow         AlertDescription = 22
	AlertDecompressionFailure   AlertDescription = 30
	AlertHandshakeFailure       AlertDescription = 40
	AlertBadCertificate         AlertDescription = 42
	AlertUnsupportedCertificate AlertDescription = 43
	AlertCertificateRevoked     AlertDescription = 44
	AlertCertificateExpired     AlertDescription = 45
	AlertCertificateUnknown     AlertDescription = 46
	AlertIllegalParameter       AlertDescription = 47
	AlertUnknownCA              AlertDescription = 48
	AlertAccessDenied           AlertDescription = 49
	AlertDecodeError            AlertDescription = 50
	AlertDecryptError           AlertDescription = 51
	AlertProtocolVersion        AlertDescription = 70
	AlertInsufficientSecurity   AlertDescription = 71
	AlertInternalError          AlertDescription = 80
	AlertInappropriateFallback  AlertDescription = 86
	AlertUserCanceled           AlertDescription = 90
	AlertNoRenegotiation        AlertDescription = 100
	AlertMissingExtension       AlertDescription = 109
	AlertUnsupportedExtension   AlertDescription = 110
	AlertUnrecognizedName       AlertDescription = 112
)

func (desc AlertDescription) String() string {
	if name, ok := alertDescriptionNames[desc]; ok {
		return name
	}
	return fmt.Sprintf("{AlertDescription %d}", uint8(desc))
}

var alertDescriptionNames = map[AlertDescription]string{
	AlertCloseNotify:            "close_notify",
	AlertUnexpectedMessage:      "unexpected_message",
	AlertBadRecordMAC:           "bad_record_mac",
	AlertRecordOverflow:         "record_overflow",
	AlertDecompressionFailure:   "decompression_failure",
	AlertHandshakeFailure:       "handshake_failure",
	AlertBadCertificate:         "bad_certificate",
	AlertUnsupportedCertificate: "unsupported_certificate",
	AlertCertificateRevoked:     "certificate_revoked",
	AlertCertificateExpired:     "certificate_expired",
	AlertCertificateUnknown:     "certificate_unknown",
	AlertIllegalParameter:       "illegal_parameter",
	AlertUnknownCA:              "unknown_ca",
	AlertAccessDenied:           "access_denied",
	AlertDecodeError:            "decode_error",
	AlertDecryptError:           "decrypt_error",
	AlertProtocolVersion:        "protocol_version",
	AlertInsufficientSecurity:   "insufficient_security",
	AlertInternalError:          "internal_error",
	AlertInappropriateFallback:  "inappropriate_fallback",
	AlertUserCanceled:           "user_canceled",
	AlertNoRenegotiation:        "no_renegotiation",
	AlertMissingExtension:       "missing_extension",
	AlertUnsupportedExtension:   "unsupported_extension",
	AlertUnrecognizedName:       "unrecognized_name",
}

// CipherSuite is a TLS cipher suite code point.
type CipherSuite uint16

// Cipher suites the harness negotiates, plus the renegotiation SCSV.
const (
	CipherRSAWithAES128CBCSHA      CipherSuite = 0x002F
	CipherRSAWithAES256CBCSHA      CipherSuite = 0x0035
	CipherDHERSAWithAES128CBCSHA   CipherSuite = 0x0033
	CipherECDHERSAWithAES128CBCSHA CipherSuite = 0xC013
	CipherECDHERSAWithAES256CBCSHA CipherSuite = 0xC014
	CipherEmptyRenegotiationSCSV   CipherSuite = 0x00FF
)

func (cs CipherSuite) String() string {
	if name, ok := cipherSuiteNames[cs]; ok {
		return name
	}
	return fmt.Sprintf("{CipherSuite 0x%04X}", uint16(cs))
}

var cipherSuiteNames = map[CipherSuite]string{
	CipherRSAWithAES128CBCSHA:      "TLS_RSA_WITH_AES_128_CBC_SHA",
	CipherRSAWithAES256CBCSHA:      "TLS_RSA_WITH_AES_256_CBC_SHA",
	CipherDHERSAWithAES128CBCSHA:   "TLS_DHE_RSA_WITH_AES_128_CBC_SHA",
	CipherECDHERSAWithAES128CBCSHA: "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA",
	CipherECDHERSAWithAES256CBCSHA: "TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA",
	CipherEmptyRenegotiationSCSV:   "TLS_EMPTY_RENEGOTIATION_INFO_SCSV",
}

// CipherSuiteByName resolves an IETF cipher suite name to its code point.
func CipherSuiteByName(name string) (CipherSuite, bool) {
	for cs, n := range cipherSuiteNames {
		if n == name {
			return cs, true
		}
	}
	return 0, false
}

// Ephemeral reports whether the suite uses an ephemeral key exchange
// (and so expects a ServerKeyExchange message in the server's flight).
func (cs CipherSuite) Ephemeral() bool {
	switch cs {
	case CipherDHERSAWithAES128CBCSHA,
		CipherECDHERSAWithAES128CBCSHA,
		CipherECDHERSAWithAES256CBCSHA:
		return true
	default:
		return false
	}
}

// ExtensionType identifies a hello extension.
type ExtensionType uint16

// Extension types.
const (
	ETServerName              ExtensionType = 0
	ETSupportedGroups         ExtensionType = 10
	ETECPointFormats          ExtensionType = 11
	ETSignatureAlgorithms     ExtensionType = 13
	ETExtendedMasterSecret    ExtensionType = 23
	ETSessionTicket           ExtensionType = 35
	ETSupportedVersions       ExtensionType = 43
	ETSignatureAlgorithmsCert ExtensionType = 50
	ETRenegotiationInfo       ExtensionType = 65281
)

func (et ExtensionType) String() string {
	if name, ok := extensionTypeNames[et]; ok {
		return name
	}
	return fmt.Sprintf("{ExtensionType %d}", uint16(et))
}

var extensionTypeNames = map[ExtensionType]string{
	ETServerName:              "server_name",
	ETSupportedGroups:         "supported_groups",
	ETECPointFormats:          "ec_point_formats",
	ETSignatureAlgorithms:     "signature_algorithms",
	ETExtendedMasterSecret:    "extended_master_secret",
	ETSessionTicket:           "session_ticket",
	ETSupportedVersions:       "supported_versions",
	ETSignatureAlgorithmsCert: "signature_algorithms_cert",
	ETRenegotiationInfo:       "renegotiation_info",
}

// NamedGroup is a key exchange group code point.
type NamedGroup uint16

// Named groups advertised in the supported_groups extension.
const (
	GroupSecp256r1 NamedGroup = 0x0017
	GroupSecp384r1 NamedGroup = 0x0018
	GroupX25519    NamedGroup = 0x001D
	GroupFfdhe2048 NamedGroup = 0x0100
)

func (group NamedGroup) String() string {
	if name, ok := namedGroupNames[group]; ok {
		return name
	}
	return fmt.Sprintf("%04x", uint16(group))
}

var namedGroupNames = map[NamedGroup]string{
	GroupSecp256r1: "secp256r1",
	GroupSecp384r1: "secp384r1",
	GroupX25519:    "x25519",
	GroupFfdhe2048: "ffdhe2048",
}

// SignatureScheme is a signature algorithm pair as sent in the
// signature_algorithms extensions (hash byte, signature byte).
type SignatureScheme uint16

// Signature schemes. The harness pins a fixed list so that fuzzed hello
// messages have stable lengths.
const (
	SigSchemeRSAPKCS1SHA1   SignatureScheme = 0x0201
	SigSchemeECDSASHA1      SignatureScheme = 0x0203
	SigSchemeRSAPKCS1SHA256 SignatureScheme = 0x0401
	SigSchemeECDSASecp256r1 SignatureScheme = 0x0403
	SigSchemeRSAPKCS1SHA384 SignatureScheme = 0x0501
	SigSchemeECDSASecp384r1 SignatureScheme = 0x0503
	SigSchemeRSAPKCS1SHA512 SignatureScheme = 0x0601
	SigSchemeECDSASecp521r1 SignatureScheme = 0x0603
)
