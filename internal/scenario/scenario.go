package scenario

// Scenario generation: expands the configured offer (key exchange,
// extensions, cipher override) into the full population of conversations
// for a run. Two sanity conversations script the unmodified exchange;
// the fuzz sweeps corrupt single fields of the hello, one conversation
// per corrupted value.

import (
	"fmt"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/config"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/conversation"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/mutate"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/protocol"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

// Hello field offsets, counted from the start of the handshake message
// (type byte at 0, 24-bit length at 1, body from 4). The hellos built
// here have an empty session ID, which pins every later field.
const (
	offHelloType    = 0
	offSessionIDLen = 38
	offCipherLenHi  = 39
	offCipherLenLo  = 40
)

// Offsets past the cipher-suite list depend on how many suites the
// variant offers: two for the bare hello, one for the extended hello.
const (
	offBareCompressionLen = 45

	offExtCompressionLen = 43
	offExtExtLenHi       = 45
	offExtExtLenLo       = 46
)

// Params selects what the generated hellos offer.
type Params struct {
	Host      string
	Port      int
	ECDHE     bool
	EMS       bool
	Cipher    spec.CipherSuite // 0 = derive from ECDHE flag
	SkipRules []config.SkipRule
}

func (p Params) cipher() spec.CipherSuite {
	if p.Cipher != 0 {
		return p.Cipher
	}
	if p.ECDHE {
		return spec.CipherECDHERSAWithAES128CBCSHA
	}
	return spec.CipherRSAWithAES128CBCSHA
}

// Entry is one generated conversation.
type Entry struct {
	Name   string
	Conv   *conversation.Conversation
	Sanity bool
}

// Population is the full, insertion-ordered set of conversations for a
// run, minus those removed by skip rules.
type Population struct {
	entries []Entry
	skipped []string
}

// NewPopulation assembles a population from pre-built entries, in the
// given order.
func NewPopulation(entries ...Entry) *Population {
	return &Population{entries: entries}
}

// Entries returns all generated conversations in insertion order.
func (p *Population) Entries() []Entry { return p.entries }

// Regular returns the non-bracketing conversations in insertion order.
func (p *Population) Regular() []Entry {
	var out []Entry
	for _, e := range p.entries {
		if !e.Sanity {
			out = append(out, e)
		}
	}
	return out
}

// Sanity returns the bracketing sanity conversations in insertion order.
func (p *Population) Sanity() []Entry {
	var out []Entry
	for _, e := range p.entries {
		if e.Sanity {
			out = append(out, e)
		}
	}
	return out
}

// Skipped returns the names of conversations removed by skip rules.
func (p *Population) Skipped() []string { return p.skipped }

// Len returns the number of runnable conversations.
func (p *Population) Len() int { return len(p.entries) }

// bareHello offers the configured cipher plus the renegotiation SCSV
// and no extensions field at all.
func bareHello(p Params) protocol.ClientHelloSpec {
	return protocol.ClientHelloSpec{
		Version: spec.VersionTLS12,
		CipherSuites: []spec.CipherSuite{
			p.cipher(),
			spec.CipherEmptyRenegotiationSCSV,
		},
	}
}

// extHello offers a single cipher and signals renegotiation through the
// renegotiation_info extension instead of the SCSV. Extension order is
// fixed; the stock skip rules are derived from this exact layout.
func extHello(p Params) protocol.ClientHelloSpec {
	exts := []protocol.Extension{protocol.RenegotiationInfoExtension()}
	if p.ECDHE {
		exts = append(exts,
			protocol.SupportedGroupsExtension(protocol.DefaultGroups),
			protocol.SignatureAlgorithmsExtension(protocol.DefaultSignatureSchemes),
			protocol.SignatureAlgorithmsCertExtension(protocol.DefaultSignatureSchemes),
		)
	}
	if p.EMS {
		exts = append(exts, protocol.ExtendedMasterSecretExtension())
	}
	return protocol.ClientHelloSpec{
		Version:      spec.VersionTLS12,
		CipherSuites: []spec.CipherSuite{p.cipher()},
		Extensions:   exts,
	}
}

// sanityConversation scripts the unmodified exchange: full server
// flight, then a clean shutdown via close_notify.
func sanityConversation(name string, p Params, hello protocol.ClientHelloSpec, required ...spec.ExtensionType) *conversation.Conversation {
	b := conversation.NewBuilder(name, p.Host, p.Port)
	b.Then(conversation.ClientHello(hello)).
		Then(conversation.ExpectServerHello(required...)).
		Then(conversation.ExpectCertificate())
	if p.ECDHE {
		b.Then(conversation.ExpectServerKeyExchange())
	}
	b.Then(conversation.ExpectServerHelloDone()).
		Then(conversation.Alert(spec.AlertLevelWarning, spec.AlertCloseNotify)).
		Then(conversation.ExpectAlert()).
		OrElse(conversation.ExpectClose())
	return b.Conversation()
}

// fuzzConversation scripts a corrupted hello: the server must answer
// with an alert matching match and then close the connection.
func fuzzConversation(name string, p Params, hello protocol.ClientHelloSpec, m mutate.Mutation, match conversation.Node) *conversation.Conversation {
	b := conversation.NewBuilder(name, p.Host, p.Port)
	b.Then(conversation.Fuzz(conversation.ClientHello(hello), m)).
		Then(match).
		OrElse(conversation.ExpectClose())
	return b.Conversation()
}

// strictAlert is the matcher most sweeps require: the one alert the
// protocol prescribes for a malformed hello.
func strictAlert() conversation.Node {
	return conversation.ExpectAlertExact(spec.AlertLevelFatal, spec.AlertDecodeError)
}

// allBytes is every nonzero byte, the value set for the XOR sweeps.
func allBytes() []uint8 {
	out := make([]uint8, 0, 255)
	for v := 1; v <= 255; v++ {
		out = append(out, uint8(v))
	}
	return out
}

// Substitution-sweep high bytes: low bits, a mid bit, and values near
// the field maximum. Each pairs with every low byte 0x00..0xff, so the
// sweeps exercise the 16-bit length fields at full low-byte resolution.
// The extensions-length sweep drops 0x80 because 0x80xx lengths
// overflow the record the hello is framed in.
var (
	subsHighBytes    = []uint8{1, 2, 4, 8, 16, 128, 254, 255}
	extSubsHighBytes = []uint8{1, 2, 4, 8, 16, 254, 255}
)

// BuildPopulation expands the parameters into the run's population.
func BuildPopulation(p Params) (*Population, error) {
	pop := &Population{}

	bare := bareHello(p)
	ext := extHello(p)

	extRequired := []spec.ExtensionType{spec.ETRenegotiationInfo}
	if p.EMS {
		extRequired = append(extRequired, spec.ETExtendedMasterSecret)
	}

	pop.add(Entry{
		Name:   "sanity",
		Conv:   sanityConversation("sanity", p, bare),
		Sanity: true,
	})
	// The extended sanity conversation runs with the regular tests; only
	// the bare one brackets the run.
	pop.add(Entry{
		Name: "sanity w/ext",
		Conv: sanityConversation("sanity w/ext", p, ext, extRequired...),
	})

	// Hello-type corruption over the bare hello. Which alert a server
	// picks for an unknown message type is implementation-defined, so
	// any alert is acceptable.
	for _, v := range allBytes() {
		name := fmt.Sprintf("fuzz hello type with xor 0x%02x", v)
		pop.addSweep(p, config.SweepHelloType, v, name,
			fuzzConversation(name, p, bare, mutate.XORs(map[int]byte{offHelloType: v}),
				conversation.ExpectAlert()))
	}

	// Session-ID length corruption. The baseline value is zero, so every
	// nonzero substitution is a corruption. Over the extended hello the
	// claimed session ID swallows later fields and servers differ on
	// which error they report, so that variant accepts any alert.
	for _, v := range allBytes() {
		name := fmt.Sprintf("fuzz session ID length to %d", v)
		pop.addSweep(p, config.SweepSessionIDLen, v, name,
			fuzzConversation(name, p, bare, mutate.Substitutions(map[int]byte{offSessionIDLen: v}),
				strictAlert()))
	}
	for _, v := range allBytes() {
		name := fmt.Sprintf("fuzz session ID length to %d w/ext", v)
		pop.addSweep(p, config.SweepSessionIDLenExt, v, name,
			fuzzConversation(name, p, ext, mutate.Substitutions(map[int]byte{offSessionIDLen: v}),
				conversation.ExpectAlert()))
	}

	// Cipher-suites length corruption over the extended hello. The XOR
	// sweep requires a fatal alert but leaves the description open;
	// which code a server picks depends on where its parser trips.
	for _, v := range allBytes() {
		name := fmt.Sprintf("fuzz cipher suites length with xor 0x%02x", v)
		pop.addSweep(p, config.SweepCipherSuitesLenXOR, v, name,
			fuzzConversation(name, p, ext, mutate.XORs(map[int]byte{offCipherLenLo: v}),
				conversation.ExpectAlertLevel(spec.AlertLevelFatal)))
	}
	for _, hi := range subsHighBytes {
		for lo := 0; lo <= 0xff; lo++ {
			name := fmt.Sprintf("fuzz cipher suites length to 0x%02x%02x", hi, lo)
			pop.addSweep(p, config.SweepCipherSuitesLenSubs, uint8(lo), name,
				fuzzConversation(name, p, ext, mutate.Substitutions(map[int]byte{
					offCipherLenHi: hi,
					offCipherLenLo: uint8(lo),
				}), strictAlert()))
		}
	}

	// Compression length corruption, both variants.
	for _, v := range allBytes() {
		name := fmt.Sprintf("fuzz compression length with xor 0x%02x", v)
		pop.addSweep(p, config.SweepCompressionLenXOR, v, name,
			fuzzConversation(name, p, ext, mutate.XORs(map[int]byte{offExtCompressionLen: v}),
				strictAlert()))
	}
	for _, v := range allBytes() {
		name := fmt.Sprintf("fuzz bare compression length with xor 0x%02x", v)
		pop.addSweep(p, config.SweepBareCompressionLenXOR, v, name,
			fuzzConversation(name, p, bare, mutate.XORs(map[int]byte{offBareCompressionLen: v}),
				strictAlert()))
	}

	// Extensions length corruption over the extended hello.
	for _, v := range allBytes() {
		name := fmt.Sprintf("fuzz extensions length with xor 0x%02x", v)
		pop.addSweep(p, config.SweepExtensionsLenXOR, v, name,
			fuzzConversation(name, p, ext, mutate.XORs(map[int]byte{offExtExtLenLo: v}),
				strictAlert()))
	}
	for _, hi := range extSubsHighBytes {
		for lo := 0; lo <= 0xff; lo++ {
			name := fmt.Sprintf("fuzz extensions length to 0x%02x%02x", hi, lo)
			pop.addSweep(p, config.SweepExtensionsLenSubs, uint8(lo), name,
				fuzzConversation(name, p, ext, mutate.Substitutions(map[int]byte{
					offExtExtLenHi: hi,
					offExtExtLenLo: uint8(lo),
				}), strictAlert()))
		}
	}

	for _, e := range pop.entries {
		if err := e.Conv.Validate(); err != nil {
			return nil, fmt.Errorf("generated conversation %q: %w", e.Name, err)
		}
	}
	return pop, nil
}

func (p *Population) add(e Entry) {
	p.entries = append(p.entries, e)
}

// addSweep adds a fuzzed conversation unless a skip rule removes it.
func (p *Population) addSweep(params Params, sweep string, value uint8, name string, conv *conversation.Conversation) {
	for _, rule := range params.SkipRules {
		if rule.Matches(sweep, value, params.ECDHE, params.EMS) {
			p.skipped = append(p.skipped, name)
			return
		}
	}
	p.add(Entry{Name: name, Conv: conv})
}
