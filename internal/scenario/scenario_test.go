package scenario

import (
	"context"
	"strings"
	"testing"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/config"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/conversation"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/mutate"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/runner"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/client"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/protocol"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

func baseParams() Params {
	return Params{Host: "localhost", Port: 4433}
}

func TestBareHelloLayout(t *testing.T) {
	msg, err := protocol.BuildClientHello(bareHello(baseParams()))
	if err != nil {
		t.Fatalf("BuildClientHello failed: %v", err)
	}

	if msg[offHelloType] != byte(spec.HTClientHello) {
		t.Errorf("byte %d = 0x%02x, want client_hello type", offHelloType, msg[offHelloType])
	}
	if msg[offSessionIDLen] != 0 {
		t.Errorf("byte %d = 0x%02x, want empty session ID", offSessionIDLen, msg[offSessionIDLen])
	}
	// Two suites: the configured cipher plus the SCSV.
	if msg[offCipherLenHi] != 0 || msg[offCipherLenLo] != 4 {
		t.Errorf("cipher suites length = 0x%02x%02x, want 0x0004", msg[offCipherLenHi], msg[offCipherLenLo])
	}
	if msg[offBareCompressionLen] != 1 {
		t.Errorf("byte %d = 0x%02x, want compression length 1", offBareCompressionLen, msg[offBareCompressionLen])
	}
	// No extensions field at all.
	if len(msg) != offBareCompressionLen+2 {
		t.Errorf("bare hello is %d bytes, want %d", len(msg), offBareCompressionLen+2)
	}
}

func TestExtHelloLayout(t *testing.T) {
	msg, err := protocol.BuildClientHello(extHello(baseParams()))
	if err != nil {
		t.Fatalf("BuildClientHello failed: %v", err)
	}

	// One suite only; renegotiation is signaled via the extension.
	if msg[offCipherLenHi] != 0 || msg[offCipherLenLo] != 2 {
		t.Errorf("cipher suites length = 0x%02x%02x, want 0x0002", msg[offCipherLenHi], msg[offCipherLenLo])
	}
	if msg[offExtCompressionLen] != 1 {
		t.Errorf("byte %d = 0x%02x, want compression length 1", offExtCompressionLen, msg[offExtCompressionLen])
	}
	// renegotiation_info only: 2-byte type + 2-byte length + 1 data byte.
	if msg[offExtExtLenHi] != 0 || msg[offExtExtLenLo] != 5 {
		t.Errorf("extensions length = 0x%02x%02x, want 0x0005", msg[offExtExtLenHi], msg[offExtExtLenLo])
	}
	if len(msg) != offExtExtLenLo+1+5 {
		t.Errorf("ext hello is %d bytes, want %d", len(msg), offExtExtLenLo+1+5)
	}
}

func TestExtHelloLayoutECDHEEMS(t *testing.T) {
	p := baseParams()
	p.ECDHE = true
	p.EMS = true
	msg, err := protocol.BuildClientHello(extHello(p))
	if err != nil {
		t.Fatalf("BuildClientHello failed: %v", err)
	}

	// renegotiation_info (5) + supported_groups (10) + two signature
	// algorithm lists (22 each) + extended_master_secret (4).
	if msg[offExtExtLenHi] != 0 || msg[offExtExtLenLo] != 63 {
		t.Errorf("extensions length = 0x%02x%02x, want 0x003f", msg[offExtExtLenHi], msg[offExtExtLenLo])
	}
}

func TestCipherSelection(t *testing.T) {
	if got := baseParams().cipher(); got != spec.CipherRSAWithAES128CBCSHA {
		t.Errorf("default cipher = %v, want RSA AES128-CBC-SHA", got)
	}

	p := baseParams()
	p.ECDHE = true
	if got := p.cipher(); got != spec.CipherECDHERSAWithAES128CBCSHA {
		t.Errorf("ecdhe cipher = %v, want ECDHE-RSA AES128-CBC-SHA", got)
	}

	p.Cipher = spec.CipherRSAWithAES256CBCSHA
	if got := p.cipher(); got != spec.CipherRSAWithAES256CBCSHA {
		t.Errorf("override cipher = %v, want the override", got)
	}
}

func TestBuildPopulation(t *testing.T) {
	pop, err := BuildPopulation(baseParams())
	if err != nil {
		t.Fatalf("BuildPopulation failed: %v", err)
	}

	sanity := pop.Sanity()
	if len(sanity) != 1 || sanity[0].Name != "sanity" {
		t.Fatalf("bracketing sanity = %v, want just \"sanity\"", sanity)
	}

	regular := pop.Regular()
	if len(regular) == 0 || regular[0].Name != "sanity w/ext" {
		t.Fatal("the extended sanity conversation should lead the regular tests")
	}

	// The extended sanity conversation, seven full-range XOR sweeps, and
	// the two paired-substitution sweeps at 256 low bytes per high byte.
	wantRegular := 1 + 7*255 + len(subsHighBytes)*256 + len(extSubsHighBytes)*256
	if got := len(regular); got != wantRegular {
		t.Errorf("got %d regular conversations, want %d", got, wantRegular)
	}
	if len(pop.Skipped()) != 0 {
		t.Errorf("no skip rules given, but %d skipped: %v", len(pop.Skipped()), pop.Skipped())
	}
}

func TestBuildPopulationAppliesSkipRules(t *testing.T) {
	p := baseParams()
	p.SkipRules = config.DefaultSkipRules()

	pop, err := BuildPopulation(p)
	if err != nil {
		t.Fatalf("BuildPopulation failed: %v", err)
	}

	// Only the unflagged rule applies to an RSA, no-EMS offer.
	skipped := pop.Skipped()
	if len(skipped) != 1 {
		t.Fatalf("got %d skipped, want 1: %v", len(skipped), skipped)
	}
	if skipped[0] != "fuzz compression length with xor 0x09" {
		t.Errorf("skipped %q, want the compression xor 0x09 conversation", skipped[0])
	}
	for _, e := range pop.Entries() {
		if e.Name == skipped[0] {
			t.Errorf("skipped conversation %q still present in population", e.Name)
		}
	}
}

func TestBuildPopulationSkipRulesECDHE(t *testing.T) {
	p := baseParams()
	p.ECDHE = true
	p.SkipRules = config.DefaultSkipRules()

	pop, err := BuildPopulation(p)
	if err != nil {
		t.Fatalf("BuildPopulation failed: %v", err)
	}

	want := map[string]bool{
		"fuzz compression length with xor 0x3f":   true,
		"fuzz cipher suites length with xor 0x38": true,
	}
	skipped := pop.Skipped()
	if len(skipped) != len(want) {
		t.Fatalf("got %d skipped, want %d: %v", len(skipped), len(want), skipped)
	}
	for _, name := range skipped {
		if !want[name] {
			t.Errorf("unexpected skipped conversation %q", name)
		}
	}
}

func TestSanityConversationShape(t *testing.T) {
	p := baseParams()
	p.ECDHE = true
	pop, err := BuildPopulation(p)
	if err != nil {
		t.Fatalf("BuildPopulation failed: %v", err)
	}

	conv := pop.Sanity()[0].Conv
	if err := conv.Validate(); err != nil {
		t.Fatalf("sanity conversation invalid: %v", err)
	}
	// ECDHE adds the server_key_exchange matcher:
	// connect, hello, 4 matchers, close_notify, alert matcher, close.
	if conv.Len() != 9 {
		t.Errorf("ecdhe sanity has %d nodes, want 9", conv.Len())
	}
}

func TestFuzzedNamesEncodeValues(t *testing.T) {
	pop, err := BuildPopulation(baseParams())
	if err != nil {
		t.Fatalf("BuildPopulation failed: %v", err)
	}

	seen := map[string]bool{}
	for _, e := range pop.Regular() {
		if seen[e.Name] {
			t.Errorf("duplicate conversation name %q", e.Name)
		}
		seen[e.Name] = true
		if e.Name != "sanity w/ext" && !strings.HasPrefix(e.Name, "fuzz ") {
			t.Errorf("fuzzed conversation %q should be named for its corruption", e.Name)
		}
	}

	for _, want := range []string{
		"fuzz hello type with xor 0xff",
		"fuzz session ID length to 32",
		"fuzz session ID length to 32 w/ext",
		"fuzz cipher suites length to 0x0100",
		"fuzz cipher suites length to 0xfeff",
		"fuzz extensions length to 0x01ff",
		"fuzz extensions length to 0xff00",
		"fuzz bare compression length with xor 0x01",
	} {
		if !seen[want] {
			t.Errorf("population missing %q", want)
		}
	}
}

// alertMatcher digs the alert matcher out of a fuzzed conversation.
func alertMatcher(t *testing.T, conv *conversation.Conversation) *conversation.MatchSpec {
	t.Helper()
	for id := 0; id < conv.Len(); id++ {
		n := conv.Node(conversation.NodeID(id))
		if n.Match != nil && n.Match.Kind == conversation.MatchAlert {
			return n.Match
		}
	}
	t.Fatal("conversation has no alert matcher")
	return nil
}

func TestSweepMatcherStrictness(t *testing.T) {
	pop, err := BuildPopulation(baseParams())
	if err != nil {
		t.Fatalf("BuildPopulation failed: %v", err)
	}
	byName := map[string]*conversation.Conversation{}
	for _, e := range pop.Regular() {
		byName[e.Name] = e.Conv
	}

	fatal := spec.AlertLevelFatal
	decodeError := spec.AlertDecodeError
	tests := []struct {
		name  string
		level *spec.AlertLevel
		desc  *spec.AlertDescription
	}{
		{"fuzz hello type with xor 0x01", nil, nil},
		{"fuzz session ID length to 37", &fatal, &decodeError},
		{"fuzz session ID length to 37 w/ext", nil, nil},
		{"fuzz cipher suites length with xor 0x01", &fatal, nil},
		{"fuzz cipher suites length to 0x0100", &fatal, &decodeError},
		{"fuzz compression length with xor 0x01", &fatal, &decodeError},
		{"fuzz extensions length to 0x01ff", &fatal, &decodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv := byName[tt.name]
			if conv == nil {
				t.Fatalf("population missing %q", tt.name)
			}
			m := alertMatcher(t, conv)
			if (m.Level == nil) != (tt.level == nil) || (m.Level != nil && *m.Level != *tt.level) {
				t.Errorf("level constraint = %v, want %v", m.Level, tt.level)
			}
			if (m.Description == nil) != (tt.desc == nil) || (m.Description != nil && *m.Description != *tt.desc) {
				t.Errorf("description constraint = %v, want %v", m.Description, tt.desc)
			}
		})
	}
}

func TestHelloTypeFuzzAcceptsAnyAlert(t *testing.T) {
	pop, err := BuildPopulation(baseParams())
	if err != nil {
		t.Fatalf("BuildPopulation failed: %v", err)
	}
	var conv *conversation.Conversation
	for _, e := range pop.Regular() {
		if e.Name == "fuzz hello type with xor 0x01" {
			conv = e.Conv
			break
		}
	}
	if conv == nil {
		t.Fatal("population missing the hello type sweep")
	}

	// The exact error code for an unknown message type is the server's
	// choice; unexpected_message must pass just like decode_error.
	c := client.NewScripted()
	c.QueueAlert(spec.AlertLevelFatal, spec.AlertUnexpectedMessage)
	c.QueueClose()
	if err := runner.New(c).Run(context.Background(), conv); err != nil {
		t.Fatalf("any alert should satisfy the hello type sweep, got: %v", err)
	}
}

func TestSweepOffsetsInRange(t *testing.T) {
	// Every mutation must land inside the message it corrupts; an
	// out-of-range offset would mean the sweep targets the wrong variant.
	for _, ecdhe := range []bool{false, true} {
		p := baseParams()
		p.ECDHE = ecdhe
		pop, err := BuildPopulation(p)
		if err != nil {
			t.Fatalf("BuildPopulation failed: %v", err)
		}
		for _, e := range pop.Regular() {
			conv := e.Conv
			for id := 0; id < conv.Len(); id++ {
				node := conv.Node(conversation.NodeID(id))
				if node.Mutation == nil {
					continue
				}
				msg, err := protocol.BuildClientHello(*node.Payload.Hello)
				if err != nil {
					t.Fatalf("%q: build hello: %v", e.Name, err)
				}
				if _, err := mutate.Apply(msg, node.Mutation); err != nil {
					t.Errorf("%q: mutation out of range: %v", e.Name, err)
				}
			}
		}
	}
}
