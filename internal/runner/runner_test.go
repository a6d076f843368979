package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/conversation"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/mutate"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/client"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/protocol"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

func testHello() protocol.ClientHelloSpec {
	return protocol.ClientHelloSpec{
		Version: spec.VersionTLS12,
		CipherSuites: []spec.CipherSuite{
			spec.CipherRSAWithAES128CBCSHA,
			spec.CipherEmptyRenegotiationSCSV,
		},
	}
}

// fuzzedConversation scripts the basic corruption exchange: send a hello,
// require a fatal decode_error or an immediate close.
func fuzzedConversation(m mutate.Mutation) *conversation.Conversation {
	return conversation.NewBuilder("fuzzed", "localhost", 4433).
		Then(conversation.Fuzz(conversation.ClientHello(testHello()), m)).
		Then(conversation.ExpectAlertExact(spec.AlertLevelFatal, spec.AlertDecodeError)).
		OrElse(conversation.ExpectClose()).
		Conversation()
}

func TestRunFuzzedPass(t *testing.T) {
	c := client.NewScripted()
	c.QueueAlert(spec.AlertLevelFatal, spec.AlertDecodeError)
	c.QueueClose()

	r := New(c)
	conv := fuzzedConversation(mutate.XORs(map[int]byte{0: 0xFF}))
	if err := r.Run(context.Background(), conv); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if r.State() != StateClosed {
		t.Errorf("state = %v, want closed", r.State())
	}
	if c.ConnectCalls() != 1 {
		t.Errorf("Connect called %d times, want 1", c.ConnectCalls())
	}

	sent := c.Sent()
	if len(sent) != 1 {
		t.Fatalf("sent %d records, want 1", len(sent))
	}
	if sent[0].Type != spec.CTHandshake {
		t.Errorf("sent record type = %v, want handshake", sent[0].Type)
	}
	// The mutation flipped every bit of the handshake type byte.
	if sent[0].Payload[0] != byte(spec.HTClientHello)^0xFF {
		t.Errorf("hello type byte = 0x%02X, want mutated", sent[0].Payload[0])
	}
}

func TestRunWrongAlert(t *testing.T) {
	tests := []struct {
		name  string
		level spec.AlertLevel
		desc  spec.AlertDescription
	}{
		{"wrong description", spec.AlertLevelFatal, spec.AlertHandshakeFailure},
		{"wrong level", spec.AlertLevelWarning, spec.AlertDecodeError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := client.NewScripted()
			c.QueueAlert(tt.level, tt.desc)

			r := New(c)
			err := r.Run(context.Background(), fuzzedConversation(nil))
			var uae *UnexpectedAlertError
			if !errors.As(err, &uae) {
				t.Fatalf("Run error = %v, want UnexpectedAlertError", err)
			}
			if uae.Got.Level != tt.level || uae.Got.Description != tt.desc {
				t.Errorf("Got = %v, want %v %v", uae.Got, tt.level, tt.desc)
			}
			if r.State() != StateFailed {
				t.Errorf("state = %v, want failed", r.State())
			}
		})
	}
}

func TestRunUnexpectedMessage(t *testing.T) {
	c := client.NewScripted()
	c.QueueHandshake(spec.HTServerHello, nil)

	r := New(c)
	err := r.Run(context.Background(), fuzzedConversation(nil))
	var ume *UnexpectedMessageError
	if !errors.As(err, &ume) {
		t.Fatalf("Run error = %v, want UnexpectedMessageError", err)
	}
	if ume.Expected != "alert" {
		t.Errorf("Expected = %q, want %q", ume.Expected, "alert")
	}
}

func TestRunConnectionNotClosed(t *testing.T) {
	c := client.NewScripted()
	c.QueueAlert(spec.AlertLevelFatal, spec.AlertDecodeError)
	c.QueueHandshake(spec.HTHelloRequest, nil)

	r := New(c)
	err := r.Run(context.Background(), fuzzedConversation(nil))
	var cnc *ConnectionNotClosedError
	if !errors.As(err, &cnc) {
		t.Fatalf("Run error = %v, want ConnectionNotClosedError", err)
	}
}

func TestRunCloseWhereMessageExpected(t *testing.T) {
	c := client.NewScripted()
	c.QueueClose()

	r := New(c)
	err := r.Run(context.Background(), fuzzedConversation(nil))
	var ume *UnexpectedMessageError
	if !errors.As(err, &ume) {
		t.Fatalf("Run error = %v, want UnexpectedMessageError", err)
	}
	if ume.Got != "connection closed" {
		t.Errorf("Got = %q, want %q", ume.Got, "connection closed")
	}
}

func TestRunReceiveFailure(t *testing.T) {
	// A transport error mid-conversation aborts the walk with the
	// transport's error, not a mismatch.
	c := client.NewScripted()
	c.QueueError(&client.TransportError{Op: "receive", Err: fmt.Errorf("connection timed out")})

	r := New(c)
	err := r.Run(context.Background(), fuzzedConversation(nil))
	var te *client.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("Run error = %v, want TransportError", err)
	}
	if r.State() != StateFailed {
		t.Errorf("state = %v, want failed", r.State())
	}
}

func TestRunSendFailure(t *testing.T) {
	c := client.NewScripted()
	c.SetSendError(fmt.Errorf("broken pipe"))

	r := New(c)
	err := r.Run(context.Background(), fuzzedConversation(nil))
	if err == nil || !strings.Contains(err.Error(), "broken pipe") {
		t.Fatalf("Run error = %v, want broken pipe", err)
	}
	if r.State() != StateFailed {
		t.Errorf("state = %v, want failed", r.State())
	}
}

func TestRunConnectFailure(t *testing.T) {
	c := client.NewScripted()
	c.SetConnectError(fmt.Errorf("connection refused"))

	r := New(c)
	err := r.Run(context.Background(), fuzzedConversation(nil))
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("Run error = %v, want connection refused", err)
	}
	if r.State() != StateFailed {
		t.Errorf("state = %v, want failed", r.State())
	}
}

func TestRunInvalidConversation(t *testing.T) {
	c := client.NewScripted()
	r := New(c)

	conv := conversation.New("bare", "localhost", 4433)
	if err := r.Run(context.Background(), conv); err == nil {
		t.Fatal("Run succeeded on an invalid conversation")
	}
	if c.ConnectCalls() != 0 {
		t.Errorf("Connect called %d times before validation, want 0", c.ConnectCalls())
	}
}

func sanityServerHello(exts ...spec.ExtensionType) *protocol.ServerHello {
	sh := &protocol.ServerHello{
		Version:     spec.VersionTLS12,
		CipherSuite: spec.CipherRSAWithAES128CBCSHA,
	}
	for _, et := range exts {
		sh.Extensions = append(sh.Extensions, protocol.Extension{Type: et})
	}
	return sh
}

// sanityConversation scripts the clean handshake-then-hangup exchange.
func sanityConversation() *conversation.Conversation {
	return conversation.NewBuilder("sanity", "localhost", 4433).
		Then(conversation.ClientHello(testHello())).
		Then(conversation.ExpectServerHello(spec.ETRenegotiationInfo)).
		Then(conversation.ExpectCertificate()).
		Then(conversation.ExpectServerHelloDone()).
		Then(conversation.Alert(spec.AlertLevelWarning, spec.AlertCloseNotify)).
		Then(conversation.ExpectAlert()).
		OrElse(conversation.ExpectClose()).
		Conversation()
}

func TestRunSanityFlow(t *testing.T) {
	c := client.NewScripted()
	c.QueueServerHello(sanityServerHello(spec.ETRenegotiationInfo))
	c.QueueHandshake(spec.HTCertificate, nil)
	c.QueueHandshake(spec.HTServerHelloDone, nil)
	c.QueueAlert(spec.AlertLevelWarning, spec.AlertCloseNotify)
	c.QueueClose()

	r := New(c)
	if err := r.Run(context.Background(), sanityConversation()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sent := c.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d records, want 2", len(sent))
	}
	if sent[1].Type != spec.CTAlert {
		t.Errorf("second record type = %v, want alert", sent[1].Type)
	}
	wantAlert := []byte{byte(spec.AlertLevelWarning), byte(spec.AlertCloseNotify)}
	if sent[1].Payload[0] != wantAlert[0] || sent[1].Payload[1] != wantAlert[1] {
		t.Errorf("alert payload = %x, want %x", sent[1].Payload, wantAlert)
	}
}

func TestRunSanityCloseInsteadOfAlert(t *testing.T) {
	// A server may drop the connection instead of answering close_notify.
	// The alert matcher's close sibling is not a fallback for the same
	// event; the close must arrive where the walk actually is.
	c := client.NewScripted()
	c.QueueServerHello(sanityServerHello(spec.ETRenegotiationInfo))
	c.QueueHandshake(spec.HTCertificate, nil)
	c.QueueHandshake(spec.HTServerHelloDone, nil)
	c.QueueClose()

	r := New(c)
	err := r.Run(context.Background(), sanityConversation())
	var ume *UnexpectedMessageError
	if !errors.As(err, &ume) {
		t.Fatalf("Run error = %v, want UnexpectedMessageError", err)
	}
}

func TestRunServerHelloMissingExtension(t *testing.T) {
	c := client.NewScripted()
	c.QueueServerHello(sanityServerHello())

	r := New(c)
	err := r.Run(context.Background(), sanityConversation())
	var ume *UnexpectedMessageError
	if !errors.As(err, &ume) {
		t.Fatalf("Run error = %v, want UnexpectedMessageError", err)
	}
	if !strings.Contains(ume.Expected, "renegotiation_info") {
		t.Errorf("Expected = %q, want renegotiation_info mentioned", ume.Expected)
	}
}

func TestRunEphemeralSanityFlow(t *testing.T) {
	conv := conversation.NewBuilder("sanity ecdhe", "localhost", 4433).
		Then(conversation.ClientHello(testHello())).
		Then(conversation.ExpectServerHello()).
		Then(conversation.ExpectCertificate()).
		Then(conversation.ExpectServerKeyExchange()).
		Then(conversation.ExpectServerHelloDone()).
		Then(conversation.Alert(spec.AlertLevelWarning, spec.AlertCloseNotify)).
		Then(conversation.ExpectAlert()).
		OrElse(conversation.ExpectClose()).
		Conversation()

	c := client.NewScripted()
	c.QueueServerHello(sanityServerHello())
	c.QueueHandshake(spec.HTCertificate, nil)
	c.QueueHandshake(spec.HTServerKeyExchange, nil)
	c.QueueHandshake(spec.HTServerHelloDone, nil)
	c.QueueAlert(spec.AlertLevelWarning, spec.AlertCloseNotify)
	c.QueueClose()

	r := New(c)
	if err := r.Run(context.Background(), conv); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
}

func TestRunSendsPostHelloRecords(t *testing.T) {
	// A generator chain with no matcher between sends goes out as one
	// client flight.
	conv := conversation.NewBuilder("early data probe", "localhost", 4433).
		Then(conversation.ClientHello(testHello())).
		Then(conversation.ExpectServerHello()).
		Then(conversation.ChangeCipherSpec()).
		Then(conversation.ApplicationData([]byte("ping"))).
		Then(conversation.Raw(spec.CTHandshake, []byte{0xAB})).
		Then(conversation.ExpectClose()).
		Conversation()

	c := client.NewScripted()
	c.QueueServerHello(sanityServerHello())
	c.QueueClose()

	r := New(c)
	if err := r.Run(context.Background(), conv); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	sent := c.Sent()
	if len(sent) != 4 {
		t.Fatalf("sent %d records, want 4", len(sent))
	}
	if sent[1].Type != spec.CTChangeCipherSpec || sent[1].Payload[0] != 1 {
		t.Errorf("CCS record = %v %x, want type 20 payload 01", sent[1].Type, sent[1].Payload)
	}
	if sent[2].Type != spec.CTApplicationData || string(sent[2].Payload) != "ping" {
		t.Errorf("app data record = %v %q", sent[2].Type, sent[2].Payload)
	}
	if sent[3].Type != spec.CTHandshake || sent[3].Payload[0] != 0xAB {
		t.Errorf("raw record = %v %x, want handshake AB", sent[3].Type, sent[3].Payload)
	}
}

func TestRunMatchesPostHandshakeEvents(t *testing.T) {
	conv := conversation.NewBuilder("session resume probe", "localhost", 4433).
		Then(conversation.ClientHello(testHello())).
		Then(conversation.ExpectChangeCipherSpec()).
		Then(conversation.ExpectApplicationData()).
		Then(conversation.ExpectClose()).
		Conversation()

	c := client.NewScripted()
	c.QueueEvent(client.Event{Kind: client.EventChangeCipherSpec})
	c.QueueEvent(client.Event{Kind: client.EventApplicationData, Data: []byte("pong")})
	c.QueueClose()

	r := New(c)
	if err := r.Run(context.Background(), conv); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	// The same script answering an alert where CCS is required mismatches.
	c = client.NewScripted()
	c.QueueAlert(spec.AlertLevelWarning, spec.AlertCloseNotify)

	r = New(c)
	err := r.Run(context.Background(), conv)
	var ume *UnexpectedMessageError
	if !errors.As(err, &ume) {
		t.Fatalf("Run error = %v, want UnexpectedMessageError", err)
	}
	if ume.Expected != "change_cipher_spec" {
		t.Errorf("Expected = %q, want change_cipher_spec", ume.Expected)
	}
}

func TestStateTransitions(t *testing.T) {
	c := client.NewScripted()
	r := New(c)
	if r.State() != StateConnecting {
		t.Errorf("initial state = %v, want connecting", r.State())
	}

	c.QueueAlert(spec.AlertLevelFatal, spec.AlertDecodeError)
	c.QueueClose()
	if err := r.Run(context.Background(), fuzzedConversation(nil)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if r.State() != StateClosed {
		t.Errorf("final state = %v, want closed", r.State())
	}
}

func TestStateStrings(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateConnecting, "connecting"},
		{StateActive, "active"},
		{StateClosed, "closed"},
		{StateFailed, "failed"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
