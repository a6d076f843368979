package conversation

// Node constructors. Scenario code reads best when each protocol step is
// a single call, mirroring the shape of the exchange being scripted.

import (
	"github.com/kazu-yamamoto/tlsfuzzer/internal/mutate"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/protocol"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

// ClientHello builds a generator node for a ClientHello.
func ClientHello(hs protocol.ClientHelloSpec) Node {
	return Node{
		Kind:    KindGenerator,
		Payload: &PayloadSpec{Kind: PayloadClientHello, Hello: &hs},
		Sibling: None,
	}
}

// ChangeCipherSpec builds a generator node for a CCS message.
func ChangeCipherSpec() Node {
	return Node{
		Kind:    KindGenerator,
		Payload: &PayloadSpec{Kind: PayloadChangeCipherSpec},
		Sibling: None,
	}
}

// Alert builds a generator node for an alert message.
func Alert(level spec.AlertLevel, desc spec.AlertDescription) Node {
	return Node{
		Kind:    KindGenerator,
		Payload: &PayloadSpec{Kind: PayloadAlert, Level: level, Description: desc},
		Sibling: None,
	}
}

// ApplicationData builds a generator node for application data.
func ApplicationData(data []byte) Node {
	return Node{
		Kind:    KindGenerator,
		Payload: &PayloadSpec{Kind: PayloadApplicationData, Data: data},
		Sibling: None,
	}
}

// Raw builds a generator node transmitting an arbitrary payload under
// the given record type.
func Raw(ct spec.ContentType, data []byte) Node {
	return Node{
		Kind:    KindGenerator,
		Payload: &PayloadSpec{Kind: PayloadRaw, ContentType: ct, Data: data},
		Sibling: None,
	}
}

// Fuzz attaches a mutation to a generator node: the node's message is
// corrupted immediately before record framing.
func Fuzz(n Node, m mutate.Mutation) Node {
	n.Mutation = m
	return n
}

// ExpectServerHello builds a matcher for a server_hello, optionally
// requiring the given extensions to be present.
func ExpectServerHello(required ...spec.ExtensionType) Node {
	return Node{
		Kind: KindMatcher,
		Match: &MatchSpec{
			Kind:          MatchHandshake,
			HandshakeType: spec.HTServerHello,
			Extensions:    required,
		},
		Sibling: None,
	}
}

// ExpectHandshake builds a matcher for a handshake message of the given
// type.
func ExpectHandshake(ht spec.HandshakeType) Node {
	return Node{
		Kind:    KindMatcher,
		Match:   &MatchSpec{Kind: MatchHandshake, HandshakeType: ht},
		Sibling: None,
	}
}

// ExpectCertificate builds a matcher for the certificate message.
func ExpectCertificate() Node { return ExpectHandshake(spec.HTCertificate) }

// ExpectServerKeyExchange builds a matcher for server_key_exchange.
func ExpectServerKeyExchange() Node { return ExpectHandshake(spec.HTServerKeyExchange) }

// ExpectServerHelloDone builds a matcher for server_hello_done.
func ExpectServerHelloDone() Node { return ExpectHandshake(spec.HTServerHelloDone) }

// ExpectChangeCipherSpec builds a matcher for a CCS message.
func ExpectChangeCipherSpec() Node {
	return Node{
		Kind:    KindMatcher,
		Match:   &MatchSpec{Kind: MatchChangeCipherSpec},
		Sibling: None,
	}
}

// ExpectApplicationData builds a matcher for an application data record.
func ExpectApplicationData() Node {
	return Node{
		Kind:    KindMatcher,
		Match:   &MatchSpec{Kind: MatchApplicationData},
		Sibling: None,
	}
}

// ExpectAlert builds a matcher accepting any alert.
func ExpectAlert() Node {
	return Node{
		Kind:    KindMatcher,
		Match:   &MatchSpec{Kind: MatchAlert},
		Sibling: None,
	}
}

// ExpectAlertLevel builds a matcher for an alert of the given level with
// any description.
func ExpectAlertLevel(level spec.AlertLevel) Node {
	return Node{
		Kind:    KindMatcher,
		Match:   &MatchSpec{Kind: MatchAlert, Level: &level},
		Sibling: None,
	}
}

// ExpectAlertExact builds a matcher for an alert with the given level
// and description.
func ExpectAlertExact(level spec.AlertLevel, desc spec.AlertDescription) Node {
	return Node{
		Kind:    KindMatcher,
		Match:   &MatchSpec{Kind: MatchAlert, Level: &level, Description: &desc},
		Sibling: None,
	}
}

// ExpectClose builds a matcher for the connection closing.
func ExpectClose() Node {
	return Node{
		Kind:    KindMatcher,
		Match:   &MatchSpec{Kind: MatchClose},
		Sibling: None,
	}
}

// Builder chains nodes linearly, the natural shape of a handshake
// script. Then appends a child under the cursor and moves the cursor;
// OrElse attaches a sibling to the cursor without moving it.
type Builder struct {
	conv   *Conversation
	cursor NodeID
}

// NewBuilder starts a conversation and a builder positioned at its
// connect root.
func NewBuilder(name, host string, port int) *Builder {
	c := New(name, host, port)
	return &Builder{conv: c, cursor: c.Root()}
}

// Then appends n as a child of the cursor and advances to it.
func (b *Builder) Then(n Node) *Builder {
	b.cursor = b.conv.AddChild(b.cursor, n)
	return b
}

// OrElse attaches n as the cursor's same-depth sibling continuation.
func (b *Builder) OrElse(n Node) *Builder {
	b.conv.SetSibling(b.cursor, n)
	return b
}

// Conversation returns the built conversation.
func (b *Builder) Conversation() *Conversation {
	return b.conv
}
