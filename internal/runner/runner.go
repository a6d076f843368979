package runner

// Runner executes one conversation against a live connection: walks the
// node tree, transmits generator output (mutated when the node says so),
// and matches inbound events against matcher nodes. One round trip is in
// flight at a time; the first failure aborts the walk.

import (
	"context"
	"fmt"
	"time"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/conversation"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/logging"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/mutate"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/client"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/protocol"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

// State is the runner's connection state.
type State int

// Runner states.
const (
	StateConnecting State = iota
	StateActive
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("{State %d}", int(s))
	}
}

// DefaultReceiveTimeout bounds a single blocking read. The engine has no
// timeout machinery of its own beyond this transport deadline.
const DefaultReceiveTimeout = 5 * time.Second

// Runner walks one conversation.
type Runner struct {
	client  client.Client
	log     *logging.Logger
	timeout time.Duration
	state   State
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger attaches a logger.
func WithLogger(log *logging.Logger) Option {
	return func(r *Runner) { r.log = log }
}

// WithReceiveTimeout overrides the blocking-read timeout.
func WithReceiveTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// New creates a Runner over the given client.
func New(c client.Client, opts ...Option) *Runner {
	r := &Runner{
		client:  c,
		timeout: DefaultReceiveTimeout,
		state:   StateConnecting,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the runner's current state.
func (r *Runner) State() State { return r.state }

// Run executes the conversation from its root. The connection is torn
// down before returning, pass or fail. Run never retries; a retry, if
// wanted, is a harness-level decision.
func (r *Runner) Run(ctx context.Context, conv *conversation.Conversation) error {
	if err := conv.Validate(); err != nil {
		r.state = StateFailed
		return err
	}
	defer r.client.Close()

	cur := conv.Root()
	for cur != conversation.None {
		node := conv.Node(cur)
		if err := r.execute(ctx, conv, node); err != nil {
			r.state = StateFailed
			return err
		}
		cur = next(node)
	}
	if r.state != StateClosed {
		r.state = StateClosed
	}
	return nil
}

// next advances to the first child, else the same-depth sibling, else
// terminates the walk.
func next(node *conversation.Node) conversation.NodeID {
	if len(node.Children) > 0 {
		return node.Children[0]
	}
	return node.Sibling
}

func (r *Runner) execute(ctx context.Context, conv *conversation.Conversation, node *conversation.Node) error {
	switch node.Kind {
	case conversation.KindGenerator:
		return r.generate(ctx, node)
	case conversation.KindMatcher:
		return r.match(ctx, node)
	default:
		return fmt.Errorf("unknown node kind %d", node.Kind)
	}
}

// generate resolves the node's payload spec, applies its mutation, and
// transmits the result.
func (r *Runner) generate(ctx context.Context, node *conversation.Node) error {
	p := node.Payload

	if p.Kind == conversation.PayloadConnect {
		if err := r.client.Connect(ctx, p.Host, p.Port); err != nil {
			return err
		}
		r.state = StateActive
		return nil
	}

	ct, msg, err := r.build(p)
	if err != nil {
		return err
	}
	if node.Mutation != nil {
		msg, err = mutate.Apply(msg, node.Mutation)
		if err != nil {
			return err
		}
		if r.log != nil {
			r.log.Debug("mutated %v message: %v", p.Kind, node.Mutation)
			r.log.LogHex("mutated message", msg)
		}
	}
	return r.client.SendRecord(ctx, ct, msg)
}

// build produces the serialized message for a payload spec, before
// mutation and record framing.
func (r *Runner) build(p *conversation.PayloadSpec) (spec.ContentType, []byte, error) {
	switch p.Kind {
	case conversation.PayloadClientHello:
		msg, err := protocol.BuildClientHello(*p.Hello)
		if err != nil {
			return 0, nil, fmt.Errorf("build client_hello: %w", err)
		}
		return spec.CTHandshake, msg, nil

	case conversation.PayloadChangeCipherSpec:
		return spec.CTChangeCipherSpec, protocol.BuildChangeCipherSpec(), nil

	case conversation.PayloadAlert:
		return spec.CTAlert, protocol.BuildAlert(p.Level, p.Description), nil

	case conversation.PayloadApplicationData:
		return spec.CTApplicationData, p.Data, nil

	case conversation.PayloadRaw:
		return p.ContentType, p.Data, nil

	default:
		return 0, nil, fmt.Errorf("cannot generate payload kind %v", p.Kind)
	}
}

// match blocks for the next inbound event and compares it to the
// matcher's expected shape.
func (r *Runner) match(ctx context.Context, node *conversation.Node) error {
	ev, err := r.client.Receive(ctx, r.timeout)
	if err != nil {
		return err
	}
	m := node.Match

	if ev.Kind == client.EventClosed {
		if m.Kind == conversation.MatchClose {
			r.state = StateClosed
			return nil
		}
		return &UnexpectedMessageError{Expected: m.Kind.String(), Got: "connection closed"}
	}

	switch m.Kind {
	case conversation.MatchClose:
		return &ConnectionNotClosedError{Got: ev}

	case conversation.MatchAlert:
		if ev.Kind != client.EventAlert {
			return &UnexpectedMessageError{Expected: "alert", Got: ev.String()}
		}
		alert := *ev.Alert
		if m.Level != nil && alert.Level != *m.Level {
			return &UnexpectedAlertError{Expected: *m, Got: alert}
		}
		if m.Description != nil && alert.Description != *m.Description {
			return &UnexpectedAlertError{Expected: *m, Got: alert}
		}
		if r.log != nil {
			r.log.Verbose("matched alert %v", alert)
		}
		return nil

	case conversation.MatchChangeCipherSpec:
		if ev.Kind != client.EventChangeCipherSpec {
			return &UnexpectedMessageError{Expected: "change_cipher_spec", Got: ev.String()}
		}
		return nil

	case conversation.MatchApplicationData:
		if ev.Kind != client.EventApplicationData {
			return &UnexpectedMessageError{Expected: "application_data", Got: ev.String()}
		}
		return nil

	case conversation.MatchHandshake:
		if ev.Kind != client.EventHandshake || ev.Handshake.Type != m.HandshakeType {
			return &UnexpectedMessageError{Expected: m.HandshakeType.String(), Got: ev.String()}
		}
		if m.HandshakeType == spec.HTServerHello && len(m.Extensions) > 0 {
			if ev.ServerHello == nil {
				return fmt.Errorf("server_hello event missing parsed hello")
			}
			for _, et := range m.Extensions {
				if !ev.ServerHello.HasExtension(et) {
					return &UnexpectedMessageError{
						Expected: fmt.Sprintf("server_hello with %v extension", et),
						Got:      "server_hello without it",
					}
				}
			}
		}
		if r.log != nil {
			r.log.Verbose("matched %v", ev)
		}
		return nil

	default:
		return fmt.Errorf("unknown match kind %v", m.Kind)
	}
}
