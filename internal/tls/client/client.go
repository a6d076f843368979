package client

// Client interface and TCP implementation for driving one handshake
// exchange against a target.

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/protocol"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

// EventKind classifies an inbound protocol event.
type EventKind int

// Inbound event kinds.
const (
	EventHandshake EventKind = iota
	EventAlert
	EventChangeCipherSpec
	EventApplicationData
	EventClosed
)

func (k EventKind) String() string {
	switch k {
	case EventHandshake:
		return "handshake"
	case EventAlert:
		return "alert"
	case EventChangeCipherSpec:
		return "change_cipher_spec"
	case EventApplicationData:
		return "application_data"
	case EventClosed:
		return "connection closed"
	default:
		return fmt.Sprintf("{EventKind %d}", int(k))
	}
}

// Event is one inbound protocol event: a message, or the connection
// closing.
type Event struct {
	Kind        EventKind
	Handshake   *protocol.Handshake
	ServerHello *protocol.ServerHello
	Alert       *protocol.Alert
	Data        []byte
}

func (ev Event) String() string {
	switch ev.Kind {
	case EventHandshake:
		return ev.Handshake.Type.String()
	case EventAlert:
		return fmt.Sprintf("alert %v", *ev.Alert)
	default:
		return ev.Kind.String()
	}
}

// TransportError wraps a connection-level failure (refused, reset
// mid-read, timed out).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Session holds parameters learned from the target's handshake flight.
// Matcher nodes and later generators read them; nothing here survives
// past one conversation.
type Session struct {
	ServerRandom     [32]byte
	SessionID        []byte
	CipherSuite      spec.CipherSuite
	ServerExtensions []protocol.Extension
}

// HasServerExtension reports whether the target's hello carried the
// given extension.
func (s *Session) HasServerExtension(et spec.ExtensionType) bool {
	for _, ext := range s.ServerExtensions {
		if ext.Type == et {
			return true
		}
	}
	return false
}

// Recorder observes raw record bytes as they cross the wire. Used for
// pcap transcript capture.
type Recorder interface {
	RecordSend(data []byte) error
	RecordRecv(data []byte) error
}

// Client drives the record layer for one conversation.
type Client interface {
	Connect(ctx context.Context, host string, port int) error
	Close() error

	// SendRecord frames the payload and transmits it.
	SendRecord(ctx context.Context, ct spec.ContentType, payload []byte) error

	// Receive blocks until the next inbound protocol event. Connection
	// close is an event, not an error.
	Receive(ctx context.Context, timeout time.Duration) (Event, error)

	Session() *Session
}

// TCPClient implements Client over a TCPTransport.
type TCPClient struct {
	transport     Transport
	session       *Session
	recorder      Recorder
	recordVersion spec.ProtocolVersion
	pending       []Event
	connected     bool
}

var _ Client = (*TCPClient)(nil)

// Option configures a TCPClient.
type Option func(*TCPClient)

// WithRecorder attaches a transcript recorder.
func WithRecorder(r Recorder) Option {
	return func(c *TCPClient) { c.recorder = r }
}

// WithTransport overrides the transport (tests).
func WithTransport(t Transport) Option {
	return func(c *TCPClient) { c.transport = t }
}

// New creates a client. Records are framed with the TLS 1.0 version
// number, the conventional value for an initial ClientHello.
func New(opts ...Option) *TCPClient {
	c := &TCPClient{
		transport:     NewTCPTransport(),
		session:       &Session{},
		recordVersion: spec.VersionTLS10,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the TCP connection to the target.
func (c *TCPClient) Connect(ctx context.Context, host string, port int) error {
	if c.connected {
		return fmt.Errorf("already connected")
	}
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	if err := c.transport.Connect(ctx, addr); err != nil {
		return &TransportError{Op: "connect", Err: err}
	}
	c.connected = true
	c.session = &Session{}
	c.pending = nil
	return nil
}

// Close tears down the connection.
func (c *TCPClient) Close() error {
	if !c.connected {
		return nil
	}
	c.connected = false
	return c.transport.Disconnect()
}

// SendRecord frames and transmits one record.
func (c *TCPClient) SendRecord(ctx context.Context, ct spec.ContentType, payload []byte) error {
	if !c.connected {
		return fmt.Errorf("not connected")
	}
	data, err := protocol.EncodeRecord(ct, c.recordVersion, payload)
	if err != nil {
		return err
	}
	if c.recorder != nil {
		if err := c.recorder.RecordSend(data); err != nil {
			return fmt.Errorf("record transcript: %w", err)
		}
	}
	if err := c.transport.Send(ctx, data); err != nil {
		return &TransportError{Op: "send", Err: err}
	}
	return nil
}

// Receive returns the next inbound event. Handshake records containing
// several messages are split and queued so that each call yields exactly
// one event.
func (c *TCPClient) Receive(ctx context.Context, timeout time.Duration) (Event, error) {
	if len(c.pending) > 0 {
		ev := c.pending[0]
		c.pending = c.pending[1:]
		return ev, nil
	}
	if !c.connected {
		return Event{}, fmt.Errorf("not connected")
	}

	data, err := c.transport.ReceiveRecord(ctx, timeout)
	if err != nil {
		if isClosed(err) {
			return Event{Kind: EventClosed}, nil
		}
		return Event{}, &TransportError{Op: "receive", Err: err}
	}
	if c.recorder != nil {
		if err := c.recorder.RecordRecv(data); err != nil {
			return Event{}, fmt.Errorf("record transcript: %w", err)
		}
	}

	rec := protocol.Record{
		Type:    spec.ContentType(data[0]),
		Payload: data[protocol.RecordHeaderLen:],
	}
	switch rec.Type {
	case spec.CTHandshake:
		msgs, err := protocol.SplitHandshakes(rec.Payload)
		if err != nil {
			return Event{}, fmt.Errorf("parse handshake record: %w", err)
		}
		if len(msgs) == 0 {
			return Event{}, fmt.Errorf("empty handshake record")
		}
		for i := range msgs {
			ev, err := c.handshakeEvent(msgs[i])
			if err != nil {
				return Event{}, err
			}
			c.pending = append(c.pending, ev)
		}
		ev := c.pending[0]
		c.pending = c.pending[1:]
		return ev, nil

	case spec.CTAlert:
		alert, err := protocol.ParseAlert(rec.Payload)
		if err != nil {
			return Event{}, fmt.Errorf("parse alert record: %w", err)
		}
		return Event{Kind: EventAlert, Alert: &alert}, nil

	case spec.CTChangeCipherSpec:
		return Event{Kind: EventChangeCipherSpec, Data: rec.Payload}, nil

	case spec.CTApplicationData:
		return Event{Kind: EventApplicationData, Data: rec.Payload}, nil

	default:
		return Event{}, fmt.Errorf("unknown record type %v", rec.Type)
	}
}

// handshakeEvent wraps one handshake message, updating session state for
// a server_hello.
func (c *TCPClient) handshakeEvent(msg protocol.Handshake) (Event, error) {
	ev := Event{Kind: EventHandshake, Handshake: &msg}
	if msg.Type == spec.HTServerHello {
		sh, err := protocol.ParseServerHello(msg.Body)
		if err != nil {
			return Event{}, fmt.Errorf("parse server_hello: %w", err)
		}
		ev.ServerHello = sh
		c.session.ServerRandom = sh.Random
		c.session.SessionID = sh.SessionID
		c.session.CipherSuite = sh.CipherSuite
		c.session.ServerExtensions = sh.Extensions
	}
	return ev, nil
}

// Session returns the per-conversation session state.
func (c *TCPClient) Session() *Session {
	return c.session
}

// isClosed reports whether a read error means the peer closed or reset
// the connection, which the engine treats as a connection-closed event.
func isClosed(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe")
}
