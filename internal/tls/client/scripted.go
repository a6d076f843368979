package client

// ScriptedClient is a Client whose inbound events are scripted ahead of
// time. Engine tests use it as the "target implementation": queue the
// responses the target would send, run a conversation, then inspect what
// the engine transmitted.

import (
	"context"
	"fmt"
	"time"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/protocol"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/spec"
)

// SentRecord is one record the engine transmitted.
type SentRecord struct {
	Type    spec.ContentType
	Payload []byte
}

// ScriptedClient implements Client against a canned event script.
type ScriptedClient struct {
	script       []Event
	scriptErrs   []error
	pos          int
	sent         []SentRecord
	session      *Session
	connectErr   error
	sendErr      error
	connected    bool
	connectCalls int
}

var _ Client = (*ScriptedClient)(nil)

// NewScripted creates a scripted client with an empty script.
func NewScripted() *ScriptedClient {
	return &ScriptedClient{session: &Session{}}
}

// QueueEvent appends an inbound event to the script.
func (m *ScriptedClient) QueueEvent(ev Event) {
	m.script = append(m.script, ev)
	m.scriptErrs = append(m.scriptErrs, nil)
}

// QueueError appends a receive failure to the script.
func (m *ScriptedClient) QueueError(err error) {
	m.script = append(m.script, Event{})
	m.scriptErrs = append(m.scriptErrs, err)
}

// QueueHandshake appends a handshake message event.
func (m *ScriptedClient) QueueHandshake(ht spec.HandshakeType, body []byte) {
	m.QueueEvent(Event{
		Kind:      EventHandshake,
		Handshake: &protocol.Handshake{Type: ht, Body: body},
	})
}

// QueueServerHello appends a server_hello event and primes the session
// the way TCPClient would.
func (m *ScriptedClient) QueueServerHello(sh *protocol.ServerHello) {
	m.QueueEvent(Event{
		Kind:        EventHandshake,
		Handshake:   &protocol.Handshake{Type: spec.HTServerHello},
		ServerHello: sh,
	})
}

// QueueAlert appends an alert event.
func (m *ScriptedClient) QueueAlert(level spec.AlertLevel, desc spec.AlertDescription) {
	m.QueueEvent(Event{
		Kind:  EventAlert,
		Alert: &protocol.Alert{Level: level, Description: desc},
	})
}

// QueueClose appends a connection-closed event.
func (m *ScriptedClient) QueueClose() {
	m.QueueEvent(Event{Kind: EventClosed})
}

// SetConnectError makes Connect fail.
func (m *ScriptedClient) SetConnectError(err error) { m.connectErr = err }

// SetSendError makes SendRecord fail.
func (m *ScriptedClient) SetSendError(err error) { m.sendErr = err }

// Sent returns the records the engine transmitted, in order.
func (m *ScriptedClient) Sent() []SentRecord { return m.sent }

// ConnectCalls returns how many times Connect was invoked.
func (m *ScriptedClient) ConnectCalls() int { return m.connectCalls }

// Rewind resets the script position and the sent log, keeping the
// script itself, so the same scripted target can serve a second run.
func (m *ScriptedClient) Rewind() {
	m.pos = 0
	m.sent = nil
	m.session = &Session{}
	m.connected = false
}

// Connect simulates connection establishment.
func (m *ScriptedClient) Connect(ctx context.Context, host string, port int) error {
	m.connectCalls++
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = true
	return nil
}

// Close simulates teardown.
func (m *ScriptedClient) Close() error {
	m.connected = false
	return nil
}

// SendRecord logs the outbound record.
func (m *ScriptedClient) SendRecord(ctx context.Context, ct spec.ContentType, payload []byte) error {
	if !m.connected {
		return fmt.Errorf("not connected")
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, SentRecord{Type: ct, Payload: append([]byte(nil), payload...)})
	return nil
}

// Receive pops the next scripted event.
func (m *ScriptedClient) Receive(ctx context.Context, timeout time.Duration) (Event, error) {
	if !m.connected {
		return Event{}, fmt.Errorf("not connected")
	}
	if m.pos >= len(m.script) {
		return Event{}, &TransportError{Op: "receive", Err: fmt.Errorf("script exhausted")}
	}
	ev, err := m.script[m.pos], m.scriptErrs[m.pos]
	m.pos++
	if err != nil {
		return Event{}, err
	}
	if ev.ServerHello != nil {
		m.session.ServerRandom = ev.ServerHello.Random
		m.session.SessionID = ev.ServerHello.SessionID
		m.session.CipherSuite = ev.ServerHello.CipherSuite
		m.session.ServerExtensions = ev.ServerHello.Extensions
	}
	return ev, nil
}

// Session returns the scripted session state.
func (m *ScriptedClient) Session() *Session { return m.session }
