package client

// TCP transport for the record layer.

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/protocol"
)

// Transport is a stream connection that carries record-layer records.
type Transport interface {
	Connect(ctx context.Context, addr string) error
	Disconnect() error
	Send(ctx context.Context, data []byte) error
	// ReceiveRecord reads one complete record (header plus payload).
	// It returns io.EOF once the peer has closed the connection.
	ReceiveRecord(ctx context.Context, timeout time.Duration) ([]byte, error)
	IsConnected() bool
}

// TCPTransport implements Transport over TCP.
type TCPTransport struct {
	conn   net.Conn
	addr   string
	connMu sync.RWMutex
}

var _ Transport = (*TCPTransport)(nil)

// NewTCPTransport creates a new TCP transport.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{}
}

// Connect establishes a TCP connection.
func (t *TCPTransport) Connect(ctx context.Context, addr string) error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn != nil {
		return fmt.Errorf("already connected")
	}

	dialer := net.Dialer{Timeout: 5 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial TCP: %w", err)
	}

	t.conn = conn
	t.addr = addr
	return nil
}

// Disconnect closes the TCP connection.
func (t *TCPTransport) Disconnect() error {
	t.connMu.Lock()
	defer t.connMu.Unlock()

	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	t.addr = ""
	return err
}

// Send writes data to the connection.
func (t *TCPTransport) Send(ctx context.Context, data []byte) error {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil {
		return fmt.Errorf("not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := t.conn.SetWriteDeadline(deadline); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	_, err := t.conn.Write(data)
	return err
}

// ReceiveRecord reads the 5-byte record header and then the payload.
func (t *TCPTransport) ReceiveRecord(ctx context.Context, timeout time.Duration) ([]byte, error) {
	t.connMu.RLock()
	defer t.connMu.RUnlock()

	if t.conn == nil {
		return nil, fmt.Errorf("not connected")
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := t.conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w", err)
	}

	header := make([]byte, protocol.RecordHeaderLen)
	if _, err := io.ReadFull(t.conn, header); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read record header: %w", err)
	}

	length := int(binary.BigEndian.Uint16(header[3:5]))
	if length == 0 {
		return header, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(t.conn, payload); err != nil {
		return nil, fmt.Errorf("read record payload: %w", err)
	}
	return append(header, payload...), nil
}

// IsConnected returns whether the transport is connected.
func (t *TCPTransport) IsConnected() bool {
	t.connMu.RLock()
	defer t.connMu.RUnlock()
	return t.conn != nil
}
