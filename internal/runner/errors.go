package runner

// Classified matcher failures. These are the primary signal the harness
// exists to produce: the target answered with something other than the
// protocol's error-handling rules require.

import (
	"fmt"

	"github.com/kazu-yamamoto/tlsfuzzer/internal/conversation"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/client"
	"github.com/kazu-yamamoto/tlsfuzzer/internal/tls/protocol"
)

// UnexpectedMessageError reports an inbound event of the wrong shape.
type UnexpectedMessageError struct {
	Expected string
	Got      string
}

func (e *UnexpectedMessageError) Error() string {
	return fmt.Sprintf("unexpected message: expected %s, got %s", e.Expected, e.Got)
}

// UnexpectedAlertError reports an alert that violated the matcher's
// level or description constraint.
type UnexpectedAlertError struct {
	Expected conversation.MatchSpec
	Got      protocol.Alert
}

func (e *UnexpectedAlertError) Error() string {
	want := "alert"
	if e.Expected.Level != nil {
		want = e.Expected.Level.String()
		if e.Expected.Description != nil {
			want += " " + e.Expected.Description.String()
		} else {
			want += " alert"
		}
	}
	return fmt.Sprintf("unexpected alert: expected %s, got %v", want, e.Got)
}

// ConnectionNotClosedError reports traffic arriving where the
// conversation expected the target to hang up.
type ConnectionNotClosedError struct {
	Got client.Event
}

func (e *ConnectionNotClosedError) Error() string {
	return fmt.Sprintf("connection not closed: got %v instead", e.Got)
}
