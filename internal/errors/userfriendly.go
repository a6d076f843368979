package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapNetworkError wraps network errors with user-friendly context
func WrapNetworkError(err error, host string, port int) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to communicate with server at %s:%d", host, port),
		Reason:  extractNetworkReason(err),
		Hint:    "Server may not be a TLS server, or there may be a network connectivity issue",
		Try:     fmt.Sprintf("tlsfuzzer run --host %s --port %d --num 0", host, port),
		Err:     err,
	}
}

// WrapHandshakeError wraps protocol-level errors with user-friendly context
func WrapHandshakeError(err error, conversation string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Handshake conversation failed: %s", conversation),
		Reason:  extractHandshakeReason(err),
		Hint:    "The server may not support the offered protocol version or cipher suites",
		Try:     "Re-run with --verbose to see the record exchange leading up to the failure",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "See docs/CONFIGURATION.md for configuration examples",
		Try:     fmt.Sprintf("Validate your config: tlsfuzzer validate-config --config %s", configPath),
		Err:     err,
	}
}

func extractNetworkReason(err error) string {
	errStr := err.Error()

	// Common network error patterns
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return "Connection timeout - server may be offline or unreachable"
	}
	if strings.Contains(errStr, "connection refused") {
		return "Connection refused - server may not be listening on this port"
	}
	if strings.Contains(errStr, "no route to host") {
		return "No route to host - network routing issue or server unreachable"
	}
	if strings.Contains(errStr, "connection reset") {
		return "Connection reset - server closed the connection unexpectedly"
	}

	return "Network communication failed"
}

func extractHandshakeReason(err error) string {
	errStr := err.Error()

	// Common handshake error patterns
	if strings.Contains(errStr, "unexpected alert") {
		return "Server sent an alert with the wrong level or description"
	}
	if strings.Contains(errStr, "unexpected message") {
		return "Server answered with a different message than the exchange calls for"
	}
	if strings.Contains(errStr, "connection not closed") {
		return "Server kept the connection open where it was expected to hang up"
	}
	if strings.Contains(errStr, "timeout") {
		return "Server did not respond within timeout period"
	}

	return "Handshake protocol error occurred"
}
