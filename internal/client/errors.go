package client

import (
	"context"
	"errors"
	"fmt"

	"tradeterm/internal/terminal"
)

// ConnectionError indicates a transient transport failure. The request
// executor retries these automatically up to its attempt bound; callers see
// at most one per call, after retries are exhausted.
type ConnectionError struct {
	Op  string
	Err error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error during %s: %v", e.Op, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ProtocolError indicates the terminal definitively rejected a request
// (authentication failure, unknown method, malformed parameters). It is
// never retried.
type ProtocolError struct {
	Code    int
	Message string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// ValidationError indicates the caller supplied an invalid argument. It
// fails fast: no remote call is made (or, for unknown symbols, the remote
// answer is definitive).
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// classifyCallError translates a raw transport error into the client's
// taxonomy: terminal error envelopes become ProtocolError (or
// ConnectionError when the terminal reports a transient condition);
// everything else — broken connections, timeouts — is a ConnectionError.
func classifyCallError(op string, err error) error {
	var we *terminal.WireError
	if errors.As(err, &we) {
		if we.Transient() {
			return &ConnectionError{Op: op, Err: we}
		}
		if we.Code == terminal.ErrCodeUnknownSymbol {
			return &ValidationError{Msg: we.Message}
		}
		return &ProtocolError{Code: we.Code, Message: we.Message}
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &ConnectionError{Op: op, Err: err}
}
