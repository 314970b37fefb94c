package chat

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// Error types for classifying chat transport errors.

// TransientError is a temporary delivery failure: rate limits, gateway
// errors, timeouts. The update library retries these on its own; callers
// log at warn level and move on.
type TransientError struct {
	err error
}

func (e *TransientError) Error() string {
	return e.err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.err
}

// NewTransientError wraps an error as transient.
func NewTransientError(err error) error {
	return &TransientError{err: err}
}

// UnreachableError means the recipient cannot be messaged at all: the user
// never started a private chat with the bot, blocked it, or the chat is gone.
type UnreachableError struct {
	err error
}

func (e *UnreachableError) Error() string {
	return e.err.Error()
}

func (e *UnreachableError) Unwrap() error {
	return e.err
}

// NewUnreachableError wraps an error as a permanent recipient failure.
func NewUnreachableError(err error) error {
	return &UnreachableError{err: err}
}

// IsTransient returns true for temporary delivery failures.
func IsTransient(err error) bool {
	var transient *TransientError
	if errors.As(err, &transient) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// IsUnreachable returns true when the recipient cannot be messaged.
func IsUnreachable(err error) bool {
	var unreachable *UnreachableError
	return errors.As(err, &unreachable)
}

// SendResult is the delivery outcome of a send, for callers that branch on
// what happened to the recipient rather than on error chains.
type SendResult int

const (
	// Delivered means the message reached the chat.
	Delivered SendResult = iota
	// UserUnreachable means the recipient refuses messages from the bot;
	// retrying cannot help.
	UserUnreachable
	// Transient means delivery failed for now; a later attempt may succeed.
	Transient
)

func (r SendResult) String() string {
	switch r {
	case Delivered:
		return "delivered"
	case UserUnreachable:
		return "user_unreachable"
	case Transient:
		return "transient"
	default:
		return "unknown"
	}
}

// Classify maps a send error onto its delivery outcome. Errors that are
// neither nil nor a definite recipient refusal count as transient: the
// message did not arrive, and nothing rules out a later attempt.
func Classify(err error) SendResult {
	switch {
	case err == nil:
		return Delivered
	case IsUnreachable(err):
		return UserUnreachable
	default:
		return Transient
	}
}
