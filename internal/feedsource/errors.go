package feedsource

import (
	"errors"
	"fmt"
)

// Failure classes surfaced by the client. Every call is attempted exactly once.
var (
	// ErrAuthFailure means the credential was missing, expired or rejected.
	ErrAuthFailure = errors.New("authentication failed")
	// ErrServerFailure covers any other non-2xx response or an unreadable body.
	ErrServerFailure = errors.New("server failure")
	// ErrTransport means no response was received (dial error, timeout, cancellation).
	ErrTransport = errors.New("transport failure")
	// ErrEmptyInput rejects blank content before anything is sent.
	ErrEmptyInput = errors.New("content must not be empty")
)

// Error describes a failed remote call.
type Error struct {
	Op     string
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(op string, status int, class error, detail string) *Error {
	err := class
	if detail != "" {
		err = fmt.Errorf("%w: %s", class, detail)
	}
	return &Error{Op: op, Status: status, Err: err}
}
