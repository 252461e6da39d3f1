package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/roulette/internal/domain"
)

var (
	// ErrConnection means the signaling handshake or transport failed.
	ErrConnection = errors.New("signaling connection failed")
	ErrSend       = errors.New("signaling send failed")
	ErrClosed     = errors.New("signaling channel closed")

	// ErrMediaAccess means local capture was denied or is unavailable.
	ErrMediaAccess = errors.New("media access failed")

	ErrNegotiation      = errors.New("negotiation failed")
	ErrNotInitialized   = errors.New("peer connection not initialized")
	ErrCandidateDropped = errors.New("ice candidate dropped")

	ErrTimeout = errors.New("operation timed out")
)

// NegotiationError reports which offer/answer/candidate step failed.
type NegotiationError struct {
	Op  string
	Err error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation: %s: %v", e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() []error { return []error{ErrNegotiation, e.Err} }

func Negotiation(op string, err error) error {
	if err == nil {
		return nil
	}
	return &NegotiationError{Op: op, Err: err}
}

// SessionError wraps the first unrecoverable failure of CreateSession.
type SessionError struct {
	Room domain.RoomID
	Err  error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %q: %v", e.Room, e.Err)
}

func (e *SessionError) Unwrap() error { return e.Err }

// Deadline tags context deadline errors with ErrTimeout.
func Deadline(err error) error {
	if err == nil || errors.Is(err, ErrTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	return err
}
