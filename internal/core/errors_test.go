package core

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNegotiationError(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("handle sdp: %w", Negotiation("set-remote", cause))

	assert.ErrorIs(t, err, ErrNegotiation)
	assert.ErrorIs(t, err, cause)

	var ne *NegotiationError
	assert.ErrorAs(t, err, &ne)
	assert.Equal(t, "set-remote", ne.Op)
	assert.NoError(t, Negotiation("noop", nil))
}

func TestSessionError(t *testing.T) {
	err := &SessionError{Room: "default", Err: fmt.Errorf("capture: %w", ErrMediaAccess)}
	assert.ErrorIs(t, err, ErrMediaAccess)
	assert.Contains(t, err.Error(), `"default"`)
}

func TestDeadline(t *testing.T) {
	err := Deadline(fmt.Errorf("post: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	plain := errors.New("x")
	assert.Equal(t, plain, Deadline(plain))
	assert.NoError(t, Deadline(nil))
}
