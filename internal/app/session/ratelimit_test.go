package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRejoinLimiter_SlidingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := newRejoinLimiter(RejoinLimit{Limit: 2, Window: 10 * time.Second})
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u1"))
	assert.False(t, rl.Allow("u1"))
	assert.True(t, rl.Allow("u2"), "limits are per user")

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("u1"))
}

func TestRejoinLimiter_ZeroDisables(t *testing.T) {
	rl := newRejoinLimiter(RejoinLimit{})
	for range 10 {
		assert.True(t, rl.Allow("u1"))
	}
}
