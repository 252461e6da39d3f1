package session

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/roulette/internal/domain"
)

var ErrRejoinLimited = errors.New("too many rejoins")

// RejoinLimit caps ICE-restart rejoins per user in a sliding window.
// A zero Limit disables the check.
type RejoinLimit struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

type rejoinLimiter struct {
	mu      sync.Mutex
	history map[domain.UserID][]time.Time
	limit   int
	window  time.Duration
	now     func() time.Time
}

func newRejoinLimiter(l RejoinLimit) *rejoinLimiter {
	return &rejoinLimiter{
		history: make(map[domain.UserID][]time.Time),
		limit:   l.Limit,
		window:  l.Window,
		now:     time.Now,
	}
}

func (rl *rejoinLimiter) Allow(uid domain.UserID) bool {
	if rl.limit <= 0 {
		return true
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.window)

	attempts := rl.history[uid]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[uid] = fresh
		return false
	}
	rl.history[uid] = append(fresh, now)
	return true
}
