// Package candidates buffers remote ICE candidates that arrive before the
// remote session description is applied.
package candidates

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roulette/internal/core"
)

// Applier is the connection the queue drains into.
type Applier interface {
	RemoteDescription() *webrtc.SessionDescription
	AddICECandidate(webrtc.ICECandidateInit) error
}

// RetryPolicy bounds how often a failing head candidate is retried.
type RetryPolicy struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// Scheduler runs fn after d. The returned func cancels it. fn must not be
// called synchronously from Scheduler.
type Scheduler func(d time.Duration, fn func()) (stop func() bool)

func afterFunc(d time.Duration, fn func()) func() bool {
	return time.AfterFunc(d, fn).Stop
}

type Options struct {
	Retry     RetryPolicy
	OnDropped func(c webrtc.ICECandidateInit, err error)
	Schedule  Scheduler
	Logger    *zerolog.Logger
}

type entry struct {
	cand     webrtc.ICECandidateInit
	attempts int
	backoff  backoff.BackOff
}

// DrainResult summarizes one drain pass.
type DrainResult struct {
	Applied   int
	Dropped   int
	Remaining int
	// Err is the last apply error seen in this pass.
	Err     error
	RetryIn time.Duration
}

type Queue struct {
	mu        sync.Mutex
	pending   []*entry
	retry     RetryPolicy
	onDropped func(webrtc.ICECandidateInit, error)
	schedule  Scheduler
	cancel    func() bool
	gen       uint64
	closed    bool
	logger    zerolog.Logger
}

func NewQueue(opts Options) *Queue {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry.MaxAttempts = DefaultRetryPolicy().MaxAttempts
	}
	if opts.Schedule == nil {
		opts.Schedule = afterFunc
	}
	logger := log.With().Str("module", "candidates").Logger()
	if opts.Logger != nil {
		logger = opts.Logger.With().Str("module", "candidates").Logger()
	}
	return &Queue{
		retry:     opts.Retry,
		onDropped: opts.OnDropped,
		schedule:  opts.Schedule,
		logger:    logger,
	}
}

func (q *Queue) newBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = q.retry.InitialInterval
	if q.retry.MaxInterval > 0 {
		b.MaxInterval = q.retry.MaxInterval
	}
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Enqueue appends c to the tail.
func (q *Queue) Enqueue(c webrtc.ICECandidateInit) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn().Str("candidate", c.Candidate).Msg("enqueue on closed queue")
		return
	}
	q.pending = append(q.pending, &entry{cand: c, backoff: q.newBackoff()})
}

// Offer queues c behind any pending candidates and drains right away when
// the remote description is already set. Enqueue happens before the
// readiness check so a concurrent DrainIfReady cannot miss c.
func (q *Queue) Offer(a Applier, c webrtc.ICECandidateInit) DrainResult {
	q.Enqueue(c)
	return q.drain(a, false)
}

// DrainIfReady applies queued candidates in FIFO order once a remote
// description exists. It is a no-op otherwise. A pending retry is
// preempted since a new remote description is a reason to try again.
func (q *Queue) DrainIfReady(a Applier) DrainResult {
	return q.drain(a, true)
}

func (q *Queue) drain(a Applier, force bool) DrainResult {
	var dropped []*entry
	var dropErrs []error

	q.mu.Lock()
	res := q.drainLocked(a, force, &dropped, &dropErrs)
	q.mu.Unlock()

	for i, e := range dropped {
		if q.onDropped != nil {
			q.onDropped(e.cand, dropErrs[i])
		}
	}
	return res
}

func (q *Queue) drainLocked(a Applier, force bool, dropped *[]*entry, dropErrs *[]error) DrainResult {
	res := DrainResult{Remaining: len(q.pending)}
	if q.closed || a == nil || a.RemoteDescription() == nil {
		return res
	}
	if q.cancel != nil {
		if !force {
			return res
		}
		q.cancel()
		q.cancel = nil
	}

	for len(q.pending) > 0 {
		head := q.pending[0]
		q.pending = q.pending[1:]

		err := a.AddICECandidate(head.cand)
		if err == nil {
			res.Applied++
			continue
		}
		head.attempts++
		res.Err = err

		if head.attempts >= q.retry.MaxAttempts {
			res.Dropped++
			q.logger.Error().Err(err).Str("candidate", head.cand.Candidate).Int("attempts", head.attempts).Msg("dropping candidate")
			*dropped = append(*dropped, head)
			*dropErrs = append(*dropErrs, fmt.Errorf("%w after %d attempts: %w", core.ErrCandidateDropped, head.attempts, err))
			continue
		}

		q.pending = append([]*entry{head}, q.pending...)
		delay := head.backoff.NextBackOff()
		if delay == backoff.Stop {
			delay = q.retry.MaxInterval
		}
		res.RetryIn = delay
		q.logger.Warn().Err(err).Str("candidate", head.cand.Candidate).Int("attempts", head.attempts).Dur("retry_in", delay).Msg("candidate apply failed, requeued")
		q.gen++
		gen := q.gen
		q.cancel = q.schedule(delay, func() { q.retryFired(a, gen) })
		break
	}

	res.Remaining = len(q.pending)
	return res
}

func (q *Queue) retryFired(a Applier, gen uint64) {
	q.mu.Lock()
	if q.gen != gen || q.cancel == nil {
		q.mu.Unlock()
		return
	}
	q.cancel = nil
	q.mu.Unlock()
	q.drain(a, false)
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close discards pending candidates and stops any scheduled retry.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	if q.cancel != nil {
		q.cancel()
		q.cancel = nil
	}
	if n := len(q.pending); n > 0 {
		q.logger.Info().Int("discarded", n).Msg("queue closed")
	}
	q.pending = nil
}
