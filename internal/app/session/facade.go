// Package session joins rooms. A Facade holds at most one live session;
// joining again while it is live renegotiates with an ICE restart.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roulette/internal/adapters/rtc"
	"github.com/dkeye/roulette/internal/app/candidates"
	"github.com/dkeye/roulette/internal/app/events"
	"github.com/dkeye/roulette/internal/app/lifecycle"
	"github.com/dkeye/roulette/internal/app/negotiation"
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
)

type Options struct {
	// ICEServers defaults to rtc.DefaultICEServers.
	ICEServers []webrtc.ICEServer
	// Constraints defaults to video only.
	Constraints    *core.Constraints
	Transport      negotiation.Transport
	RequestTimeout time.Duration
	Retry          candidates.RetryPolicy
	Rejoin         RejoinLimit
}

// Deps are the collaborators a session is built from.
type Deps struct {
	Dial     func(ctx context.Context, sid, token string) (core.SignalChannel, error)
	RoomAPI  func(token string) (core.RoomAPI, error)
	Peers    func(sid string) core.PeerFactory
	Capturer core.Capturer
}

// Handle is the caller's view of a joined session.
type Handle struct {
	ID          string
	Identity    domain.Identity
	Connection  core.PeerConnection
	LocalStream *core.Stream
	Events      events.Source

	ls *liveSession
}

func (h *Handle) Room() domain.RoomID { return h.ls.coord.Room() }

// Done is closed once the session has been torn down.
func (h *Handle) Done() <-chan struct{} { return h.ls.done }

// Close tears down the connection and the signaling channel.
func (h *Handle) Close() error {
	h.ls.lifecycle.Close()
	h.ls.teardown()
	return nil
}

type liveSession struct {
	id        string
	identity  domain.Identity
	channel   core.SignalChannel
	lifecycle *lifecycle.Manager
	queue     *candidates.Queue
	coord     *negotiation.Coordinator
	bus       *events.Bus
	handle    *Handle

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
	done   chan struct{}
	onDone func(*liveSession)
	logger zerolog.Logger
}

func (ls *liveSession) teardown() {
	ls.once.Do(func() {
		ls.cancel()
		ls.coord.Close()
		ls.queue.Close()
		if err := ls.channel.Close(); err != nil {
			ls.logger.Warn().Err(err).Msg("close signaling")
		}
		close(ls.done)
		ls.onDone(ls)
		ls.logger.Info().Msg("session closed")
	})
}

type Facade struct {
	// mu serializes joins.
	mu   sync.Mutex
	live atomic.Pointer[liveSession]

	opts    Options
	deps    Deps
	rejoins *rejoinLimiter
	logger  zerolog.Logger
}

func New(opts Options, deps Deps) *Facade {
	if len(opts.ICEServers) == 0 {
		opts.ICEServers = rtc.DefaultICEServers()
	}
	if opts.Constraints == nil {
		opts.Constraints = &core.Constraints{Video: true}
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = candidates.DefaultRetryPolicy()
	}
	return &Facade{
		opts:    opts,
		deps:    deps,
		rejoins: newRejoinLimiter(opts.Rejoin),
		logger:  log.With().Str("module", "session").Logger(),
	}
}

// Current returns the live session handle, if any.
func (f *Facade) Current() *Handle {
	if ls := f.live.Load(); ls != nil {
		return ls.handle
	}
	return nil
}

// CreateSession joins room as id. While a connection is live the same
// handle is returned after an ICE-restart renegotiation; otherwise a new
// connection is set up and this side waits for the remote offer.
func (f *Facade) CreateSession(ctx context.Context, room domain.RoomID, id domain.Identity) (*Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if room == "" {
		room = domain.DefaultRoom
	}

	if ls := f.live.Load(); ls != nil {
		if ls.lifecycle.Connection() != nil {
			return f.rejoin(ctx, ls, room)
		}
		ls.teardown()
	}

	h, err := f.join(ctx, room, id)
	if err != nil {
		f.logger.Error().Err(err).Str("room", string(room)).Msg("join failed")
		return nil, &core.SessionError{Room: room, Err: err}
	}
	return h, nil
}

func (f *Facade) rejoin(ctx context.Context, ls *liveSession, room domain.RoomID) (*Handle, error) {
	if !f.rejoins.Allow(ls.identity.ID) {
		ls.logger.Warn().Str("room", string(room)).Msg("rejoin rate limited")
		return nil, &core.SessionError{Room: room, Err: ErrRejoinLimited}
	}
	ls.logger.Info().Str("room", string(room)).Msg("rejoin, restarting ICE")
	ls.coord.SetRoom(room)
	if err := ls.coord.Renegotiate(ctx, true); err != nil {
		return nil, &core.SessionError{Room: room, Err: err}
	}
	return ls.handle, nil
}

func (f *Facade) join(ctx context.Context, room domain.RoomID, id domain.Identity) (*Handle, error) {
	sid := uuid.NewString()
	logger := f.logger.With().Str("sid", sid).Str("room", string(room)).Logger()

	api, err := f.deps.RoomAPI(id.Token)
	if err != nil {
		return nil, fmt.Errorf("room api: %w", err)
	}
	channel, err := f.deps.Dial(ctx, sid, id.Token)
	if err != nil {
		return nil, err
	}

	sctx, cancel := context.WithCancel(context.Background())
	ls := &liveSession{
		id:       sid,
		identity: id,
		channel:  channel,
		bus:      events.NewBus(),
		ctx:      sctx,
		cancel:   cancel,
		done:     make(chan struct{}),
		onDone:   func(ls *liveSession) { f.live.CompareAndSwap(ls, nil) },
		logger:   logger,
	}
	ls.queue = candidates.NewQueue(candidates.Options{
		Retry: f.opts.Retry,
		OnDropped: func(c webrtc.ICECandidateInit, err error) {
			ls.bus.Emit(events.Event{Kind: events.CandidateDropped, Candidate: &c, Err: err})
		},
	})
	ls.lifecycle = lifecycle.New(lifecycle.Options{
		SessionID: sid,
		Factory:   f.deps.Peers(sid),
		Capturer:  f.deps.Capturer,
		Events:    ls.bus,
		Hooks: lifecycle.Hooks{
			OnCandidate:         func(c webrtc.ICECandidateInit) { ls.coord.SendCandidate(c) },
			OnNegotiationNeeded: func() { ls.coord.NegotiationNeeded() },
		},
	})
	ls.coord = negotiation.New(negotiation.Options{
		SessionID:      sid,
		Room:           room,
		Connections:    ls.lifecycle,
		API:            api,
		Channel:        channel,
		Queue:          ls.queue,
		Events:         ls.bus,
		Transport:      f.opts.Transport,
		RequestTimeout: f.opts.RequestTimeout,
	})

	pc, err := ls.lifecycle.Initialize(ctx, f.opts.ICEServers, *f.opts.Constraints)
	if err != nil {
		ls.teardown()
		return nil, err
	}

	ls.bus.Subscribe(events.Closed, func(events.Event) { ls.teardown() })
	channel.OnMessage(func(m core.Message) { ls.coord.HandleMessage(ls.ctx, m) })
	channel.OnClose(func(err error) {
		if err == nil {
			err = core.ErrClosed
		}
		ls.lifecycle.Terminate(err)
	})

	ls.handle = &Handle{
		ID:          sid,
		Identity:    id,
		Connection:  pc,
		LocalStream: ls.lifecycle.Stream(),
		Events:      ls.bus,
		ls:          ls,
	}
	f.live.Store(ls)
	channel.Start()

	logger.Info().Str("user", string(id.ID)).Msg("joined, waiting for remote offer")
	return ls.handle, nil
}

// Close tears down the live session, if any.
func (f *Facade) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := f.Current()
	if h == nil {
		return nil
	}
	return h.Close()
}

// IsTerminal reports whether err ended the session rather than one step.
func IsTerminal(err error) bool {
	return errors.Is(err, core.ErrConnection) || errors.Is(err, core.ErrClosed) || errors.Is(err, core.ErrMediaAccess)
}
