// Package lifecycle owns the session's peer connection: creation, local
// media, state tracking and teardown.
package lifecycle

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/roulette/internal/adapters/media"
	"github.com/dkeye/roulette/internal/adapters/rtc"
	"github.com/dkeye/roulette/internal/app/events"
	"github.com/dkeye/roulette/internal/core"
)

// Hooks connect the manager to the negotiation layer.
type Hooks struct {
	// OnCandidate receives every non-nil local candidate.
	OnCandidate func(webrtc.ICECandidateInit)
	// OnNegotiationNeeded runs on its own goroutine.
	OnNegotiationNeeded func()
}

type Options struct {
	SessionID string
	Factory   core.PeerFactory
	Capturer  core.Capturer
	Events    *events.Bus
	Hooks     Hooks
	// DrainTrack reads a remote track until it ends. Defaults to media.Drain.
	DrainTrack func(ctx context.Context, t *webrtc.TrackRemote, logger zerolog.Logger) media.Stats
}

type Manager struct {
	mu     sync.Mutex
	pc     core.PeerConnection
	stream *core.Stream
	state  webrtc.PeerConnectionState
	cancel context.CancelFunc

	sid     string
	factory core.PeerFactory
	capture core.Capturer
	bus     *events.Bus
	hooks   Hooks
	drain   func(context.Context, *webrtc.TrackRemote, zerolog.Logger) media.Stats
	logger  zerolog.Logger
}

func New(opts Options) *Manager {
	bus := opts.Events
	if bus == nil {
		bus = events.NewBus()
	}
	drain := opts.DrainTrack
	if drain == nil {
		drain = media.Drain
	}
	return &Manager{
		sid:     opts.SessionID,
		factory: opts.Factory,
		capture: opts.Capturer,
		bus:     bus,
		hooks:   opts.Hooks,
		drain:   drain,
		logger:  log.With().Str("module", "lifecycle").Str("sid", opts.SessionID).Logger(),
	}
}

// Initialize captures local media, creates the connection and attaches the
// tracks. A live connection is returned as is. On failure nothing stays
// registered and the captured stream is released.
func (m *Manager) Initialize(ctx context.Context, iceServers []webrtc.ICEServer, cons core.Constraints) (core.PeerConnection, error) {
	m.mu.Lock()
	if m.pc != nil {
		pc := m.pc
		m.mu.Unlock()
		return pc, nil
	}
	m.mu.Unlock()

	stream, err := m.capture.Capture(ctx, cons)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", core.ErrMediaAccess, err)
	}

	pc, err := m.factory(webrtc.Configuration{ICEServers: iceServers})
	if err != nil {
		stream.Close()
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	m.register(runCtx, pc)

	var senders []*webrtc.RTPSender
	for _, t := range stream.Tracks {
		sender, err := pc.AddTrack(t)
		if err != nil {
			cancel()
			stream.Close()
			_ = pc.Close()
			return nil, fmt.Errorf("add %s track: %w", t.Kind(), err)
		}
		senders = append(senders, sender)
	}

	m.mu.Lock()
	if m.pc != nil {
		// lost a race with a concurrent Initialize
		live := m.pc
		m.mu.Unlock()
		cancel()
		stream.Close()
		_ = pc.Close()
		return live, nil
	}
	m.pc = pc
	m.stream = stream
	m.state = pc.ConnectionState()
	m.cancel = cancel
	m.mu.Unlock()

	for _, s := range senders {
		go rtc.ReadRTCP(s, m.logger, func() {
			m.logger.Debug().Msg("keyframe requested by remote")
		})
	}

	m.logger.Info().Int("tracks", len(stream.Tracks)).Int("ice_servers", len(iceServers)).Msg("peer connection initialized")
	return pc, nil
}

func (m *Manager) register(ctx context.Context, pc core.PeerConnection) {
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		m.onState(pc, s)
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			m.logger.Debug().Msg("candidate gathering complete")
			return
		}
		if !m.owns(pc) || m.hooks.OnCandidate == nil {
			return
		}
		m.hooks.OnCandidate(c.ToJSON())
	})

	pc.OnNegotiationNeeded(func() {
		if !m.owns(pc) || m.hooks.OnNegotiationNeeded == nil {
			return
		}
		go m.safe("negotiation needed", m.hooks.OnNegotiationNeeded)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		m.bus.Emit(events.Event{Kind: events.TrackAdded, Track: track})
		go m.safe("track drain", func() {
			logger := m.logger.With().Str("track_id", track.ID()).Str("kind", track.Kind().String()).Logger()
			st := m.drain(ctx, track, logger)
			logger.Info().
				Uint64("packets", st.Packets).
				Uint64("bytes", st.Bytes).
				Uint64("lost", st.Lost).
				Msg("remote track ended")
			m.bus.Emit(events.Event{Kind: events.TrackRemoved, Track: track})
		})
	})
}

func (m *Manager) safe(what string, fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		m.logger.Error().Err(r.AsError()).Str("handler", what).Msg("handler panicked")
	}
}

func (m *Manager) owns(pc core.PeerConnection) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pc == pc
}

func (m *Manager) onState(pc core.PeerConnection, s webrtc.PeerConnectionState) {
	m.mu.Lock()
	if m.pc != pc {
		m.mu.Unlock()
		return
	}
	prev := m.state
	if !CanTransition(prev, s) {
		m.logger.Warn().Str("from", prev.String()).Str("to", s.String()).Msg("unexpected state transition")
	}
	m.state = s

	terminal := IsTerminal(s)
	var stream *core.Stream
	if terminal {
		stream = m.detachLocked()
	}
	m.mu.Unlock()

	m.bus.Emit(events.Event{Kind: events.StateChanged, State: s})
	if !terminal {
		return
	}

	stream.Close()
	if s == webrtc.PeerConnectionStateFailed {
		if err := pc.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("close failed connection")
		}
	}
	m.logger.Info().Str("state", s.String()).Msg("peer connection terminal")
	m.bus.Emit(events.Event{Kind: events.Closed, State: s})
}

// detachLocked drops the connection reference. Caller holds m.mu.
func (m *Manager) detachLocked() *core.Stream {
	stream := m.stream
	m.pc = nil
	m.stream = nil
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	return stream
}

// Connection returns the live connection or nil.
func (m *Manager) Connection() core.PeerConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pc
}

func (m *Manager) Stream() *core.Stream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// State is the last state seen for the live connection, or closed.
func (m *Manager) State() webrtc.PeerConnectionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pc == nil {
		return webrtc.PeerConnectionStateClosed
	}
	return m.state
}

// Terminate closes the live connection and emits Closed carrying reason.
// It is a no-op without a live connection.
func (m *Manager) Terminate(reason error) {
	m.mu.Lock()
	pc := m.pc
	if pc == nil {
		m.mu.Unlock()
		return
	}
	stream := m.detachLocked()
	m.state = webrtc.PeerConnectionStateClosed
	m.mu.Unlock()

	stream.Close()
	if err := pc.Close(); err != nil {
		m.logger.Warn().Err(err).Msg("close connection")
	}
	ev := m.logger.Info()
	if reason != nil {
		ev = ev.Err(reason)
	}
	ev.Msg("peer connection terminated")

	m.bus.Emit(events.Event{Kind: events.StateChanged, State: webrtc.PeerConnectionStateClosed})
	m.bus.Emit(events.Event{Kind: events.Closed, State: webrtc.PeerConnectionStateClosed, Err: reason})
}

func (m *Manager) Close() error {
	m.Terminate(nil)
	return nil
}
