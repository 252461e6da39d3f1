// Package negotiation drives the offer/answer exchange for one session.
package negotiation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"

	"github.com/dkeye/roulette/internal/app/candidates"
	"github.com/dkeye/roulette/internal/app/events"
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
)

// Transport selects how local answers and candidates reach the server.
type Transport string

const (
	TransportHTTP   Transport = "http"
	TransportStream Transport = "stream"
)

const (
	DefaultRequestTimeout = 10 * time.Second
	outboxSize            = 64
)

// ConnectionSource looks up the live connection. The coordinator never
// keeps it past one operation.
type ConnectionSource interface {
	Connection() core.PeerConnection
}

type Options struct {
	SessionID      string
	Room           domain.RoomID
	Connections    ConnectionSource
	API            core.RoomAPI
	Channel        core.SignalChannel
	Queue          *candidates.Queue
	Events         *events.Bus
	Transport      Transport
	RequestTimeout time.Duration
}

type Coordinator struct {
	// guard admits one offer or answer cycle at a time.
	guard *semaphore.Weighted

	mu   sync.RWMutex
	room domain.RoomID

	conns     ConnectionSource
	api       core.RoomAPI
	channel   core.SignalChannel
	queue     *candidates.Queue
	bus       *events.Bus
	transport Transport
	timeout   time.Duration
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	outbox chan webrtc.ICECandidateInit
	wg     conc.WaitGroup
	once   sync.Once
	unsub  func()
}

func New(opts Options) *Coordinator {
	if opts.Transport == "" {
		opts.Transport = TransportHTTP
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Events == nil {
		opts.Events = events.NewBus()
	}
	if opts.Queue == nil {
		opts.Queue = candidates.NewQueue(candidates.Options{Retry: candidates.DefaultRetryPolicy()})
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		guard:     semaphore.NewWeighted(1),
		room:      opts.Room,
		conns:     opts.Connections,
		api:       opts.API,
		channel:   opts.Channel,
		queue:     opts.Queue,
		bus:       opts.Events,
		transport: opts.Transport,
		timeout:   opts.RequestTimeout,
		logger:    log.With().Str("module", "negotiation").Str("sid", opts.SessionID).Logger(),
		ctx:       ctx,
		cancel:    cancel,
		outbox:    make(chan webrtc.ICECandidateInit, outboxSize),
	}
	c.unsub = c.bus.Subscribe(events.RemoteDescriptionChanged, func(events.Event) {
		c.drain()
	})
	c.wg.Go(c.sendLoop)
	return c
}

func (c *Coordinator) Room() domain.RoomID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.room
}

// SetRoom changes the room id sent with later requests.
func (c *Coordinator) SetRoom(room domain.RoomID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.room = room
}

func (c *Coordinator) drain() {
	pc := c.conns.Connection()
	if pc == nil {
		return
	}
	res := c.queue.DrainIfReady(pc)
	if res.Applied > 0 || res.Err != nil {
		c.logger.Debug().
			Int("applied", res.Applied).
			Int("remaining", res.Remaining).
			Dur("retry_in", res.RetryIn).
			Msg("candidate queue drained")
	}
}

// HandleMessage dispatches one signaling message. Failures are logged and
// emitted as NegotiationFailed; they are never returned to the channel.
func (c *Coordinator) HandleMessage(ctx context.Context, m core.Message) {
	var err error
	switch m.Type {
	case core.MessageSDP:
		var desc webrtc.SessionDescription
		if desc, err = m.SessionDescription(); err == nil {
			err = c.HandleSDP(ctx, desc)
		} else {
			err = core.Negotiation("decode sdp", err)
		}
	case core.MessageCandidate:
		var cand *webrtc.ICECandidateInit
		if cand, err = m.Candidate(); err == nil {
			err = c.HandleCandidate(cand)
		} else {
			err = core.Negotiation("decode candidate", err)
		}
	default:
		c.logger.Warn().Str("type", string(m.Type)).Msg("unknown message type")
		return
	}
	if err != nil {
		c.fail(err)
	}
}

func (c *Coordinator) fail(err error) {
	c.logger.Error().Err(err).Msg("negotiation failed")
	c.bus.Emit(events.Event{Kind: events.NegotiationFailed, Err: err})
}

func (c *Coordinator) acquire(ctx context.Context) error {
	if err := c.guard.Acquire(ctx, 1); err != nil {
		return core.Deadline(err)
	}
	return nil
}

// HandleSDP applies a remote description. For an offer it then creates,
// sends and applies the local answer, in that order.
func (c *Coordinator) HandleSDP(ctx context.Context, desc webrtc.SessionDescription) error {
	if err := c.acquire(ctx); err != nil {
		return core.Negotiation("wait", err)
	}
	defer c.guard.Release(1)

	pc := c.conns.Connection()
	if pc == nil {
		return core.Negotiation("set remote description", core.ErrNotInitialized)
	}
	if err := pc.SetRemoteDescription(desc); err != nil {
		return core.Negotiation("set remote description", err)
	}
	c.bus.Emit(events.Event{Kind: events.RemoteDescriptionChanged, Description: &desc})

	if desc.Type != webrtc.SDPTypeOffer {
		c.logger.Info().Str("type", desc.Type.String()).Msg("remote description applied")
		return nil
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return core.Negotiation("create answer", err)
	}
	if err := c.sendAnswer(ctx, answer); err != nil {
		return core.Negotiation("send answer", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return core.Negotiation("set local description", err)
	}
	c.logger.Info().Msg("answered remote offer")
	return nil
}

func (c *Coordinator) sendAnswer(ctx context.Context, answer webrtc.SessionDescription) error {
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.transport == TransportStream {
		m, err := core.NewSDPMessage(answer)
		if err != nil {
			return err
		}
		return core.Deadline(c.channel.Send(rctx, m))
	}
	return core.Deadline(c.api.Answer(rctx, c.Room(), answer))
}

// HandleCandidate applies c when a remote description is set and queues
// it otherwise. A nil c is the end-of-candidates marker and is ignored.
func (c *Coordinator) HandleCandidate(cand *webrtc.ICECandidateInit) error {
	if cand == nil {
		c.logger.Debug().Msg("end of remote candidates")
		return nil
	}
	var applier candidates.Applier
	if pc := c.conns.Connection(); pc != nil {
		applier = pc
	}
	res := c.queue.Offer(applier, *cand)
	if res.Err != nil {
		c.logger.Warn().Err(res.Err).Int("remaining", res.Remaining).Msg("remote candidate not applied yet")
	}
	return nil
}

// Renegotiate runs one offer cycle over the room API. A failed local
// description aborts before anything is sent; any later failure rolls the
// local offer back so remote offers are accepted again.
func (c *Coordinator) Renegotiate(ctx context.Context, iceRestart bool) error {
	if err := c.acquire(ctx); err != nil {
		return core.Negotiation("wait", err)
	}
	defer c.guard.Release(1)

	pc := c.conns.Connection()
	if pc == nil {
		return core.Negotiation("create offer", core.ErrNotInitialized)
	}
	offer, err := pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return core.Negotiation("create offer", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return core.Negotiation("set local description", err)
	}

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	answer, err := c.api.Offer(rctx, c.Room(), offer)
	cancel()
	if err != nil {
		c.rollback(pc)
		return core.Negotiation("post offer", core.Deadline(err))
	}

	if err := pc.SetRemoteDescription(answer); err != nil {
		c.rollback(pc)
		return core.Negotiation("set remote description", err)
	}
	c.bus.Emit(events.Event{Kind: events.RemoteDescriptionChanged, Description: &answer})
	c.logger.Info().Bool("ice_restart", iceRestart).Msg("renegotiated")
	return nil
}

func (c *Coordinator) rollback(pc core.PeerConnection) {
	if err := pc.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); err != nil {
		c.logger.Error().Err(err).Msg("rollback local offer")
		return
	}
	c.logger.Warn().Msg("local offer rolled back")
}

// NegotiationNeeded reacts to the connection asking for a new offer. Until
// the first remote description arrives this side is the answerer, so the
// request is ignored.
func (c *Coordinator) NegotiationNeeded() {
	pc := c.conns.Connection()
	if pc == nil || pc.RemoteDescription() == nil {
		c.logger.Debug().Msg("negotiation needed before remote offer, waiting")
		return
	}
	if err := c.Renegotiate(c.ctx, false); err != nil {
		c.fail(err)
	}
}

// SendCandidate queues a local candidate for the outbound worker.
// Candidates are sent in the order given.
func (c *Coordinator) SendCandidate(cand webrtc.ICECandidateInit) {
	select {
	case c.outbox <- cand:
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) sendLoop() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case cand := <-c.outbox:
			if err := c.sendCandidate(cand); err != nil {
				c.logger.Warn().Err(err).Str("candidate", cand.Candidate).Msg("send candidate")
			}
		}
	}
}

func (c *Coordinator) sendCandidate(cand webrtc.ICECandidateInit) error {
	ctx, cancel := context.WithTimeout(c.ctx, c.timeout)
	defer cancel()

	if c.transport == TransportStream {
		m, err := core.NewCandidateMessage(cand)
		if err != nil {
			return err
		}
		return core.Deadline(c.channel.Send(ctx, m))
	}
	return core.Deadline(c.api.Candidate(ctx, c.Room(), cand))
}

// Close stops the outbound worker. Queued local candidates are discarded.
func (c *Coordinator) Close() {
	c.once.Do(func() {
		c.cancel()
		c.wg.Wait()
		c.unsub()
	})
}

func (t Transport) Validate() error {
	switch t {
	case TransportHTTP, TransportStream:
		return nil
	default:
		return fmt.Errorf("unknown transport %q", t)
	}
}
