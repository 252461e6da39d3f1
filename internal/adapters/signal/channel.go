// Package signal is the websocket signaling channel to the room server.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"github.com/sourcegraph/conc/panics"

	"github.com/dkeye/roulette/internal/core"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrNotStarted   = errors.New("channel not started")
)

const (
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultKeepalive        = 30 * time.Second
	writeWait               = 5 * time.Second
	maxMessageSize          = 1 << 20
	sendBuffer              = 32
	inboxBuffer             = 32
)

type Options struct {
	// URL is the signaling endpoint; the token is added as the jwt query parameter.
	URL              string
	SessionID        string
	HandshakeTimeout time.Duration
	// Keepalive is the ping period. Zero disables pings and read deadlines.
	Keepalive time.Duration
	Dialer    *websocket.Dialer
}

// Channel is a started-on-demand websocket with ordered message delivery.
// It implements core.SignalChannel.
type Channel struct {
	conn *websocket.Conn
	send chan []byte

	inbox chan core.Message

	mu        sync.RWMutex
	closed    bool
	started   bool
	onMessage []func(core.Message)
	onClose   []func(error)

	ctx       context.Context
	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
	wg        conc.WaitGroup

	keepalive time.Duration
	logger    zerolog.Logger
}

var _ core.SignalChannel = (*Channel)(nil)

// Dial opens the websocket. The handshake is bounded by both ctx and
// opts.HandshakeTimeout.
func Dial(ctx context.Context, opts Options, token string) (*Channel, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse signal url: %w", core.ErrConnection, err)
	}
	q := u.Query()
	q.Set("jwt", token)
	u.RawQuery = q.Encode()

	timeout := opts.HandshakeTimeout
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}
	dialer := websocket.DefaultDialer
	if opts.Dialer != nil {
		dialer = opts.Dialer
	}
	d := *dialer
	d.HandshakeTimeout = timeout

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := log.With().Str("module", "signal").Str("sid", opts.SessionID).Logger()

	conn, resp, err := d.DialContext(dctx, u.String(), nil)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w: handshake status %d", err, resp.StatusCode)
		}
		if isTimeout(err) {
			err = fmt.Errorf("%w: %w", core.ErrTimeout, err)
		}
		logger.Error().Err(err).Str("host", u.Host).Msg("dial failed")
		return nil, fmt.Errorf("%w: %w", core.ErrConnection, err)
	}

	keepalive := opts.Keepalive
	if keepalive < 0 {
		keepalive = 0
	}
	cctx, ccancel := context.WithCancel(context.Background())
	c := &Channel{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		inbox:     make(chan core.Message, inboxBuffer),
		ctx:       cctx,
		cancel:    ccancel,
		done:      make(chan struct{}),
		keepalive: keepalive,
		logger:    logger,
	}
	logger.Info().Str("host", u.Host).Msg("signaling connected")
	return c, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (c *Channel) OnMessage(fn func(core.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

// OnClose registers fn for the end of the channel. It fires once, with a
// nil error after a local Close.
func (c *Channel) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

// Start launches the pumps. Messages that arrive earlier wait in the socket.
func (c *Channel) Start() {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	c.conn.SetReadLimit(maxMessageSize)
	if c.keepalive > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
		})
	}

	c.wg.Go(c.writePump)
	c.wg.Go(c.readPump)
	c.wg.Go(c.dispatch)
	if c.keepalive > 0 {
		c.wg.Go(c.pingLoop)
	}
}

func (c *Channel) pongWait() time.Duration {
	return c.keepalive*2 + writeWait
}

// Send queues m for the write pump without blocking.
func (c *Channel) Send(ctx context.Context, m core.Message) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", core.ErrSend, core.Deadline(err))
	}
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("%w: encode: %w", core.ErrSend, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrClosed
	}
	if !c.started {
		return fmt.Errorf("%w: %w", core.ErrSend, ErrNotStarted)
	}
	select {
	case c.send <- data:
		return nil
	default:
		return fmt.Errorf("%w: %w", core.ErrSend, ErrBackpressure)
	}
}

func (c *Channel) Close() error {
	c.shutdown(nil)
	return nil
}

func (c *Channel) Done() <-chan struct{} { return c.done }

// Wait blocks until the pumps have exited.
func (c *Channel) Wait() { c.wg.Wait() }

// shutdown closes the socket once and notifies the close observers.
// Observers run outside the once so they may call Close.
func (c *Channel) shutdown(cause error) {
	var observers []func(error)
	fired := false
	c.closeOnce.Do(func() {
		fired = true
		c.mu.Lock()
		c.closed = true
		observers = append(observers, c.onClose...)
		c.mu.Unlock()

		c.cancel()
		if cause == nil {
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		}
		_ = c.conn.Close()
		close(c.done)
	})
	if !fired {
		return
	}

	if cause != nil {
		c.logger.Warn().Err(cause).Msg("signaling lost")
	} else {
		c.logger.Info().Msg("signaling closed")
	}
	for _, fn := range observers {
		c.safe("close observer", func() { fn(cause) })
	}
}

func (c *Channel) safe(what string, fn func()) {
	var pc panics.Catcher
	pc.Try(fn)
	if r := pc.Recovered(); r != nil {
		c.logger.Error().Err(r.AsError()).Str("observer", what).Msg("observer panicked")
	}
}
