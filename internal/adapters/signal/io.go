package signal

import (
	"fmt"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dkeye/roulette/internal/core"
)

func (c *Channel) writePump() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case data := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.shutdown(fmt.Errorf("%w: set write deadline: %w", core.ErrConnection, err))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.shutdown(fmt.Errorf("%w: write: %w", core.ErrConnection, err))
				return
			}
		}
	}
}

func (c *Channel) readPump() {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.shutdown(readError(err))
			}
			return
		}
		m, err := core.ParseMessage(data)
		if err != nil {
			c.logger.Warn().Err(err).Msg("bad message")
			continue
		}
		select {
		case c.inbox <- m:
		case <-c.ctx.Done():
			return
		}
	}
}

func readError(err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return fmt.Errorf("%w: remote closed: %w", core.ErrClosed, err)
	}
	return fmt.Errorf("%w: read: %w", core.ErrConnection, err)
}

// dispatch delivers messages one at a time, in arrival order.
func (c *Channel) dispatch() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case m := <-c.inbox:
			c.mu.RLock()
			observers := slices.Clone(c.onMessage)
			c.mu.RUnlock()
			for _, fn := range observers {
				c.safe("message observer", func() { fn(m) })
			}
		}
	}
}

func (c *Channel) pingLoop() {
	t := time.NewTicker(c.keepalive)
	defer t.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-t.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.shutdown(fmt.Errorf("%w: ping: %w", core.ErrConnection, err))
				return
			}
		}
	}
}
