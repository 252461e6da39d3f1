package coretest

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/roulette/internal/core"
)

// FakeChannel is an in-memory core.SignalChannel. Deliver runs observers
// synchronously on the caller.
type FakeChannel struct {
	mu        sync.Mutex
	onMessage []func(core.Message)
	onClose   []func(error)
	sent      []core.Message
	started   bool
	closed    bool
	closeOnce sync.Once
	done      chan struct{}

	SendErr error
}

var _ core.SignalChannel = (*FakeChannel)(nil)

func NewFakeChannel() *FakeChannel {
	return &FakeChannel{done: make(chan struct{})}
}

func (c *FakeChannel) OnMessage(fn func(core.Message)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onMessage = append(c.onMessage, fn)
}

func (c *FakeChannel) OnClose(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClose = append(c.onClose, fn)
}

func (c *FakeChannel) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
}

func (c *FakeChannel) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

func (c *FakeChannel) Send(_ context.Context, m core.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrClosed
	}
	if c.SendErr != nil {
		return c.SendErr
	}
	c.sent = append(c.sent, m)
	return nil
}

func (c *FakeChannel) Sent() []core.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Message(nil), c.sent...)
}

// Deliver hands m to the message observers as if it arrived from the server.
func (c *FakeChannel) Deliver(m core.Message) {
	c.mu.Lock()
	obs := slices.Clone(c.onMessage)
	c.mu.Unlock()
	for _, fn := range obs {
		fn(m)
	}
}

// Drop simulates remote loss of the channel.
func (c *FakeChannel) Drop(err error) {
	c.finish(err)
}

func (c *FakeChannel) Close() error {
	c.finish(nil)
	return nil
}

func (c *FakeChannel) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *FakeChannel) finish(err error) {
	var obs []func(error)
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		obs = slices.Clone(c.onClose)
		c.mu.Unlock()
		close(c.done)
	})
	for _, fn := range obs {
		fn(err)
	}
}

func (c *FakeChannel) Done() <-chan struct{} { return c.done }
