package core

import "context"

// SignalChannel is the authenticated message stream to the room server.
// Owned by the session; the session must Close() it.
type SignalChannel interface {
	// OnMessage registers an observer. Observers run in registration order,
	// one message at a time, in arrival order.
	OnMessage(func(Message))
	// OnClose registers an observer for channel loss. It fires once.
	OnClose(func(error))
	// Start launches the pumps. Observers should be registered first.
	Start()
	Send(ctx context.Context, m Message) error
	Close() error
	Done() <-chan struct{}
}
