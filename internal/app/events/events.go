// Package events is a typed, synchronous event source. Subscribers of a
// kind run in registration order on the emitting goroutine. A subscriber
// registered after an emit does not see it.
package events

import (
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/panics"
)

type Kind int

const (
	// Closed fires once when the connection reaches a terminal state.
	Closed Kind = iota + 1
	StateChanged
	RemoteDescriptionChanged
	TrackAdded
	TrackRemoved
	CandidateDropped
	NegotiationFailed
)

func (k Kind) String() string {
	switch k {
	case Closed:
		return "closed"
	case StateChanged:
		return "state_changed"
	case RemoteDescriptionChanged:
		return "remote_description_changed"
	case TrackAdded:
		return "track_added"
	case TrackRemoved:
		return "track_removed"
	case CandidateDropped:
		return "candidate_dropped"
	case NegotiationFailed:
		return "negotiation_failed"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Event carries the fields relevant to its Kind; the rest are zero.
type Event struct {
	Kind        Kind
	State       webrtc.PeerConnectionState
	Description *webrtc.SessionDescription
	Track       *webrtc.TrackRemote
	Candidate   *webrtc.ICECandidateInit
	Err         error
}

// Source is the subscribe-only view handed to UI collaborators.
type Source interface {
	Subscribe(kind Kind, fn func(Event)) (unsubscribe func())
}

type subscriber struct {
	id uint64
	fn func(Event)
}

type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[Kind][]subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[Kind][]subscriber)}
}

func (b *Bus) Subscribe(kind Kind, fn func(Event)) func() {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs[kind] = append(b.subs[kind], subscriber{id: id, fn: fn})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(kind, id) })
	}
}

func (b *Bus) remove(kind Kind, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.subs[kind]
	for i, s := range list {
		if s.id == id {
			b.subs[kind] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit calls the current subscribers of ev.Kind. A panicking subscriber is
// logged and does not stop the others.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	list := append([]subscriber(nil), b.subs[ev.Kind]...)
	b.mu.RUnlock()

	for _, s := range list {
		var pc panics.Catcher
		pc.Try(func() { s.fn(ev) })
		if r := pc.Recovered(); r != nil {
			log.Error().Err(r.AsError()).Str("module", "events").Str("kind", ev.Kind.String()).Msg("subscriber panicked")
		}
	}
}

// Count reports the number of subscribers of kind.
func (b *Bus) Count(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}
