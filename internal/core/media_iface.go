package core

import (
	"context"
	"sync"

	"github.com/pion/webrtc/v4"
)

// PeerConnection is the part of *webrtc.PeerConnection the session uses.
type PeerConnection interface {
	CreateOffer(*webrtc.OfferOptions) (webrtc.SessionDescription, error)
	CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	LocalDescription() *webrtc.SessionDescription
	RemoteDescription() *webrtc.SessionDescription
	// AddICECandidate applies a remote ICE candidate.
	AddICECandidate(webrtc.ICECandidateInit) error
	AddTrack(webrtc.TrackLocal) (*webrtc.RTPSender, error)
	ConnectionState() webrtc.PeerConnectionState

	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	// OnICECandidate sets a callback for newly gathered local ICE candidates.
	// A nil candidate marks the end of gathering.
	OnICECandidate(func(*webrtc.ICECandidate))
	OnNegotiationNeeded(func())
	// OnTrack sets a callback that will be invoked when a new remote track arrives.
	OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver))
	Close() error
}

// PeerFactory creates an unconfigured connection.
type PeerFactory func(cfg webrtc.Configuration) (PeerConnection, error)

// Constraints selects which kinds of media to capture.
type Constraints struct {
	Video bool `mapstructure:"video"`
	Audio bool `mapstructure:"audio"`
}

// Capturer is the media capture primitive.
type Capturer interface {
	Capture(ctx context.Context, c Constraints) (*Stream, error)
}

// Stream is one captured local media stream.
type Stream struct {
	ID     string
	Tracks []webrtc.TrackLocal

	once sync.Once
	stop func()
}

func NewStream(id string, tracks []webrtc.TrackLocal, stop func()) *Stream {
	return &Stream{ID: id, Tracks: tracks, stop: stop}
}

// Close releases the capture source. Safe to call more than once.
func (s *Stream) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.stop != nil {
			s.stop()
		}
	})
}
