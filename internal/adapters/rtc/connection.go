package rtc

import (
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roulette/internal/core"
)

// DefaultICEServers are the public STUN servers used when none are configured.
func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{
			URLs: []string{
				"stun:stun.l.google.com:19302",
				"stun:stun.l.google.com:5349",
				"stun:stun1.l.google.com:3478",
			},
		},
	}
}

func DefaultWebRTCConfig(servers []webrtc.ICEServer) webrtc.Configuration {
	if len(servers) == 0 {
		servers = DefaultICEServers()
	}
	return webrtc.Configuration{ICEServers: servers}
}

// WebRTCConnection is a logging wrapper around *webrtc.PeerConnection.
// It implements core.PeerConnection.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	sid    string
	logger zerolog.Logger
}

var _ core.PeerConnection = (*WebRTCConnection)(nil)

func NewWebRTCConnection(api *webrtc.API, cfg webrtc.Configuration, sid string) (*WebRTCConnection, error) {
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{
		pc:     pc,
		sid:    sid,
		logger: log.With().Str("module", "webrtc").Str("sid", sid).Logger(),
	}, nil
}

// NewFactory binds api and sid into a core.PeerFactory.
func NewFactory(api *webrtc.API, sid string) core.PeerFactory {
	return func(cfg webrtc.Configuration) (core.PeerConnection, error) {
		return NewWebRTCConnection(api, cfg, sid)
	}
}

func (c *WebRTCConnection) CreateOffer(o *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(o)
}

func (c *WebRTCConnection) CreateAnswer(o *webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(o)
}

func (c *WebRTCConnection) SetLocalDescription(d webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(d)
}

func (c *WebRTCConnection) SetRemoteDescription(d webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(d)
}

func (c *WebRTCConnection) LocalDescription() *webrtc.SessionDescription {
	return c.pc.LocalDescription()
}

func (c *WebRTCConnection) RemoteDescription() *webrtc.SessionDescription {
	return c.pc.RemoteDescription()
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddTrack attaches a local track to the PeerConnection.
func (c *WebRTCConnection) AddTrack(track webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	c.logger.Info().Str("kind", track.Kind().String()).Str("track_id", track.ID()).Msg("local track added")
	return sender, nil
}

func (c *WebRTCConnection) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}

func (c *WebRTCConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		fn(s)
	})
}

func (c *WebRTCConnection) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	c.pc.OnICECandidate(fn)
}

func (c *WebRTCConnection) OnNegotiationNeeded(fn func()) {
	c.pc.OnNegotiationNeeded(func() {
		c.logger.Debug().Msg("negotiation needed")
		fn()
	})
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		fn(track, receiver)
	})
}

func (c *WebRTCConnection) Close() error {
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}
