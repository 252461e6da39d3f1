// Package coretest has hand-written fakes of the core contracts for tests.
package coretest

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/dkeye/roulette/internal/core"
)

var (
	ErrNoRemoteDescription = errors.New("fake: remote description not set")
	// ErrSignalingState mirrors pion rejecting a remote offer while a local
	// offer is pending.
	ErrSignalingState = errors.New("fake: invalid signaling state transition")
)

// FakePeer is an in-memory core.PeerConnection. Every method call is
// recorded in order; Err injects a failure per method name.
type FakePeer struct {
	mu sync.Mutex

	Config webrtc.Configuration
	Err    map[string]error

	calls      []string
	offerOpts  []webrtc.OfferOptions
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	signaling  webrtc.SignalingState
	candidates []webrtc.ICECandidateInit
	tracks     []webrtc.TrackLocal
	state      webrtc.PeerConnectionState
	closed     bool
	offers     int

	onState func(webrtc.PeerConnectionState)
	onCand  func(*webrtc.ICECandidate)
	onNeg   func()
	onTrack func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

var _ core.PeerConnection = (*FakePeer)(nil)

func NewFakePeer() *FakePeer {
	return &FakePeer{
		Err:       map[string]error{},
		state:     webrtc.PeerConnectionStateNew,
		signaling: webrtc.SignalingStateStable,
	}
}

// Factory returns a core.PeerFactory that records every peer it creates.
type Factory struct {
	mu    sync.Mutex
	Peers []*FakePeer
	Err   error
	// Prepare, if set, configures each peer before it is returned.
	Prepare func(*FakePeer)
}

func (f *Factory) New(cfg webrtc.Configuration) (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p := NewFakePeer()
	p.Config = cfg
	if f.Prepare != nil {
		f.Prepare(p)
	}
	f.Peers = append(f.Peers, p)
	return p, nil
}

func (f *Factory) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Peers)
}

func (f *Factory) Last() *FakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Peers) == 0 {
		return nil
	}
	return f.Peers[len(f.Peers)-1]
}

// Record appends an external step to the call log, so tests can order
// peer calls against other collaborators.
func (p *FakePeer) Record(step string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, step)
}

func (p *FakePeer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *FakePeer) OfferOptions() []webrtc.OfferOptions {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.OfferOptions(nil), p.offerOpts...)
}

func (p *FakePeer) AppliedCandidates() []webrtc.ICECandidateInit {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), p.candidates...)
}

func (p *FakePeer) Tracks() []webrtc.TrackLocal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), p.tracks...)
}

func (p *FakePeer) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *FakePeer) SetErr(method string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Err[method] = err
}

func (p *FakePeer) call(name string) error {
	p.calls = append(p.calls, name)
	return p.Err[name]
}

func (p *FakePeer) CreateOffer(o *webrtc.OfferOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if o != nil {
		p.offerOpts = append(p.offerOpts, *o)
	} else {
		p.offerOpts = append(p.offerOpts, webrtc.OfferOptions{})
	}
	if err := p.call("CreateOffer"); err != nil {
		return webrtc.SessionDescription{}, err
	}
	p.offers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: fmt.Sprintf("fake-offer-%d", p.offers)}, nil
}

func (p *FakePeer) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("CreateAnswer"); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if p.remote == nil {
		return webrtc.SessionDescription{}, ErrNoRemoteDescription
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "fake-answer"}, nil
}

func (p *FakePeer) SetLocalDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("SetLocalDescription:" + d.Type.String()); err != nil {
		return err
	}
	switch d.Type {
	case webrtc.SDPTypeRollback:
		if p.signaling != webrtc.SignalingStateHaveLocalOffer {
			return ErrSignalingState
		}
		p.signaling = webrtc.SignalingStateStable
		return nil
	case webrtc.SDPTypeOffer:
		p.signaling = webrtc.SignalingStateHaveLocalOffer
	default:
		p.signaling = webrtc.SignalingStateStable
	}
	p.local = &d
	return nil
}

func (p *FakePeer) SetRemoteDescription(d webrtc.SessionDescription) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("SetRemoteDescription:" + d.Type.String()); err != nil {
		return err
	}
	switch d.Type {
	case webrtc.SDPTypeOffer:
		if p.signaling == webrtc.SignalingStateHaveLocalOffer {
			return ErrSignalingState
		}
		p.signaling = webrtc.SignalingStateHaveRemoteOffer
	case webrtc.SDPTypeAnswer:
		if p.signaling != webrtc.SignalingStateHaveLocalOffer {
			return ErrSignalingState
		}
		p.signaling = webrtc.SignalingStateStable
	}
	p.remote = &d
	return nil
}

func (p *FakePeer) SignalingState() webrtc.SignalingState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.signaling
}

func (p *FakePeer) LocalDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.local
}

func (p *FakePeer) RemoteDescription() *webrtc.SessionDescription {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.remote
}

func (p *FakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("AddICECandidate"); err != nil {
		return err
	}
	if p.remote == nil {
		return ErrNoRemoteDescription
	}
	p.candidates = append(p.candidates, c)
	return nil
}

func (p *FakePeer) AddTrack(t webrtc.TrackLocal) (*webrtc.RTPSender, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.call("AddTrack"); err != nil {
		return nil, err
	}
	p.tracks = append(p.tracks, t)
	return nil, nil
}

func (p *FakePeer) ConnectionState() webrtc.PeerConnectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *FakePeer) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *FakePeer) OnICECandidate(fn func(*webrtc.ICECandidate)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCand = fn
}

func (p *FakePeer) OnNegotiationNeeded(fn func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onNeg = fn
}

func (p *FakePeer) OnTrack(fn func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = fn
}

func (p *FakePeer) Close() error {
	p.mu.Lock()
	if err := p.call("Close"); err != nil {
		p.mu.Unlock()
		return err
	}
	already := p.closed
	p.closed = true
	p.state = webrtc.PeerConnectionStateClosed
	fn := p.onState
	p.mu.Unlock()

	if !already && fn != nil {
		fn(webrtc.PeerConnectionStateClosed)
	}
	return nil
}

// SetState moves the fake to s and runs the state handler on the caller.
func (p *FakePeer) SetState(s webrtc.PeerConnectionState) {
	p.mu.Lock()
	p.state = s
	fn := p.onState
	p.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}

// GatherCandidate runs the local candidate handler. A nil c is the
// end-of-gathering marker.
func (p *FakePeer) GatherCandidate(c *webrtc.ICECandidate) {
	p.mu.Lock()
	fn := p.onCand
	p.mu.Unlock()
	if fn != nil {
		fn(c)
	}
}

func (p *FakePeer) NeedNegotiation() {
	p.mu.Lock()
	fn := p.onNeg
	p.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// HasHandlers reports whether all callbacks were registered.
func (p *FakePeer) HasHandlers() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.onState != nil && p.onCand != nil && p.onNeg != nil && p.onTrack != nil
}
