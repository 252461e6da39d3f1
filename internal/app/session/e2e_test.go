package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roulette/internal/adapters/media"
	"github.com/dkeye/roulette/internal/adapters/roomapi"
	"github.com/dkeye/roulette/internal/adapters/rtc"
	"github.com/dkeye/roulette/internal/adapters/signal"
	"github.com/dkeye/roulette/internal/app/events"
	"github.com/dkeye/roulette/internal/app/session"
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
	"github.com/dkeye/roulette/internal/roomtest"
)

const e2eToken = "e2e-token"

func newVNet(t *testing.T) (client, server *vnet.Net) {
	t.Helper()
	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "1.2.3.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)

	client, err = vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"1.2.3.4"}})
	require.NoError(t, err)
	require.NoError(t, wan.AddNet(client))

	server, err = vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"1.2.3.5"}})
	require.NoError(t, err)
	require.NoError(t, wan.AddNet(server))

	require.NoError(t, wan.Start())
	t.Cleanup(func() { _ = wan.Stop() })
	return client, server
}

// remotePeer plays the SFU behind the room server.
type remotePeer struct {
	mu sync.Mutex
	pc *webrtc.PeerConnection
}

func (r *remotePeer) answerOffer(req roomapi.OfferRequest) (webrtc.SessionDescription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.pc.SetRemoteDescription(req.Offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := r.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	gathered := webrtc.GatheringCompletePromise(r.pc)
	if err := r.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	<-gathered
	return *r.pc.LocalDescription(), nil
}

func TestE2E_JoinAnswerAndMediaFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("vnet end-to-end test")
	}
	clientNet, serverNet := newVNet(t)

	serverAPI, err := rtc.NewAPI(rtc.APIOptions{Net: serverNet})
	require.NoError(t, err)
	serverPC, err := serverAPI.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverPC.Close() })
	_, err = serverPC.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	})
	require.NoError(t, err)

	gotTrack := make(chan string, 1)
	serverPC.OnTrack(func(tr *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if _, _, err := tr.ReadRTP(); err == nil {
			select {
			case gotTrack <- tr.Codec().MimeType:
			default:
			}
		}
	})

	remote := &remotePeer{pc: serverPC}
	srv := roomtest.New(t, e2eToken)
	srv.OnOffer = remote.answerOffer
	srv.OnAnswer = func(req roomapi.AnswerRequest) error {
		remote.mu.Lock()
		defer remote.mu.Unlock()
		return serverPC.SetRemoteDescription(req.Answer)
	}
	srv.OnCandidate = func(req roomapi.CandidateRequest) error {
		remote.mu.Lock()
		defer remote.mu.Unlock()
		return serverPC.AddICECandidate(req.Candidate)
	}

	clientAPI, err := rtc.NewAPI(rtc.APIOptions{Net: clientNet, PLIInterval: rtc.DefaultPLIInterval})
	require.NoError(t, err)
	facade := session.New(session.Options{
		// unreachable inside the vnet; host candidates carry the test
		ICEServers:     []webrtc.ICEServer{{URLs: []string{"stun:1.2.3.100:3478"}}},
		RequestTimeout: 5 * time.Second,
	}, session.Deps{
		Dial: func(ctx context.Context, sid, token string) (core.SignalChannel, error) {
			ch, err := signal.Dial(ctx, signal.Options{URL: srv.SignalURL(), SessionID: sid}, token)
			if err != nil {
				return nil, err
			}
			return ch, nil
		},
		RoomAPI: func(token string) (core.RoomAPI, error) {
			c, err := roomapi.New(srv.URL(), token)
			if err != nil {
				return nil, err
			}
			return c, nil
		},
		Peers:    func(sid string) core.PeerFactory { return rtc.NewFactory(clientAPI, sid) },
		Capturer: media.NewCapturer(""),
	})
	t.Cleanup(func() { _ = facade.Close() })

	id, err := domain.NewIdentity("", "e2e", e2eToken)
	require.NoError(t, err)
	h, err := facade.CreateSession(context.Background(), "default", id)
	require.NoError(t, err)
	require.True(t, srv.WaitConnected(5*time.Second))

	connected := make(chan struct{})
	var once sync.Once
	h.Events.Subscribe(events.StateChanged, func(e events.Event) {
		if e.State == webrtc.PeerConnectionStateConnected {
			once.Do(func() { close(connected) })
		}
	})

	// the room server starts negotiation
	remote.mu.Lock()
	offer, err := serverPC.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(serverPC)
	require.NoError(t, serverPC.SetLocalDescription(offer))
	<-gathered
	m, err := core.NewSDPMessage(*serverPC.LocalDescription())
	remote.mu.Unlock()
	require.NoError(t, err)
	require.NoError(t, srv.Push(m))

	select {
	case <-connected:
	case <-time.After(15 * time.Second):
		t.Fatal("client never connected")
	}
	select {
	case mime := <-gotTrack:
		require.Equal(t, webrtc.MimeTypeVP8, mime)
	case <-time.After(10 * time.Second):
		t.Fatal("no media from client")
	}
	require.NotEmpty(t, srv.Answers())

	require.NoError(t, h.Close())
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session not torn down")
	}
}
