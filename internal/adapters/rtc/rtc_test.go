package rtc

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/logging"
	"github.com/pion/rtcp"
	"github.com/pion/transport/v3/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedRTCP struct {
	batches [][]rtcp.Packet
	end     error
}

func (s *scriptedRTCP) ReadRTCP() ([]rtcp.Packet, interceptor.Attributes, error) {
	if len(s.batches) == 0 {
		return nil, nil, s.end
	}
	b := s.batches[0]
	s.batches = s.batches[1:]
	return b, nil, nil
}

func TestReadRTCP_KeyframeRequests(t *testing.T) {
	r := &scriptedRTCP{
		batches: [][]rtcp.Packet{
			{&rtcp.PictureLossIndication{MediaSSRC: 1}},
			{&rtcp.ReceiverEstimatedMaximumBitrate{Bitrate: 1e6}, &rtcp.FullIntraRequest{MediaSSRC: 1}},
			{&rtcp.ReceiverReport{SSRC: 2}},
		},
		end: io.EOF,
	}
	plis := 0
	readRTCP(r, zerolog.Nop(), func() { plis++ })

	assert.Equal(t, 2, plis)
	assert.Empty(t, r.batches)
}

func TestReadRTCP_StopsOnErrorWithoutCallback(t *testing.T) {
	r := &scriptedRTCP{
		batches: [][]rtcp.Packet{{&rtcp.PictureLossIndication{}}},
		end:     errors.New("srtp closed"),
	}
	readRTCP(r, zerolog.Nop(), nil)
	assert.Empty(t, r.batches)
}

func TestReadRTCP_NilSender(t *testing.T) {
	called := false
	ReadRTCP(nil, zerolog.Nop(), func() { called = true })
	assert.False(t, called)
}

func TestLoggerFactory_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	f := &LoggerFactory{Base: zerolog.New(&buf), Level: zerolog.WarnLevel}
	l := f.NewLogger("ice")

	l.Debug("debug line")
	l.Infof("info %d", 1)
	assert.Zero(t, buf.Len())

	l.Warnf("warn %s", "line")
	l.Error("error line")
	out := buf.String()
	assert.Contains(t, out, `"scope":"ice"`)
	assert.Contains(t, out, `"module":"pion"`)
	assert.Contains(t, out, "warn line")
	assert.Contains(t, out, "error line")
	assert.NotContains(t, out, "info 1")
}

func TestNewLoggerFactory_DefaultsToWarn(t *testing.T) {
	assert.Equal(t, zerolog.WarnLevel, NewLoggerFactory().Level)
}

func TestNewAPI_Variants(t *testing.T) {
	cases := []struct {
		name string
		opts APIOptions
	}{
		{"defaults", APIOptions{}},
		{"pli and mdns", APIOptions{PLIInterval: DefaultPLIInterval, MDNS: true}},
		{"ice timeouts", APIOptions{
			DisconnectedAfter: 2 * time.Second,
			FailedAfter:       5 * time.Second,
			KeepAliveInterval: time.Second,
			IncludeLoopback:   true,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			api, err := NewAPI(tc.opts)
			require.NoError(t, err)

			pc, err := NewWebRTCConnection(api, DefaultWebRTCConfig(nil), "t")
			require.NoError(t, err)
			defer pc.Close()

			_, err = pc.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo)
			require.NoError(t, err)
			offer, err := pc.CreateOffer(nil)
			require.NoError(t, err)
			assert.Contains(t, offer.SDP, "VP8")
		})
	}
}

func TestNewAPI_UsesCustomNet(t *testing.T) {
	wan, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.9.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)
	nw, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.9.0.7"}})
	require.NoError(t, err)
	require.NoError(t, wan.AddNet(nw))
	require.NoError(t, wan.Start())
	t.Cleanup(func() { _ = wan.Stop() })

	api, err := NewAPI(APIOptions{Net: nw})
	require.NoError(t, err)
	pc, err := NewWebRTCConnection(api, webrtc.Configuration{}, "t")
	require.NoError(t, err)
	defer pc.Close()

	_, err = pc.pc.AddTransceiverFromKind(webrtc.RTPCodecTypeVideo)
	require.NoError(t, err)
	offer, err := pc.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(pc.pc)
	require.NoError(t, pc.SetLocalDescription(offer))
	select {
	case <-gathered:
	case <-time.After(5 * time.Second):
		t.Fatal("gathering did not complete")
	}

	sdp := pc.LocalDescription().SDP
	assert.Contains(t, sdp, "10.9.0.7")
	assert.False(t, strings.Contains(sdp, ".local"), "mDNS is off unless asked for")
}

func TestDefaultWebRTCConfig(t *testing.T) {
	assert.Equal(t, DefaultICEServers(), DefaultWebRTCConfig(nil).ICEServers)
	custom := []webrtc.ICEServer{{URLs: []string{"stun:example.org:3478"}}}
	assert.Equal(t, custom, DefaultWebRTCConfig(custom).ICEServers)
}
