package core

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMessage_SDP(t *testing.T) {
	m, err := ParseMessage([]byte(`{"type":"sdp","playground":{"type":"offer","sdp":"v=0\r\n"}}`))
	require.NoError(t, err)
	assert.Equal(t, MessageSDP, m.Type)

	desc, err := m.SessionDescription()
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeOffer, desc.Type)
	assert.Equal(t, "v=0\r\n", desc.SDP)

	_, err = m.Candidate()
	assert.Error(t, err)
}

func TestParseMessage_Candidate(t *testing.T) {
	m, err := ParseMessage([]byte(`{"type":"candidate","playground":{"candidate":"candidate:1 1 udp 1 10.0.0.1 5000 typ host","sdpMid":"0","sdpMLineIndex":0}}`))
	require.NoError(t, err)

	c, err := m.Candidate()
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "candidate:1 1 udp 1 10.0.0.1 5000 typ host", c.Candidate)
	require.NotNil(t, c.SDPMid)
	assert.Equal(t, "0", *c.SDPMid)
}

func TestParseMessage_NullCandidate(t *testing.T) {
	for _, raw := range []string{`{"type":"candidate","playground":null}`, `{"type":"candidate"}`} {
		m, err := ParseMessage([]byte(raw))
		require.NoError(t, err, raw)
		c, err := m.Candidate()
		require.NoError(t, err, raw)
		assert.Nil(t, c, raw)
	}
}

func TestParseMessage_Rejects(t *testing.T) {
	for _, raw := range []string{`{}`, `{"type":"ping"}`, `not json`} {
		_, err := ParseMessage([]byte(raw))
		assert.Error(t, err, raw)
	}

	m, err := ParseMessage([]byte(`{"type":"sdp","playground":null}`))
	require.NoError(t, err)
	_, err = m.SessionDescription()
	assert.Error(t, err)
}

func TestNewMessages_WireShape(t *testing.T) {
	m, err := NewSDPMessage(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "x"})
	require.NoError(t, err)
	raw, err := json.Marshal(m)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"sdp","playground":{"type":"answer","sdp":"x"}}`, string(raw))

	mid := "0"
	m, err = NewCandidateMessage(webrtc.ICECandidateInit{Candidate: "c", SDPMid: &mid})
	require.NoError(t, err)
	back, err := ParseMessage(mustJSON(t, m))
	require.NoError(t, err)
	c, err := back.Candidate()
	require.NoError(t, err)
	assert.Equal(t, "c", c.Candidate)
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
