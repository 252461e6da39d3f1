package roomapi_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/roulette/internal/adapters/roomapi"
	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/roomtest"
)

const token = "secret-token"

func TestOffer_ReturnsAnswer(t *testing.T) {
	srv := roomtest.New(t, token)
	c, err := roomapi.New(srv.URL(), token)
	require.NoError(t, err)

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer"}
	answer, err := c.Offer(context.Background(), "lobby", offer)
	require.NoError(t, err)
	assert.Equal(t, webrtc.SDPTypeAnswer, answer.Type)

	offers := srv.Offers()
	require.Len(t, offers, 1)
	assert.EqualValues(t, "lobby", offers[0].RoomID)
	assert.Equal(t, offer.SDP, offers[0].Offer.SDP)
}

func TestAnswerAndCandidate_Posted(t *testing.T) {
	srv := roomtest.New(t, token)
	c, err := roomapi.New(srv.URL(), token)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Answer(ctx, "default", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}))
	mid := "0"
	require.NoError(t, c.Candidate(ctx, "default", webrtc.ICECandidateInit{Candidate: "candidate:1", SDPMid: &mid}))

	require.Len(t, srv.Answers(), 1)
	cands := srv.Candidates()
	require.Len(t, cands, 1)
	assert.Equal(t, "candidate:1", cands[0].Candidate.Candidate)
	require.NotNil(t, cands[0].Candidate.SDPMid)
	assert.Equal(t, "0", *cands[0].Candidate.SDPMid)
}

func TestPost_Unauthorized(t *testing.T) {
	srv := roomtest.New(t, token)
	c, err := roomapi.New(srv.URL(), "wrong")
	require.NoError(t, err)

	err = c.Answer(context.Background(), "default", webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"})
	var se *roomapi.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.Code)
	assert.Equal(t, "/answer", se.Path)
}

func TestOffer_ServerError(t *testing.T) {
	srv := roomtest.New(t, token)
	srv.OnOffer = func(roomapi.OfferRequest) (webrtc.SessionDescription, error) {
		return webrtc.SessionDescription{}, errors.New("no sfu")
	}
	c, err := roomapi.New(srv.URL(), token)
	require.NoError(t, err)

	_, err = c.Offer(context.Background(), "default", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	var se *roomapi.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.Code)
	assert.Contains(t, se.Body, "no sfu")
}

func TestPost_TimeoutIsErrTimeout(t *testing.T) {
	release := make(chan struct{})
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()
	defer close(release)

	c, err := roomapi.New(slow.URL, token, roomapi.WithTimeout(30*time.Millisecond))
	require.NoError(t, err)

	err = c.Candidate(context.Background(), "default", webrtc.ICECandidateInit{Candidate: "candidate:1"})
	require.ErrorIs(t, err, core.ErrTimeout)
}

func TestOffer_EmptyAnswerRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer "+token, r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c, err := roomapi.New(srv.URL, token)
	require.NoError(t, err)
	_, err = c.Offer(context.Background(), "default", webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"})
	require.Error(t, err)
}

func TestNew_RejectsScheme(t *testing.T) {
	_, err := roomapi.New("ftp://example.org", token)
	require.Error(t, err)
}
