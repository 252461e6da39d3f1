// Package roomtest runs an in-process room server for tests: a gin router
// with the signaling websocket and the offer/answer/candidate endpoints.
package roomtest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roulette/internal/adapters/roomapi"
	"github.com/dkeye/roulette/internal/core"
)

// Server records every request it receives. The listener starts on the
// first URL or SignalURL call; handlers must be set before that.
type Server struct {
	Token string

	// OnOffer answers POST /offer. The default returns a canned answer.
	OnOffer func(roomapi.OfferRequest) (webrtc.SessionDescription, error)
	// OnAnswer and OnCandidate observe the acks. Returning an error makes
	// the server respond 500.
	OnAnswer    func(roomapi.AnswerRequest) error
	OnCandidate func(roomapi.CandidateRequest) error
	// OnMessage observes messages received on the websocket.
	OnMessage func(core.Message)

	srv   *httptest.Server
	start sync.Once

	mu         sync.Mutex
	conns      []*wsConn
	offers     []roomapi.OfferRequest
	answers    []roomapi.AnswerRequest
	candidates []roomapi.CandidateRequest
	received   []core.Message
	connected  chan struct{}
}

func New(t testing.TB, token string) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{
		Token:     token,
		connected: make(chan struct{}, 16),
		OnOffer: func(roomapi.OfferRequest) (webrtc.SessionDescription, error) {
			return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 roomtest-answer"}, nil
		},
	}
	s.srv = httptest.NewUnstartedServer(s.router())
	t.Cleanup(s.Close)
	return s
}

// URL is the room API base, e.g. http://127.0.0.1:port.
func (s *Server) URL() string {
	s.start.Do(s.srv.Start)
	return s.srv.URL
}

// SignalURL is the websocket endpoint.
func (s *Server) SignalURL() string {
	return "ws" + strings.TrimPrefix(s.URL(), "http") + "/ws"
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.authMiddleware())

	r.GET("/ws", s.handleSignal)
	r.POST("/offer", s.handleOffer)
	r.POST("/answer", s.handleAnswer)
	r.POST("/candidate", s.handleCandidate)
	return r
}

// authMiddleware accepts the token as a bearer header or as the jwt query
// parameter used by the websocket.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if token == "" {
			token = c.Query("jwt")
		}
		if token != s.Token {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleOffer(c *gin.Context) {
	var req roomapi.OfferRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Offer.SDP == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid offer"})
		return
	}
	s.mu.Lock()
	s.offers = append(s.offers, req)
	s.mu.Unlock()

	answer, err := s.OnOffer(req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, roomapi.OfferResponse{Answer: answer})
}

func (s *Server) handleAnswer(c *gin.Context) {
	var req roomapi.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Answer.SDP == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid answer"})
		return
	}
	s.mu.Lock()
	s.answers = append(s.answers, req)
	s.mu.Unlock()

	if s.OnAnswer != nil {
		if err := s.OnAnswer(req); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCandidate(c *gin.Context) {
	var req roomapi.CandidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid candidate"})
		return
	}
	s.mu.Lock()
	s.candidates = append(s.candidates, req)
	s.mu.Unlock()

	if s.OnCandidate != nil {
		if err := s.OnCandidate(req); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) record(m core.Message) {
	s.mu.Lock()
	s.received = append(s.received, m)
	fn := s.OnMessage
	s.mu.Unlock()
	if fn != nil {
		fn(m)
	}
}

// Push sends m to every connected client.
func (s *Server) Push(m core.Message) error {
	s.mu.Lock()
	conns := append([]*wsConn(nil), s.conns...)
	s.mu.Unlock()
	if len(conns) == 0 {
		return errors.New("roomtest: no connected clients")
	}
	var errs []error
	for _, c := range conns {
		errs = append(errs, c.TrySend(m))
	}
	return errors.Join(errs...)
}

// Disconnect drops every websocket from the server side.
func (s *Server) Disconnect() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// WaitConnected blocks until a client completes the websocket handshake.
func (s *Server) WaitConnected(timeout time.Duration) bool {
	select {
	case <-s.connected:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *Server) Offers() []roomapi.OfferRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]roomapi.OfferRequest(nil), s.offers...)
}

func (s *Server) Answers() []roomapi.AnswerRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]roomapi.AnswerRequest(nil), s.answers...)
}

func (s *Server) Candidates() []roomapi.CandidateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]roomapi.CandidateRequest(nil), s.candidates...)
}

func (s *Server) Received() []core.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Message(nil), s.received...)
}

func (s *Server) Close() {
	s.Disconnect()
	s.srv.Close()
	log.Debug().Str("module", "roomtest").Msg("server closed")
}
