// Package roomapi is the HTTP side of the room server: offers, answers and
// candidates posted with the session's bearer token.
package roomapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roulette/internal/core"
	"github.com/dkeye/roulette/internal/domain"
)

const DefaultTimeout = 10 * time.Second

type OfferRequest struct {
	Offer  webrtc.SessionDescription `json:"offer"`
	RoomID domain.RoomID             `json:"room_id"`
}

type OfferResponse struct {
	Answer webrtc.SessionDescription `json:"answer"`
}

type AnswerRequest struct {
	Answer webrtc.SessionDescription `json:"answer"`
	RoomID domain.RoomID             `json:"room_id"`
}

type CandidateRequest struct {
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	RoomID    domain.RoomID           `json:"room_id"`
}

// StatusError is a non-2xx response.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("POST %s: %d %s", e.Path, e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("POST %s: %d %s: %s", e.Path, e.Code, http.StatusText(e.Code), e.Body)
}

type Client struct {
	base    *url.URL
	token   string
	http    *http.Client
	timeout time.Duration
	logger  zerolog.Logger
}

var _ core.RoomAPI = (*Client)(nil)

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every request. Zero keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func New(baseURL, token string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse room url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("room url %q: scheme must be http or https", baseURL)
	}
	c := &Client{
		base:    u,
		token:   token,
		http:    http.DefaultClient,
		timeout: DefaultTimeout,
		logger:  log.With().Str("module", "roomapi").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func (c *Client) Offer(ctx context.Context, room domain.RoomID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	var resp OfferResponse
	if err := c.post(ctx, "/offer", OfferRequest{Offer: offer, RoomID: room}, &resp); err != nil {
		return webrtc.SessionDescription{}, err
	}
	if resp.Answer.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("POST /offer: response without answer")
	}
	return resp.Answer, nil
}

func (c *Client) Answer(ctx context.Context, room domain.RoomID, answer webrtc.SessionDescription) error {
	return c.post(ctx, "/answer", AnswerRequest{Answer: answer, RoomID: room}, nil)
}

func (c *Client) Candidate(ctx context.Context, room domain.RoomID, cand webrtc.ICECandidateInit) error {
	return c.post(ctx, "/candidate", CandidateRequest{Candidate: cand, RoomID: room}, nil)
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

// post sends body as JSON. out, when set, receives the decoded response;
// otherwise the body is discarded.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return core.Deadline(fmt.Errorf("POST %s: %w", path, err))
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Dur("took", time.Since(start)).Msg("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Path: path, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.Deadline(fmt.Errorf("decode %s response: %w", path, err))
	}
	return nil
}
