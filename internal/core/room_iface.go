package core

import (
	"context"

	"github.com/dkeye/roulette/internal/domain"
	"github.com/pion/webrtc/v4"
)

//go:generate mockgen -destination=mocks/room_api.go -package=mocks github.com/dkeye/roulette/internal/core RoomAPI,Capturer

// RoomAPI is the out-of-band request/response exchange with the room server.
type RoomAPI interface {
	// Offer posts a local offer and returns the remote answer.
	Offer(ctx context.Context, room domain.RoomID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	// Answer posts a local answer. The response is a best-effort ack.
	Answer(ctx context.Context, room domain.RoomID, answer webrtc.SessionDescription) error
	// Candidate posts a local ICE candidate. The response is a best-effort ack.
	Candidate(ctx context.Context, room domain.RoomID, c webrtc.ICECandidateInit) error
}
