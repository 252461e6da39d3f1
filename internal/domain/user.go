// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 36
	MaxUsernameLen = 36
)

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
	ErrTokenEmpty      = errors.New("token empty")
	ErrRoomTooLong     = errors.New("room id too long")
)

type UserID string

// Identity is the authenticated participant. Token is an opaque bearer
// token issued by the account service.
type Identity struct {
	ID          UserID `json:"id"`
	DisplayName string `json:"username"`
	Token       string `json:"-"`
}

// NewIdentity is a tiny helper to avoid ad-hoc struct literals in adapters.
// An empty id gets a fresh uuid.
func NewIdentity(id UserID, displayName, token string) (Identity, error) {
	if len(displayName) == 0 {
		return Identity{}, ErrUsernameEmpty
	}
	if len(displayName) > MaxUsernameLen {
		return Identity{}, ErrUsernameTooLong
	}
	if token == "" {
		return Identity{}, ErrTokenEmpty
	}
	if id == "" {
		id = UserID(uuid.NewString())
	}
	if len(id) > MaxUserIDLen {
		id = id[:MaxUserIDLen]
	}
	return Identity{ID: id, DisplayName: displayName, Token: token}, nil
}
