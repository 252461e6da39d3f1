package domain

import "strings"

// DefaultRoom is joined when no room is given.
const DefaultRoom RoomID = "default"

const MaxRoomIDLen = 64

type RoomID string

// NormalizeRoom trims the id and falls back to DefaultRoom.
func NormalizeRoom(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultRoom, nil
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomTooLong
	}
	return RoomID(raw), nil
}
