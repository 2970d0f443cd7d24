package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxRoomIDLen = 64

type RoomID string

type Room struct {
	ID        RoomID
	CreatedAt time.Time
}

// NewRoomID returns a fresh "room-<12 hex>" identifier.
func NewRoomID() RoomID {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return RoomID("room-" + hex[:12])
}

// ParseRoomID validates a client supplied room identifier.
func ParseRoomID(raw string) (RoomID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrRoomIDEmpty
	}
	if len(raw) > MaxRoomIDLen {
		return "", ErrRoomIDTooLong
	}
	return RoomID(raw), nil
}
