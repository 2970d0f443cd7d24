// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"time"
)

var (
	ErrRoomIDEmpty   = errors.New("room id empty")
	ErrRoomIDTooLong = errors.New("room id too long")
)

// Participant is the connection-independent meta of a room member.
// No transport or lifecycle logic here.
type Participant struct {
	// ClientToken is the browser cookie token, stable across reconnects.
	ClientToken string
	// SourceLanguage is an optional STT hint; empty means auto-detect.
	SourceLanguage Language
	ConnectedAt    time.Time
}

// NewParticipant avoids raw literals in adapters and keeps construction obvious.
func NewParticipant(clientToken string, source Language) *Participant {
	return &Participant{
		ClientToken:    clientToken,
		SourceLanguage: source,
		ConnectedAt:    time.Now(),
	}
}
