package core

import "github.com/dkeye/Polyglot/internal/domain"

type SessionID string

// MemberSession binds domain.Participant and its transport endpoint.
// This is what a room stores and fans out to.
type MemberSession interface {
	ID() SessionID
	RoomID() domain.RoomID
	Meta() *domain.Participant
	Signal() SignalConnection
	TargetLanguage() domain.Language
	SetTargetLanguage(domain.Language)
}
