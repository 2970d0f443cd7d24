package core

import (
	"errors"

	"github.com/dkeye/Polyglot/internal/domain"
)

// ErrRoomClosed is returned by AddMember once the last member has left;
// the directory must hand out a fresh room instead.
var ErrRoomClosed = errors.New("room closed")

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SendTo  int
	Dropped []MemberSession
}

// MemberDTO is a read-only view for APIs (no transport fields).
type MemberDTO struct {
	ID             SessionID       `json:"id"`
	TargetLanguage domain.Language `json:"target_language"`
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	MembersSnapshot() []MemberDTO
	// Members returns live sessions in join order.
	Members() []MemberSession
	Member(sid SessionID) (MemberSession, bool)

	AddMember(ms MemberSession) error
	// RemoveMember reports the remaining count and whether sid was present.
	RemoveMember(sid SessionID) (remaining int, removed bool)
	Closed() bool
	// Publish hands pick's frame to every member except `from`.
	// Members for which pick returns false are skipped.
	Publish(from SessionID, pick func(MemberSession) (Frame, bool)) PublishResult
	Broadcast(from SessionID, f Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"client_count"`
}

type RoomManager interface {
	CreateRoom() domain.RoomID
	GetOrCreate(id domain.RoomID) RoomService
	GetRoom(id domain.RoomID) (RoomService, bool)
	Join(id domain.RoomID, ms MemberSession) (RoomService, error)
	Leave(id domain.RoomID, sid SessionID) (remaining int, ok bool)
	Count(id domain.RoomID) int
	List() []RoomInfo
	StopRoom(id domain.RoomID)
}
