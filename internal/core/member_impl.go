package core

import (
	"sync"

	"github.com/dkeye/Polyglot/internal/domain"
)

// memberSession implements MemberSession by pairing meta + transport.
// The room is fixed for the session's lifetime; only the target language moves.
type memberSession struct {
	id   SessionID
	room domain.RoomID
	meta *domain.Participant
	conn SignalConnection

	mu     sync.RWMutex
	target domain.Language
}

func NewMemberSession(
	id SessionID,
	room domain.RoomID,
	target domain.Language,
	meta *domain.Participant,
	conn SignalConnection,
) MemberSession {
	return &memberSession{id: id, room: room, target: target, meta: meta, conn: conn}
}

func (m *memberSession) ID() SessionID             { return m.id }
func (m *memberSession) RoomID() domain.RoomID     { return m.room }
func (m *memberSession) Meta() *domain.Participant { return m.meta }
func (m *memberSession) Signal() SignalConnection  { return m.conn }

func (m *memberSession) TargetLanguage() domain.Language {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.target
}

func (m *memberSession) SetTargetLanguage(l domain.Language) {
	m.mu.Lock()
	m.target = l
	m.mu.Unlock()
}
