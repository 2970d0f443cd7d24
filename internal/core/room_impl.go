package core

import (
	"sort"
	"sync"

	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/rs/zerolog/log"
)

type roomMember struct {
	ms  MemberSession
	seq uint64
}

// roomImpl is a threadsafe in-memory room.
// It never closes adapter-owned resources.
type roomImpl struct {
	room    *domain.Room
	mu      sync.RWMutex
	bySID   map[SessionID]roomMember
	nextSeq uint64
	closed  bool
}

func NewRoomService(room *domain.Room) RoomService {
	return &roomImpl{
		room:  room,
		bySID: make(map[SessionID]roomMember),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySID)
}

func (r *roomImpl) Closed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.closed
}

func (r *roomImpl) AddMember(ms MemberSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRoomClosed
	}
	if _, ok := r.bySID[ms.ID()]; !ok {
		r.nextSeq++
		r.bySID[ms.ID()] = roomMember{ms: ms, seq: r.nextSeq}
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(ms.ID())).Msg("member added")
	return nil
}

func (r *roomImpl) RemoveMember(sid SessionID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.bySID[sid]
	delete(r.bySID, sid)
	if len(r.bySID) == 0 {
		r.closed = true
	}
	if ok {
		log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("sid", string(sid)).Msg("member removed")
	}
	return len(r.bySID), ok
}

func (r *roomImpl) Member(sid SessionID) (MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.bySID[sid]
	return m.ms, ok
}

func (r *roomImpl) Members() []MemberSession {
	r.mu.RLock()
	members := make([]roomMember, 0, len(r.bySID))
	for _, m := range r.bySID {
		members = append(members, m)
	}
	r.mu.RUnlock()

	sort.Slice(members, func(i, j int) bool { return members[i].seq < members[j].seq })
	out := make([]MemberSession, len(members))
	for i, m := range members {
		out[i] = m.ms
	}
	return out
}

func (r *roomImpl) Publish(from SessionID, pick func(MemberSession) (Frame, bool)) PublishResult {
	res := PublishResult{}
	// Snapshot first so a send that triggers a leave cannot re-enter the lock.
	for _, m := range r.Members() {
		if m.ID() == from {
			continue
		}
		f, ok := pick(m)
		if !ok {
			continue
		}
		if err := m.Signal().TrySend(f); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) Broadcast(from SessionID, f Frame) PublishResult {
	return r.Publish(from, func(MemberSession) (Frame, bool) { return f, true })
}

func (r *roomImpl) MembersSnapshot() []MemberDTO {
	members := r.Members()
	out := make([]MemberDTO, 0, len(members))
	for _, ms := range members {
		out = append(out, MemberDTO{ID: ms.ID(), TargetLanguage: ms.TargetLanguage()})
	}
	return out
}
