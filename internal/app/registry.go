package app

import (
	"context"
	"errors"
	"sync"

	"github.com/dkeye/Polyglot/internal/core"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/rs/zerolog/log"
)

var (
	ErrDuplicateSession = errors.New("duplicate session")
	ErrSessionNotFound  = errors.New("session not found")
)

type sessionEntry struct {
	Session core.MemberSession
	Cancel  context.CancelFunc
}

// Registry maps live session ids to their transport and fans frames out
// to room members without callers touching the transport.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.SessionID]*sessionEntry

	rooms  core.RoomManager
	policy Policy
}

func NewRegistry(rooms core.RoomManager, policy Policy) *Registry {
	if policy == nil {
		policy = SimplePolicy{}
	}
	return &Registry{
		sessions: make(map[core.SessionID]*sessionEntry),
		rooms:    rooms,
		policy:   policy,
	}
}

// Register binds a session. cancel, if set, tears the connection down on kick.
func (r *Registry) Register(sess core.MemberSession, cancel context.CancelFunc) error {
	sid := sess.ID()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sid]; ok {
		return ErrDuplicateSession
	}
	r.sessions[sid] = &sessionEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Str("room", string(sess.RoomID())).Msg("bound session")
	return nil
}

func (r *Registry) Get(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.sessions[sid]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Send delivers one frame. A session that has already gone is an expected
// race: the error is logged at debug level and returned for callers that care.
func (r *Registry) Send(sid core.SessionID, f core.Frame) error {
	sess, ok := r.Get(sid)
	if !ok {
		log.Debug().Str("module", "app.registry").Str("sid", string(sid)).Str("kind", f.Kind.String()).Msg("send to unknown session")
		return ErrSessionNotFound
	}
	if err := sess.Signal().TrySend(f); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("sid", string(sid)).Str("kind", f.Kind.String()).Msg("send failed")
		return err
	}
	return nil
}

// Broadcast sends f to every current member of the room except exclude.
func (r *Registry) Broadcast(roomID domain.RoomID, f core.Frame, exclude core.SessionID) core.PublishResult {
	return r.Deliver(roomID, exclude, func(core.MemberSession) (core.Frame, bool) { return f, true })
}

// Deliver lets pick choose a frame per member; membership is read at delivery time.
func (r *Registry) Deliver(
	roomID domain.RoomID,
	exclude core.SessionID,
	pick func(core.MemberSession) (core.Frame, bool),
) core.PublishResult {
	room, ok := r.rooms.GetRoom(roomID)
	if !ok {
		return core.PublishResult{}
	}
	res := room.Publish(exclude, pick)
	for _, slow := range res.Dropped {
		action := r.policy.OnBackPressure(room, slow)
		log.Warn().Str("module", "app.registry").Str("room", string(roomID)).Str("sid", string(slow.ID())).Str("action", action.String()).Msg("receiver backpressure")
		if action == KickMember {
			r.Cancel(slow.ID())
		}
	}
	return res
}

// Unregister is idempotent; the second caller gets ok == false.
func (r *Registry) Unregister(sid core.SessionID) (core.MemberSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.sessions[sid]
	if !ok {
		return nil, false
	}
	delete(r.sessions, sid)
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("unbind session")
	return e.Session, true
}

func (r *Registry) Cancel(sid core.SessionID) bool {
	r.mu.RLock()
	e, ok := r.sessions[sid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.registry").Str("sid", string(sid)).Msg("canceled session")
	return true
}
