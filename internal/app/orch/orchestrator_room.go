package orch

import (
	"context"
	"fmt"

	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/core"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/rs/zerolog/log"
)

// Connect registers ms, joins (or creates) its room and announces it.
// cancel, if set, is how the registry kicks the session's transport.
func (o *Orchestrator) Connect(ms core.MemberSession, cancel context.CancelFunc) error {
	sid := ms.ID()
	seg, err := audio.NewSegmenter(string(sid), o.cfg.Segment)
	if err != nil {
		return err
	}

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if err := o.Registry.Register(ms, cancel); err != nil {
		o.mu.Unlock()
		return err
	}
	room, err := o.Rooms.Join(ms.RoomID(), ms)
	if err != nil {
		o.Registry.Unregister(sid)
		o.mu.Unlock()
		return fmt.Errorf("join %s: %w", ms.RoomID(), err)
	}
	w := newSessionWorker(ms, seg)
	o.workers[sid] = w
	o.wg.Go(func() { o.runWorker(w) })
	o.mu.Unlock()

	count := room.MemberCount()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(ms.RoomID())).
		Str("target", ms.TargetLanguage().String()).Int("count", count).Msg("session connected")

	o.sendTo(sid, ConnectionEstablished{
		Type:           MsgConnectionEstablished,
		RoomID:         ms.RoomID(),
		UserID:         sid,
		TargetLanguage: ms.TargetLanguage(),
		Mirror:         o.Settings.Mirror(),
		Count:          count,
	})
	o.notifyRoom(ms.RoomID(), sid, ParticipantEvent{Type: MsgParticipantJoined, UserID: sid, TargetLanguage: ms.TargetLanguage()})
	o.notifyRoom(ms.RoomID(), "", ParticipantsUpdate{Type: MsgParticipantsUpdate, Count: o.Rooms.Count(ms.RoomID())})
	o.gauges()
	return nil
}

// Disconnect is idempotent. The session leaves its room before anything
// else so no later broadcast reaches it; its buffered audio is flushed and
// still translated for the members that remain.
func (o *Orchestrator) Disconnect(sid core.SessionID) bool {
	o.mu.Lock()
	w, ok := o.workers[sid]
	delete(o.workers, sid)
	o.mu.Unlock()
	if !ok {
		return false
	}
	w.gone.Store(true)

	remaining, _ := o.Rooms.Leave(w.room, sid)
	o.Registry.Unregister(sid)

	w.ingestMu.Lock()
	o.submit(w, w.seg.Close())
	w.close()
	w.ingestMu.Unlock()

	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(w.room)).Int("remaining", remaining).Msg("session disconnected")
	if remaining > 0 {
		o.notifyRoom(w.room, "", ParticipantEvent{Type: MsgParticipantLeft, UserID: sid})
		o.notifyRoom(w.room, "", ParticipantsUpdate{Type: MsgParticipantsUpdate, Count: remaining})
	}
	o.gauges()
	return true
}

// Kick closes the session's transport and disconnects it.
func (o *Orchestrator) Kick(sid core.SessionID) bool {
	if sess, ok := o.Registry.Get(sid); ok {
		o.Registry.Cancel(sid)
		sess.Signal().Close()
	}
	return o.Disconnect(sid)
}

// EvictRoom kicks every member; the room disappears with its last member.
func (o *Orchestrator) EvictRoom(id domain.RoomID) int {
	room, ok := o.Rooms.GetRoom(id)
	if !ok {
		return 0
	}
	n := 0
	for _, m := range room.Members() {
		if o.Kick(m.ID()) {
			n++
		}
	}
	o.Rooms.StopRoom(id)
	log.Info().Str("module", "orch").Str("room", string(id)).Int("kicked", n).Msg("room evicted")
	return n
}
