package app

import (
	"errors"
	"sync"
	"time"

	"github.com/dkeye/Polyglot/internal/core"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/rs/zerolog/log"
)

// RoomManagerImpl is the room directory. mu guards only the id -> room map;
// membership is synchronized inside each room.
type RoomManagerImpl struct {
	mu    sync.RWMutex
	rooms map[domain.RoomID]core.RoomService
	newID func() domain.RoomID
}

func NewRoomManager() *RoomManagerImpl {
	return &RoomManagerImpl{
		rooms: make(map[domain.RoomID]core.RoomService),
		newID: domain.NewRoomID,
	}
}

var _ core.RoomManager = (*RoomManagerImpl)(nil)

// CreateRoom hands out a fresh id. The room itself materializes on first
// join, so the directory never holds an empty room.
func (f *RoomManagerImpl) CreateRoom() domain.RoomID {
	id := f.newID()
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room id issued")
	return id
}

func (f *RoomManagerImpl) GetRoom(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	if !ok || room.Closed() {
		return nil, false
	}
	return room, true
}

func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok && !room.Closed() {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok && !room.Closed() {
		return room
	}
	room = core.NewRoomService(&domain.Room{ID: id, CreatedAt: time.Now()})
	f.rooms[id] = room
	log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room created")
	return room
}

// Join adds ms to the room, creating it if needed. A room that closed
// between lookup and insert is replaced and the join retried.
func (f *RoomManagerImpl) Join(id domain.RoomID, ms core.MemberSession) (core.RoomService, error) {
	for {
		room := f.GetOrCreate(id)
		err := room.AddMember(ms)
		if err == nil {
			return room, nil
		}
		if !errors.Is(err, core.ErrRoomClosed) {
			return nil, err
		}
		f.drop(id, room)
	}
}

func (f *RoomManagerImpl) Leave(id domain.RoomID, sid core.SessionID) (int, bool) {
	room, ok := f.GetRoom(id)
	if !ok {
		return 0, false
	}
	remaining, removed := room.RemoveMember(sid)
	if remaining == 0 {
		f.drop(id, room)
	}
	return remaining, removed
}

// drop deletes id only if it still points at room.
func (f *RoomManagerImpl) drop(id domain.RoomID, room core.RoomService) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if cur, ok := f.rooms[id]; ok && cur == room {
		delete(f.rooms, id)
		log.Info().Str("module", "app.rooms").Str("room", string(id)).Msg("room removed")
	}
}

func (f *RoomManagerImpl) Count(id domain.RoomID) int {
	room, ok := f.GetRoom(id)
	if !ok {
		return 0
	}
	return room.MemberCount()
}

func (f *RoomManagerImpl) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.rooms)
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount()})
	}
	return out
}

func (f *RoomManagerImpl) StopRoom(id domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
}
