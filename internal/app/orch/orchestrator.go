package orch

import (
	"errors"
	"sync"

	"github.com/dkeye/Polyglot/internal/app"
	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/core"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/dkeye/Polyglot/internal/metrics"
	"github.com/dkeye/Polyglot/internal/pipeline"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
	"golang.org/x/sync/semaphore"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrClosed        = errors.New("orchestrator closed")
)

type Config struct {
	Segment audio.SegmentConfig
	// MaxInFlight caps segments in the pipeline across all sessions.
	// Excess segments wait; none are dropped.
	MaxInFlight int
}

// Orchestrator ties sessions, rooms, segmenters and the pipeline together.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    core.RoomManager
	Settings *app.Settings
	Pipeline *pipeline.Pipeline
	Metrics  *metrics.Metrics

	cfg Config
	sem *semaphore.Weighted

	mu      sync.Mutex
	workers map[core.SessionID]*sessionWorker
	closed  bool
	wg      conc.WaitGroup
}

func New(
	registry *app.Registry,
	rooms core.RoomManager,
	settings *app.Settings,
	p *pipeline.Pipeline,
	m *metrics.Metrics,
	cfg Config,
) (*Orchestrator, error) {
	if err := cfg.Segment.Validate(); err != nil {
		return nil, err
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 1
	}
	if settings == nil {
		settings = app.NewSettings(false)
	}
	return &Orchestrator{
		Registry: registry,
		Rooms:    rooms,
		Settings: settings,
		Pipeline: p,
		Metrics:  m,
		cfg:      cfg,
		sem:      semaphore.NewWeighted(int64(cfg.MaxInFlight)),
		workers:  make(map[core.SessionID]*sessionWorker),
	}, nil
}

func (o *Orchestrator) CreateRoom() domain.RoomID {
	id := o.Rooms.CreateRoom()
	log.Info().Str("module", "orch").Str("room", string(id)).Msg("room id issued")
	return id
}

// ParticipantCount is 0 for rooms that do not exist.
func (o *Orchestrator) ParticipantCount(id domain.RoomID) int { return o.Rooms.Count(id) }

func (o *Orchestrator) ListRooms() []core.RoomInfo { return o.Rooms.List() }

// RoomMembers is false for rooms that do not exist.
func (o *Orchestrator) RoomMembers(id domain.RoomID) ([]core.MemberDTO, bool) {
	room, ok := o.Rooms.GetRoom(id)
	if !ok {
		return nil, false
	}
	return room.MembersSnapshot(), true
}

func (o *Orchestrator) Mirror() bool { return o.Settings.Mirror() }

// SetMirror switches the process-wide mirror mode and returns the resulting state.
func (o *Orchestrator) SetMirror(enabled bool) bool {
	o.Settings.SetMirror(enabled)
	return enabled
}

// ChangeLanguage retargets one session; other members are unaffected.
func (o *Orchestrator) ChangeLanguage(sid core.SessionID, raw string) (domain.Language, error) {
	lang, err := domain.ParseLanguage(raw)
	if err != nil {
		return "", err
	}
	sess, ok := o.Registry.Get(sid)
	if !ok {
		return "", ErrSessionClosed
	}
	prev := sess.TargetLanguage()
	sess.SetTargetLanguage(lang)
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from", prev.String()).Str("to", lang.String()).Msg("target language changed")
	if f, ok := EncodeFrame(LanguageChanged{Type: MsgLanguageChanged, TargetLanguage: lang}); ok {
		_ = o.Registry.Send(sid, f)
	}
	return lang, nil
}

// Close disconnects every session and waits for queued segments to finish.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	sids := make([]core.SessionID, 0, len(o.workers))
	for sid := range o.workers {
		sids = append(sids, sid)
	}
	o.mu.Unlock()

	for _, sid := range sids {
		if sess, ok := o.Registry.Get(sid); ok {
			sess.Signal().Close()
		}
		o.Disconnect(sid)
	}
	o.wg.Wait()
	log.Info().Str("module", "orch").Int("sessions", len(sids)).Msg("orchestrator stopped")
}

func (o *Orchestrator) worker(sid core.SessionID) (*sessionWorker, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	w, ok := o.workers[sid]
	return w, ok
}

func (o *Orchestrator) gauges() {
	o.Metrics.SetSessions(o.Registry.Count())
	o.Metrics.SetRooms(len(o.Rooms.List()))
}

// notifyRoom pushes v to every member of id except exclude.
func (o *Orchestrator) notifyRoom(id domain.RoomID, exclude core.SessionID, v any) {
	f, ok := EncodeFrame(v)
	if !ok {
		return
	}
	res := o.Registry.Broadcast(id, f, exclude)
	o.Metrics.ObserveDelivery(f.Kind.String(), res.SendTo, len(res.Dropped))
}

func (o *Orchestrator) sendTo(sid core.SessionID, v any) {
	if f, ok := EncodeFrame(v); ok {
		_ = o.Registry.Send(sid, f)
	}
}
