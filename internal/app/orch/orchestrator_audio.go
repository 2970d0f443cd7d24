package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/core"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/dkeye/Polyglot/internal/pipeline"
	"github.com/rs/zerolog/log"
)

// Ingest accepts one inbound audio frame. In mirror mode the frame is
// echoed straight back to the sender; audio buffered before the switch is
// sealed first and still translated.
func (o *Orchestrator) Ingest(ctx context.Context, sid core.SessionID, frame []byte) error {
	w, ok := o.worker(sid)
	if !ok {
		return ErrSessionClosed
	}
	return o.ingest(ctx, w, frame)
}

// ingest re-checks the session under ingestMu, which Disconnect holds while
// closing the segmenter.
func (o *Orchestrator) ingest(ctx context.Context, w *sessionWorker, frame []byte) error {
	o.Metrics.ObserveFrame(len(frame))

	w.ingestMu.Lock()
	if w.gone.Load() {
		w.ingestMu.Unlock()
		return ErrSessionClosed
	}
	if o.Settings.Mirror() {
		if w.seg.Pending() {
			o.submit(w, w.seg.Flush(audio.ReasonMirror))
		}
		w.ingestMu.Unlock()
		return o.echo(ctx, w, frame)
	}
	sealed, err := w.seg.Write(frame)
	for _, s := range sealed {
		o.submit(w, s)
	}
	w.ingestMu.Unlock()
	if errors.Is(err, audio.ErrSegmenterClosed) {
		return ErrSessionClosed
	}
	return err
}

// Flush seals whatever the session has buffered.
func (o *Orchestrator) Flush(sid core.SessionID) error {
	w, ok := o.worker(sid)
	if !ok {
		return ErrSessionClosed
	}
	w.ingestMu.Lock()
	defer w.ingestMu.Unlock()
	o.submit(w, w.seg.Flush(audio.ReasonFlush))
	return nil
}

// submit queues ready segments and accounts for the rest.
func (o *Orchestrator) submit(w *sessionWorker, s audio.Sealed) {
	o.Metrics.ObserveSegment(s.Outcome.String())
	switch s.Outcome {
	case audio.OutcomeReady:
		if !w.push(s.Segment) {
			log.Warn().Str("module", "orch").Str("sid", string(w.sid)).Uint64("seq", s.Seq).Msg("segment after close")
		}
	case audio.OutcomeDiscarded:
		log.Debug().Str("module", "orch").Str("sid", string(w.sid)).Uint64("seq", s.Seq).
			Str("reason", string(s.Reason)).Dur("duration", s.Duration()).Msg("segment discarded")
	case audio.OutcomeEmpty:
	}
}

func (o *Orchestrator) echo(ctx context.Context, w *sessionWorker, frame []byte) error {
	seg := audio.Segment{
		Owner:   string(w.sid),
		Samples: frame,
		Format:  o.cfg.Segment.Format,
		ReadyAt: time.Now(),
		Reason:  audio.ReasonMirror,
		Mirror:  true,
	}
	res, err := o.Pipeline.Process(ctx, seg, w.sess.TargetLanguage())
	if err != nil {
		return err
	}
	f := core.Binary(res.Audio)
	sent, dropped := 1, 0
	if err := o.Registry.Send(w.sid, f); err != nil {
		sent, dropped = 0, 1
	}
	o.Metrics.ObserveDelivery(f.Kind.String(), sent, dropped)
	return nil
}

func (o *Orchestrator) runWorker(w *sessionWorker) {
	for {
		q, ok := w.next()
		if !ok {
			log.Debug().Str("module", "orch").Str("sid", string(w.sid)).Msg("worker done")
			return
		}
		o.process(w, q)
	}
}

func (o *Orchestrator) process(w *sessionWorker, q queued) {
	targets := o.listeners(w)
	if len(targets) == 0 {
		log.Debug().Str("module", "orch").Str("sid", string(w.sid)).Uint64("seq", q.seg.Seq).Msg("no listeners, segment skipped")
		return
	}

	langs := make([]domain.Language, 0, len(targets))
	for _, lang := range targets {
		langs = append(langs, lang)
	}
	results, err := o.translate(q, w.sess.Meta().SourceLanguage, langs)
	if len(results) > 0 {
		o.deliver(w, q.seg, targets, results)
	}
	if err != nil {
		o.reportFailure(w, q.seg, err)
	}
}

// translate holds a global slot for the duration of the pipeline call.
func (o *Orchestrator) translate(q queued, hint domain.Language, targets []domain.Language) (map[domain.Language]pipeline.Result, error) {
	ctx := context.Background()
	if err := o.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	o.Metrics.ObserveQueueWait(time.Since(q.at))
	o.Metrics.AddInFlight(1)
	defer func() {
		o.Metrics.AddInFlight(-1)
		o.sem.Release(1)
	}()
	return o.Pipeline.ProcessHinted(ctx, q.seg, hint, targets)
}

// listeners snapshots the target language of everyone in the room but the
// speaker. A language change after this point applies to later segments.
func (o *Orchestrator) listeners(w *sessionWorker) map[core.SessionID]domain.Language {
	room, ok := o.Rooms.GetRoom(w.room)
	if !ok {
		return nil
	}
	out := make(map[core.SessionID]domain.Language)
	for _, m := range room.Members() {
		if m.ID() == w.sid {
			continue
		}
		out[m.ID()] = m.TargetLanguage()
	}
	return out
}

// deliver sends each listener the text then the audio in the language it
// had when the segment started. Membership is read now, so a listener that
// left meanwhile gets nothing and one that joined meanwhile is skipped.
func (o *Orchestrator) deliver(w *sessionWorker, seg audio.Segment, targets map[core.SessionID]domain.Language, results map[domain.Language]pipeline.Result) {
	texts := make(map[domain.Language]core.Frame, len(results))
	for lang, r := range results {
		if r.Empty() {
			continue
		}
		f, ok := EncodeFrame(Translation{
			Type:           MsgTranslation,
			From:           w.sid,
			Seq:            seg.Seq,
			SourceLanguage: r.SourceLanguage,
			TargetLanguage: lang,
			Transcript:     r.Transcript,
			Text:           r.Text,
		})
		if ok {
			texts[lang] = f
		}
	}

	res := o.Registry.Deliver(w.room, w.sid, func(m core.MemberSession) (core.Frame, bool) {
		lang, ok := targets[m.ID()]
		if !ok {
			return core.Frame{}, false
		}
		f, ok := texts[lang]
		return f, ok
	})
	o.Metrics.ObserveDelivery(core.TextFrame.String(), res.SendTo, len(res.Dropped))

	res = o.Registry.Deliver(w.room, w.sid, func(m core.MemberSession) (core.Frame, bool) {
		lang, ok := targets[m.ID()]
		if !ok {
			return core.Frame{}, false
		}
		r, ok := results[lang]
		if !ok || r.Empty() {
			return core.Frame{}, false
		}
		return core.Binary(r.Audio), true
	})
	o.Metrics.ObserveDelivery(core.BinaryFrame.String(), res.SendTo, len(res.Dropped))

	log.Debug().Str("module", "orch").Str("sid", string(w.sid)).Str("room", string(w.room)).
		Uint64("seq", seg.Seq).Int("languages", len(results)).Int("sent", res.SendTo).Msg("segment delivered")
}

// reportFailure tells the speaker only; a departed speaker hears nothing.
func (o *Orchestrator) reportFailure(w *sessionWorker, seg audio.Segment, err error) {
	stage, _ := pipeline.StageOf(err)
	log.Warn().Err(err).Str("module", "orch").Str("sid", string(w.sid)).Uint64("seq", seg.Seq).Str("stage", string(stage)).Msg("segment failed")
	if w.gone.Load() {
		return
	}
	msg := NewError(ErrCodePipelineFailed, err.Error())
	msg.Stage = string(stage)
	o.sendTo(w.sid, msg)
}
