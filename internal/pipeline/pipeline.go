// Package pipeline drives one audio segment through speech-to-text,
// translation and speech synthesis. It holds no room or session state.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/dkeye/Polyglot/internal/metrics"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type Config struct {
	// StageTimeout bounds each collaborator call; zero means no bound.
	StageTimeout time.Duration
	// ConfidenceFloor drops transcripts scored below it.
	ConfidenceFloor float64
}

// Result is the outcome for one target language. It lives only until broadcast.
type Result struct {
	SourceSessionID string
	SourceLanguage  domain.Language
	TargetLanguage  domain.Language
	Transcript      string
	Text            string
	// Audio is WAV: synthesized speech, or the raw segment when Echo is set.
	Audio     []byte
	Echo      bool
	Timestamp time.Time
}

// Empty reports a no-op result (nothing was said).
func (r Result) Empty() bool { return len(r.Audio) == 0 }

type Pipeline struct {
	collab  Collaborators
	cfg     Config
	metrics *metrics.Metrics
}

func New(collab Collaborators, cfg Config, m *metrics.Metrics) (*Pipeline, error) {
	if collab.Transcriber == nil || collab.Translator == nil || collab.Synthesizer == nil {
		return nil, errors.New("pipeline: transcriber, translator and synthesizer are required")
	}
	return &Pipeline{collab: collab, cfg: cfg, metrics: m}, nil
}

// TranslateText runs the MT stage alone, under the same timeout as a segment.
func (p *Pipeline) TranslateText(ctx context.Context, text string, source, target domain.Language) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" || source == target {
		return text, nil
	}
	return runStage(ctx, p, StageMT, func(ctx context.Context) (string, error) {
		return p.collab.Translator.Translate(ctx, text, source, target)
	})
}

// Process runs seg for a single target language. A silent segment yields an
// empty Result and a nil error.
func (p *Pipeline) Process(ctx context.Context, seg audio.Segment, target domain.Language) (Result, error) {
	results, err := p.ProcessMany(ctx, seg, []domain.Language{target})
	if r, ok := results[target]; ok {
		return r, err
	}
	return Result{SourceSessionID: seg.Owner, TargetLanguage: target, Timestamp: time.Now()}, err
}

// ProcessMany transcribes seg once and translates and synthesizes it for
// every distinct target concurrently. On partial failure it returns the
// successful results together with the joined stage errors.
func (p *Pipeline) ProcessMany(ctx context.Context, seg audio.Segment, targets []domain.Language) (map[domain.Language]Result, error) {
	targets = dedupe(targets)
	if seg.Mirror {
		return p.echo(seg, targets)
	}
	if len(targets) == 0 || len(seg.Samples) == 0 {
		return map[domain.Language]Result{}, nil
	}

	tr, err := runStage(ctx, p, StageSTT, func(ctx context.Context) (Transcript, error) {
		return p.collab.Transcriber.Transcribe(ctx, seg.Samples, seg.Format, "")
	})
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(tr.Text)
	if text == "" || tr.Confidence < p.cfg.ConfidenceFloor {
		log.Debug().Str("module", "pipeline").Str("sid", seg.Owner).Uint64("seq", seg.Seq).Float64("confidence", tr.Confidence).Msg("nothing to translate")
		return map[domain.Language]Result{}, nil
	}

	var (
		mu      sync.Mutex
		results = make(map[domain.Language]Result, len(targets))
		errs    []error
		g       errgroup.Group
	)
	for _, target := range targets {
		g.Go(func() error {
			r, err := p.render(ctx, seg, tr.Language, text, target)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, err)
				return nil
			}
			results[target] = r
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// ProcessHinted is ProcessMany with an STT language hint.
func (p *Pipeline) ProcessHinted(ctx context.Context, seg audio.Segment, hint domain.Language, targets []domain.Language) (map[domain.Language]Result, error) {
	if hint == "" || seg.Mirror {
		return p.ProcessMany(ctx, seg, targets)
	}
	hinted := &Pipeline{
		collab: Collaborators{
			Transcriber: hintedTranscriber{Transcriber: p.collab.Transcriber, hint: hint},
			Translator:  p.collab.Translator,
			Synthesizer: p.collab.Synthesizer,
		},
		cfg:     p.cfg,
		metrics: p.metrics,
	}
	return hinted.ProcessMany(ctx, seg, targets)
}

func (p *Pipeline) render(ctx context.Context, seg audio.Segment, source domain.Language, text string, target domain.Language) (Result, error) {
	translated := text
	if source != target {
		var err error
		translated, err = runStage(ctx, p, StageMT, func(ctx context.Context) (string, error) {
			return p.collab.Translator.Translate(ctx, text, source, target)
		})
		if err != nil {
			return Result{}, err
		}
	}

	wav, err := runStage(ctx, p, StageTTS, func(ctx context.Context) ([]byte, error) {
		wav, err := p.collab.Synthesizer.Synthesize(ctx, translated, target)
		if err == nil && len(wav) == 0 {
			err = ErrEmptyAudio
		}
		return wav, err
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		SourceSessionID: seg.Owner,
		SourceLanguage:  source,
		TargetLanguage:  target,
		Transcript:      text,
		Text:            translated,
		Audio:           wav,
		Timestamp:       time.Now(),
	}, nil
}

// echo repackages the raw segment; no collaborator is called.
func (p *Pipeline) echo(seg audio.Segment, targets []domain.Language) (map[domain.Language]Result, error) {
	wav, err := audio.EncodeWAV(seg.Samples, seg.Format)
	if err != nil {
		return nil, fmt.Errorf("mirror: %w", err)
	}
	out := make(map[domain.Language]Result, len(targets))
	for _, t := range targets {
		out[t] = Result{SourceSessionID: seg.Owner, TargetLanguage: t, Audio: wav, Echo: true, Timestamp: time.Now()}
	}
	return out, nil
}

// runStage bounds fn by the stage timeout even if fn ignores its context.
func runStage[T any](ctx context.Context, p *Pipeline, stage Stage, fn func(context.Context) (T, error)) (T, error) {
	if p.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.StageTimeout)
		defer cancel()
	}

	type outcome struct {
		v   T
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		v, err := fn(ctx)
		done <- outcome{v, err}
	}()

	var o outcome
	select {
	case o = <-done:
	case <-ctx.Done():
		o.err = ctx.Err()
	}
	p.metrics.ObserveStage(string(stage), time.Since(start), o.err)
	if o.err != nil {
		var zero T
		log.Warn().Err(o.err).Str("module", "pipeline").Str("stage", string(stage)).Dur("elapsed", time.Since(start)).Msg("stage failed")
		return zero, &PipelineError{Stage: stage, Err: o.err}
	}
	return o.v, nil
}

type hintedTranscriber struct {
	Transcriber
	hint domain.Language
}

func (h hintedTranscriber) Transcribe(ctx context.Context, pcm []byte, f audio.Format, _ domain.Language) (Transcript, error) {
	tr, err := h.Transcriber.Transcribe(ctx, pcm, f, h.hint)
	if err == nil && tr.Language == "" {
		tr.Language = h.hint
	}
	return tr, err
}

func dedupe(langs []domain.Language) []domain.Language {
	seen := make(map[domain.Language]struct{}, len(langs))
	out := langs[:0:0]
	for _, l := range langs {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}
