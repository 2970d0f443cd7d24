// Package speech provides the STT, MT and TTS backends behind the
// translation pipeline.
package speech

import (
	"fmt"
	"net/http"

	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/pipeline"
	"github.com/rs/zerolog/log"
)

const (
	BackendOpenAI   = "openai"
	BackendLoopback = "loopback"
)

type Config struct {
	Backend    string
	APIKey     string
	BaseURL    string
	STTModel   string
	MTModel    string
	TTSModel   string
	Voice      string
	HTTPClient *http.Client
	// LoopbackFallback appends the loopback synthesizer after the cloud one.
	LoopbackFallback bool
	// Silence is the RMS under which the loopback transcriber hears nothing.
	Silence float64
}

// Build selects the backend set named by cfg.Backend.
func Build(cfg Config, f audio.Format) (pipeline.Collaborators, error) {
	switch cfg.Backend {
	case BackendLoopback, "":
		log.Info().Str("module", "speech").Str("backend", BackendLoopback).Msg("using loopback backends")
		return pipeline.Collaborators{
			Transcriber: LoopbackTranscriber{Silence: cfg.Silence},
			Translator:  LoopbackTranslator{},
			Synthesizer: NewLoopbackSynthesizer(f),
		}, nil
	case BackendOpenAI:
		client, err := newOpenAIClient(cfg)
		if err != nil {
			return pipeline.Collaborators{}, err
		}
		var tts pipeline.Synthesizer = NewOpenAISynthesizer(client, cfg.TTSModel, cfg.Voice)
		if cfg.LoopbackFallback {
			tts = pipeline.FallbackSynthesizer{tts, NewLoopbackSynthesizer(f)}
		}
		log.Info().Str("module", "speech").Str("backend", BackendOpenAI).
			Str("stt", cfg.STTModel).Str("mt", cfg.MTModel).Str("tts", cfg.TTSModel).
			Bool("fallback", cfg.LoopbackFallback).Msg("using openai backends")
		return pipeline.Collaborators{
			Transcriber: NewOpenAITranscriber(client, cfg.STTModel),
			Translator:  NewOpenAITranslator(client, cfg.MTModel),
			Synthesizer: tts,
		}, nil
	default:
		return pipeline.Collaborators{}, fmt.Errorf("unknown speech backend %q", cfg.Backend)
	}
}
