package pipeline

import (
	"context"

	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/domain"
)

// Transcript is what a Transcriber heard.
type Transcript struct {
	Text string
	// Language is the detected source language, empty when unknown.
	Language domain.Language
	// Confidence in 0..1; backends without a score report 1.
	Confidence float64
}

// Transcriber is the speech-to-text collaborator. hint may be empty.
type Transcriber interface {
	Transcribe(ctx context.Context, pcm []byte, f audio.Format, hint domain.Language) (Transcript, error)
}

// Translator is the machine translation collaborator. source may be empty.
type Translator interface {
	Translate(ctx context.Context, text string, source, target domain.Language) (string, error)
}

// Synthesizer is the text-to-speech collaborator. It returns WAV audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string, lang domain.Language) ([]byte, error)
}

// Collaborators is the backend set chosen at startup.
type Collaborators struct {
	Transcriber Transcriber
	Translator  Translator
	Synthesizer Synthesizer
}
