package speech

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/dkeye/Polyglot/internal/pipeline"
)

// Loopback backends run without any model. They make the server usable
// for local development and keep results deterministic.

// LoopbackTranscriber reports how much voiced audio it heard. Audio
// quieter than Silence yields an empty transcript.
type LoopbackTranscriber struct {
	Silence float64
}

func (t LoopbackTranscriber) Transcribe(ctx context.Context, pcm []byte, f audio.Format, hint domain.Language) (pipeline.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return pipeline.Transcript{}, err
	}
	if hint == "" {
		hint = domain.DefaultLanguage
	}
	if len(pcm) == 0 || audio.RMS(pcm, f) < t.Silence {
		return pipeline.Transcript{Language: hint}, nil
	}
	text := fmt.Sprintf("%d ms of speech", f.Duration(len(pcm)).Milliseconds())
	return pipeline.Transcript{Text: text, Language: hint, Confidence: 1}, nil
}

// LoopbackTranslator tags the text with the target language.
type LoopbackTranslator struct{}

func (LoopbackTranslator) Translate(ctx context.Context, text string, _, target domain.Language) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return "[" + target.String() + "] " + text, nil
}

// LoopbackSynthesizer renders a short tone whose length follows the text.
type LoopbackSynthesizer struct {
	Format  audio.Format
	PerRune time.Duration
	MaxLen  time.Duration
}

func NewLoopbackSynthesizer(f audio.Format) LoopbackSynthesizer {
	return LoopbackSynthesizer{Format: f, PerRune: 40 * time.Millisecond, MaxLen: 5 * time.Second}
}

func (s LoopbackSynthesizer) Synthesize(ctx context.Context, text string, _ domain.Language) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if text == "" {
		return nil, nil
	}
	d := time.Duration(utf8.RuneCountInString(text)) * s.PerRune
	if s.MaxLen > 0 && d > s.MaxLen {
		d = s.MaxLen
	}
	return audio.EncodeWAV(tone(s.Format, d, 440), s.Format)
}

// tone writes a sine wave; only 16-bit samples carry signal.
func tone(f audio.Format, d time.Duration, hz float64) []byte {
	pcm := make([]byte, f.Bytes(d))
	if f.BitsPerSample != 16 {
		return pcm
	}
	frame := f.BlockAlign()
	for i := 0; i+frame <= len(pcm); i += frame {
		t := float64(i/frame) / float64(f.SampleRate)
		v := int16(0.3 * math.MaxInt16 * math.Sin(2*math.Pi*hz*t))
		for c := 0; c < f.Channels; c++ {
			binary.LittleEndian.PutUint16(pcm[i+2*c:], uint16(v))
		}
	}
	return pcm
}
