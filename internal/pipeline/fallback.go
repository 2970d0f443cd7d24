package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/rs/zerolog/log"
)

// FallbackSynthesizer tries each synthesizer in order and returns the
// first non-empty audio.
type FallbackSynthesizer []Synthesizer

func (f FallbackSynthesizer) Synthesize(ctx context.Context, text string, lang domain.Language) ([]byte, error) {
	var errs []error
	for i, s := range f {
		wav, err := s.Synthesize(ctx, text, lang)
		if err == nil && len(wav) > 0 {
			return wav, nil
		}
		if err == nil {
			err = ErrEmptyAudio
		}
		errs = append(errs, fmt.Errorf("synthesizer %d: %w", i, err))
		if ctx.Err() != nil {
			break
		}
		log.Warn().Err(err).Str("module", "pipeline").Int("synthesizer", i).Msg("synthesizer failed, falling back")
	}
	if len(errs) == 0 {
		return nil, errors.New("no synthesizer configured")
	}
	return nil, errors.Join(errs...)
}
