package app

import (
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Settings holds process-wide switches. Reads are lock-free.
type Settings struct {
	mirror atomic.Bool
}

func NewSettings(mirror bool) *Settings {
	s := &Settings{}
	s.mirror.Store(mirror)
	return s
}

func (s *Settings) Mirror() bool { return s.mirror.Load() }

// SetMirror swaps the flag and returns the previous value.
func (s *Settings) SetMirror(enabled bool) bool {
	prev := s.mirror.Swap(enabled)
	if prev != enabled {
		log.Info().Str("module", "app.settings").Bool("mirror", enabled).Msg("mirror mode toggled")
	}
	return prev
}
