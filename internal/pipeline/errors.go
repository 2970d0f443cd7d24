package pipeline

import (
	"errors"
	"fmt"
)

type Stage string

const (
	StageSTT Stage = "stt"
	StageMT  Stage = "mt"
	StageTTS Stage = "tts"
)

var ErrEmptyAudio = errors.New("synthesizer returned no audio")

// PipelineError carries the stage that failed. The segment is not retried.
type PipelineError struct {
	Stage Stage
	Err   error
}

func (e *PipelineError) Error() string { return fmt.Sprintf("%s stage: %v", e.Stage, e.Err) }

func (e *PipelineError) Unwrap() error { return e.Err }

// StageOf extracts the failing stage from err, if any.
func StageOf(err error) (Stage, bool) {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Stage, true
	}
	return "", false
}
