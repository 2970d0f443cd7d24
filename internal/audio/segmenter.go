package audio

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrSegmenterClosed = errors.New("segmenter closed")

// Reason records why a segment was sealed.
type Reason string

const (
	ReasonThreshold Reason = "threshold"
	ReasonFlush     Reason = "flush"
	ReasonClose     Reason = "close"
	ReasonMirror    Reason = "mirror"
)

type Outcome int

const (
	OutcomeEmpty Outcome = iota
	OutcomeReady
	OutcomeDiscarded
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeDiscarded:
		return "discarded"
	default:
		return "empty"
	}
}

// Segment is a bounded chunk of one session's audio.
type Segment struct {
	Owner   string
	Seq     uint64
	Samples []byte
	Format  Format
	ReadyAt time.Time
	Reason  Reason
	// Mirror is stamped when the segment is sealed; later toggles do not change it.
	Mirror bool
}

func (s Segment) Duration() time.Duration { return s.Format.Duration(len(s.Samples)) }

// Sealed pairs a segment with what the segmenter decided about it.
type Sealed struct {
	Segment
	Outcome Outcome
}

type SegmentConfig struct {
	Format Format
	// Window is the duration at which a segment is cut without waiting for a flush.
	Window time.Duration
	// MinDuration and SilenceRMS apply only when Discard is set.
	MinDuration time.Duration
	SilenceRMS  float64
	Discard     bool
}

func (c SegmentConfig) Validate() error {
	if err := c.Format.Validate(); err != nil {
		return err
	}
	if c.Format.Bytes(c.Window) <= 0 {
		return fmt.Errorf("segment window %s too short", c.Window)
	}
	if c.MinDuration > c.Window {
		return fmt.Errorf("min duration %s exceeds window %s", c.MinDuration, c.Window)
	}
	if c.SilenceRMS < 0 || c.SilenceRMS >= 1 {
		return fmt.Errorf("silence rms %v out of range [0,1)", c.SilenceRMS)
	}
	return nil
}

// Segmenter accumulates one session's frames. It is safe for concurrent use
// but a session normally has a single writer.
type Segmenter struct {
	cfg         SegmentConfig
	owner       string
	windowBytes int

	mu     sync.Mutex
	buf    []byte
	seq    uint64
	closed bool
}

func NewSegmenter(owner string, cfg SegmentConfig) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	wb := cfg.Format.Bytes(cfg.Window)
	return &Segmenter{
		cfg:         cfg,
		owner:       owner,
		windowBytes: wb,
		buf:         make([]byte, 0, wb),
	}, nil
}

// Write appends a frame and returns every window it completed.
func (s *Segmenter) Write(frame []byte) ([]Sealed, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSegmenterClosed
	}
	s.buf = append(s.buf, frame...)

	var out []Sealed
	for len(s.buf) >= s.windowBytes {
		out = append(out, s.seal(s.windowBytes, ReasonThreshold))
	}
	return out, nil
}

// Flush seals whatever is buffered. A trailing partial sample block stays
// buffered so the stream stays aligned.
func (s *Segmenter) Flush(reason Reason) Sealed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Sealed{}
	}
	return s.flushLocked(reason)
}

// Close flushes the trailing utterance and rejects further writes.
func (s *Segmenter) Close() Sealed {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Sealed{}
	}
	sealed := s.flushLocked(ReasonClose)
	s.closed = true
	s.buf = nil
	return sealed
}

func (s *Segmenter) Buffered() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Format.Duration(len(s.buf))
}

// Pending reports whether any whole sample block is buffered.
func (s *Segmenter) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buf) >= s.cfg.Format.BlockAlign()
}

func (s *Segmenter) flushLocked(reason Reason) Sealed {
	n := len(s.buf) - len(s.buf)%s.cfg.Format.BlockAlign()
	if n == 0 {
		return Sealed{}
	}
	return s.seal(n, reason)
}

func (s *Segmenter) seal(n int, reason Reason) Sealed {
	samples := make([]byte, n)
	copy(samples, s.buf[:n])
	rest := copy(s.buf, s.buf[n:])
	s.buf = s.buf[:rest]

	s.seq++
	seg := Segment{
		Owner:   s.owner,
		Seq:     s.seq,
		Samples: samples,
		Format:  s.cfg.Format,
		ReadyAt: time.Now(),
		Reason:  reason,
	}
	return Sealed{Segment: seg, Outcome: s.judge(seg)}
}

func (s *Segmenter) judge(seg Segment) Outcome {
	if !s.cfg.Discard {
		return OutcomeReady
	}
	if seg.Duration() < s.cfg.MinDuration {
		return OutcomeDiscarded
	}
	if s.cfg.SilenceRMS > 0 && RMS(seg.Samples, seg.Format) < s.cfg.SilenceRMS {
		return OutcomeDiscarded
	}
	return OutcomeReady
}
