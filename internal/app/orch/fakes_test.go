package orch

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/Polyglot/internal/app"
	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/core"
	"github.com/dkeye/Polyglot/internal/domain"
	"github.com/dkeye/Polyglot/internal/pipeline"
	"github.com/stretchr/testify/require"
)

var testFormat = audio.Format{SampleRate: 1000, Channels: 1, BitsPerSample: 16}

func loud(d time.Duration) []byte {
	pcm := make([]byte, testFormat.Bytes(d))
	for i := 0; i+1 < len(pcm); i += 2 {
		binary.LittleEndian.PutUint16(pcm[i:], uint16(8000))
	}
	return pcm
}

func quiet(d time.Duration) []byte { return make([]byte, testFormat.Bytes(d)) }

type recorder struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (r *recorder) TrySend(f core.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.ErrConnClosed
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// messages decodes text frames of the given type, in arrival order.
func (r *recorder) messages(typ string) []map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []map[string]any
	for _, f := range r.frames {
		if f.Kind != core.TextFrame {
			continue
		}
		var m map[string]any
		if json.Unmarshal(f.Data, &m) == nil && m["type"] == typ {
			out = append(out, m)
		}
	}
	return out
}

func (r *recorder) binaries() [][]byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out [][]byte
	for _, f := range r.frames {
		if f.Kind == core.BinaryFrame {
			out = append(out, f.Data)
		}
	}
	return out
}

func (r *recorder) kinds() []core.FrameKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]core.FrameKind, 0, len(r.frames))
	for _, f := range r.frames {
		out = append(out, f.Kind)
	}
	return out
}

// fakeSTT hears "hello" in loud audio and nothing in silence.
type fakeSTT struct {
	calls    atomic.Int32
	delay    time.Duration
	inFlight atomic.Int32
	maxTotal atomic.Int32
}

func (f *fakeSTT) Transcribe(_ context.Context, pcm []byte, fm audio.Format, hint domain.Language) (pipeline.Transcript, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxTotal.Load()
		if n <= cur || f.maxTotal.CompareAndSwap(cur, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if hint == "" {
		hint = "en"
	}
	if audio.RMS(pcm, fm) < 0.01 {
		return pipeline.Transcript{Language: hint}, nil
	}
	return pipeline.Transcript{Text: "hello", Language: hint, Confidence: 1}, nil
}

type fakeMT struct {
	calls atomic.Int32
	err   error
}

func (f *fakeMT) Translate(_ context.Context, text string, _, target domain.Language) (string, error) {
	f.calls.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "[" + target.String() + "] " + text, nil
}

type fakeTTS struct{ calls atomic.Int32 }

func (f *fakeTTS) Synthesize(_ context.Context, text string, _ domain.Language) ([]byte, error) {
	f.calls.Add(1)
	return []byte("wav:" + text), nil
}

type harness struct {
	orch *Orchestrator
	stt  *fakeSTT
	mt   *fakeMT
	tts  *fakeTTS
}

type option func(*Config, *fakeSTT, *fakeMT)

func withDiscard(c *Config, _ *fakeSTT, _ *fakeMT) { c.Segment.Discard = true }

func withMTError(_ *Config, _ *fakeSTT, mt *fakeMT) { mt.err = errors.New("quota exceeded") }

func newHarness(t *testing.T, opts ...option) *harness {
	t.Helper()
	h := &harness{stt: &fakeSTT{}, mt: &fakeMT{}, tts: &fakeTTS{}}
	cfg := Config{
		Segment: audio.SegmentConfig{
			Format:      testFormat,
			Window:      time.Second,
			MinDuration: 100 * time.Millisecond,
			SilenceRMS:  0.01,
		},
		MaxInFlight: 4,
	}
	for _, opt := range opts {
		opt(&cfg, h.stt, h.mt)
	}
	p, err := pipeline.New(pipeline.Collaborators{Transcriber: h.stt, Translator: h.mt, Synthesizer: h.tts},
		pipeline.Config{StageTimeout: time.Second}, nil)
	require.NoError(t, err)

	rooms := app.NewRoomManager()
	h.orch, err = New(app.NewRegistry(rooms, nil), rooms, app.NewSettings(false), p, nil, cfg)
	require.NoError(t, err)
	t.Cleanup(h.orch.Close)
	return h
}

func (h *harness) connect(t *testing.T, sid string, room domain.RoomID, target domain.Language) *recorder {
	t.Helper()
	rec := &recorder{}
	ms := core.NewMemberSession(core.SessionID(sid), room, target, domain.NewParticipant("ct-"+sid, ""), rec)
	require.NoError(t, h.orch.Connect(ms, nil))
	return rec
}

const eventually = 2 * time.Second
const tick = 5 * time.Millisecond
