package orch

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Polyglot/internal/audio"
	"github.com/dkeye/Polyglot/internal/core"
	"github.com/dkeye/Polyglot/internal/domain"
)

type queued struct {
	seg audio.Segment
	at  time.Time
}

// sessionWorker owns one session's segmenter and its FIFO of ready
// segments. A single goroutine drains the queue, so at most one segment
// per session is in the pipeline and results leave in submission order.
type sessionWorker struct {
	sid  core.SessionID
	room domain.RoomID
	sess core.MemberSession
	seg  *audio.Segmenter

	// ingestMu orders segmenter writes with their enqueue.
	ingestMu sync.Mutex

	mu     sync.Mutex
	queue  []queued
	closed bool
	wake   chan struct{}

	gone atomic.Bool
}

func newSessionWorker(sess core.MemberSession, seg *audio.Segmenter) *sessionWorker {
	return &sessionWorker{
		sid:  sess.ID(),
		room: sess.RoomID(),
		sess: sess,
		seg:  seg,
		wake: make(chan struct{}, 1),
	}
}

func (w *sessionWorker) push(s audio.Segment) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return false
	}
	w.queue = append(w.queue, queued{seg: s, at: time.Now()})
	w.mu.Unlock()
	w.signal()
	return true
}

// next blocks until a segment is queued; false once closed and drained.
func (w *sessionWorker) next() (queued, bool) {
	for {
		w.mu.Lock()
		if len(w.queue) > 0 {
			q := w.queue[0]
			w.queue[0] = queued{}
			w.queue = w.queue[1:]
			w.mu.Unlock()
			return q, true
		}
		if w.closed {
			w.mu.Unlock()
			return queued{}, false
		}
		w.mu.Unlock()
		<-w.wake
	}
}

func (w *sessionWorker) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	w.signal()
}

func (w *sessionWorker) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}
