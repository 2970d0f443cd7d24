package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

type FrameKind uint8

const (
	TextFrame FrameKind = iota + 1
	BinaryFrame
)

func (k FrameKind) String() string {
	switch k {
	case TextFrame:
		return "text"
	case BinaryFrame:
		return "binary"
	default:
		return "unknown"
	}
}

// Frame is one outbound message: structured control JSON or audio.
type Frame struct {
	Kind FrameKind
	Data []byte
}

func Text(data []byte) Frame   { return Frame{Kind: TextFrame, Data: data} }
func Binary(data []byte) Frame { return Frame{Kind: BinaryFrame, Data: data} }

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
// TrySend never blocks: a full queue returns ErrBackpressure.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}
