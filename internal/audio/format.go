package audio

import (
	"fmt"
	"time"
)

// Format describes raw PCM: interleaved, little-endian, signed.
type Format struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

// DefaultFormat is 16 kHz mono s16le, what the speech backends expect.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1, BitsPerSample: 16}

func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("channels must be positive, got %d", f.Channels)
	}
	if f.BitsPerSample != 8 && f.BitsPerSample != 16 && f.BitsPerSample != 32 {
		return fmt.Errorf("unsupported bit depth %d", f.BitsPerSample)
	}
	return nil
}

// BlockAlign is the size of one sample frame across all channels.
func (f Format) BlockAlign() int { return f.Channels * f.BitsPerSample / 8 }

func (f Format) BytesPerSecond() int { return f.SampleRate * f.BlockAlign() }

// Bytes converts d to a block-aligned byte count.
func (f Format) Bytes(d time.Duration) int {
	frames := int(int64(d) * int64(f.SampleRate) / int64(time.Second))
	return frames * f.BlockAlign()
}

// Duration of n bytes of audio; a trailing partial block is ignored.
func (f Format) Duration(n int) time.Duration {
	frames := n / f.BlockAlign()
	return time.Duration(int64(frames) * int64(time.Second) / int64(f.SampleRate))
}
