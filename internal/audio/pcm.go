package audio

import (
	"encoding/binary"
	"math"
)

// RMS returns the normalized root mean square (0..1) of s16le samples.
// Other bit depths report 1 so silence detection never discards them.
func RMS(pcm []byte, f Format) float64 {
	if f.BitsPerSample != 16 {
		return 1
	}
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		sum += s * s
	}
	return math.Sqrt(sum/float64(n)) / math.MaxInt16
}
