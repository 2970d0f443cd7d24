package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

const wavHeaderSize = 44

var ErrNotWAV = errors.New("not a PCM WAV payload")

// wavHeader represents the canonical 44-byte header of a PCM WAV file
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// EncodeWAV wraps raw PCM in a WAV container.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	dataSize := uint32(len(pcm))
	header := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     36 + dataSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   uint16(f.Channels),
		SampleRate:    uint32(f.SampleRate),
		ByteRate:      uint32(f.BytesPerSecond()),
		BlockAlign:    uint16(f.BlockAlign()),
		BitsPerSample: uint16(f.BitsPerSample),
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize+len(pcm)))
	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("write WAV header: %w", err)
	}
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// DecodeWAV splits a canonical PCM WAV payload into its format and samples.
func DecodeWAV(data []byte) ([]byte, Format, error) {
	if len(data) < wavHeaderSize {
		return nil, Format{}, fmt.Errorf("%w: %d bytes", ErrNotWAV, len(data))
	}
	var h wavHeader
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
		return nil, Format{}, fmt.Errorf("read WAV header: %w", err)
	}
	if string(h.ChunkID[:]) != "RIFF" || string(h.Format[:]) != "WAVE" ||
		string(h.Subchunk1ID[:]) != "fmt " || string(h.Subchunk2ID[:]) != "data" || h.AudioFormat != 1 {
		return nil, Format{}, ErrNotWAV
	}
	f := Format{SampleRate: int(h.SampleRate), Channels: int(h.NumChannels), BitsPerSample: int(h.BitsPerSample)}
	end := wavHeaderSize + int(h.Subchunk2Size)
	if end > len(data) {
		end = len(data)
	}
	return data[wavHeaderSize:end], f, nil
}
