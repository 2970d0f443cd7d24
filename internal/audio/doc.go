// Package audio turns a stream of raw PCM frames into bounded segments
// ready for transcription, and packages PCM as WAV for the wire.
//
// Inbound audio is little-endian signed PCM. A Segmenter cuts a segment
// every Window of audio, on an explicit Flush, and on Close. Segments that
// are too short or too quiet can be discarded instead of submitted.
package audio
