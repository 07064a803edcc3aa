package audio

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFormat is returned when no decoder handles a file extension
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Decoder defines the interface for all audio format decoders
type Decoder interface {
	// ReadChunk reads up to numFrames frames as interleaved float32 samples
	// in [-1, 1]. Returns io.EOF when no samples remain.
	ReadChunk(numFrames int) ([]float32, error)

	// SampleRate returns the audio sample rate in Hz
	SampleRate() int

	// NumChannels returns the number of interleaved channels
	NumChannels() int

	// NumFrames returns the total number of frames, or 0 if unknown
	NumFrames() int64

	// Close closes the decoder and releases resources
	Close() error
}

// NewDecoder opens filename with the decoder matching its extension
func NewDecoder(filename string) (Decoder, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav", ".wave":
		return NewWAVDecoder(filename)
	case ".mp3":
		return NewMP3Decoder(filename)
	case ".flac":
		return NewFLACDecoder(filename)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(filename))
	}
}
