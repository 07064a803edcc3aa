package audio

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mewkiz/flac"
)

// FLACDecoder implements Decoder for FLAC files
type FLACDecoder struct {
	stream      *flac.Stream
	file        *os.File
	sampleRate  int
	numFrames   int64
	numChannels int
	pending     []float32 // Decoded samples not yet handed out
}

// NewFLACDecoder creates a new FLAC decoder
func NewFLACDecoder(filename string) (*FLACDecoder, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	// Parse FLAC stream - reads signature and StreamInfo block
	stream, err := flac.New(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create FLAC decoder: %w", err)
	}

	return &FLACDecoder{
		stream:      stream,
		file:        f,
		sampleRate:  int(stream.Info.SampleRate),
		numFrames:   int64(stream.Info.NSamples),
		numChannels: int(stream.Info.NChannels),
	}, nil
}

// ReadChunk reads the next chunk of interleaved samples
func (d *FLACDecoder) ReadChunk(numFrames int) ([]float32, error) {
	want := numFrames * d.numChannels

	for len(d.pending) < want {
		frame, err := d.stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse FLAC frame: %w", err)
		}

		// FLAC frames hold one subframe per channel; interleave them
		maxVal := float32(int64(1) << (frame.BitsPerSample - 1))
		frameSamples := len(frame.Subframes[0].Samples)
		for i := 0; i < frameSamples; i++ {
			for _, sub := range frame.Subframes {
				d.pending = append(d.pending, float32(sub.Samples[i])/maxVal)
			}
		}
	}

	if len(d.pending) == 0 {
		return nil, io.EOF
	}

	n := min(want, len(d.pending))
	samples := make([]float32, n)
	copy(samples, d.pending[:n])
	d.pending = d.pending[:copy(d.pending, d.pending[n:])]

	return samples, nil
}

// SampleRate returns the sample rate
func (d *FLACDecoder) SampleRate() int {
	return d.sampleRate
}

// NumFrames returns the total number of frames from StreamInfo
func (d *FLACDecoder) NumFrames() int64 {
	return d.numFrames
}

// NumChannels returns the number of audio channels
func (d *FLACDecoder) NumChannels() int {
	return d.numChannels
}

// Close closes the decoder and releases resources
func (d *FLACDecoder) Close() error {
	if d.stream != nil {
		d.stream.Close()
		d.stream = nil
	}
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		// The stream may already have closed the file
		if errors.Is(err, os.ErrClosed) {
			return nil
		}
		return err
	}
	return nil
}
