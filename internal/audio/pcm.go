package audio

import (
	"errors"
	"fmt"
	"io"
)

// loadChunkFrames is the number of frames pulled from a decoder per read
const loadChunkFrames = 65536

// PCM is a fully decoded audio buffer. It is not modified after Load.
type PCM struct {
	Samples    []float32 // Interleaved samples in [-1, 1]
	SampleRate int
	Channels   int
	Frames     int64   // Frames per channel
	Duration   float64 // Seconds
}

// WavePoint is one decimated waveform sample
type WavePoint struct {
	Seconds float64
	Value   float64
}

// Load decodes an entire audio file into memory
func Load(filename string) (*PCM, error) {
	dec, err := NewDecoder(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio: %w", err)
	}
	defer dec.Close()

	return Drain(dec)
}

// Drain reads every remaining sample from dec
func Drain(dec Decoder) (*PCM, error) {
	channels := dec.NumChannels()
	rate := dec.SampleRate()
	if channels < 1 || rate < 1 {
		return nil, fmt.Errorf("invalid stream: %d channels at %d Hz", channels, rate)
	}

	var samples []float32
	if n := dec.NumFrames(); n > 0 {
		samples = make([]float32, 0, n*int64(channels))
	}

	for {
		chunk, err := dec.ReadChunk(loadChunkFrames)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading audio at frame %d: %w", len(samples)/channels, err)
		}
		samples = append(samples, chunk...)
	}

	// Drop a trailing partial frame so Frames*Channels == len(Samples)
	samples = samples[:len(samples)-len(samples)%channels]
	frames := int64(len(samples) / channels)

	return &PCM{
		Samples:    samples,
		SampleRate: rate,
		Channels:   channels,
		Frames:     frames,
		Duration:   float64(frames) / float64(rate),
	}, nil
}

// Mono downmixes to a single channel by averaging each frame
func (p *PCM) Mono() []float32 {
	if p.Channels == 1 {
		out := make([]float32, len(p.Samples))
		copy(out, p.Samples)
		return out
	}

	out := make([]float32, p.Frames)
	inv := 1 / float32(p.Channels)
	for i := range out {
		var sum float32
		frame := p.Samples[i*p.Channels : (i+1)*p.Channels]
		for _, s := range frame {
			sum += s
		}
		out[i] = sum * inv
	}
	return out
}

// SampleCount returns the number of samples per channel
func (p *PCM) SampleCount() int64 {
	return p.Frames
}

// BlockCount returns how many blocks of size frames cover the mono signal.
// The last block may be partial.
func (p *PCM) BlockCount(size int) int {
	if size < 1 || p.Frames == 0 {
		return 0
	}
	return int((p.Frames + int64(size) - 1) / int64(size))
}

// Block returns mono block index of the given size, zero-padded past the end.
// An out-of-range index yields nil.
func (p *PCM) Block(index, size int) []float64 {
	if index < 0 || index >= p.BlockCount(size) {
		return nil
	}

	mono := p.Mono()
	block := make([]float64, size)
	start := index * size
	for i := 0; i < size && start+i < len(mono); i++ {
		block[i] = float64(mono[start+i])
	}
	return block
}

// Waveform decimates the interleaved buffer, taking every step-th sample
func (p *PCM) Waveform(step int) []WavePoint {
	if step < 1 || len(p.Samples) == 0 {
		return nil
	}

	perSecond := float64(p.SampleRate * p.Channels)
	points := make([]WavePoint, 0, len(p.Samples)/step+1)
	for i := 0; i < len(p.Samples); i += step {
		points = append(points, WavePoint{
			Seconds: float64(i) / perSecond,
			Value:   float64(p.Samples[i]),
		})
	}
	return points
}
