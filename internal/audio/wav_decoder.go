package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WAVDecoder implements Decoder for WAV files
type WAVDecoder struct {
	decoder    *wav.Decoder
	file       *os.File
	sampleRate int
	bitDepth   int
	numChans   int
	numFrames  int64
	position   int64
	intBuf     *audio.IntBuffer
}

// NewWAVDecoder creates a new WAV decoder
func NewWAVDecoder(filename string) (*WAVDecoder, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("invalid WAV file")
	}

	// Get format info without reading all samples
	if err := decoder.FwdToPCM(); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to seek to PCM data: %w", err)
	}

	numChans := int(decoder.NumChans)
	bitDepth := int(decoder.BitDepth)
	if numChans < 1 || bitDepth < 8 {
		f.Close()
		return nil, fmt.Errorf("invalid WAV format: %d channels, %d bits", numChans, bitDepth)
	}

	// PCMLen gives us the length of PCM data in bytes
	bytesPerFrame := int64(bitDepth/8) * int64(numChans)

	return &WAVDecoder{
		decoder:    decoder,
		file:       f,
		sampleRate: int(decoder.SampleRate),
		bitDepth:   bitDepth,
		numChans:   numChans,
		numFrames:  decoder.PCMLen() / bytesPerFrame,
	}, nil
}

// ReadChunk reads the next chunk of interleaved samples
func (d *WAVDecoder) ReadChunk(numFrames int) ([]float32, error) {
	if d.position >= d.numFrames {
		return nil, io.EOF
	}
	if d.position+int64(numFrames) > d.numFrames {
		numFrames = int(d.numFrames - d.position)
	}

	bufSize := numFrames * d.numChans
	if d.intBuf == nil || cap(d.intBuf.Data) < bufSize {
		d.intBuf = &audio.IntBuffer{
			Data: make([]int, bufSize),
			Format: &audio.Format{
				NumChannels: d.numChans,
				SampleRate:  d.sampleRate,
			},
		}
	}
	d.intBuf.Data = d.intBuf.Data[:bufSize]

	n, err := d.decoder.PCMBuffer(d.intBuf)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read PCM buffer: %w", err)
	}
	if n == 0 {
		return nil, io.EOF
	}

	maxVal := float32(audio.IntMaxSignedValue(d.bitDepth))
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = float32(d.intBuf.Data[i]) / maxVal
	}

	d.position += int64(n / d.numChans)
	return samples, nil
}

// SampleRate returns the sample rate
func (d *WAVDecoder) SampleRate() int {
	return d.sampleRate
}

// NumChannels returns the number of audio channels
func (d *WAVDecoder) NumChannels() int {
	return d.numChans
}

// NumFrames returns the total frame count from the data chunk size
func (d *WAVDecoder) NumFrames() int64 {
	return d.numFrames
}

// Close closes the decoder and releases resources
func (d *WAVDecoder) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}
