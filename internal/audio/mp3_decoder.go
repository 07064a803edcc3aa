package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/hajimehoshi/go-mp3"
)

// go-mp3 always outputs interleaved 16-bit stereo: L0 R0 L1 R1 ...
const (
	mp3Channels      = 2
	mp3BytesPerFrame = 4
)

// MP3Decoder implements Decoder for MP3 files
type MP3Decoder struct {
	decoder    *mp3.Decoder
	file       *os.File
	sampleRate int
	numFrames  int64
	buf        []byte
	pending    []byte // Partial frame carried over between reads
}

// NewMP3Decoder creates a new MP3 decoder
func NewMP3Decoder(filename string) (*MP3Decoder, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create MP3 decoder: %w", err)
	}

	var numFrames int64
	if length := decoder.Length(); length > 0 {
		numFrames = length / mp3BytesPerFrame
	}

	return &MP3Decoder{
		decoder:    decoder,
		file:       f,
		sampleRate: decoder.SampleRate(),
		numFrames:  numFrames,
	}, nil
}

// ReadChunk reads the next chunk of interleaved stereo samples
func (d *MP3Decoder) ReadChunk(numFrames int) ([]float32, error) {
	want := numFrames * mp3BytesPerFrame
	if cap(d.buf) < want {
		d.buf = make([]byte, want)
	}
	buf := d.buf[:want]

	n := copy(buf, d.pending)
	d.pending = d.pending[:0]

	for n < want {
		read, err := d.decoder.Read(buf[n:])
		n += read
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read MP3 data: %w", err)
		}
		if read == 0 {
			break
		}
	}

	whole := n - n%mp3BytesPerFrame
	if whole < n {
		d.pending = append(d.pending, buf[whole:n]...)
	}
	if whole == 0 {
		return nil, io.EOF
	}

	samples := make([]float32, whole/2)
	for i := range samples {
		v := int16(buf[i*2]) | int16(buf[i*2+1])<<8
		samples[i] = float32(v) / 32768.0
	}

	return samples, nil
}

// SampleRate returns the sample rate
func (d *MP3Decoder) SampleRate() int {
	return d.sampleRate
}

// NumChannels returns the number of audio channels
func (d *MP3Decoder) NumChannels() int {
	return mp3Channels
}

// NumFrames returns the decoded length in frames
func (d *MP3Decoder) NumFrames() int64 {
	return d.numFrames
}

// Close closes the decoder and releases resources
func (d *MP3Decoder) Close() error {
	if d.file != nil {
		err := d.file.Close()
		d.file = nil
		return err
	}
	return nil
}
