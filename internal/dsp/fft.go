// Package dsp holds the short-time Fourier analysis used for onset
// detection: Hamming windowing, magnitude spectra and spectral flux.
package dsp

import (
	"errors"
	"fmt"
	"math"

	"github.com/argusdusty/gofft"
	"gonum.org/v1/gonum/dsp/fourier"
)

// ErrNotPowerOfTwo is returned by NewPlan for sizes the radix-2 path cannot handle
var ErrNotPowerOfTwo = errors.New("frame size is not a power of two")

// zeroReal stands in for a real part of exactly zero in complex output
const zeroReal = 1e-20

// Spectrum holds magnitudes for bins 0..N/2 inclusive
type Spectrum []float64

// ComplexSpectrum holds the raw bins 0..N/2 of a transform
type ComplexSpectrum struct {
	Re []float64
	Im []float64
}

// Magnitudes returns sqrt(re²+im²) per bin
func (c ComplexSpectrum) Magnitudes() Spectrum {
	out := make(Spectrum, len(c.Re))
	for i := range c.Re {
		out[i] = math.Hypot(c.Re[i], c.Im[i])
	}
	return out
}

// Phase returns atan(im/re) per bin, corrected into the proper quadrant
func (c ComplexSpectrum) Phase() []float64 {
	out := make([]float64, len(c.Re))
	for i := range c.Re {
		re, im := c.Re[i], c.Im[i]
		p := math.Atan(im / re)
		if re < 0 {
			if im >= 0 {
				p += math.Pi
			} else {
				p -= math.Pi
			}
		}
		out[i] = p
	}
	return out
}

// Hamming returns a copy of block multiplied by 0.54 - 0.46*cos(2πi/(N-1))
func Hamming(block []float64) []float64 {
	out := make([]float64, len(block))
	if len(block) <= 1 {
		copy(out, block)
		return out
	}
	for i, w := range hammingTable(len(block)) {
		out[i] = block[i] * w
	}
	return out
}

func hammingTable(n int) []float64 {
	table := make([]float64, n)
	if n <= 1 {
		for i := range table {
			table[i] = 1
		}
		return table
	}
	for i := range table {
		table[i] = 0.54 - 0.46*math.Cos(2*math.Pi*float64(i)/float64(n-1))
	}
	return table
}

// Plan is a reusable radix-2 transform of a fixed size. A Plan is not safe
// for concurrent use; give each goroutine its own.
type Plan struct {
	n      int
	window []float64
	buf    []complex128
}

// NewPlan prepares a transform of size n
func NewPlan(n int) (*Plan, error) {
	if n < 2 || !gofft.IsPow2(n) {
		return nil, fmt.Errorf("%w: %d", ErrNotPowerOfTwo, n)
	}
	if err := gofft.Prepare(n); err != nil {
		return nil, fmt.Errorf("failed to prepare FFT of size %d: %w", n, err)
	}
	return &Plan{
		n:      n,
		window: hammingTable(n),
		buf:    make([]complex128, n),
	}, nil
}

// Size returns the transform length
func (p *Plan) Size() int {
	return p.n
}

// transform loads block into the scratch buffer and runs the FFT in place.
// Short blocks are zero-padded; long blocks are cut to the plan size.
func (p *Plan) transform(block []float64, applyWindow bool) {
	for i := range p.buf {
		var v float64
		if i < len(block) {
			v = block[i]
			if applyWindow {
				v *= p.window[i]
			}
		}
		p.buf[i] = complex(v, 0)
	}
	// Length is checked in NewPlan, so FFT cannot fail here
	_ = gofft.FFT(p.buf)
}

// Magnitudes computes the magnitude spectrum of block into dst, reusing its
// storage when it has room for N/2+1 bins.
func (p *Plan) Magnitudes(block []float64, applyWindow bool, dst Spectrum) Spectrum {
	p.transform(block, applyWindow)

	bins := p.n/2 + 1
	if cap(dst) < bins {
		dst = make(Spectrum, bins)
	}
	dst = dst[:bins]
	for i := range dst {
		c := p.buf[i]
		dst[i] = math.Sqrt(real(c)*real(c) + imag(c)*imag(c))
	}
	return dst
}

// Complex returns the raw bins of block
func (p *Plan) Complex(block []float64, applyWindow bool) ComplexSpectrum {
	p.transform(block, applyWindow)

	bins := p.n/2 + 1
	out := ComplexSpectrum{Re: make([]float64, bins), Im: make([]float64, bins)}
	for i := 0; i < bins; i++ {
		out.Re[i] = real(p.buf[i])
		out.Im[i] = imag(p.buf[i])
	}
	fixZeroReal(out.Re)
	return out
}

// Magnitudes computes the magnitude spectrum of a block of any length.
// Power-of-two blocks go through a Plan, others through AnyLength.
// Blocks of one sample or fewer are returned unchanged.
func Magnitudes(block []float64, applyWindow bool) Spectrum {
	if len(block) <= 1 {
		out := make(Spectrum, len(block))
		copy(out, block)
		return out
	}
	plan, err := NewPlan(len(block))
	if err != nil {
		return AnyLength(block, applyWindow)
	}
	return plan.Magnitudes(block, applyWindow, nil)
}

// AnyLength uses gonum's mixed-radix real FFT, so N need not be a power of two
func AnyLength(block []float64, applyWindow bool) Spectrum {
	if len(block) <= 1 {
		out := make(Spectrum, len(block))
		copy(out, block)
		return out
	}

	seq := block
	if applyWindow {
		seq = Hamming(block)
	}
	coeffs := fourier.NewFFT(len(seq)).Coefficients(nil, seq)

	out := make(Spectrum, len(block)/2+1)
	for i := range out {
		out[i] = math.Sqrt(real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i]))
	}
	return out
}

// CorrelateComplex is the direct O(N²) correlation DFT: each bin is the
// input correlated against a cosine and a sine at that frequency.
func CorrelateComplex(block []float64, applyWindow bool) ComplexSpectrum {
	n := len(block)
	if n <= 1 {
		out := ComplexSpectrum{Re: make([]float64, n), Im: make([]float64, n)}
		copy(out.Re, block)
		fixZeroReal(out.Re)
		return out
	}

	seq := block
	if applyWindow {
		seq = Hamming(block)
	}

	bins := n/2 + 1
	out := ComplexSpectrum{Re: make([]float64, bins), Im: make([]float64, bins)}
	for k := 0; k < bins; k++ {
		var re, im float64
		for i, x := range seq {
			angle := 2 * math.Pi * float64(k) * float64(i) / float64(n)
			re += x * math.Cos(angle)
			im -= x * math.Sin(angle)
		}
		out.Re[k] = re
		out.Im[k] = im
	}
	fixZeroReal(out.Re)
	return out
}

// CorrelateDFT returns the magnitude spectrum from CorrelateComplex
func CorrelateDFT(block []float64, applyWindow bool) Spectrum {
	if len(block) <= 1 {
		out := make(Spectrum, len(block))
		copy(out, block)
		return out
	}
	return CorrelateComplex(block, applyWindow).Magnitudes()
}

func fixZeroReal(re []float64) {
	for i, v := range re {
		if v == 0 {
			re[i] = zeroReal
		}
	}
}
