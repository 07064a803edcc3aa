package dsp

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// ErrInvalidStep is returned when the hop between frames is below one sample
var ErrInvalidStep = errors.New("frame step must be at least 1")

// progressInterval is how many novelty values a worker computes between
// progress reports
const progressInterval = 64

// NoveltyConfig controls framing of the novelty series
type NoveltyConfig struct {
	FrameSize   int  // Power of two
	FrameStep   int  // Hop between successive frames, in samples
	ApplyWindow bool // Hamming-window each frame before the FFT
	Workers     int  // Values above 1 split the frame range across goroutines
}

// ProgressFunc receives the number of novelty values computed so far.
// With several workers it is called from multiple goroutines.
type ProgressFunc func(done, total int)

// SpectralFlux sums the positive magnitude increases from frame to next.
// Both spectra must have the same length.
func SpectralFlux(frame, next Spectrum) float64 {
	if len(frame) != len(next) {
		panic(fmt.Sprintf("dsp: spectral flux of mismatched spectra (%d vs %d bins)", len(frame), len(next)))
	}
	var flux float64
	for i := range frame {
		if d := next[i] - frame[i]; d > 0 {
			flux += d
		}
	}
	return flux
}

// NoveltyLength is the number of novelty values for n samples at the given
// step: one per k with (k+1)*step < n.
func NoveltyLength(n, step int) int {
	if n < 1 || step < 1 {
		return 0
	}
	return (n - 1) / step
}

// Novelty computes the spectral-flux novelty series of a mono signal.
// Value k compares the frame starting at k*step with the frame at (k+1)*step;
// frames running past the end are zero-padded.
func Novelty(ctx context.Context, mono []float32, cfg NoveltyConfig, progress ProgressFunc) ([]float64, error) {
	if cfg.FrameStep < 1 {
		return nil, ErrInvalidStep
	}

	total := NoveltyLength(len(mono), cfg.FrameStep)
	novelty := make([]float64, total)
	if total == 0 {
		return novelty, nil
	}

	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = total
	}

	// Plans are built up front so FFT table preparation never races
	plans := make([]*Plan, workers)
	for i := range plans {
		plan, err := NewPlan(cfg.FrameSize)
		if err != nil {
			return nil, err
		}
		plans[i] = plan
	}

	var done atomic.Int64
	report := func(n int) {
		if progress == nil {
			return
		}
		progress(int(done.Add(int64(n))), total)
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (total + workers - 1) / workers
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := min(lo+chunk, total)
		if lo >= hi {
			break
		}
		plan := plans[w]
		g.Go(func() error {
			return noveltyRange(gctx, plan, mono, cfg, novelty, lo, hi, report)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return novelty, nil
}

// noveltyRange fills out[lo:hi], computing frames lo through hi
func noveltyRange(ctx context.Context, plan *Plan, mono []float32, cfg NoveltyConfig, out []float64, lo, hi int, report func(int)) error {
	frame := make([]float64, cfg.FrameSize)
	var prev, cur Spectrum

	load := func(k int) {
		start := k * cfg.FrameStep
		for i := range frame {
			if j := start + i; j < len(mono) {
				frame[i] = float64(mono[j])
			} else {
				frame[i] = 0
			}
		}
	}

	load(lo)
	prev = plan.Magnitudes(frame, cfg.ApplyWindow, prev)

	pending := 0
	for k := lo; k < hi; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		load(k + 1)
		cur = plan.Magnitudes(frame, cfg.ApplyWindow, cur)
		out[k] = SpectralFlux(prev, cur)
		prev, cur = cur, prev

		pending++
		if pending == progressInterval {
			report(pending)
			pending = 0
		}
	}
	if pending > 0 {
		report(pending)
	}
	return nil
}
