// Package onset turns a spectral-flux novelty series into onset events using
// an adaptive moving-mean threshold.
package onset

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidParams is returned for a window below 1 or a multiplier outside [1, 2]
var ErrInvalidParams = errors.New("invalid peak-picking parameters")

// Multiplier limits
const (
	MinMultiplier = 1.0
	MaxMultiplier = 2.0
)

// Params configures PickPeaks
type Params struct {
	WindowSize int     // Half-width of the symmetric threshold window
	Multiplier float64 // Scale applied to the windowed mean
	Normalize  bool    // Divide peaks by their global maximum
}

// Result holds every intermediate series, all the same length as the novelty input
type Result struct {
	Threshold []float64
	Pruned    []float64
	Peaks     []float64
}

// Event is a detected onset
type Event struct {
	Seconds  float64
	Strength float64
}

// Validate checks p against the legal ranges
func (p Params) Validate() error {
	if p.WindowSize < 1 {
		return fmt.Errorf("%w: window size %d", ErrInvalidParams, p.WindowSize)
	}
	if !(p.Multiplier >= MinMultiplier && p.Multiplier <= MaxMultiplier) {
		return fmt.Errorf("%w: multiplier %g", ErrInvalidParams, p.Multiplier)
	}
	return nil
}

// Threshold computes the mean of novelty over [i-windowSize, i+windowSize],
// clipped to the series, times multiplier. The divisor is the clipped count.
func Threshold(novelty []float64, windowSize int, multiplier float64) []float64 {
	out := make([]float64, len(novelty))
	last := len(novelty) - 1
	for i := range novelty {
		start := max(0, i-windowSize)
		end := min(last, i+windowSize)
		out[i] = floats.Sum(novelty[start:end+1]) / float64(end-start+1) * multiplier
	}
	return out
}

// Prune keeps the amount by which each value reaches its threshold
func Prune(novelty, threshold []float64) []float64 {
	out := make([]float64, len(novelty))
	for i, n := range novelty {
		if n >= threshold[i] {
			out[i] = n - threshold[i]
		}
	}
	return out
}

// Peaks keeps pruned[i] where it is strictly greater than pruned[i+1].
// This marks the last sample before each decay, which is not always the
// local maximum. The final entry has no successor and is always 0.
func Peaks(pruned []float64) []float64 {
	out := make([]float64, len(pruned))
	for i := 0; i < len(pruned)-1; i++ {
		if pruned[i] > pruned[i+1] {
			out[i] = pruned[i]
		}
	}
	return out
}

// Normalize divides peaks in place by their maximum. All-zero input is left alone.
func Normalize(peaks []float64) {
	if len(peaks) == 0 {
		return
	}
	if m := floats.Max(peaks); m > 0 {
		floats.Scale(1/m, peaks)
	}
}

// PickPeaks runs Threshold, Prune, Peaks and optionally Normalize
func PickPeaks(novelty []float64, p Params) (Result, error) {
	if err := p.Validate(); err != nil {
		return Result{}, err
	}

	threshold := Threshold(novelty, p.WindowSize, p.Multiplier)
	pruned := Prune(novelty, threshold)
	peaks := Peaks(pruned)
	if p.Normalize {
		Normalize(peaks)
	}

	return Result{Threshold: threshold, Pruned: pruned, Peaks: peaks}, nil
}

// Events lists the non-zero peaks. Index i is at i*step/sampleRate seconds.
func Events(peaks []float64, step, sampleRate int) []Event {
	var events []Event
	for i, v := range peaks {
		if v > 0 {
			events = append(events, Event{
				Seconds:  float64(i*step) / float64(sampleRate),
				Strength: v,
			})
		}
	}
	return events
}

// Decluster keeps only the strongest event within each run of events spaced
// closer than minInterval seconds. A minInterval of 0 or less returns events
// unchanged. Events must be sorted by time.
func Decluster(events []Event, minInterval float64) []Event {
	if minInterval <= 0 || len(events) < 2 {
		return events
	}

	out := make([]Event, 0, len(events))
	best := events[0]
	prev := events[0].Seconds
	for _, e := range events[1:] {
		if e.Seconds-prev < minInterval {
			if e.Strength > best.Strength {
				best = e
			}
		} else {
			out = append(out, best)
			best = e
		}
		prev = e.Seconds
	}
	return append(out, best)
}
