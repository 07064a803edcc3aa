// Package stress measures loudness over time with a decimated RMS envelope
// and classifies the track into Safe, Caution and Danger periods.
package stress

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrInvalidParams is returned for a negative window or a step below 1
var ErrInvalidParams = errors.New("invalid stress parameters")

// Envelope is a decimated RMS curve over interleaved PCM
type Envelope struct {
	Values []float64 // Values[i] is centred on raw sample i*Step
	Mean   float64   // RMS over the whole, non-decimated buffer
	Window int
	Step   int
}

// Timing maps envelope indexes onto the track timeline
type Timing struct {
	SampleRate int
	Channels   int
	Duration   float64 // Seconds
}

// Seconds returns the time of envelope index i
func (t Timing) Seconds(i, step int) float64 {
	return float64(i*step) / float64(t.SampleRate) / float64(t.Channels)
}

// ComputeStress decimates pcm by step and takes the RMS over
// [c-window, c+window] around each kept sample c, clipped to the buffer.
func ComputeStress(pcm []float32, window, step int) (Envelope, error) {
	if window < 0 || step < 1 {
		return Envelope{}, fmt.Errorf("%w: window %d, step %d", ErrInvalidParams, window, step)
	}

	env := Envelope{Window: window, Step: step}
	n := len(pcm)
	if n == 0 {
		return env, nil
	}

	squares := make([]float64, n)
	for i, s := range pcm {
		squares[i] = float64(s) * float64(s)
	}

	// prefix[k] is the sum of squares of pcm[:k]
	prefix := make([]float64, n+1)
	floats.CumSum(prefix[1:], squares)

	env.Mean = math.Sqrt(floats.Sum(squares) / float64(n))
	env.Values = make([]float64, 0, (n+step-1)/step)
	for c := 0; c < n; c += step {
		lo := max(0, c-window)
		hi := min(n-1, c+window)
		sum := prefix[hi+1] - prefix[lo]
		if sum < 0 {
			// Rounding in the running sum can leave a tiny negative residue
			sum = 0
		}
		env.Values = append(env.Values, math.Sqrt(sum/float64(hi-lo+1)))
	}

	return env, nil
}
