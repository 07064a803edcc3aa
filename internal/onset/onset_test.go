package onset

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

// TestPickPeaks_SingleTransient is the canonical case: one spike in silence
// must produce exactly one event at the spike.
func TestPickPeaks_SingleTransient(t *testing.T) {
	novelty := []float64{0, 0, 0, 10, 0, 0, 0}

	res, err := PickPeaks(novelty, Params{WindowSize: 1, Multiplier: 1.0})
	if err != nil {
		t.Fatalf("PickPeaks failed: %v", err)
	}

	if math.Abs(res.Threshold[3]-10.0/3) > 1e-12 {
		t.Errorf("threshold[3] = %f, want %f", res.Threshold[3], 10.0/3)
	}
	if math.Abs(res.Pruned[3]-20.0/3) > 1e-12 {
		t.Errorf("pruned[3] = %f, want %f", res.Pruned[3], 20.0/3)
	}

	events := Events(res.Peaks, 1024, 44100)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1: %+v", len(events), events)
	}
	wantSec := 3 * 1024.0 / 44100
	if math.Abs(events[0].Seconds-wantSec) > 1e-12 {
		t.Errorf("event at %f s, want %f s", events[0].Seconds, wantSec)
	}
}

// TestThreshold_ClippedDivisor catches dividing boundary windows by the full
// window width instead of the number of samples actually in range.
func TestThreshold_ClippedDivisor(t *testing.T) {
	got := Threshold([]float64{3, 0, 0}, 1, 1.0)
	want := []float64{1.5, 1, 0}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Errorf("threshold[%d] = %f, want %f", i, got[i], want[i])
		}
	}

	scaled := Threshold([]float64{3, 0, 0}, 1, 2.0)
	if math.Abs(scaled[0]-3) > 1e-12 {
		t.Errorf("multiplier not applied: threshold[0] = %f, want 3", scaled[0])
	}
}

func TestPrune(t *testing.T) {
	got := Prune([]float64{5, 2, 4}, []float64{3, 3, 4})
	want := []float64{2, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pruned[%d] = %f, want %f", i, got[i], want[i])
		}
	}
}

// TestPeaks_PreDecaySample pins the as-implemented selection: on a two-step
// rise the chosen sample is the one before the fall, and the last entry is
// always zero because it has no successor.
func TestPeaks_PreDecaySample(t *testing.T) {
	testCases := []struct {
		name   string
		pruned []float64
		want   []float64
	}{
		{"rise then fall", []float64{1, 2, 0}, []float64{0, 2, 0}},
		{"falling run", []float64{3, 2, 1}, []float64{3, 2, 0}},
		{"plateau", []float64{2, 2, 0}, []float64{0, 2, 0}},
		{"last sample high", []float64{0, 0, 9}, []float64{0, 0, 0}},
		{"single", []float64{4}, []float64{0}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := Peaks(tc.pruned)
			if len(got) != len(tc.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tc.want))
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("peaks = %v, want %v", got, tc.want)
					break
				}
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	peaks := []float64{0, 2, 0, 8}
	Normalize(peaks)
	want := []float64{0, 0.25, 0, 1}
	for i := range want {
		if math.Abs(peaks[i]-want[i]) > 1e-12 {
			t.Errorf("normalized[%d] = %f, want %f", i, peaks[i], want[i])
		}
	}

	zeros := []float64{0, 0}
	Normalize(zeros)
	if zeros[0] != 0 || zeros[1] != 0 {
		t.Errorf("all-zero input changed: %v", zeros)
	}
	Normalize(nil)
}

func TestPickPeaks_InvalidParams(t *testing.T) {
	testCases := []Params{
		{WindowSize: 0, Multiplier: 1.5},
		{WindowSize: -1, Multiplier: 1.5},
		{WindowSize: 20, Multiplier: 0.99},
		{WindowSize: 20, Multiplier: 2.01},
		{WindowSize: 20, Multiplier: math.NaN()},
	}
	for _, p := range testCases {
		if _, err := PickPeaks([]float64{1, 2, 3}, p); !errors.Is(err, ErrInvalidParams) {
			t.Errorf("PickPeaks(%+v): expected ErrInvalidParams, got %v", p, err)
		}
	}
}

func TestPickPeaks_EmptyInput(t *testing.T) {
	res, err := PickPeaks(nil, Params{WindowSize: 20, Multiplier: 1.5, Normalize: true})
	if err != nil {
		t.Fatalf("PickPeaks(nil) failed: %v", err)
	}
	if len(res.Threshold) != 0 || len(res.Pruned) != 0 || len(res.Peaks) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
	if events := Events(res.Peaks, 1024, 44100); len(events) != 0 {
		t.Errorf("expected no events, got %v", events)
	}
}

// isolatedTransients builds a flat floor with spikes of random height far
// enough apart that no threshold window ever holds two of them.
func isolatedTransients(seed int64, windowSize int) []float64 {
	r := rand.New(rand.NewSource(seed))
	novelty := make([]float64, 400)
	for i := range novelty {
		novelty[i] = 0.25
	}
	for i := windowSize + 1; i < len(novelty)-windowSize-1; i += 2*windowSize + 3 {
		novelty[i] += 2 + r.Float64()*10
	}
	return novelty
}

// TestPickPeaks_MultiplierMonotonicOnIsolatedTransients checks that raising
// the multiplier never adds events when transients do not share a window.
func TestPickPeaks_MultiplierMonotonicOnIsolatedTransients(t *testing.T) {
	for seed := int64(1); seed <= 5; seed++ {
		for _, w := range []int{1, 3, 10} {
			novelty := isolatedTransients(seed, w)
			prev := math.MaxInt
			for m := 1.0; m <= 2.0+1e-9; m += 0.1 {
				res, err := PickPeaks(novelty, Params{WindowSize: w, Multiplier: math.Min(m, 2.0)})
				if err != nil {
					t.Fatalf("PickPeaks failed: %v", err)
				}
				count := len(Events(res.Peaks, 1, 1))
				if count > prev {
					t.Errorf("seed %d window %d: multiplier %.1f gave %d events, more than %d at the previous step",
						seed, w, m, count, prev)
				}
				prev = count
			}
		}
	}
}

// TestPickPeaks_MultiplierCanAddPeaksOnAdjacentSamples documents why the
// monotonic property is limited to isolated transients. A higher threshold
// can zero the successor of a sample and turn that sample into a peak.
func TestPickPeaks_MultiplierCanAddPeaksOnAdjacentSamples(t *testing.T) {
	novelty := []float64{0, 8, 10, 0, 0, 10, 10, 3}

	low, _ := PickPeaks(novelty, Params{WindowSize: 3, Multiplier: 1.0})
	high, _ := PickPeaks(novelty, Params{WindowSize: 3, Multiplier: 2.0})

	lowCount := len(Events(low.Peaks, 1, 1))
	highCount := len(Events(high.Peaks, 1, 1))
	t.Logf("multiplier 1.0: %d events, multiplier 2.0: %d events", lowCount, highCount)

	if lowCount != 2 || highCount != 3 {
		t.Errorf("got %d and %d events, want 2 and 3", lowCount, highCount)
	}
}

func TestEvents_SkipsZerosAndMapsTime(t *testing.T) {
	events := Events([]float64{0, 0.5, 0, 0, 0.25}, 512, 1024)
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].Seconds != 0.5 || events[0].Strength != 0.5 {
		t.Errorf("events[0] = %+v, want {0.5 0.5}", events[0])
	}
	if events[1].Seconds != 2 || events[1].Strength != 0.25 {
		t.Errorf("events[1] = %+v, want {2 0.25}", events[1])
	}
}

func TestDecluster(t *testing.T) {
	events := []Event{
		{Seconds: 1.00, Strength: 0.2},
		{Seconds: 1.03, Strength: 0.9},
		{Seconds: 1.06, Strength: 0.1},
		{Seconds: 2.00, Strength: 0.4},
		{Seconds: 3.00, Strength: 0.3},
		{Seconds: 3.04, Strength: 0.3},
	}

	got := Decluster(events, 0.05)
	want := []Event{
		{Seconds: 1.03, Strength: 0.9},
		{Seconds: 2.00, Strength: 0.4},
		{Seconds: 3.00, Strength: 0.3},
	}
	if len(got) != len(want) {
		t.Fatalf("Decluster = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Decluster[%d] = %+v, want %+v", i, got[i], want[i])
		}
	}

	if unchanged := Decluster(events, 0); len(unchanged) != len(events) {
		t.Errorf("minInterval 0 dropped events: %d of %d left", len(unchanged), len(events))
	}
}
