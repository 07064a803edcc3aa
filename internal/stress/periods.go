package stress

import (
	"errors"
	"fmt"
)

// Period classification constants
const (
	DangerMergeGap = 3.0  // Seconds; closer Danger periods are merged
	SafeBuffer     = 15.0 // Seconds; quiet stretch needed before a gap counts as Safe
)

// ErrCoverage is returned by Validate for a list that does not tile the track
var ErrCoverage = errors.New("periods do not cover the track")

// PeriodType classifies a stretch of the track
type PeriodType int

// Period types, numbered as in the info artifact
const (
	Safe PeriodType = iota
	Caution
	Danger
)

func (p PeriodType) String() string {
	switch p {
	case Safe:
		return "Safe"
	case Caution:
		return "Caution"
	case Danger:
		return "Danger"
	default:
		return fmt.Sprintf("PeriodType(%d)", int(p))
	}
}

// Period is a typed interval in seconds
type Period struct {
	Type  PeriodType
	Begin float64
	End   float64
}

// DetectDanger finds stretches where the envelope is at or above its mean.
// A period opens when a value rises from below the mean to at or above it
// and closes on the reverse crossing. The first sample is never a crossing.
// A period still open at the end runs to the track duration.
func DetectDanger(env Envelope, timing Timing) []Period {
	var periods []Period
	open := false
	var begin float64

	for i := 1; i < len(env.Values); i++ {
		prevAbove := env.Values[i-1] >= env.Mean
		above := env.Values[i] >= env.Mean
		switch {
		case !prevAbove && above && !open:
			open = true
			begin = timing.Seconds(i, env.Step)
		case prevAbove && !above && open:
			open = false
			periods = append(periods, Period{Type: Danger, Begin: begin, End: timing.Seconds(i, env.Step)})
		}
	}
	if open {
		periods = append(periods, Period{Type: Danger, Begin: begin, End: timing.Duration})
	}

	return periods
}

// MergeDanger joins neighbouring periods separated by less than gap seconds.
// Input must be sorted. One pass reaches the same result as repeating the
// merge until nothing changes, so the output is a fixed point.
func MergeDanger(periods []Period, gap float64) []Period {
	if len(periods) == 0 {
		return nil
	}

	merged := []Period{periods[0]}
	for _, p := range periods[1:] {
		last := &merged[len(merged)-1]
		if p.Begin-last.End < gap {
			last.End = max(last.End, p.End)
			continue
		}
		merged = append(merged, p)
	}
	return merged
}

// FillGaps surrounds sorted, non-overlapping Danger periods with Safe and
// Caution periods so the result covers [0, total].
//
// A gap leading into a Danger period becomes Safe for its first SafeBuffer
// seconds and Caution for the rest; a shorter gap is all Caution. The gap
// after the last Danger period is the mirror image: Caution for SafeBuffer
// seconds, then Safe. A track with no Danger at all is one Safe period.
func FillGaps(danger []Period, total float64) []Period {
	var out []Period
	add := func(t PeriodType, begin, end float64) {
		if end > begin {
			out = append(out, Period{Type: t, Begin: begin, End: end})
		}
	}

	if len(danger) == 0 {
		add(Safe, 0, total)
		return out
	}

	cursor := 0.0
	for _, d := range danger {
		if d.Begin-cursor >= SafeBuffer {
			split := min(cursor+SafeBuffer, d.Begin)
			add(Safe, cursor, split)
			add(Caution, split, d.Begin)
		} else {
			add(Caution, cursor, d.Begin)
		}
		add(Danger, d.Begin, d.End)
		cursor = d.End
	}

	if total-cursor >= SafeBuffer {
		split := min(cursor+SafeBuffer, total)
		add(Caution, cursor, split)
		add(Safe, split, total)
	} else {
		add(Caution, cursor, total)
	}

	return out
}

// Classify runs DetectDanger, MergeDanger and FillGaps
func Classify(env Envelope, timing Timing) []Period {
	danger := DetectDanger(env, timing)
	danger = MergeDanger(danger, DangerMergeGap)
	return FillGaps(danger, timing.Duration)
}

// Validate checks that periods are sorted, contiguous, non-empty and cover
// exactly [0, total]
func Validate(periods []Period, total float64) error {
	if len(periods) == 0 {
		if total > 0 {
			return fmt.Errorf("%w: no periods for %gs", ErrCoverage, total)
		}
		return nil
	}

	if periods[0].Begin != 0 {
		return fmt.Errorf("%w: first period begins at %g", ErrCoverage, periods[0].Begin)
	}
	for i, p := range periods {
		if p.End <= p.Begin {
			return fmt.Errorf("%w: period %d is empty or reversed [%g, %g]", ErrCoverage, i, p.Begin, p.End)
		}
		if i > 0 && p.Begin != periods[i-1].End {
			return fmt.Errorf("%w: gap or overlap between %g and %g", ErrCoverage, periods[i-1].End, p.Begin)
		}
	}
	if last := periods[len(periods)-1].End; last != total {
		return fmt.Errorf("%w: last period ends at %g, track ends at %g", ErrCoverage, last, total)
	}
	return nil
}
