// Package artifact reads and writes the analysis info file and keeps a
// content-addressed cache of them on disk.
//
// The file is line oriented:
//
//	<seconds>, <strength>          onset events
//	PCM
//	<rms mean>
//	<seconds>, <rms>               stress envelope
//	PCMFormatted
//	<type>, <begin>, <end>         periods (0 Safe, 1 Caution, 2 Danger)
package artifact

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/linuxmatters/jiveonset/internal/onset"
	"github.com/linuxmatters/jiveonset/internal/stress"
)

// Section markers
const (
	markerPCM          = "PCM"
	markerPCMFormatted = "PCMFormatted"
)

// ErrMalformed is returned by Read for any file that does not parse
var ErrMalformed = errors.New("malformed info artifact")

// Point is one stress envelope sample
type Point struct {
	Seconds float64
	Value   float64
}

// Info is the complete result of analysing one track
type Info struct {
	Onsets  []onset.Event
	Mean    float64
	RMS     []Point
	Periods []stress.Period
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Write serializes info
func Write(w io.Writer, info *Info) error {
	bw := bufio.NewWriter(w)

	for _, e := range info.Onsets {
		fmt.Fprintf(bw, "%s, %s\n", formatFloat(e.Seconds), formatFloat(e.Strength))
	}

	fmt.Fprintln(bw, markerPCM)
	fmt.Fprintln(bw, formatFloat(info.Mean))
	for _, p := range info.RMS {
		fmt.Fprintf(bw, "%s, %s\n", formatFloat(p.Seconds), formatFloat(p.Value))
	}

	fmt.Fprintln(bw, markerPCMFormatted)
	for _, p := range info.Periods {
		fmt.Fprintf(bw, "%d, %s, %s\n", int(p.Type), formatFloat(p.Begin), formatFloat(p.End))
	}

	return bw.Flush()
}

type section int

const (
	sectionOnsets section = iota
	sectionMean
	sectionRMS
	sectionPeriods
)

// Read parses an info artifact. Any structural or numeric error yields
// ErrMalformed so callers can fall back to recomputing.
func Read(r io.Reader) (*Info, error) {
	info := &Info{}
	state := sectionOnsets
	lineNum := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		malformed := func(reason string) error {
			return fmt.Errorf("%w: line %d: %s", ErrMalformed, lineNum, reason)
		}

		switch {
		case line == markerPCM:
			if state != sectionOnsets {
				return nil, malformed("unexpected PCM marker")
			}
			state = sectionMean
			continue
		case line == markerPCMFormatted:
			if state != sectionRMS {
				return nil, malformed("unexpected PCMFormatted marker")
			}
			state = sectionPeriods
			continue
		}

		switch state {
		case sectionOnsets:
			v, err := parseFields(line, 2)
			if err != nil {
				return nil, malformed(err.Error())
			}
			info.Onsets = append(info.Onsets, onset.Event{Seconds: v[0], Strength: v[1]})

		case sectionMean:
			v, err := parseFields(line, 1)
			if err != nil {
				return nil, malformed(err.Error())
			}
			info.Mean = v[0]
			state = sectionRMS

		case sectionRMS:
			v, err := parseFields(line, 2)
			if err != nil {
				return nil, malformed(err.Error())
			}
			info.RMS = append(info.RMS, Point{Seconds: v[0], Value: v[1]})

		case sectionPeriods:
			v, err := parseFields(line, 3)
			if err != nil {
				return nil, malformed(err.Error())
			}
			t := stress.PeriodType(v[0])
			if float64(t) != v[0] || t < stress.Safe || t > stress.Danger {
				return nil, malformed(fmt.Sprintf("unknown period type %s", formatFloat(v[0])))
			}
			info.Periods = append(info.Periods, stress.Period{Type: t, Begin: v[1], End: v[2]})
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	if state != sectionPeriods {
		return nil, fmt.Errorf("%w: truncated after %d lines", ErrMalformed, lineNum)
	}

	return info, nil
}

// parseFields splits a comma-separated line into exactly n numbers
func parseFields(line string, n int) ([]float64, error) {
	parts := strings.Split(line, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d fields, got %d", n, len(parts))
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}
