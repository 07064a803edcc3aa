package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	if got := FormatDuration(250 * time.Millisecond); got != "250ms" {
		t.Errorf("FormatDuration(250ms) = %q", got)
	}
	if got := FormatDuration(2500 * time.Millisecond); got != "2.5s" {
		t.Errorf("FormatDuration(2.5s) = %q", got)
	}
}

// TestWriteSpectrumCSV pins the plain output used when stdout is piped, so
// scripts parsing it keep working.
func TestWriteSpectrumCSV(t *testing.T) {
	var buf bytes.Buffer
	rows := []SpectrumRow{
		{Re: 4, Im: 0, Magnitude: 4, Phase: 0},
		{Re: 0, Im: -2, Magnitude: 2, Phase: -1.5707963267948966},
	}
	if err := WriteSpectrumCSV(&buf, rows); err != nil {
		t.Fatalf("WriteSpectrumCSV failed: %v", err)
	}
	want := "0, 4, 0, 4, 0\n1, 0, -2, 2, -1.5707963267948966\n"
	if buf.String() != want {
		t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestSpectrumTable(t *testing.T) {
	out := SpectrumTable([]SpectrumRow{{Re: 1, Magnitude: 1}, {Im: 1, Magnitude: 1, Phase: 1.5}})
	for _, want := range []string{"Bin", "Magnitude", "Phase", "1.5"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
}
