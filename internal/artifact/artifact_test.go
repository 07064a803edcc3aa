package artifact

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/linuxmatters/jiveonset/internal/onset"
	"github.com/linuxmatters/jiveonset/internal/stress"
)

func sampleInfo() *Info {
	return &Info{
		Onsets: []onset.Event{
			{Seconds: 0.023219954648526078, Strength: 6.666666666666667},
			{Seconds: 1.5, Strength: 0.25},
		},
		Mean: 0.1234567890123,
		RMS: []Point{
			{Seconds: 0, Value: 0.01},
			{Seconds: 0.05, Value: 0.3},
		},
		Periods: []stress.Period{
			{Type: stress.Caution, Begin: 0, End: 1.2},
			{Type: stress.Danger, Begin: 1.2, End: 4},
			{Type: stress.Caution, Begin: 4, End: 4.5},
		},
	}
}

// TestWrite_Layout pins the on-disk text so files written by older builds
// keep loading.
func TestWrite_Layout(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, sampleInfo()); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	want := strings.Join([]string{
		"0.023219954648526078, 6.666666666666667",
		"1.5, 0.25",
		"PCM",
		"0.1234567890123",
		"0, 0.01",
		"0.05, 0.3",
		"PCMFormatted",
		"1, 0, 1.2",
		"2, 1.2, 4",
		"1, 4, 4.5",
		"",
	}, "\n")
	if buf.String() != want {
		t.Errorf("unexpected layout:\n%s\nwant:\n%s", buf.String(), want)
	}
}

func TestRead_ParsesWrittenArtifact(t *testing.T) {
	var buf bytes.Buffer
	in := sampleInfo()
	if err := Write(&buf, in); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	out, err := Read(&buf)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}

	if out.Mean != in.Mean {
		t.Errorf("Mean = %v, want %v", out.Mean, in.Mean)
	}
	if len(out.Onsets) != len(in.Onsets) || out.Onsets[0] != in.Onsets[0] {
		t.Errorf("Onsets = %+v, want %+v", out.Onsets, in.Onsets)
	}
	if len(out.RMS) != len(in.RMS) || out.RMS[1] != in.RMS[1] {
		t.Errorf("RMS = %+v, want %+v", out.RMS, in.RMS)
	}
	if len(out.Periods) != len(in.Periods) {
		t.Fatalf("Periods = %+v, want %+v", out.Periods, in.Periods)
	}
	for i := range in.Periods {
		if out.Periods[i] != in.Periods[i] {
			t.Errorf("Periods[%d] = %+v, want %+v", i, out.Periods[i], in.Periods[i])
		}
	}
}

func TestRead_EmptySections(t *testing.T) {
	info, err := Read(strings.NewReader("PCM\n0\nPCMFormatted\n"))
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(info.Onsets) != 0 || len(info.RMS) != 0 || len(info.Periods) != 0 || info.Mean != 0 {
		t.Errorf("expected empty info, got %+v", info)
	}
}

// TestRead_Malformed checks that every damaged file is reported as
// ErrMalformed rather than silently loading as partial results.
func TestRead_Malformed(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"empty file", ""},
		{"no PCM marker", "1, 2\n3, 4\n"},
		{"truncated before periods", "PCM\n0.5\n0, 0.1\n"},
		{"missing mean", "PCM\nPCMFormatted\n"},
		{"onset with three fields", "1, 2, 3\nPCM\n0\nPCMFormatted\n"},
		{"bad number", "abc, 2\nPCM\n0\nPCMFormatted\n"},
		{"rms with one field", "PCM\n0\n0.5\nPCMFormatted\n"},
		{"period type out of range", "PCM\n0\nPCMFormatted\n3, 0, 1\n"},
		{"fractional period type", "PCM\n0\nPCMFormatted\n1.5, 0, 1\n"},
		{"markers reversed", "PCMFormatted\nPCM\n0\n"},
		{"duplicate PCM", "PCM\n0\nPCM\nPCMFormatted\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.content))
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestHashFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if want := "a9993e364706816aba3e25717850c26c9cd0d89d"; got != want {
		t.Errorf("HashFile = %s, want %s", got, want)
	}

	if _, err := HashFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestCache_Path(t *testing.T) {
	c := NewCache("/tmp/cache")
	if got := c.Path("abc", ""); got != filepath.Join("/tmp/cache", "abc.txt") {
		t.Errorf("default path = %s", got)
	}
	if got := c.Path("abc", "w10"); got != filepath.Join("/tmp/cache", "abc.w10.txt") {
		t.Errorf("fingerprinted path = %s", got)
	}
}

// TestCache_MissStoreHit walks the whole cache lifecycle and confirms the
// atomic write leaves nothing but the final file behind.
func TestCache_MissStoreHit(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "cache")
	c := NewCache(dir)

	if _, err := c.Load("deadbeef", ""); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss before store, got %v", err)
	}

	if err := c.Store("deadbeef", "", sampleInfo()); err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	info, err := c.Load("deadbeef", "")
	if err != nil {
		t.Fatalf("Load after store failed: %v", err)
	}
	if len(info.Periods) != 3 {
		t.Errorf("loaded %d periods, want 3", len(info.Periods))
	}

	if _, err := c.Load("deadbeef", "w10"); !errors.Is(err, ErrMiss) {
		t.Errorf("different fingerprint should miss, got %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "deadbeef.txt" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("cache directory holds %v, want only deadbeef.txt", names)
	}
}

func TestCache_LoadMalformed(t *testing.T) {
	c := NewCache(t.TempDir())
	if err := os.WriteFile(c.Path("bad", ""), []byte("garbage\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load("bad", ""); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}
