package renderer

import (
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/linuxmatters/jiveonset/internal/artifact"
	"github.com/linuxmatters/jiveonset/internal/audio"
	"github.com/linuxmatters/jiveonset/internal/onset"
	"github.com/linuxmatters/jiveonset/internal/stress"
)

func sampleInfo() *artifact.Info {
	return &artifact.Info{
		Onsets: []onset.Event{{Seconds: 5, Strength: 1}},
		Periods: []stress.Period{
			{Type: stress.Danger, Begin: 0, End: 10},
			{Type: stress.Safe, Begin: 10, End: 20},
		},
	}
}

// TestRender_Layout checks the period bands and onset ticks land where the
// time axis says they should.
func TestRender_Layout(t *testing.T) {
	opts := DefaultOptions()
	img, err := Render(sampleInfo(), nil, 20, opts)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if b := img.Bounds(); b.Dx() != opts.Width || b.Dy() != opts.Height {
		t.Fatalf("image is %dx%d, want %dx%d", b.Dx(), b.Dy(), opts.Width, opts.Height)
	}

	// Same geometry as Render used
	face, err := loadFace(fontSize)
	if err != nil {
		t.Fatal(err)
	}
	defer face.Close()
	geo := newTimeline(opts.Width, opts.Height, face, 20)

	midStress := geo.stressLane.Min.Y + geo.stressLane.Dy()/2
	if got := img.RGBAAt(geo.x(2.5), midStress); got != periodColors[stress.Danger] {
		t.Errorf("pixel at 2.5s = %v, want danger band", got)
	}
	if got := img.RGBAAt(geo.x(15), midStress); got != periodColors[stress.Safe] {
		t.Errorf("pixel at 15s = %v, want safe band", got)
	}
	if got := img.RGBAAt(geo.x(5), geo.waveLane.Min.Y+1); got != onsetColor {
		t.Errorf("pixel at onset = %v, want onset tick", got)
	}
	if got := img.RGBAAt(geo.x(7.5), geo.waveLane.Min.Y+1); got != backgroundColor {
		t.Errorf("pixel away from onset = %v, want background", got)
	}
}

// TestRender_TitleInBand checks the title baseline sits inside the title band
// so the text is neither clipped off the top nor drawn over the lanes.
func TestRender_TitleInBand(t *testing.T) {
	opts := DefaultOptions()
	opts.Title = "episode"
	img, err := Render(sampleInfo(), nil, 20, opts)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	inked := 0
	for y := margin; y < margin+titleHeight; y++ {
		for x := margin; x < opts.Width/2; x++ {
			if img.RGBAAt(x, y) != backgroundColor {
				inked++
			}
		}
	}
	if inked == 0 {
		t.Error("no title text drawn in the title band")
	}

	for x := 0; x < opts.Width; x++ {
		if got := img.RGBAAt(x, margin+titleHeight+1); got != backgroundColor && got != onsetColor {
			t.Fatalf("title spills into the waveform lane at x=%d: %v", x, got)
		}
	}
}

func TestRender_Waveform(t *testing.T) {
	wave := []audio.WavePoint{{Seconds: 12, Value: 1}, {Seconds: 12.001, Value: -1}}
	img, err := Render(sampleInfo(), wave, 20, DefaultOptions())
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	face, _ := loadFace(fontSize)
	defer face.Close()
	geo := newTimeline(1280, 720, face, 20)
	mid := geo.waveLane.Min.Y + geo.waveLane.Dy()/2
	if got := img.RGBAAt(geo.x(12), mid); got != waveColor {
		t.Errorf("waveform centre = %v, want wave colour", got)
	}
}

func TestRender_Errors(t *testing.T) {
	if _, err := Render(&artifact.Info{}, nil, 0, DefaultOptions()); !errors.Is(err, ErrEmptyTimeline) {
		t.Errorf("expected ErrEmptyTimeline, got %v", err)
	}
	if _, err := Render(sampleInfo(), nil, 20, Options{Width: 10, Height: 10}); err == nil {
		t.Error("expected error for a tiny canvas")
	}

	// Duration falls back to the last period
	if _, err := Render(sampleInfo(), nil, 0, DefaultOptions()); err != nil {
		t.Errorf("Render with period-derived duration failed: %v", err)
	}
}

func TestSavePNG(t *testing.T) {
	opts := Options{Width: 320, Height: 200, Title: "episode"}
	img, err := Render(sampleInfo(), nil, 20, opts)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}

	path := filepath.Join(t.TempDir(), "timeline.png")
	if err := SavePNG(img, path); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	if err != nil {
		t.Fatalf("output is not a PNG: %v", err)
	}
	if cfg.Width != 320 || cfg.Height != 200 {
		t.Errorf("PNG is %dx%d, want 320x200", cfg.Width, cfg.Height)
	}
}

func TestAxisStep(t *testing.T) {
	testCases := []struct {
		duration float64
		width    int
		want     float64
	}{
		{10, 1280, 1},
		{60, 1280, 5},
		{3600, 1280, 300},
	}
	for _, tc := range testCases {
		if got := axisStep(tc.duration, tc.width); got != tc.want {
			t.Errorf("axisStep(%v, %d) = %v, want %v", tc.duration, tc.width, got, tc.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	testCases := map[float64]string{0: "0:00", 65: "1:05", 3725: "1:02:05"}
	for in, want := range testCases {
		if got := formatClock(in); got != want {
			t.Errorf("formatClock(%v) = %q, want %q", in, got, want)
		}
	}
}
