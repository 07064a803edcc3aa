// Package renderer draws analysis results as a timeline image.
package renderer

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"strconv"

	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"github.com/linuxmatters/jiveonset/internal/artifact"
	"github.com/linuxmatters/jiveonset/internal/audio"
	"github.com/linuxmatters/jiveonset/internal/stress"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// ErrEmptyTimeline is returned when there is nothing to place on the time axis
var ErrEmptyTimeline = errors.New("timeline has zero duration")

// Layout, in pixels
const (
	margin      = 12
	titleHeight = 28
	axisHeight  = 22
	laneGap     = 8
	tickHeight  = 10
	fontSize    = 13.0
	titleDrop   = 6 // Baseline offset below the title band centre
)

// Palette
var (
	backgroundColor = color.RGBA{R: 18, G: 14, B: 12, A: 255}
	waveColor       = color.RGBA{R: 255, G: 140, B: 0, A: 255}   // Deep orange
	onsetColor      = color.RGBA{R: 255, G: 215, B: 0, A: 255}   // Bright yellow
	curveColor      = color.RGBA{R: 255, G: 255, B: 255, A: 255} // RMS envelope
	meanColor       = color.RGBA{R: 136, G: 136, B: 136, A: 255}
	textColor       = color.RGBA{R: 248, G: 179, B: 29, A: 255} // #F8B31D (brand yellow)

	periodColors = map[stress.PeriodType]color.RGBA{
		stress.Safe:    {R: 30, G: 70, B: 30, A: 255},
		stress.Caution: {R: 110, G: 75, B: 0, A: 255},
		stress.Danger:  {R: 120, G: 10, B: 25, A: 255},
	}
)

// Options controls the size and labelling of a timeline
type Options struct {
	Width  int
	Height int
	Title  string
}

// DefaultOptions returns a 1280x720 timeline
func DefaultOptions() Options {
	return Options{Width: 1280, Height: 720}
}

// Timeline lays out one image: title, waveform lane with onset ticks, stress
// lane over period bands, time axis.
type Timeline struct {
	img      *image.RGBA
	face     font.Face
	duration float64

	plot       image.Rectangle // Horizontal span shared by both lanes
	waveLane   image.Rectangle
	stressLane image.Rectangle
}

// loadFace parses the embedded Go Regular font
func loadFace(size float64) (font.Face, error) {
	f, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font: %w", err)
	}
	return truetype.NewFace(f, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	}), nil
}

// Render draws info and the waveform over a track of the given duration.
// A zero duration falls back to the end of the last period.
func Render(info *artifact.Info, wave []audio.WavePoint, duration float64, opts Options) (*image.RGBA, error) {
	if duration <= 0 && len(info.Periods) > 0 {
		duration = info.Periods[len(info.Periods)-1].End
	}
	if duration <= 0 {
		return nil, ErrEmptyTimeline
	}
	if opts.Width < 4*margin || opts.Height < titleHeight+axisHeight+4*margin {
		return nil, fmt.Errorf("timeline size %dx%d too small", opts.Width, opts.Height)
	}

	face, err := loadFace(fontSize)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	tl := newTimeline(opts.Width, opts.Height, face, duration)
	tl.drawTitle(opts.Title, info)
	tl.drawPeriods(info.Periods)
	tl.drawWave(wave)
	tl.drawOnsets(info)
	tl.drawStress(info)
	tl.drawAxis()

	return tl.img, nil
}

func newTimeline(width, height int, face font.Face, duration float64) *Timeline {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(backgroundColor), image.Point{}, draw.Src)

	top := margin + titleHeight
	bottom := height - margin - axisHeight
	laneHeight := (bottom - top - laneGap) / 2

	plot := image.Rect(margin, top, width-margin, bottom)
	return &Timeline{
		img:        img,
		face:       face,
		duration:   duration,
		plot:       plot,
		waveLane:   image.Rect(plot.Min.X, top, plot.Max.X, top+laneHeight),
		stressLane: image.Rect(plot.Min.X, top+laneHeight+laneGap, plot.Max.X, bottom),
	}
}

// x maps seconds onto the plot, clamped to its edges
func (tl *Timeline) x(seconds float64) int {
	w := tl.plot.Dx() - 1
	px := int(math.Round(seconds / tl.duration * float64(w)))
	return tl.plot.Min.X + min(max(px, 0), w)
}

func (tl *Timeline) fill(r image.Rectangle, c color.RGBA) {
	draw.Draw(tl.img, r.Intersect(tl.img.Bounds()), image.NewUniform(c), image.Point{}, draw.Src)
}

func (tl *Timeline) vline(x, y0, y1 int, c color.RGBA) {
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	tl.fill(image.Rect(x, y0, x+1, y1+1), c)
}

func (tl *Timeline) text(s string, x, baseline int) {
	d := &font.Drawer{
		Dst:  tl.img,
		Src:  image.NewUniform(textColor),
		Face: tl.face,
	}
	d.Dot = freetype.Pt(x, baseline)
	d.DrawString(s)
}

func (tl *Timeline) drawTitle(title string, info *artifact.Info) {
	if title == "" {
		title = "Timeline"
	}
	summary := fmt.Sprintf("%s  |  %d onsets  |  mean RMS %s  |  %ss",
		title, len(info.Onsets), strconv.FormatFloat(info.Mean, 'f', 4, 64), strconv.FormatFloat(tl.duration, 'f', 1, 64))
	tl.text(summary, margin, margin+titleHeight/2+titleDrop)
}

// drawPeriods paints the stress lane background, one band per period
func (tl *Timeline) drawPeriods(periods []stress.Period) {
	for _, p := range periods {
		c, ok := periodColors[p.Type]
		if !ok {
			continue
		}
		x0, x1 := tl.x(p.Begin), tl.x(p.End)
		tl.fill(image.Rect(x0, tl.stressLane.Min.Y, x1+1, tl.stressLane.Max.Y), c)
	}
}

// drawWave draws the min/max envelope of the waveform per pixel column
func (tl *Timeline) drawWave(wave []audio.WavePoint) {
	if len(wave) == 0 {
		return
	}
	w := tl.waveLane.Dx()
	lo := make([]float64, w)
	hi := make([]float64, w)
	seen := make([]bool, w)

	for _, p := range wave {
		col := tl.x(p.Seconds) - tl.waveLane.Min.X
		v := p.Value
		if !seen[col] {
			lo[col], hi[col], seen[col] = v, v, true
			continue
		}
		lo[col] = math.Min(lo[col], v)
		hi[col] = math.Max(hi[col], v)
	}

	mid := tl.waveLane.Min.Y + tl.waveLane.Dy()/2
	half := float64(tl.waveLane.Dy()/2 - 1)
	for col := 0; col < w; col++ {
		if !seen[col] {
			continue
		}
		y0 := mid - int(math.Round(clampUnit(hi[col])*half))
		y1 := mid - int(math.Round(clampUnit(lo[col])*half))
		tl.vline(tl.waveLane.Min.X+col, y0, y1, waveColor)
	}
}

// drawOnsets marks each onset along the top of the waveform lane
func (tl *Timeline) drawOnsets(info *artifact.Info) {
	for _, e := range info.Onsets {
		x := tl.x(e.Seconds)
		tl.vline(x, tl.waveLane.Min.Y, tl.waveLane.Min.Y+tickHeight, onsetColor)
	}
}

// drawStress draws the RMS envelope and its mean over the period bands,
// scaled so the loudest window touches the top of the lane.
func (tl *Timeline) drawStress(info *artifact.Info) {
	peak := info.Mean
	for _, p := range info.RMS {
		peak = math.Max(peak, p.Value)
	}
	if peak <= 0 {
		return
	}

	lane := tl.stressLane
	y := func(v float64) int {
		return lane.Max.Y - 1 - int(math.Round(v/peak*float64(lane.Dy()-1)))
	}

	meanY := y(info.Mean)
	for x := lane.Min.X; x < lane.Max.X; x += 4 {
		tl.fill(image.Rect(x, meanY, min(x+2, lane.Max.X), meanY+1), meanColor)
	}

	prevX, prevY := -1, 0
	for _, p := range info.RMS {
		px, py := tl.x(p.Seconds), y(p.Value)
		if prevX >= 0 && px != prevX {
			tl.vline(px, prevY, py, curveColor)
		} else {
			tl.vline(px, py, py, curveColor)
		}
		prevX, prevY = px, py
	}
}

// drawAxis labels the time axis at a step that keeps labels from colliding
func (tl *Timeline) drawAxis() {
	baseline := tl.plot.Max.Y + axisHeight - 6
	step := axisStep(tl.duration, tl.plot.Dx())

	for t := 0.0; t <= tl.duration+1e-9; t += step {
		x := tl.x(t)
		tl.vline(x, tl.plot.Max.Y, tl.plot.Max.Y+4, meanColor)
		label := formatClock(t)
		width := font.MeasureString(tl.face, label).Ceil()
		lx := min(max(x-width/2, 0), tl.img.Bounds().Dx()-width)
		tl.text(label, lx, baseline)
	}
}

// axisStep picks the smallest round step giving labels at least 80px apart
func axisStep(duration float64, width int) float64 {
	steps := []float64{1, 2, 5, 10, 15, 30, 60, 120, 300, 600, 900, 1800, 3600}
	for _, s := range steps {
		if duration/s*80 <= float64(width) {
			return s
		}
	}
	return steps[len(steps)-1]
}

// formatClock renders seconds as m:ss, or h:mm:ss past the hour
func formatClock(seconds float64) string {
	total := int(math.Round(seconds))
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func clampUnit(v float64) float64 {
	return math.Max(-1, math.Min(1, v))
}

// SavePNG writes img to path
func SavePNG(img image.Image, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
