package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/alecthomas/kong"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/linuxmatters/jiveonset/internal/artifact"
	"github.com/linuxmatters/jiveonset/internal/audio"
	"github.com/linuxmatters/jiveonset/internal/cli"
	"github.com/linuxmatters/jiveonset/internal/config"
	"github.com/linuxmatters/jiveonset/internal/dsp"
	"github.com/linuxmatters/jiveonset/internal/pipeline"
	"github.com/linuxmatters/jiveonset/internal/renderer"
	"github.com/linuxmatters/jiveonset/internal/stress"
	"github.com/linuxmatters/jiveonset/internal/ui"
	"github.com/sirupsen/logrus"
)

// version is set via ldflags at build time
// Local dev builds: "dev"
// Release builds: git tag (e.g. "v0.1.0")
var version = "dev"

// debugLogFile receives logrus output when --debug is set, so it never
// fights the TUI for the terminal
const debugLogFile = "jiveonset-debug.log"

// versionFlag prints the styled version banner and exits
type versionFlag bool

func (v versionFlag) BeforeApply(app *kong.Kong, vars kong.Vars) error {
	cli.PrintVersion(vars["version"])
	app.Exit(0)
	return nil
}

// Globals are shared by every command
type Globals struct {
	Config   string      `help:"YAML file of analysis settings" type:"existingfile" placeholder:"file"`
	CacheDir string      `help:"Directory for cached analysis artifacts (default: user cache dir)" placeholder:"dir"`
	NoCache  bool        `help:"Skip the on-disk artifact cache"`
	Debug    bool        `help:"Write a debug log to ${debug_log}"`
	Version  versionFlag `help:"Show version information"`
}

// AnalysisFlags override the configuration file. Unset flags leave it alone.
type AnalysisFlags struct {
	ThresholdWindow *int     `help:"Moving-average radius in novelty samples (default ${threshold_window})" placeholder:"n"`
	Multiplier      *float64 `help:"Threshold multiplier, ${min_multiplier} to ${max_multiplier} (default ${multiplier})" placeholder:"x"`
	NoWindow        bool     `help:"Skip the Hamming window before each FFT"`
	FrameSize       *int     `help:"FFT size, a power of two (default ${frame_size})" placeholder:"n"`
	FrameStep       *int     `help:"Hop between analysis frames (default ${frame_step})" placeholder:"n"`
	RMSWindow       *int     `name:"rms-window" help:"Samples either side of each RMS point (default ${rms_window})" placeholder:"n"`
	RMSStep         *int     `name:"rms-step" help:"Samples between RMS points (default ${rms_step})" placeholder:"n"`
	Normalize       bool     `help:"Scale picked peaks so the strongest is 1"`
	MinInterval     *float64 `help:"Merge onsets closer than this many seconds" placeholder:"s"`
	Workers         *int     `help:"Spectral flux workers" placeholder:"n"`
}

// AnalyzeCmd runs the pipeline with a progress view
type AnalyzeCmd struct {
	Input    string        `arg:"" name:"input" help:"Audio file (wav, mp3, flac)" type:"existingfile"`
	Analysis AnalysisFlags `embed:""`
	Onsets   bool          `help:"Print every onset after the summary"`
}

// PlotCmd renders a timeline image
type PlotCmd struct {
	Input    string        `arg:"" name:"input" help:"Audio file (wav, mp3, flac)" type:"existingfile"`
	Output   string        `arg:"" name:"output" help:"Output PNG file"`
	Analysis AnalysisFlags `embed:""`
	Width    int           `help:"Image width (default ${plot_width})" placeholder:"px"`
	Height   int           `help:"Image height (default ${plot_height})" placeholder:"px"`
	Title    string        `help:"Title drawn above the timeline (default: file name)"`
}

// BlockCmd dumps the spectrum of one sample block
type BlockCmd struct {
	Input    string `arg:"" name:"input" help:"Audio file (wav, mp3, flac)" type:"existingfile"`
	Index    int    `help:"Block index" default:"0"`
	Size     int    `help:"Block size in samples" default:"${frame_size}"`
	NoWindow bool   `help:"Skip the Hamming window"`
	Plain    bool   `help:"Comma-separated output instead of a table"`
}

// CLI is the command tree
type CLI struct {
	Globals

	Analyze AnalyzeCmd `cmd:"" help:"Detect onsets and stress periods in a track"`
	Plot    PlotCmd    `cmd:"" help:"Render a timeline PNG of onsets and stress periods"`
	Block   BlockCmd   `cmd:"" help:"Print the spectrum of one sample block"`
}

func main() {
	var app CLI
	ctx := kong.Parse(&app,
		kong.Name("jiveonset"),
		kong.Description(cli.Description),
		parserVars(),
		kong.UsageOnError(),
		kong.Help(cli.StyledHelpPrinter(kong.HelpOptions{Compact: true})),
	)

	if err := ctx.Run(&app.Globals); err != nil {
		cli.PrintError(err.Error())
		os.Exit(1)
	}
}

// parserVars fills the ${...} placeholders in flag tags
func parserVars() kong.Vars {
	plot := renderer.DefaultOptions()
	return kong.Vars{
		"version":          version,
		"debug_log":        debugLogFile,
		"threshold_window": strconv.Itoa(config.DefaultThresholdWindow),
		"multiplier":       strconv.FormatFloat(config.DefaultMultiplier, 'g', -1, 64),
		"min_multiplier":   strconv.FormatFloat(config.MinMultiplier, 'g', -1, 64),
		"max_multiplier":   strconv.FormatFloat(config.MaxMultiplier, 'g', -1, 64),
		"frame_size":       strconv.Itoa(config.DefaultFrameSize),
		"frame_step":       strconv.Itoa(config.DefaultFrameStep),
		"rms_window":       strconv.Itoa(config.DefaultRMSWindow),
		"rms_step":         strconv.Itoa(config.DefaultRMSStep),
		"plot_width":       strconv.Itoa(plot.Width),
		"plot_height":      strconv.Itoa(plot.Height),
	}
}

// loadConfig builds the configuration from the optional file and the flags,
// reporting every rejected value as a warning
func (g *Globals) loadConfig(flags AnalysisFlags) config.Config {
	cfg := config.Default()
	if g.Config != "" {
		loaded, warnings, err := config.Load(g.Config)
		if err != nil {
			cli.PrintWarning(fmt.Sprintf("%v, using defaults", err))
		} else {
			cfg = loaded
		}
		for _, w := range warnings {
			cli.PrintWarning(w)
		}
	}

	for _, w := range flags.apply(&cfg) {
		cli.PrintWarning(w)
	}
	return cfg
}

// apply passes each set flag through its setter and returns a warning per
// rejected value
func (f AnalysisFlags) apply(cfg *config.Config) []string {
	var warnings []string
	check := func(name string, value any, ok bool) {
		if !ok {
			warnings = append(warnings, fmt.Sprintf("ignoring invalid --%s %v", name, value))
		}
	}

	if f.ThresholdWindow != nil {
		check("threshold-window", *f.ThresholdWindow, cfg.SetThresholdWindow(*f.ThresholdWindow))
	}
	if f.Multiplier != nil {
		check("multiplier", *f.Multiplier, cfg.SetMultiplier(*f.Multiplier))
	}
	if f.NoWindow {
		cfg.ApplyWindow = false
	}
	if f.FrameSize != nil {
		check("frame-size", *f.FrameSize, cfg.SetFrameSize(*f.FrameSize))
	}
	if f.FrameStep != nil {
		check("frame-step", *f.FrameStep, cfg.SetFrameStep(*f.FrameStep))
	}
	if f.RMSWindow != nil {
		check("rms-window", *f.RMSWindow, cfg.SetRMSWindow(*f.RMSWindow))
	}
	if f.RMSStep != nil {
		check("rms-step", *f.RMSStep, cfg.SetRMSStep(*f.RMSStep))
	}
	if f.Normalize {
		cfg.Normalize = true
	}
	if f.MinInterval != nil {
		check("min-interval", *f.MinInterval, cfg.SetMinInterval(*f.MinInterval))
	}
	if f.Workers != nil {
		if *f.Workers < 1 {
			check("workers", *f.Workers, false)
		} else {
			cfg.Workers = *f.Workers
		}
	}
	return warnings
}

// newLogger returns a logger writing to the debug log, or discarding output
func (g *Globals) newLogger() (*logrus.Logger, func(), error) {
	logger := logrus.New()
	if !g.Debug {
		logger.SetOutput(io.Discard)
		return logger, func() {}, nil
	}

	f, err := os.OpenFile(debugLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open debug log: %w", err)
	}
	logger.SetOutput(f)
	logger.SetLevel(logrus.DebugLevel)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	return logger, func() { f.Close() }, nil
}

func (g *Globals) newCache() (*artifact.Cache, error) {
	if g.NoCache {
		return nil, nil
	}
	dir := g.CacheDir
	if dir == "" {
		base, err := os.UserCacheDir()
		if err != nil {
			return nil, fmt.Errorf("no cache directory available (use --cache-dir or --no-cache): %w", err)
		}
		dir = filepath.Join(base, "jiveonset")
	}
	return artifact.NewCache(dir), nil
}

// newAnalyzer wires configuration, cache and logging into an Analyzer
func (g *Globals) newAnalyzer(flags AnalysisFlags) (*pipeline.Analyzer, func(), error) {
	cfg := g.loadConfig(flags)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	logger, closeLog, err := g.newLogger()
	if err != nil {
		return nil, nil, err
	}
	cache, err := g.newCache()
	if err != nil {
		closeLog()
		return nil, nil, err
	}

	logger.WithFields(logrus.Fields{
		"version":     version,
		"fingerprint": cfg.Fingerprint(),
		"cache":       cache != nil,
	}).Debug("analyzer configured")

	return pipeline.New(cfg, cache, logger), closeLog, nil
}

func (c *AnalyzeCmd) Run(g *Globals) error {
	analyzer, closeLog, err := g.newAnalyzer(c.Analysis)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	model := ui.NewModel()
	p := tea.NewProgram(model, tea.WithAltScreen())

	var cached atomic.Bool
	analyzer.Progress = func(pr pipeline.Progress) {
		if pr.Stage == pipeline.StageCached {
			cached.Store(true)
		}
		p.Send(ui.AnalysisProgress{
			Stage:   pr.Stage.String(),
			Done:    pr.Done,
			Total:   pr.Total,
			Elapsed: pr.Elapsed,
		})
	}

	// Run analysis in a goroutine and send progress updates
	var info *artifact.Info
	var analysisErr error
	done := make(chan struct{})
	start := time.Now()

	go func() {
		defer close(done)
		info, analysisErr = analyzer.Analyze(ctx, c.Input)
		if analysisErr != nil {
			p.Send(ui.AnalysisFailed{Err: analysisErr})
			return
		}
		p.Send(summarize(c.Input, info, cached.Load(), time.Since(start)))
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return fmt.Errorf("running UI: %w", err)
	}

	// Quitting the UI early abandons the analysis
	cancel()
	<-done

	// The alt screen is gone; leave the summary in the terminal
	if summary := model.CompletionSummary(); summary != "" {
		fmt.Println(summary)
	}

	if errors.Is(analysisErr, context.Canceled) {
		return errors.New("analysis cancelled")
	}
	if analysisErr != nil {
		return fmt.Errorf("analyzing audio: %w", analysisErr)
	}

	if c.Onsets {
		cli.PrintSection(fmt.Sprintf("Onsets (%d)", len(info.Onsets)))
		for _, e := range info.Onsets {
			fmt.Printf("%s  %s\n",
				cli.ValueStyle.Render(fmt.Sprintf("%10.3fs", e.Seconds)),
				cli.KeyStyle.Render(strconv.FormatFloat(e.Strength, 'g', 6, 64)))
		}
	}
	return nil
}

// summarize converts an artifact into the UI's completion message
func summarize(source string, info *artifact.Info, cached bool, elapsed time.Duration) ui.AnalysisComplete {
	seconds := func(s float64) time.Duration {
		return time.Duration(s * float64(time.Second))
	}

	msg := ui.AnalysisComplete{
		Source:  filepath.Base(source),
		Onsets:  len(info.Onsets),
		Mean:    info.Mean,
		Periods: len(info.Periods),
		Cached:  cached,
		Elapsed: elapsed,
	}
	for _, p := range info.RMS {
		msg.Curve = append(msg.Curve, p.Value)
	}
	for _, p := range info.Periods {
		d := seconds(p.End - p.Begin)
		switch p.Type {
		case stress.Safe:
			msg.Safe += d
		case stress.Caution:
			msg.Caution += d
		case stress.Danger:
			msg.Danger += d
		}
	}
	if n := len(info.Periods); n > 0 {
		msg.Duration = seconds(info.Periods[n-1].End)
	}
	return msg
}

func (c *PlotCmd) Run(g *Globals) error {
	analyzer, closeLog, err := g.newAnalyzer(c.Analysis)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	start := time.Now()
	info, err := analyzer.Analyze(ctx, c.Input)
	if err != nil {
		return fmt.Errorf("analyzing audio: %w", err)
	}

	pcm, err := audio.Load(c.Input)
	if err != nil {
		return err
	}

	opts := c.options()

	// Roughly four waveform points per pixel column
	step := max(1, len(pcm.Samples)/max(1, 4*opts.Width))
	img, err := renderer.Render(info, pcm.Waveform(step), pcm.Duration, opts)
	if err != nil {
		return fmt.Errorf("rendering timeline: %w", err)
	}
	if err := renderer.SavePNG(img, c.Output); err != nil {
		return fmt.Errorf("saving timeline: %w", err)
	}

	cli.PrintSuccess(fmt.Sprintf("Timeline written to %s", c.Output))
	cli.PrintInfo("Onsets", strconv.Itoa(len(info.Onsets)))
	cli.PrintInfo("Periods", strconv.Itoa(len(info.Periods)))
	cli.PrintInfo("Elapsed", cli.FormatDuration(time.Since(start)))
	return nil
}

// options starts from the renderer defaults. Zero width or height keeps the
// default; a missing title falls back to the input file name.
func (c *PlotCmd) options() renderer.Options {
	opts := renderer.DefaultOptions()
	if c.Width > 0 {
		opts.Width = c.Width
	}
	if c.Height > 0 {
		opts.Height = c.Height
	}
	opts.Title = c.Title
	if opts.Title == "" {
		opts.Title = filepath.Base(c.Input)
	}
	return opts
}

func (c *BlockCmd) Run(g *Globals) error {
	if c.Size < 1 {
		return fmt.Errorf("invalid block size: %d", c.Size)
	}

	pcm, err := audio.Load(c.Input)
	if err != nil {
		return err
	}

	block := pcm.Block(c.Index, c.Size)
	if block == nil {
		return fmt.Errorf("block %d out of range (track has %d blocks of %d samples)", c.Index, pcm.BlockCount(c.Size), c.Size)
	}

	applyWindow := !c.NoWindow
	var spectrum dsp.ComplexSpectrum
	if plan, err := dsp.NewPlan(c.Size); err == nil {
		spectrum = plan.Complex(block, applyWindow)
	} else {
		spectrum = dsp.CorrelateComplex(block, applyWindow)
	}

	mags := spectrum.Magnitudes()
	phase := spectrum.Phase()
	rows := make([]cli.SpectrumRow, len(mags))
	for i := range rows {
		rows[i] = cli.SpectrumRow{Re: spectrum.Re[i], Im: spectrum.Im[i], Magnitude: mags[i], Phase: phase[i]}
	}

	if c.Plain {
		return cli.WriteSpectrumCSV(os.Stdout, rows)
	}
	fmt.Println(cli.SpectrumTable(rows))
	return nil
}
