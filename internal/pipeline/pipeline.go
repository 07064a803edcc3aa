// Package pipeline runs the onset and stress analyses over a track and
// caches the resulting info artifact.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/linuxmatters/jiveonset/internal/artifact"
	"github.com/linuxmatters/jiveonset/internal/audio"
	"github.com/linuxmatters/jiveonset/internal/config"
	"github.com/linuxmatters/jiveonset/internal/dsp"
	"github.com/linuxmatters/jiveonset/internal/onset"
	"github.com/linuxmatters/jiveonset/internal/stress"
	"github.com/sirupsen/logrus"
)

// Stage identifies what the analyzer is doing when it reports progress
type Stage int

const (
	StageHash Stage = iota
	StageDecode
	StageNovelty
	StagePeaks
	StageStress
	StageCached // Result came from the memo or the disk cache
	StageDone
)

func (s Stage) String() string {
	switch s {
	case StageHash:
		return "Hashing"
	case StageDecode:
		return "Decoding"
	case StageNovelty:
		return "Spectral flux"
	case StagePeaks:
		return "Peak picking"
	case StageStress:
		return "Stress"
	case StageCached:
		return "Cached"
	case StageDone:
		return "Done"
	default:
		return fmt.Sprintf("Stage(%d)", int(s))
	}
}

// Progress is one progress report. Done and Total are only meaningful for
// StageNovelty; other stages report 0, 0.
type Progress struct {
	Stage   Stage
	Done    int
	Total   int
	Elapsed time.Duration
}

// ProgressFunc receives progress reports. It may be called from several
// goroutines when Config.Workers > 1.
type ProgressFunc func(Progress)

type memoKey struct {
	hash        string
	fingerprint string
}

// Analyzer runs analyses with a fixed configuration. It is safe for
// concurrent use.
type Analyzer struct {
	Config   config.Config
	Cache    *artifact.Cache // nil disables the on-disk cache
	Logger   logrus.FieldLogger
	Progress ProgressFunc

	mu   sync.Mutex
	memo map[memoKey]*artifact.Info
}

// New creates an Analyzer. A nil logger discards all log output.
func New(cfg config.Config, cache *artifact.Cache, logger logrus.FieldLogger) *Analyzer {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Analyzer{
		Config: cfg,
		Cache:  cache,
		Logger: logger,
		memo:   make(map[memoKey]*artifact.Info),
	}
}

func (a *Analyzer) report(start time.Time, stage Stage, done, total int) {
	if a.Progress != nil {
		a.Progress(Progress{Stage: stage, Done: done, Total: total, Elapsed: time.Since(start)})
	}
}

// fingerprint returns the cache fingerprint, empty for the default parameters
func (a *Analyzer) fingerprint() string {
	if a.Config.IsDefault() {
		return ""
	}
	return a.Config.Fingerprint()
}

// Analyze returns the info artifact for the file at path, reusing a memoized
// or cached result for the same content and parameters when one exists.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*artifact.Info, error) {
	if err := a.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	start := time.Now()
	a.report(start, StageHash, 0, 0)

	hash, err := artifact.HashFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read source: %w", err)
	}

	key := memoKey{hash: hash, fingerprint: a.fingerprint()}
	log := a.Logger.WithFields(logrus.Fields{
		"source":      path,
		"sha1":        hash,
		"fingerprint": a.Config.Fingerprint(),
	})

	a.mu.Lock()
	info, ok := a.memo[key]
	a.mu.Unlock()
	if ok {
		log.Debug("memo hit")
		a.report(start, StageCached, 0, 0)
		return info, nil
	}

	if a.Cache != nil {
		info, err := a.Cache.Load(key.hash, key.fingerprint)
		switch {
		case err == nil:
			log.WithField("path", a.Cache.Path(key.hash, key.fingerprint)).Info("cache hit")
			a.remember(key, info)
			a.report(start, StageCached, 0, 0)
			return info, nil
		case errors.Is(err, artifact.ErrMiss):
			log.Debug("cache miss")
		case errors.Is(err, artifact.ErrMalformed):
			log.WithError(err).Warn("discarding malformed cached artifact")
		default:
			log.WithError(err).Warn("cache unreadable, recomputing")
		}
	}

	a.report(start, StageDecode, 0, 0)
	pcm, err := audio.Load(path)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{
		"sample_rate": pcm.SampleRate,
		"channels":    pcm.Channels,
		"frames":      pcm.Frames,
		"duration":    pcm.Duration,
	}).Debug("decoded source")

	info, err = a.analyze(ctx, pcm, start)
	if err != nil {
		return nil, err
	}

	if a.Cache != nil {
		if err := a.Cache.Store(key.hash, key.fingerprint, info); err != nil {
			log.WithError(err).Warn("failed to cache artifact")
		} else {
			log.WithField("path", a.Cache.Path(key.hash, key.fingerprint)).Info("artifact cached")
		}
	}

	a.remember(key, info)
	log.WithFields(logrus.Fields{
		"onsets":  len(info.Onsets),
		"periods": len(info.Periods),
		"elapsed": time.Since(start).Round(time.Millisecond),
	}).Info("analysis complete")

	return info, nil
}

func (a *Analyzer) remember(key memoKey, info *artifact.Info) {
	a.mu.Lock()
	a.memo[key] = info
	a.mu.Unlock()
}

// AnalyzePCM runs both analysis branches over decoded audio without touching
// the cache.
func (a *Analyzer) AnalyzePCM(ctx context.Context, pcm *audio.PCM) (*artifact.Info, error) {
	if err := a.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return a.analyze(ctx, pcm, time.Now())
}

func (a *Analyzer) analyze(ctx context.Context, pcm *audio.PCM, start time.Time) (*artifact.Info, error) {
	cfg := a.Config

	// Onset branch
	novelty, err := dsp.Novelty(ctx, pcm.Mono(), dsp.NoveltyConfig{
		FrameSize:   cfg.FrameSize,
		FrameStep:   cfg.FrameStep,
		ApplyWindow: cfg.ApplyWindow,
		Workers:     cfg.Workers,
	}, func(done, total int) {
		a.report(start, StageNovelty, done, total)
	})
	if err != nil {
		return nil, fmt.Errorf("spectral flux: %w", err)
	}

	a.report(start, StagePeaks, 0, 0)
	picked, err := onset.PickPeaks(novelty, onset.Params{
		WindowSize: cfg.ThresholdWindow,
		Multiplier: cfg.Multiplier,
		Normalize:  cfg.Normalize,
	})
	if err != nil {
		return nil, fmt.Errorf("peak picking: %w", err)
	}
	events := onset.Events(picked.Peaks, cfg.FrameStep, pcm.SampleRate)
	events = onset.Decluster(events, cfg.MinInterval)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Stress branch
	a.report(start, StageStress, 0, 0)
	env, err := stress.ComputeStress(pcm.Samples, cfg.RMSWindow, cfg.RMSStep)
	if err != nil {
		return nil, fmt.Errorf("stress envelope: %w", err)
	}
	timing := stress.Timing{SampleRate: pcm.SampleRate, Channels: pcm.Channels, Duration: pcm.Duration}
	periods := stress.Classify(env, timing)
	if err := stress.Validate(periods, pcm.Duration); err != nil {
		return nil, fmt.Errorf("period classification: %w", err)
	}

	rms := make([]artifact.Point, len(env.Values))
	for i, v := range env.Values {
		rms[i] = artifact.Point{Seconds: timing.Seconds(i, env.Step), Value: v}
	}

	a.report(start, StageDone, 0, 0)

	return &artifact.Info{
		Onsets:  events,
		Mean:    env.Mean,
		RMS:     rms,
		Periods: periods,
	}, nil
}
