package config

import (
	"fmt"
	"maps"
	"math"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Onset detection defaults
const (
	DefaultThresholdWindow = 20   // Novelty samples either side of i in the moving average
	DefaultMultiplier      = 1.5  // Threshold multiplier
	DefaultApplyWindow     = true // Hamming window before the FFT
	DefaultFrameSize       = 2048 // FFT size in samples (power of two)
	DefaultFrameStep       = 1024 // Hop between consecutive analysis windows
)

// Valid multiplier range (inclusive)
const (
	MinMultiplier = 1.0
	MaxMultiplier = 2.0
)

// Stress analysis defaults
const (
	DefaultRMSWindow = 1024 // Raw samples either side of each decimated point
	DefaultRMSStep   = 4410 // Decimation step over interleaved PCM
)

// Config holds every tunable analysis parameter. The zero value is not
// valid; start from Default() and change fields through the setters so that
// invalid values are rejected without disturbing the previous configuration.
type Config struct {
	ThresholdWindow int     `yaml:"threshold_window"`
	Multiplier      float64 `yaml:"multiplier"`
	ApplyWindow     bool    `yaml:"apply_window"`
	FrameSize       int     `yaml:"frame_size"`
	FrameStep       int     `yaml:"frame_step"`
	Normalize       bool    `yaml:"normalize"`
	MinInterval     float64 `yaml:"min_interval"` // Seconds; 0 disables declustering

	RMSWindow int `yaml:"rms_window"`
	RMSStep   int `yaml:"rms_step"`

	Workers int `yaml:"workers"` // Novelty workers; <= 1 runs single-threaded
}

// Default returns the stock analysis configuration.
func Default() Config {
	return Config{
		ThresholdWindow: DefaultThresholdWindow,
		Multiplier:      DefaultMultiplier,
		ApplyWindow:     DefaultApplyWindow,
		FrameSize:       DefaultFrameSize,
		FrameStep:       DefaultFrameStep,
		RMSWindow:       DefaultRMSWindow,
		RMSStep:         DefaultRMSStep,
		Workers:         1,
	}
}

// SetThresholdWindow sets the moving-average radius. Values below 1 are ignored.
func (c *Config) SetThresholdWindow(size int) bool {
	if size < 1 {
		return false
	}
	c.ThresholdWindow = size
	return true
}

// SetMultiplier sets the threshold multiplier. Values outside [1.0, 2.0] are ignored.
func (c *Config) SetMultiplier(m float64) bool {
	if math.IsNaN(m) || m < MinMultiplier || m > MaxMultiplier {
		return false
	}
	c.Multiplier = m
	return true
}

// SetFrameSize sets the FFT size. Only powers of two of at least 2 are accepted.
func (c *Config) SetFrameSize(n int) bool {
	if n < 2 || n&(n-1) != 0 {
		return false
	}
	c.FrameSize = n
	return true
}

// SetFrameStep sets the hop between analysis windows.
func (c *Config) SetFrameStep(step int) bool {
	if step < 1 {
		return false
	}
	c.FrameStep = step
	return true
}

// SetRMSWindow sets the RMS half-window in raw samples.
func (c *Config) SetRMSWindow(w int) bool {
	if w < 0 {
		return false
	}
	c.RMSWindow = w
	return true
}

// SetRMSStep sets the stress decimation step.
func (c *Config) SetRMSStep(step int) bool {
	if step < 1 {
		return false
	}
	c.RMSStep = step
	return true
}

// SetMinInterval sets the declustering interval in seconds; 0 disables it.
func (c *Config) SetMinInterval(seconds float64) bool {
	if math.IsNaN(seconds) || seconds < 0 {
		return false
	}
	c.MinInterval = seconds
	return true
}

// Validate reports the first invalid field, if any.
func (c Config) Validate() error {
	probe := c
	switch {
	case !probe.SetThresholdWindow(c.ThresholdWindow):
		return fmt.Errorf("threshold window must be >= 1, got %d", c.ThresholdWindow)
	case !probe.SetMultiplier(c.Multiplier):
		return fmt.Errorf("multiplier must be in [%.1f, %.1f], got %g", MinMultiplier, MaxMultiplier, c.Multiplier)
	case !probe.SetFrameSize(c.FrameSize):
		return fmt.Errorf("frame size must be a power of two, got %d", c.FrameSize)
	case !probe.SetFrameStep(c.FrameStep):
		return fmt.Errorf("frame step must be >= 1, got %d", c.FrameStep)
	case !probe.SetRMSWindow(c.RMSWindow):
		return fmt.Errorf("rms window must be >= 0, got %d", c.RMSWindow)
	case !probe.SetRMSStep(c.RMSStep):
		return fmt.Errorf("rms step must be >= 1, got %d", c.RMSStep)
	case !probe.SetMinInterval(c.MinInterval):
		return fmt.Errorf("min interval must be >= 0, got %g", c.MinInterval)
	}
	return nil
}

// Fingerprint identifies the parameters that change analysis output.
// Workers is excluded because it never changes results.
func (c Config) Fingerprint() string {
	return fmt.Sprintf("w%d-m%g-h%t-n%d-s%d-z%t-i%g-r%d-d%d",
		c.ThresholdWindow, c.Multiplier, c.ApplyWindow, c.FrameSize, c.FrameStep,
		c.Normalize, c.MinInterval, c.RMSWindow, c.RMSStep)
}

// IsDefault reports whether c produces the same output as Default().
func (c Config) IsDefault() bool {
	return c.Fingerprint() == Default().Fingerprint()
}

// Load reads a YAML file over the defaults. Each field present in the file
// goes through its setter, so an out-of-range value is reported and the
// default is kept.
func Load(path string) (Config, []string, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, nil, fmt.Errorf("failed to read config: %w", err)
	}

	var raw map[string]yaml.Node
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return cfg, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	var warnings []string
	reject := func(key string, node yaml.Node) {
		warnings = append(warnings, fmt.Sprintf("ignoring invalid %s: %s", key, node.Value))
	}

	// Sorted so warnings come out in the same order every run
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		node := raw[key]
		var ok bool
		switch key {
		case "threshold_window":
			var v int
			ok = node.Decode(&v) == nil && cfg.SetThresholdWindow(v)
		case "multiplier":
			var v float64
			ok = node.Decode(&v) == nil && cfg.SetMultiplier(v)
		case "apply_window":
			ok = node.Decode(&cfg.ApplyWindow) == nil
		case "frame_size":
			var v int
			ok = node.Decode(&v) == nil && cfg.SetFrameSize(v)
		case "frame_step":
			var v int
			ok = node.Decode(&v) == nil && cfg.SetFrameStep(v)
		case "normalize":
			ok = node.Decode(&cfg.Normalize) == nil
		case "min_interval":
			var v float64
			ok = node.Decode(&v) == nil && cfg.SetMinInterval(v)
		case "rms_window":
			var v int
			ok = node.Decode(&v) == nil && cfg.SetRMSWindow(v)
		case "rms_step":
			var v int
			ok = node.Decode(&v) == nil && cfg.SetRMSStep(v)
		case "workers":
			ok = node.Decode(&cfg.Workers) == nil
		default:
			warnings = append(warnings, fmt.Sprintf("unknown config key: %s", key))
			continue
		}
		if !ok {
			reject(key, node)
		}
	}

	return cfg, warnings, nil
}
