package tracking

import (
	"errors"
	"fmt"
	"time"
)

// Config holds all tunable parameters for detection-based tracking
type Config struct {
	// Track lifecycle (counted in processed frames)
	MaxTrackLifetime int // Evict once not detected for more than this many frames
	HistoryLength    int // Positions kept per track
	WarmupFrames     int // Frames observed before a track is first shown
	UnshownPatience  int // Frames a never-shown track may go undetected
	ShowGrace        int // Frames a shown track stays visible without detection

	// Smoothing weights, most recent first
	PositionWeights []float64
	SizeWeights     []float64

	// Search regions
	SearchWindowScale     float64 // Local search window as a multiple of the object size
	LocalMinSizeScale     float64 // Local detector min size as a fraction of the object size
	MotionDamping         float64 // Fraction of last displacement used in prediction
	FullFrameMinSizeRatio float64 // Full-frame detector min size as a fraction of frame height

	// Scheduling
	MinDetectionPeriod time.Duration // Minimum time between full-frame submissions
	StopTimeout        time.Duration // How long Close waits for the background worker
	FrameInterval      time.Duration // Frame pacing used by Run
}

// DefaultConfig returns the parameters of the reference detection-based tracker
func DefaultConfig() Config {
	return Config{
		// Lifecycle
		MaxTrackLifetime: 5,
		HistoryLength:    4,
		WarmupFrames:     6,
		UnshownPatience:  3,
		ShowGrace:        3,

		// Smoothing - centre from the latest position, size over three
		PositionWeights: []float64{1},
		SizeWeights:     []float64{0.5, 0.3, 0.2},

		// Search
		SearchWindowScale:     2.0,
		LocalMinSizeScale:     0.85,
		MotionDamping:         0.8,
		FullFrameMinSizeRatio: 0.2,

		// Scheduling
		MinDetectionPeriod: 0,
		StopTimeout:        2 * time.Second,
		FrameInterval:      33 * time.Millisecond, // ~30 fps
	}
}

// StableConfig returns a configuration that shows tracks later and smooths more
func StableConfig() Config {
	cfg := DefaultConfig()
	cfg.WarmupFrames = 10
	cfg.HistoryLength = 6
	cfg.MaxTrackLifetime = 8
	cfg.PositionWeights = []float64{0.5, 0.3, 0.2}
	cfg.SizeWeights = []float64{0.4, 0.25, 0.15, 0.1, 0.1}
	cfg.MinDetectionPeriod = 200 * time.Millisecond
	return cfg
}

// ResponsiveConfig returns a configuration that shows tracks quickly
func ResponsiveConfig() Config {
	cfg := DefaultConfig()
	cfg.WarmupFrames = 2
	cfg.UnshownPatience = 2
	cfg.ShowGrace = 1
	cfg.MaxTrackLifetime = 3
	cfg.SizeWeights = []float64{0.7, 0.3}
	cfg.MotionDamping = 1.0
	return cfg
}

// Preset returns a named configuration ("default", "stable", "responsive").
func Preset(name string) (Config, error) {
	switch name {
	case "", "default":
		return DefaultConfig(), nil
	case "stable":
		return StableConfig(), nil
	case "responsive":
		return ResponsiveConfig(), nil
	default:
		return Config{}, fmt.Errorf("unknown preset: %s", name)
	}
}

// Validate checks that the configuration can drive a tracker.
func (c Config) Validate() error {
	var errs []error
	if c.MaxTrackLifetime < 0 {
		errs = append(errs, errors.New("max track lifetime must be >= 0"))
	}
	if c.HistoryLength < 2 {
		errs = append(errs, errors.New("history length must be >= 2 for motion prediction"))
	}
	if c.WarmupFrames < 0 || c.UnshownPatience < 0 || c.ShowGrace < 0 {
		errs = append(errs, errors.New("frame thresholds must be >= 0"))
	}
	if err := validWeights("position", c.PositionWeights); err != nil {
		errs = append(errs, err)
	}
	if err := validWeights("size", c.SizeWeights); err != nil {
		errs = append(errs, err)
	}
	if c.SearchWindowScale < 1 {
		errs = append(errs, fmt.Errorf("search window scale must be >= 1, got %v", c.SearchWindowScale))
	}
	if c.LocalMinSizeScale <= 0 || c.LocalMinSizeScale > 1 {
		errs = append(errs, fmt.Errorf("local min size scale must be in (0, 1], got %v", c.LocalMinSizeScale))
	}
	if c.MotionDamping < 0 || c.MotionDamping > 1 {
		errs = append(errs, fmt.Errorf("motion damping must be in [0, 1], got %v", c.MotionDamping))
	}
	if c.FullFrameMinSizeRatio < 0 || c.FullFrameMinSizeRatio > 1 {
		errs = append(errs, fmt.Errorf("full frame min size ratio must be in [0, 1], got %v", c.FullFrameMinSizeRatio))
	}
	if c.StopTimeout <= 0 {
		errs = append(errs, errors.New("stop timeout must be positive"))
	}
	if c.MinDetectionPeriod < 0 || c.FrameInterval < 0 {
		errs = append(errs, errors.New("durations must be >= 0"))
	}
	return errors.Join(errs...)
}

func validWeights(name string, w []float64) error {
	sum := 0.0
	for _, v := range w {
		if v < 0 {
			return fmt.Errorf("%s weights must be >= 0", name)
		}
		sum += v
	}
	if len(w) > 0 && sum == 0 {
		return fmt.Errorf("%s weights must not all be zero", name)
	}
	return nil
}

// clone returns a copy that shares no slices with c.
func (c Config) clone() Config {
	c.PositionWeights = append([]float64(nil), c.PositionWeights...)
	c.SizeWeights = append([]float64(nil), c.SizeWeights...)
	return c
}
