package tracking

import (
	"fmt"
	"time"
)

// TuningParams holds the parameters that can be adjusted while the tracker
// runs. Nil fields leave the current value unchanged, so an explicit zero
// (no warm-up, no motion damping, unthrottled detection) can be set.
type TuningParams struct {
	// Lifecycle
	MaxTrackLifetime *int `json:"max_track_lifetime,omitempty"`
	WarmupFrames     *int `json:"warmup_frames,omitempty"`
	UnshownPatience  *int `json:"unshown_patience,omitempty"`
	ShowGrace        *int `json:"show_grace,omitempty"`

	// Smoothing. An empty non-nil slice disables smoothing.
	PositionWeights []float64 `json:"position_weights,omitempty"`
	SizeWeights     []float64 `json:"size_weights,omitempty"`

	// Search
	SearchWindowScale     *float64 `json:"search_window_scale,omitempty"`
	LocalMinSizeScale     *float64 `json:"local_min_size_scale,omitempty"`
	MotionDamping         *float64 `json:"motion_damping,omitempty"`
	FullFrameMinSizeRatio *float64 `json:"full_frame_min_size_ratio,omitempty"`

	// Rates
	DetectionHz *float64 `json:"detection_hz,omitempty"` // Full-frame submissions per second (0 = unthrottled)
	FrameHz     *float64 `json:"frame_hz,omitempty"`     // Frame loop rate used by Run (0 = unpaced)
}

// Ptr returns a pointer to v, for filling TuningParams.
func Ptr[T any](v T) *T {
	return &v
}

// TuningFromConfig extracts the tunable subset of cfg. Every field is set.
func TuningFromConfig(cfg Config) TuningParams {
	p := TuningParams{
		MaxTrackLifetime:      Ptr(cfg.MaxTrackLifetime),
		WarmupFrames:          Ptr(cfg.WarmupFrames),
		UnshownPatience:       Ptr(cfg.UnshownPatience),
		ShowGrace:             Ptr(cfg.ShowGrace),
		PositionWeights:       append([]float64{}, cfg.PositionWeights...),
		SizeWeights:           append([]float64{}, cfg.SizeWeights...),
		SearchWindowScale:     Ptr(cfg.SearchWindowScale),
		LocalMinSizeScale:     Ptr(cfg.LocalMinSizeScale),
		MotionDamping:         Ptr(cfg.MotionDamping),
		FullFrameMinSizeRatio: Ptr(cfg.FullFrameMinSizeRatio),
		DetectionHz:           Ptr(0.0),
		FrameHz:               Ptr(0.0),
	}
	if cfg.MinDetectionPeriod > 0 {
		*p.DetectionHz = 1.0 / cfg.MinDetectionPeriod.Seconds()
	}
	if cfg.FrameInterval > 0 {
		*p.FrameHz = 1.0 / cfg.FrameInterval.Seconds()
	}
	return p
}

// Apply returns cfg with the set parameters applied and validated.
func (p TuningParams) Apply(cfg Config) (Config, error) {
	cfg = cfg.clone()

	if p.MaxTrackLifetime != nil {
		cfg.MaxTrackLifetime = *p.MaxTrackLifetime
	}
	if p.WarmupFrames != nil {
		cfg.WarmupFrames = *p.WarmupFrames
	}
	if p.UnshownPatience != nil {
		cfg.UnshownPatience = *p.UnshownPatience
	}
	if p.ShowGrace != nil {
		cfg.ShowGrace = *p.ShowGrace
	}
	if p.PositionWeights != nil {
		cfg.PositionWeights = append([]float64(nil), p.PositionWeights...)
	}
	if p.SizeWeights != nil {
		cfg.SizeWeights = append([]float64(nil), p.SizeWeights...)
	}

	if p.SearchWindowScale != nil {
		cfg.SearchWindowScale = clamp(*p.SearchWindowScale, 1.0, 5.0)
	}
	if p.LocalMinSizeScale != nil {
		cfg.LocalMinSizeScale = clamp(*p.LocalMinSizeScale, 0.1, 1.0)
	}
	if p.MotionDamping != nil {
		cfg.MotionDamping = clamp(*p.MotionDamping, 0.0, 1.0)
	}
	if p.FullFrameMinSizeRatio != nil {
		cfg.FullFrameMinSizeRatio = clamp(*p.FullFrameMinSizeRatio, 0.0, 1.0)
	}

	// Valid range: 0.5-30 Hz
	if p.DetectionHz != nil {
		d, err := rateInterval("detection", *p.DetectionHz, 0.5, 30)
		if err != nil {
			return Config{}, err
		}
		cfg.MinDetectionPeriod = d
	}
	// Valid range: 1-60 Hz
	if p.FrameHz != nil {
		d, err := rateInterval("frame", *p.FrameHz, 1, 60)
		if err != nil {
			return Config{}, err
		}
		cfg.FrameInterval = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid tuning: %w", err)
	}
	return cfg, nil
}

// rateInterval converts a rate to a period. Zero disables pacing.
func rateInterval(name string, hz, lo, hi float64) (time.Duration, error) {
	switch {
	case hz < 0:
		return 0, fmt.Errorf("invalid tuning: %s rate must be >= 0, got %v", name, hz)
	case hz == 0:
		return 0, nil
	}
	return hzToInterval(clamp(hz, lo, hi)), nil
}

func hzToInterval(hz float64) time.Duration {
	return time.Duration(float64(time.Second) / hz)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
