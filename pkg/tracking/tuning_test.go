package tracking

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestTuningParams_ApplyOnlySet(t *testing.T) {
	base := DefaultConfig()

	cfg, err := TuningParams{ShowGrace: Ptr(5)}.Apply(base)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	if cfg.ShowGrace != 5 {
		t.Errorf("Expected ShowGrace=5, got %d", cfg.ShowGrace)
	}
	if cfg.WarmupFrames != base.WarmupFrames || cfg.MotionDamping != base.MotionDamping {
		t.Error("Unset parameters should leave the config unchanged")
	}
}

func TestTuningParams_ApplyExplicitZero(t *testing.T) {
	base := StableConfig()

	cfg, err := TuningParams{
		WarmupFrames:    Ptr(0),
		ShowGrace:       Ptr(0),
		MotionDamping:   Ptr(0.0),
		DetectionHz:     Ptr(0.0),
		FrameHz:         Ptr(0.0),
		PositionWeights: []float64{},
	}.Apply(base)
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	if cfg.WarmupFrames != 0 || cfg.ShowGrace != 0 {
		t.Errorf("Expected zero thresholds, got warmup=%d grace=%d", cfg.WarmupFrames, cfg.ShowGrace)
	}
	if cfg.MotionDamping != 0 {
		t.Errorf("Expected MotionDamping=0, got %v", cfg.MotionDamping)
	}
	if cfg.MinDetectionPeriod != 0 || cfg.FrameInterval != 0 {
		t.Errorf("Expected unpaced rates, got %v / %v", cfg.MinDetectionPeriod, cfg.FrameInterval)
	}
	if len(cfg.PositionWeights) != 0 {
		t.Errorf("Expected position smoothing disabled, got %v", cfg.PositionWeights)
	}
	if cfg.MaxTrackLifetime != base.MaxTrackLifetime {
		t.Error("Unset MaxTrackLifetime changed")
	}
}

func TestTuningParams_JSONZeroIsSet(t *testing.T) {
	var p TuningParams
	if err := json.Unmarshal([]byte(`{"warmup_frames":0,"motion_damping":0}`), &p); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if p.WarmupFrames == nil || p.MotionDamping == nil {
		t.Fatalf("Explicit zeros decoded as unset: %+v", p)
	}
	if p.ShowGrace != nil {
		t.Error("Absent field decoded as set")
	}

	cfg, err := p.Apply(DefaultConfig())
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	if cfg.WarmupFrames != 0 || cfg.MotionDamping != 0 {
		t.Errorf("Unexpected config: %+v", cfg)
	}
}

func TestTuningFromConfig_RoundTrip(t *testing.T) {
	cfg := StableConfig()
	got, err := TuningFromConfig(cfg).Apply(DefaultConfig())
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}
	got.HistoryLength = cfg.HistoryLength
	got.StopTimeout = cfg.StopTimeout
	nearDuration := cmp.Comparer(func(a, b time.Duration) bool {
		return (a - b).Abs() <= time.Microsecond
	})
	if diff := cmp.Diff(cfg, got, nearDuration); diff != "" {
		t.Errorf("Round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestTuningParams_Clamps(t *testing.T) {
	tests := []struct {
		name   string
		params TuningParams
		check  func(Config) bool
	}{
		{
			name:   "window scale capped",
			params: TuningParams{SearchWindowScale: Ptr(10.0)},
			check:  func(c Config) bool { return c.SearchWindowScale == 5 },
		},
		{
			name:   "damping capped",
			params: TuningParams{MotionDamping: Ptr(3.0)},
			check:  func(c Config) bool { return c.MotionDamping == 1 },
		},
		{
			name:   "detection rate",
			params: TuningParams{DetectionHz: Ptr(4.0)},
			check:  func(c Config) bool { return c.MinDetectionPeriod == 250*time.Millisecond },
		},
		{
			name:   "detection rate floor",
			params: TuningParams{DetectionHz: Ptr(0.1)},
			check:  func(c Config) bool { return c.MinDetectionPeriod == 2*time.Second },
		},
		{
			name:   "frame rate ceiling",
			params: TuningParams{FrameHz: Ptr(240.0)},
			check:  func(c Config) bool { return c.FrameInterval == time.Second/60 },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := tt.params.Apply(DefaultConfig())
			if err != nil {
				t.Fatalf("Apply error: %v", err)
			}
			if !tt.check(cfg) {
				t.Errorf("Unexpected config: %+v", cfg)
			}
		})
	}
}

func TestTuningParams_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name   string
		params TuningParams
	}{
		{"negative weight", TuningParams{PositionWeights: []float64{-1}}},
		{"negative warmup", TuningParams{WarmupFrames: Ptr(-1)}},
		{"negative detection rate", TuningParams{DetectionHz: Ptr(-2.0)}},
		{"negative frame rate", TuningParams{FrameHz: Ptr(-1.0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.params.Apply(DefaultConfig()); err == nil {
				t.Error("Expected error")
			}
		})
	}
}

func TestTuningParams_ApplyDoesNotAlias(t *testing.T) {
	p := TuningParams{SizeWeights: []float64{0.6, 0.4}}
	cfg, err := p.Apply(DefaultConfig())
	if err != nil {
		t.Fatalf("Apply error: %v", err)
	}

	p.SizeWeights[0] = 9
	if cfg.SizeWeights[0] != 0.6 {
		t.Error("Applied config shares the tuning slice")
	}
}

func TestTuningFromConfig(t *testing.T) {
	cfg := StableConfig()
	p := TuningFromConfig(cfg)

	if *p.WarmupFrames != cfg.WarmupFrames || *p.MaxTrackLifetime != cfg.MaxTrackLifetime {
		t.Errorf("Lifecycle mismatch: %+v", p)
	}
	if *p.DetectionHz != 5 {
		t.Errorf("Expected DetectionHz=5 for 200ms period, got %v", *p.DetectionHz)
	}
	if DefaultConfig().MinDetectionPeriod == 0 && *TuningFromConfig(DefaultConfig()).DetectionHz != 0 {
		t.Error("Unthrottled detection should report 0 Hz")
	}
}
