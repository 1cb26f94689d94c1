package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/teslashibe/go-facetrack/pkg/tracking"
)

// maxTuningFileSize bounds tuning files read by LoadTuningFile.
const maxTuningFileSize = 1 << 20

// TuningFile is the on-disk tracker tuning. Every field is optional;
// unset fields keep the value of the base configuration.
type TuningFile struct {
	// Preset selects the base configuration: default, stable or responsive.
	Preset *string `json:"preset"`

	MaxTrackLifetime *int `json:"max_track_lifetime"`
	HistoryLength    *int `json:"history_length"`
	WarmupFrames     *int `json:"warmup_frames"`
	UnshownPatience  *int `json:"unshown_patience"`
	ShowGrace        *int `json:"show_grace"`

	PositionWeights []float64 `json:"position_weights"`
	SizeWeights     []float64 `json:"size_weights"`

	SearchWindowScale     *float64 `json:"search_window_scale"`
	LocalMinSizeScale     *float64 `json:"local_min_size_scale"`
	MotionDamping         *float64 `json:"motion_damping"`
	FullFrameMinSizeRatio *float64 `json:"full_frame_min_size_ratio"`

	// Durations as Go duration strings, e.g. "200ms"
	MinDetectionPeriod *string `json:"min_detection_period"`
	StopTimeout        *string `json:"stop_timeout"`
	FrameInterval      *string `json:"frame_interval"`
}

// LoadTuningFile reads a JSON tuning file. Unknown fields are rejected.
func LoadTuningFile(path string) (*TuningFile, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".json" {
		return nil, fmt.Errorf("tuning file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat tuning file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("tuning file %s is a directory", path)
	}
	if info.Size() > maxTuningFileSize {
		return nil, fmt.Errorf("tuning file too large (%d bytes, max %d)", info.Size(), maxTuningFileSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tuning file: %w", err)
	}
	defer f.Close()

	var tf TuningFile
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tf); err != nil {
		return nil, fmt.Errorf("parse tuning file %s: %w", filepath.Base(path), err)
	}
	return &tf, nil
}

// Apply overlays the file on base and validates the result. A preset in
// the file replaces base before the other fields are applied.
func (f *TuningFile) Apply(base tracking.Config) (tracking.Config, error) {
	cfg := base
	if f.Preset != nil {
		p, err := tracking.Preset(*f.Preset)
		if err != nil {
			return tracking.Config{}, err
		}
		cfg = p
	}

	setInt(&cfg.MaxTrackLifetime, f.MaxTrackLifetime)
	setInt(&cfg.HistoryLength, f.HistoryLength)
	setInt(&cfg.WarmupFrames, f.WarmupFrames)
	setInt(&cfg.UnshownPatience, f.UnshownPatience)
	setInt(&cfg.ShowGrace, f.ShowGrace)

	if f.PositionWeights != nil {
		cfg.PositionWeights = append([]float64(nil), f.PositionWeights...)
	}
	if f.SizeWeights != nil {
		cfg.SizeWeights = append([]float64(nil), f.SizeWeights...)
	}

	setFloat(&cfg.SearchWindowScale, f.SearchWindowScale)
	setFloat(&cfg.LocalMinSizeScale, f.LocalMinSizeScale)
	setFloat(&cfg.MotionDamping, f.MotionDamping)
	setFloat(&cfg.FullFrameMinSizeRatio, f.FullFrameMinSizeRatio)

	for _, d := range []struct {
		name string
		dst  *time.Duration
		src  *string
	}{
		{"min_detection_period", &cfg.MinDetectionPeriod, f.MinDetectionPeriod},
		{"stop_timeout", &cfg.StopTimeout, f.StopTimeout},
		{"frame_interval", &cfg.FrameInterval, f.FrameInterval},
	} {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return tracking.Config{}, fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}

	if err := cfg.Validate(); err != nil {
		return tracking.Config{}, fmt.Errorf("tuning file: %w", err)
	}
	return cfg, nil
}

func setInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func setFloat(dst *float64, src *float64) {
	if src != nil {
		*dst = *src
	}
}
