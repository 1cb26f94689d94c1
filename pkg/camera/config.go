// Package camera supplies grayscale frames to the tracker from a capture
// device, a video file or a directory of still images, with settings that
// can be changed at runtime.
package camera

import "strconv"

// Config holds all camera configuration parameters.
// These can be modified via the camera API at runtime.
type Config struct {
	// Source is a device index ("0") or a file path / stream URL.
	Source string `json:"source"`

	// === Capture ===
	Width     int `json:"width"`     // Requested capture width
	Height    int `json:"height"`    // Requested capture height
	Framerate int `json:"framerate"` // Requested capture FPS
	Quality   int `json:"quality"`   // JPEG quality for the dashboard stream 1-100

	// === Processing ===
	// ProcessWidth downscales frames before tracking (0 = native width).
	ProcessWidth int `json:"process_width"`

	// Mirror flips frames horizontally, as front-facing webcams expect.
	Mirror bool `json:"mirror"`

	// Equalize applies histogram equalization to the grayscale frame.
	Equalize bool `json:"equalize"`

	// === Sensor controls (0 = leave at driver default) ===
	Brightness float64 `json:"brightness"` // 0.0 to 1.0
	Contrast   float64 `json:"contrast"`   // 0.0 to 1.0
	Gain       float64 `json:"gain"`       // 0.0 to 100.0
	Exposure   float64 `json:"exposure"`   // Driver units, negative values are log2 seconds on most UVC drivers
}

// Capture limits accepted by Validate
const (
	MaxWidth     = 4096
	MaxHeight    = 2160
	MaxFramerate = 120
	MaxGain      = 100.0
)

// DefaultConfig returns the configuration used for webcam face tracking.
func DefaultConfig() Config {
	return Config{
		Source:    "0",
		Width:     640,
		Height:    480,
		Framerate: 30,
		Quality:   80,

		ProcessWidth: 0,
		Mirror:       true,
		Equalize:     true,
	}
}

// FileConfig returns a configuration for replaying a video file.
func FileConfig(path string) Config {
	cfg := DefaultConfig()
	cfg.Source = path
	cfg.Mirror = false
	return cfg
}

// Device returns the device index when Source is numeric.
func (c Config) Device() (int, bool) {
	i, err := strconv.Atoi(c.Source)
	return i, err == nil
}

// Validate checks if the config values are within valid ranges.
// Returns a list of validation errors, or nil if valid.
func (c *Config) Validate() []string {
	var errors []string

	if c.Source == "" {
		errors = append(errors, "source must be a device index or a path")
	}

	// Resolution
	if c.Width < 160 || c.Width > MaxWidth {
		errors = append(errors, "width must be between 160 and 4096")
	}
	if c.Height < 120 || c.Height > MaxHeight {
		errors = append(errors, "height must be between 120 and 2160")
	}
	if c.Framerate < 1 || c.Framerate > MaxFramerate {
		errors = append(errors, "framerate must be between 1 and 120")
	}
	if c.Quality < 1 || c.Quality > 100 {
		errors = append(errors, "quality must be between 1 and 100")
	}

	if c.ProcessWidth != 0 && (c.ProcessWidth < 80 || c.ProcessWidth > MaxWidth) {
		errors = append(errors, "process_width must be 0 (native) or between 80 and 4096")
	}

	if c.Brightness < 0 || c.Brightness > 1 {
		errors = append(errors, "brightness must be between 0.0 and 1.0")
	}
	if c.Contrast < 0 || c.Contrast > 1 {
		errors = append(errors, "contrast must be between 0.0 and 1.0")
	}
	if c.Gain < 0 || c.Gain > MaxGain {
		errors = append(errors, "gain must be between 0.0 and 100.0")
	}

	return errors
}

// Capabilities describes the accepted ranges for the dashboard.
func Capabilities() map[string]interface{} {
	return map[string]interface{}{
		"max_width":     MaxWidth,
		"max_height":    MaxHeight,
		"max_framerate": MaxFramerate,
		"max_gain":      MaxGain,
		"presets":       PresetNames(),
	}
}
