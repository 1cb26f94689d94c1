package camera

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPresets_Valid(t *testing.T) {
	for _, name := range PresetNames() {
		cfg := GetPreset(name)
		if cfg == nil {
			t.Fatalf("GetPreset(%q) = nil", name)
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			t.Errorf("preset %q invalid: %v", name, errs)
		}
	}
	if GetPreset("nope") != nil {
		t.Error("unknown preset returned a config")
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		want   int
	}{
		{"default", func(*Config) {}, 0},
		{"empty source", func(c *Config) { c.Source = "" }, 1},
		{"tiny", func(c *Config) { c.Width, c.Height = 10, 10 }, 2},
		{"framerate", func(c *Config) { c.Framerate = 0 }, 1},
		{"quality", func(c *Config) { c.Quality = 101 }, 1},
		{"process width", func(c *Config) { c.ProcessWidth = 20 }, 1},
		{"controls", func(c *Config) { c.Brightness, c.Contrast, c.Gain = 2, -1, 500 }, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)
			if got := cfg.Validate(); len(got) != tt.want {
				t.Errorf("Validate() = %v, want %d errors", got, tt.want)
			}
		})
	}
}

func TestConfig_Device(t *testing.T) {
	dev, ok := DefaultConfig().Device()
	assert.True(t, ok)
	assert.Equal(t, 0, dev)

	_, ok = FileConfig("clip.mp4").Device()
	assert.False(t, ok)
}

func TestManager_UpdateConfig(t *testing.T) {
	m := NewManager(FileConfig("clip.mp4"))

	var applied []Config
	m.OnConfigChange = func(cfg Config) error {
		applied = append(applied, cfg)
		return nil
	}

	require.NoError(t, m.UpdateConfig(map[string]interface{}{
		"preset":        Preset720p,
		"process_width": float64(320),
		"mirror":        false,
		"gain":          12,
	}))

	cfg := m.GetConfig()
	assert.Equal(t, "clip.mp4", cfg.Source, "preset must keep the source")
	assert.Equal(t, 1280, cfg.Width)
	assert.Equal(t, 320, cfg.ProcessWidth)
	assert.False(t, cfg.Mirror)
	assert.Equal(t, 12.0, cfg.Gain)
	require.Len(t, applied, 1)
	assert.Equal(t, cfg, applied[0])

	assert.Equal(t, float64(320), m.GetConfigJSON()["process_width"])
}

func TestManager_RejectsInvalid(t *testing.T) {
	m := NewManager(DefaultConfig())

	err := m.UpdateConfig(map[string]interface{}{"preset": "unknown"})
	assert.Error(t, err)

	err = m.UpdateConfig(map[string]interface{}{"quality": 0})
	assert.Error(t, err)
	assert.Equal(t, DefaultConfig(), m.GetConfig())
}

func TestManager_CallbackFailureKeepsConfig(t *testing.T) {
	m := NewManager(DefaultConfig())
	errBusy := errors.New("device busy")
	m.OnConfigChange = func(Config) error { return errBusy }

	err := m.UpdateConfig(map[string]interface{}{"width": 1280, "height": 720})
	assert.ErrorIs(t, err, errBusy)
	assert.Equal(t, 640, m.GetConfig().Width)
}
