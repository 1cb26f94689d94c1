package camera

// Preset names for common configurations
const (
	PresetDefault  = "default"
	Preset720p     = "720p"
	Preset1080p    = "1080p"
	PresetFast     = "fast"
	PresetLowLight = "lowlight"
	PresetRaw      = "raw"
)

// Presets returns all available preset configurations.
func Presets() map[string]Config {
	return map[string]Config{
		PresetDefault:  DefaultConfig(),
		Preset720p:     HD720Config(),
		Preset1080p:    HD1080Config(),
		PresetFast:     FastConfig(),
		PresetLowLight: LowLightConfig(),
		PresetRaw:      RawConfig(),
	}
}

// PresetNames returns the list of available preset names.
func PresetNames() []string {
	return []string{
		PresetDefault,
		Preset720p,
		Preset1080p,
		PresetFast,
		PresetLowLight,
		PresetRaw,
	}
}

// GetPreset returns a preset config by name, or nil if not found.
func GetPreset(name string) *Config {
	presets := Presets()
	if cfg, ok := presets[name]; ok {
		return &cfg
	}
	return nil
}

// HD720Config captures 720p and tracks at 640 pixels wide.
func HD720Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1280
	cfg.Height = 720
	cfg.ProcessWidth = 640
	return cfg
}

// HD1080Config captures 1080p and tracks at 960 pixels wide.
// Small faces far from the camera stay above the detector minimum.
func HD1080Config() Config {
	cfg := DefaultConfig()
	cfg.Width = 1920
	cfg.Height = 1080
	cfg.ProcessWidth = 960
	return cfg
}

// FastConfig trades resolution for frame rate.
func FastConfig() Config {
	cfg := DefaultConfig()
	cfg.Width = 320
	cfg.Height = 240
	cfg.Framerate = 60
	return cfg
}

// LowLightConfig raises gain and brightness for dim rooms.
func LowLightConfig() Config {
	cfg := DefaultConfig()
	cfg.Framerate = 15 // Longer exposure per frame
	cfg.Gain = 60
	cfg.Brightness = 0.7
	return cfg
}

// RawConfig disables mirroring and equalization.
func RawConfig() Config {
	cfg := DefaultConfig()
	cfg.Mirror = false
	cfg.Equalize = false
	return cfg
}
