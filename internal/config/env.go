// Package config provides configuration helpers for go-facetrack commands:
// FACETRACK_* environment variables and tracker tuning files.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "FACETRACK_"

// Default values shared by the commands.
const (
	DefaultAddr     = ":8080"
	DefaultDBPath   = "facetrack.db"
	DefaultLogLevel = "info"
)

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + name)
	v = strings.TrimSpace(v)
	return v, ok && v != ""
}

// String returns FACETRACK_<name> or def when unset.
func String(name, def string) string {
	if v, ok := lookup(name); ok {
		return v
	}
	return def
}

// Int returns FACETRACK_<name> as an int, or def when unset or invalid.
func Int(name string, def int) int {
	if v, ok := lookup(name); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

// Float returns FACETRACK_<name> as a float64, or def when unset or invalid.
func Float(name string, def float64) float64 {
	if v, ok := lookup(name); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Bool returns FACETRACK_<name> as a bool, or def when unset or invalid.
func Bool(name string, def bool) bool {
	if v, ok := lookup(name); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// Duration returns FACETRACK_<name> parsed by time.ParseDuration, or def.
func Duration(name string, def time.Duration) time.Duration {
	if v, ok := lookup(name); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// VideoHost returns the WebRTC signalling host from FACETRACK_VIDEO_HOST,
// falling back to ROBOT_IP and then def.
func VideoHost(def string) string {
	if v, ok := lookup("VIDEO_HOST"); ok {
		return v
	}
	if ip := os.Getenv("ROBOT_IP"); ip != "" {
		return ip
	}
	return def
}
