// facetrack - multi-face tracker with a live dashboard
//
// Reads frames from a webcam, video file, image directory or the robot's
// WebRTC stream, tracks faces and serves tracks, tuning and an overlay
// stream over HTTP. Track events are recorded to SQLite.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/teslashibe/go-facetrack/internal/config"
	"github.com/teslashibe/go-facetrack/internal/log"
)

func main() {
	opts := parseFlags()

	log.Init(opts.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		log.Error("facetrack failed", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags. Flags default to FACETRACK_*
// environment variables.
func parseFlags() options {
	var o options

	flag.StringVar(&o.Source, "source", config.String("SOURCE", "0"),
		"Frame source: device index, video file, image directory or webrtc")
	flag.StringVar(&o.VideoHost, "video-host", config.VideoHost("localhost"),
		"WebRTC signalling host for -source webrtc (defaults to ROBOT_IP)")
	flag.BoolVar(&o.Loop, "loop", config.Bool("LOOP", false), "Loop image directories")

	flag.StringVar(&o.Detector, "detector", config.String("DETECTOR", "cascade"),
		"Detector: cascade, yunet, yolo or pigo")
	flag.StringVar(&o.Model, "model", config.String("MODEL", ""),
		"Cascade XML, ONNX model or pigo cascade (detector default when empty)")
	flag.StringVar(&o.LocalModel, "local-model", config.String("LOCAL_MODEL", ""),
		"Cascade used around known faces (defaults to -model, or the LBP cascade)")

	flag.StringVar(&o.Preset, "preset", config.String("PRESET", "default"),
		"Tracking preset: default, stable or responsive")
	flag.StringVar(&o.TuningFile, "tuning", config.String("TUNING", ""), "JSON tuning file")
	flag.StringVar(&o.CameraPreset, "camera-preset", config.String("CAMERA_PRESET", ""),
		"Camera preset: default, 720p, 1080p, fast, lowlight or raw")

	flag.StringVar(&o.Addr, "addr", config.String("ADDR", config.DefaultAddr), "Dashboard listen address")
	flag.BoolVar(&o.NoWeb, "no-web", false, "Disable the dashboard")
	flag.StringVar(&o.DBPath, "db", config.String("DB", config.DefaultDBPath),
		"Track log database (empty disables recording)")
	flag.IntVar(&o.StreamFPS, "stream-fps", config.Int("STREAM_FPS", 10), "Overlay stream frame rate")

	flag.StringVar(&o.LogLevel, "log-level", config.String("LOG_LEVEL", config.DefaultLogLevel),
		"Log level: debug, info, warn or error")
	debug := flag.Bool("debug", false, "Shorthand for -log-level debug")

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debug {
		o.LogLevel = "debug"
	}
	return o
}
