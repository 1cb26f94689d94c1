package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-facetrack/internal/config"
	"github.com/teslashibe/go-facetrack/internal/log"
	"github.com/teslashibe/go-facetrack/pkg/camera"
	"github.com/teslashibe/go-facetrack/pkg/store"
	"github.com/teslashibe/go-facetrack/pkg/tracking"
	"github.com/teslashibe/go-facetrack/pkg/tracking/detection"
	"github.com/teslashibe/go-facetrack/pkg/video"
	"github.com/teslashibe/go-facetrack/pkg/web"
)

// sourceWebRTC selects the robot's WebRTC stream as frame source.
const sourceWebRTC = "webrtc"

type options struct {
	Source    string
	VideoHost string
	Loop      bool

	Detector   string
	Model      string
	LocalModel string

	Preset       string
	TuningFile   string
	CameraPreset string

	Addr      string
	NoWeb     bool
	DBPath    string
	StreamFPS int

	LogLevel string
}

// frameSource is a tracking.FrameSource the command has to close.
type frameSource interface {
	tracking.FrameSource
	io.Closer
}

func run(ctx context.Context, o options) error {
	cfg, err := trackingConfig(o)
	if err != nil {
		return err
	}

	src, cam, err := openSource(ctx, o)
	if err != nil {
		return err
	}
	defer src.Close()

	full, local, err := newDetectors(o)
	if err != nil {
		return err
	}
	if c, ok := local.(io.Closer); ok {
		defer c.Close()
	}

	var (
		trackerOpts []tracking.Option
		recorder    *store.Recorder
		sessionID   string
		db          *store.Store
	)
	if o.DBPath != "" {
		db, err = store.Open(o.DBPath)
		if err != nil {
			closeDetector(full)
			return err
		}
		defer db.Close()

		sess, err := db.StartSession(ctx, o.Source, cfg)
		if err != nil {
			closeDetector(full)
			return err
		}
		sessionID = sess.ID
		recorder = store.NewRecorder(db, sess.ID, 1024)
		trackerOpts = append(trackerOpts, tracking.WithObserver(recorder))
		log.Info("recording tracks", "db", o.DBPath, "session", sess.ID)
	}

	tracker, err := tracking.New(cfg, full, local, trackerOpts...)
	if err != nil {
		closeDetector(full)
		return err
	}
	defer func() {
		if err := tracker.Close(); err != nil {
			log.Warn("tracker close", "error", err)
		}
	}()

	if err := tracker.Start(ctx); err != nil {
		return err
	}

	sinks := tracking.Sinks{}
	if recorder != nil {
		recorder.Start(ctx)
		sinks = append(sinks, recorder)
	}

	g, ctx := errgroup.WithContext(ctx)

	if !o.NoWeb {
		server := web.NewServer(tracker, web.Options{
			Addr:      o.Addr,
			Source:    o.Source,
			SessionID: sessionID,
			Camera:    cam,
			StreamFPS: o.StreamFPS,
		})
		level := log.ParseLevel(o.LogLevel)
		log.Wrap(func(next slog.Handler) slog.Handler { return server.LogHandler(next, level) })
		sinks = append(sinks, server)

		g.Go(func() error { return server.ListenAndServe(ctx) })
	}

	log.Info("facetrack started",
		"source", o.Source, "detector", o.Detector, "preset", o.Preset,
		"interval", cfg.FrameInterval)

	g.Go(func() error {
		err := tracker.Run(ctx, src, sinks)
		if !o.NoWeb && ctx.Err() == nil {
			log.Info("frame source finished, dashboard still running (Ctrl+C to exit)")
		}
		return err
	})

	err = g.Wait()

	stats := tracker.Stats()
	if recorder != nil {
		if cerr := recorder.Close(); cerr != nil {
			log.Warn("recorder close", "error", cerr)
		}
		written, dropped, failed := recorder.Stats()
		if eerr := db.EndSession(context.WithoutCancel(ctx), sessionID, stats.Frames); eerr != nil {
			log.Warn("end session", "error", eerr)
		}
		log.Info("track log closed", "written", written, "dropped", dropped, "failed", failed)
	}
	log.Info("facetrack stopped",
		"frames", stats.Frames, "frame_errors", stats.FrameErrors,
		"detections", stats.Consumed, "next_id", stats.NextID)

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// trackingConfig resolves the preset and applies the tuning file on top.
func trackingConfig(o options) (tracking.Config, error) {
	cfg, err := tracking.Preset(o.Preset)
	if err != nil {
		return tracking.Config{}, err
	}
	if o.TuningFile == "" {
		return cfg, nil
	}
	tf, err := config.LoadTuningFile(o.TuningFile)
	if err != nil {
		return tracking.Config{}, err
	}
	return tf.Apply(cfg)
}

// openSource opens the frame source named by o.Source. The camera manager
// is nil for sources without runtime settings.
func openSource(ctx context.Context, o options) (frameSource, *camera.Manager, error) {
	if o.Source == sourceWebRTC {
		client := video.NewClient(video.DefaultConfig(o.VideoHost))
		if err := client.Connect(ctx); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect video stream on %s: %w", o.VideoHost, err)
		}
		return client, nil, nil
	}

	camCfg := camera.DefaultConfig()
	if o.CameraPreset != "" {
		p := camera.GetPreset(o.CameraPreset)
		if p == nil {
			return nil, nil, fmt.Errorf("unknown camera preset: %s (available: %v)", o.CameraPreset, camera.PresetNames())
		}
		camCfg = *p
	}
	camCfg.Source = o.Source

	if info, err := os.Stat(o.Source); err == nil && info.IsDir() {
		// Still images are not mirrored.
		camCfg.Mirror = false
		dir, err := camera.OpenDir(o.Source, camCfg, o.Loop)
		if err != nil {
			return nil, nil, err
		}
		mgr := camera.NewManager(camCfg)
		mgr.OnConfigChange = dir.Apply
		return dir, mgr, nil
	}

	if _, isDevice := camCfg.Device(); !isDevice {
		camCfg.Mirror = false
	}
	capture, err := camera.Open(camCfg)
	if err != nil {
		return nil, nil, err
	}
	mgr := camera.NewManager(camCfg)
	mgr.OnConfigChange = capture.Apply
	return capture, mgr, nil
}

// Default cascades: Haar for the background scan, the faster LBP cascade
// around known faces.
const (
	defaultFullCascade  = "models/haarcascade_frontalface_alt.xml"
	defaultLocalCascade = "models/lbpcascade_frontalface.xml"
)

// cascadeModels resolves the full-frame and local cascade paths. A custom
// -model is used for both roles unless -local-model is given.
func cascadeModels(o options) (full, local string) {
	full, local = o.Model, o.LocalModel
	if full == "" {
		full = defaultFullCascade
		if local == "" {
			local = defaultLocalCascade
		}
	}
	if local == "" {
		local = full
	}
	return full, local
}

// newDetectors builds the full-frame and local detectors. The tracker
// takes ownership of full. Network and pigo local detectors keep only the
// best detection per search window.
func newDetectors(o options) (full, local tracking.RegionDetector, err error) {
	switch o.Detector {
	case "cascade":
		fullModel, localModel := cascadeModels(o)
		f, err := detection.NewCascade(detection.FullFrameCascadeConfig(fullModel))
		if err != nil {
			return nil, nil, err
		}
		l, err := detection.NewCascade(detection.LocalCascadeConfig(localModel))
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		return f, l, nil

	case "yunet":
		cfg := detection.DefaultConfig()
		if o.Model != "" {
			cfg.ModelPath = o.Model
		}
		return pair(func(single bool) (tracking.RegionDetector, error) {
			c := cfg
			c.Single = single
			return detection.NewYuNet(c)
		})

	case "yolo":
		cfg := detection.DefaultYOLOConfig()
		if o.Model != "" {
			cfg.ModelPath = o.Model
		}
		return pair(func(single bool) (tracking.RegionDetector, error) {
			c := cfg
			c.Single = single
			return detection.NewYOLO(c)
		})

	case "pigo":
		cfg := detection.DefaultPigoConfig()
		if o.Model != "" {
			cfg.CascadePath = o.Model
		}
		return pair(func(single bool) (tracking.RegionDetector, error) {
			c := cfg
			c.Single = single
			return detection.NewPigo(c)
		})

	default:
		return nil, nil, fmt.Errorf("unknown detector: %s (cascade, yunet, yolo, pigo)", o.Detector)
	}
}

// pair creates the full-frame instance and a separate single-result local
// instance so the background detector never contends with the frame loop.
func pair(newDetector func(single bool) (tracking.RegionDetector, error)) (full, local tracking.RegionDetector, err error) {
	full, err = newDetector(false)
	if err != nil {
		return nil, nil, err
	}
	local, err = newDetector(true)
	if err != nil {
		closeDetector(full)
		return nil, nil, err
	}
	return full, local, nil
}

func closeDetector(d tracking.RegionDetector) {
	if c, ok := d.(io.Closer); ok {
		_ = c.Close()
	}
}
