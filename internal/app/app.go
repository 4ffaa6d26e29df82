// Package app wires the camera, pose detector and rep pipeline into the
// running squat coach.
package app

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/capture"
	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/overlay"
)

// Pipeline timing constants.
const (
	// IdleFPS is the frame rate when no motion is detected.
	IdleFPS = 5
	// ActiveFPS is the frame rate while someone is moving.
	ActiveFPS = 15
	// DefaultJPEGQuality is used for the preview stream.
	DefaultJPEGQuality = 80
)

// Config holds configuration options for the application.
type Config struct {
	Camera          capture.Config
	Detector        detector.Config
	Thresholds      exercise.Thresholds
	Overlay         overlay.Options
	MotionThreshold float64
	IdleTimeout     time.Duration
	JPEGQuality     int
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() Config {
	return Config{
		Camera:          capture.DefaultConfig(),
		Detector:        detector.DefaultConfig(),
		Thresholds:      exercise.DefaultThresholds(),
		Overlay:         overlay.DefaultOptions(),
		MotionThreshold: capture.DefaultMotionThreshold,
		IdleTimeout:     capture.DefaultIdleTimeout,
		JPEGQuality:     DefaultJPEGQuality,
	}
}

// State is the snapshot shown to clients plus the app's own run state.
type State struct {
	exercise.Snapshot
	Enabled bool   `json:"enabled"`
	Mode    string `json:"mode"`
}

// App owns the capture loop and everything it feeds.
type App struct {
	config   Config
	log      *slog.Logger
	camera   capture.Camera
	gate     *capture.MotionGate
	detector detector.Detector
	pipeline *Pipeline
	enabled  bool
	mu       sync.RWMutex
	stopCh   chan struct{}
	doneCh   chan struct{}

	frameMu  sync.RWMutex
	frame    []byte
	frameSeq uint64
}

// New creates a new App. The MediaPipe detector is used when its script is
// found; otherwise a mock detector that never sees anyone is installed.
func New(config Config, log *slog.Logger) *App {
	if log == nil {
		log = slog.Default()
	}
	if config.JPEGQuality <= 0 || config.JPEGQuality > 100 {
		config.JPEGQuality = DefaultJPEGQuality
	}

	a := &App{
		config:   config,
		log:      log,
		camera:   capture.NewCamera(config.Camera),
		gate:     capture.NewMotionGate(config.MotionThreshold, config.IdleTimeout),
		pipeline: NewPipeline(config.Thresholds, overlay.NewRenderer(config.Overlay), log),
		enabled:  true,
	}

	if mp, err := detector.NewMediaPipeDetector(config.Detector, log); err == nil {
		a.detector = mp
		log.Info("using mediapipe pose detection")
	} else {
		log.Warn("mediapipe not available, using mock detector", "error", err)
		a.detector = detector.NewMockDetector()
	}

	return a
}

// SetEnabled pauses or resumes rep tracking.
func (a *App) SetEnabled(enabled bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enabled = enabled
}

// IsEnabled reports whether rep tracking is running.
func (a *App) IsEnabled() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.enabled
}

// SetDetector replaces the pose detector.
func (a *App) SetDetector(d detector.Detector) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.detector = d
}

// SetCamera replaces the frame source. It must be called before Start.
func (a *App) SetCamera(c capture.Camera) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.camera = c
}

// Pipeline returns the frame pipeline.
func (a *App) Pipeline() *Pipeline {
	return a.pipeline
}

// AddSink registers a receiver for rep events.
func (a *App) AddSink(s EventSink) {
	a.pipeline.AddSink(s)
}

// Start opens the camera and begins the capture loop.
func (a *App) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.stopCh != nil {
		return nil
	}

	if err := a.camera.Open(); err != nil {
		return err
	}
	a.camera.SetFPS(IdleFPS)

	a.stopCh = make(chan struct{})
	a.doneCh = make(chan struct{})
	go a.run(a.stopCh, a.doneCh)

	a.log.Info("capture loop started", "fps", IdleFPS)
	return nil
}

// Stop halts the capture loop and releases the camera, motion gate and
// detector.
func (a *App) Stop() {
	a.mu.Lock()
	stopCh, doneCh := a.stopCh, a.doneCh
	a.stopCh, a.doneCh = nil, nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
		<-doneCh
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.camera.Close(); err != nil {
		a.log.Warn("close camera", "error", err)
	}
	a.gate.Close()
	if a.detector != nil {
		if err := a.detector.Close(); err != nil {
			a.log.Warn("close detector", "error", err)
		}
	}

	a.log.Info("capture loop stopped")
}

// Reset zeroes the rep count and starts a new session.
func (a *App) Reset() State {
	return a.state(a.pipeline.Reset(time.Now()))
}

// State returns what the display should show right now.
func (a *App) State() State {
	return a.state(a.pipeline.Snapshot(time.Now()))
}

func (a *App) state(s exercise.Snapshot) State {
	return State{
		Snapshot: s,
		Enabled:  a.IsEnabled(),
		Mode:     a.gate.Mode().String(),
	}
}

// Thresholds returns the bands in use.
func (a *App) Thresholds() exercise.Thresholds {
	return a.pipeline.Thresholds()
}

// SetThresholds validates and applies new bands.
func (a *App) SetThresholds(t exercise.Thresholds) error {
	return a.pipeline.SetThresholds(t)
}

// LatestFrame returns the most recent rendered JPEG and its sequence
// number. The sequence is 0 until the first frame is encoded.
func (a *App) LatestFrame() ([]byte, uint64) {
	a.frameMu.RLock()
	defer a.frameMu.RUnlock()
	return a.frame, a.frameSeq
}

func (a *App) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(time.Second / IdleFPS)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			if !a.IsEnabled() {
				continue
			}

			mode, changed, err := a.step(now)
			if err != nil {
				a.log.Debug("frame skipped", "error", err)
				continue
			}
			if changed {
				fps := IdleFPS
				if mode == capture.ModeActive {
					fps = ActiveFPS
				}
				a.camera.SetFPS(fps)
				ticker.Reset(time.Second / time.Duration(fps))
				a.log.Info("capture mode changed", "mode", mode, "fps", fps)
			}
		}
	}
}

// step reads, processes and publishes one frame. It reports the motion
// gate's mode after the frame and whether it changed.
func (a *App) step(now time.Time) (capture.Mode, bool, error) {
	a.mu.RLock()
	cam, det := a.camera, a.detector
	a.mu.RUnlock()

	frame, err := cam.ReadFrame()
	if err != nil {
		return a.gate.Mode(), false, err
	}
	defer frame.Close()

	gate := a.gate.Observe(frame, now)

	if gate.Mode == capture.ModeIdle || det == nil {
		if err := a.pipeline.RenderIdle(frame, now); err == nil {
			a.publish(frame)
		}
		return gate.Mode, gate.Changed, nil
	}

	res, err := det.Detect(frame)
	if err != nil {
		return gate.Mode, gate.Changed, err
	}

	out := a.pipeline.Process(res, frame, now)
	if res.HasPose() {
		a.gate.Mark(now)
	}
	if out.Err != nil && !errors.Is(out.Err, ErrNoPerson) {
		a.log.Debug("frame rejected", "error", out.Err)
	}
	if out.Rendered {
		a.publish(frame)
	}

	return gate.Mode, gate.Changed, nil
}

// publish stores frame as the latest JPEG for the preview stream.
func (a *App) publish(frame *gocv.Mat) {
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, *frame, []int{gocv.IMWriteJpegQuality, a.config.JPEGQuality})
	if err != nil {
		a.log.Warn("encode preview frame", "error", err)
		return
	}
	defer buf.Close()

	data := append([]byte(nil), buf.GetBytes()...)

	a.frameMu.Lock()
	a.frame = data
	a.frameSeq++
	a.frameMu.Unlock()
}
