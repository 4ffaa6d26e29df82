package capture

import (
	"image"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// Frame differencing parameters.
const (
	blurKernel    = 21
	diffThreshold = 25
)

// Gate defaults.
const (
	DefaultMotionThreshold = 1.0
	DefaultIdleTimeout     = 2 * time.Second
)

// Mode is the capture cadence chosen by the MotionGate.
type Mode int

const (
	// ModeIdle samples slowly and skips pose detection.
	ModeIdle Mode = iota
	// ModeActive samples at full rate and runs pose detection.
	ModeActive
)

func (m Mode) String() string {
	if m == ModeActive {
		return "active"
	}
	return "idle"
}

// GateResult is the outcome of observing one frame.
type GateResult struct {
	Mode Mode
	// Changed is set when this frame switched the mode.
	Changed bool
	// ChangePercent is the share of pixels that differ from the previous frame.
	ChangePercent float64
}

// MotionGate keeps the pipeline idle while nothing moves in front of the
// camera. Any frame whose pixel change exceeds the threshold switches it to
// active; it falls back to idle after IdleTimeout without motion.
type MotionGate struct {
	mu          sync.Mutex
	threshold   float64
	idleTimeout time.Duration
	prevGray    gocv.Mat
	hasPrev     bool
	mode        Mode
	lastMotion  time.Time
}

// NewMotionGate creates a gate. threshold is the percentage of pixels that
// must change to count as motion; non-positive values take the defaults.
func NewMotionGate(threshold float64, idleTimeout time.Duration) *MotionGate {
	if threshold <= 0 {
		threshold = DefaultMotionThreshold
	}
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	return &MotionGate{
		threshold:   threshold,
		idleTimeout: idleTimeout,
		prevGray:    gocv.NewMat(),
	}
}

// Observe measures motion in frame and advances the gate.
func (g *MotionGate) Observe(frame *gocv.Mat, now time.Time) GateResult {
	g.mu.Lock()
	defer g.mu.Unlock()

	change := g.diff(frame)
	res := g.advance(change > g.threshold, now)
	res.ChangePercent = change
	return res
}

// Mark records motion seen by other means, such as a detected person.
func (g *MotionGate) Mark(now time.Time) GateResult {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.advance(true, now)
}

// Mode returns the current mode.
func (g *MotionGate) Mode() Mode {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.mode
}

func (g *MotionGate) advance(motion bool, now time.Time) GateResult {
	prev := g.mode
	switch {
	case motion:
		g.lastMotion = now
		g.mode = ModeActive
	case g.mode == ModeActive && now.Sub(g.lastMotion) > g.idleTimeout:
		g.mode = ModeIdle
	}
	return GateResult{Mode: g.mode, Changed: g.mode != prev}
}

// diff returns the percentage of pixels that changed since the previous
// frame, after grayscale conversion and a Gaussian blur. The first frame
// only sets the baseline.
func (g *MotionGate) diff(frame *gocv.Mat) float64 {
	if frame == nil || frame.Empty() {
		return 0
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	gocv.GaussianBlur(gray, &blurred, image.Pt(blurKernel, blurKernel), 0, 0, gocv.BorderDefault)

	if !g.hasPrev || g.prevGray.Rows() != blurred.Rows() || g.prevGray.Cols() != blurred.Cols() {
		g.swap(blurred)
		return 0
	}

	delta := gocv.NewMat()
	defer delta.Close()
	gocv.AbsDiff(blurred, g.prevGray, &delta)
	gocv.Threshold(delta, &delta, diffThreshold, 255, gocv.ThresholdBinary)

	changed := float64(gocv.CountNonZero(delta)) / float64(delta.Rows()*delta.Cols()) * 100
	g.swap(blurred)
	return changed
}

// swap takes ownership of next as the baseline.
func (g *MotionGate) swap(next gocv.Mat) {
	g.prevGray.Close()
	g.prevGray = next
	g.hasPrev = true
}

// Reset drops the baseline and returns to idle.
func (g *MotionGate) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prevGray.Close()
	g.prevGray = gocv.NewMat()
	g.hasPrev = false
	g.mode = ModeIdle
}

// Close releases the baseline frame.
func (g *MotionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prevGray.Close()
	g.hasPrev = false
}

// SetThreshold changes the motion threshold. Values <= 0 are ignored.
func (g *MotionGate) SetThreshold(threshold float64) {
	if threshold <= 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.threshold = threshold
}
