package detector

import (
	"math"
	"sync"
	"time"

	"gocv.io/x/gocv"
)

// MockDetector is a test implementation of the Detector interface.
// It allows tests to control the detection results.
type MockDetector struct {
	mu      sync.Mutex
	results []*Result
	next    int
	err     error
	calls   int
	closed  bool
}

// NewMockDetector creates a new MockDetector instance.
func NewMockDetector() *MockDetector {
	return &MockDetector{}
}

// SetResult makes every call to Detect return the given result.
func (m *MockDetector) SetResult(r *Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r == nil {
		m.results = nil
	} else {
		m.results = []*Result{r}
	}
	m.next = 0
}

// SetSequence makes Detect return the results in order.
// Once the sequence is exhausted the last result is repeated.
func (m *MockDetector) SetSequence(results []*Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
	m.next = 0
}

// SetError sets the error that will be returned by Detect.
func (m *MockDetector) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many times Detect has been called.
func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Closed reports whether Close has been called.
func (m *MockDetector) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Detect returns the pre-configured results or error.
func (m *MockDetector) Detect(frame *gocv.Mat) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if len(m.results) == 0 {
		return &Result{Timestamp: time.Now()}, nil
	}

	r := m.results[m.next]
	if m.next < len(m.results)-1 {
		m.next++
	}
	return r, nil
}

// Close marks the detector as closed.
func (m *MockDetector) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// legLength is the normalized thigh and shin length used by the fixtures.
const legLength = 0.2

// PoseWithKneeAngle returns a side-on standing figure whose knees are bent to
// the given angle in degrees. The visibility of each leg's hip, knee and ankle
// is set independently so selection between legs can be exercised; every
// other landmark gets visibility 0.9.
func PoseWithKneeAngle(degrees, leftVisibility, rightVisibility float64) *Result {
	r := &Result{
		Landmarks: make([]Landmark, NumLandmarks),
		Timestamp: time.Now(),
	}

	// Upper body and face, roughly centered.
	for i := range r.Landmarks {
		r.Landmarks[i] = Landmark{X: 0.5, Y: 0.2, Visibility: 0.9}
	}
	r.Landmarks[Nose] = Landmark{X: 0.52, Y: 0.12, Visibility: 0.9}
	r.Landmarks[LeftShoulder] = Landmark{X: 0.49, Y: 0.25, Visibility: 0.9}
	r.Landmarks[RightShoulder] = Landmark{X: 0.51, Y: 0.25, Visibility: 0.9}
	r.Landmarks[LeftElbow] = Landmark{X: 0.52, Y: 0.35, Visibility: 0.9}
	r.Landmarks[RightElbow] = Landmark{X: 0.54, Y: 0.35, Visibility: 0.9}
	r.Landmarks[LeftWrist] = Landmark{X: 0.58, Y: 0.38, Visibility: 0.9}
	r.Landmarks[RightWrist] = Landmark{X: 0.60, Y: 0.38, Visibility: 0.9}

	setLeg(r.Landmarks, LeftHip, LeftKnee, LeftAnkle, 0.48, degrees, leftVisibility)
	setLeg(r.Landmarks, RightHip, RightKnee, RightAnkle, 0.52, degrees, rightVisibility)

	r.Landmarks[LeftHeel] = Landmark{X: 0.46, Y: 0.87, Visibility: 0.9}
	r.Landmarks[RightHeel] = Landmark{X: 0.50, Y: 0.87, Visibility: 0.9}
	r.Landmarks[LeftFootIndex] = Landmark{X: 0.53, Y: 0.88, Visibility: 0.9}
	r.Landmarks[RightFootIndex] = Landmark{X: 0.57, Y: 0.88, Visibility: 0.9}

	return r
}

// setLeg places the ankle straight below the knee and rotates the thigh so
// the hip-knee-ankle angle equals degrees.
func setLeg(lm []Landmark, hip, knee, ankle int, x, degrees, visibility float64) {
	kx, ky := x, 0.65
	theta := degrees * math.Pi / 180

	lm[knee] = Landmark{X: kx, Y: ky, Visibility: visibility}
	lm[ankle] = Landmark{X: kx, Y: ky + legLength, Visibility: visibility}
	lm[hip] = Landmark{
		X:          kx + legLength*math.Sin(theta),
		Y:          ky + legLength*math.Cos(theta),
		Visibility: visibility,
	}
}

// StandingPose returns a fully visible figure standing upright.
func StandingPose() *Result {
	return PoseWithKneeAngle(175, 0.95, 0.9)
}

// SquatBottomPose returns a fully visible figure below parallel.
func SquatBottomPose() *Result {
	return PoseWithKneeAngle(80, 0.95, 0.9)
}

// HalfSquatPose returns a fully visible figure stopped short of depth.
func HalfSquatPose() *Result {
	return PoseWithKneeAngle(120, 0.95, 0.9)
}
