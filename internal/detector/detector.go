package detector

import "gocv.io/x/gocv"

// Detector defines the interface for pose detection implementations.
type Detector interface {
	// Detect analyzes a video frame and returns the detected body landmarks.
	// A result without landmarks means no person was found.
	Detect(frame *gocv.Mat) (*Result, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for pose detection.
type Config struct {
	// ScriptPath overrides the location of the pose service script.
	ScriptPath string

	// PythonPath overrides the interpreter used to run the service.
	PythonPath string

	// ModelComplexity selects the BlazePose model (0 lite, 1 full, 2 heavy).
	ModelComplexity int

	// SmoothLandmarks enables temporal smoothing inside the model.
	SmoothLandmarks bool

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		ModelComplexity: 1,
		SmoothLandmarks: true,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}
