// Package replay drives the rep counter from recorded landmark files instead
// of a live camera.
package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ayusman/squatcoach/internal/detector"
)

// DefaultFPS is assumed when a recording does not state its frame rate.
const DefaultFPS = 30

// ErrEmptyRecording is returned for a recording without frames.
var ErrEmptyRecording = errors.New("recording has no frames")

// Frame is one recorded detector pass. No landmarks means no person.
type Frame struct {
	Landmarks []detector.Landmark `json:"landmarks"`
}

// Recording is a sequence of frames captured at a fixed rate.
type Recording struct {
	FPS    float64 `json:"fps"`
	Frames []Frame `json:"frames"`
}

// Load decodes a recording from r.
func Load(r io.Reader) (*Recording, error) {
	var rec Recording
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode recording: %w", err)
	}
	if rec.FPS < 0 {
		return nil, fmt.Errorf("invalid fps %v", rec.FPS)
	}
	if rec.FPS == 0 {
		rec.FPS = DefaultFPS
	}
	if len(rec.Frames) == 0 {
		return nil, ErrEmptyRecording
	}
	return &rec, nil
}

// LoadFile reads a recording from path.
func LoadFile(path string) (*Recording, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// FrameInterval is the time between consecutive frames.
func (r *Recording) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / r.FPS)
}

// Duration is the wall-clock length of the recording.
func (r *Recording) Duration() time.Duration {
	return time.Duration(len(r.Frames)) * r.FrameInterval()
}

// Result converts frame i to a detector result stamped start + i frames.
func (r *Recording) Result(i int, start time.Time) *detector.Result {
	return &detector.Result{
		Landmarks: r.Frames[i].Landmarks,
		Timestamp: start.Add(time.Duration(i) * r.FrameInterval()),
	}
}
