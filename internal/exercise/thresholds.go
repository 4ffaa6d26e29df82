package exercise

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidThresholds is returned by Thresholds.Validate.
var ErrInvalidThresholds = errors.New("invalid thresholds")

// Default thresholds in degrees.
const (
	DefaultExtension     = 155.0
	DefaultFlexion       = 100.0
	DefaultDepthWarning  = 135.0
	DefaultMinVisibility = 0.5
	DefaultFlashDuration = 800 * time.Millisecond
)

// Thresholds configures the angle bands of the rep/form state machine.
type Thresholds struct {
	// Extension is the angle above which the leg counts as straight.
	Extension float64
	// Flexion is the angle below which the squat counts as deep enough.
	Flexion float64
	// DepthWarning is the top of the "go lower" band that starts at Flexion.
	DepthWarning float64
	// MinVisibility is the mean visibility a leg needs to be measured.
	MinVisibility float64
	// FlashDuration is how long the success flash stays on after a rep.
	FlashDuration time.Duration
	// GateDepthWarning limits the "go lower" warning to the descent. Off by
	// default: the band applies in either phase.
	GateDepthWarning bool
}

// DefaultThresholds returns the standard squat bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Extension:        DefaultExtension,
		Flexion:          DefaultFlexion,
		DepthWarning:     DefaultDepthWarning,
		MinVisibility:    DefaultMinVisibility,
		FlashDuration:    DefaultFlashDuration,
		GateDepthWarning: false,
	}
}

// Validate checks that the bands are ordered and within range.
func (t Thresholds) Validate() error {
	switch {
	case t.Flexion <= 0 || t.Extension > 180:
		return fmt.Errorf("%w: angles must be within (0, 180]", ErrInvalidThresholds)
	case t.Flexion >= t.DepthWarning:
		return fmt.Errorf("%w: flexion %.1f must be below depth warning %.1f", ErrInvalidThresholds, t.Flexion, t.DepthWarning)
	case t.DepthWarning >= t.Extension:
		return fmt.Errorf("%w: depth warning %.1f must be below extension %.1f", ErrInvalidThresholds, t.DepthWarning, t.Extension)
	case t.MinVisibility <= 0 || t.MinVisibility > 1:
		return fmt.Errorf("%w: min visibility must be within (0, 1]", ErrInvalidThresholds)
	case t.FlashDuration <= 0:
		return fmt.Errorf("%w: flash duration must be positive", ErrInvalidThresholds)
	}
	return nil
}
