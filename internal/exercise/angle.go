// Package exercise turns pose landmarks into squat reps: it picks the leg to
// trust, measures the knee angle and runs the rep/form state machine.
package exercise

import (
	"math"

	"github.com/golang/geo/r2"

	"github.com/ayusman/squatcoach/internal/detector"
)

// Angle returns the angle at vertex b formed by points a and c, in degrees
// within [0, 180]. Coincident points yield 0.
func Angle(a, b, c r2.Point) float64 {
	ba := a.Sub(b)
	bc := c.Sub(b)

	radians := math.Atan2(bc.Y, bc.X) - math.Atan2(ba.Y, ba.X)
	degrees := math.Abs(radians * 180.0 / math.Pi)
	if degrees > 180.0 {
		degrees = 360.0 - degrees
	}
	return degrees
}

// Point projects a landmark onto the 2D image plane.
func Point(l detector.Landmark) r2.Point {
	return r2.Point{X: l.X, Y: l.Y}
}

// KneeAngle returns the hip-knee-ankle angle of the triplet.
func KneeAngle(t Triplet) float64 {
	return Angle(Point(t.Hip), Point(t.Knee), Point(t.Ankle))
}
