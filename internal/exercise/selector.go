package exercise

import (
	"errors"
	"fmt"

	"github.com/ayusman/squatcoach/internal/detector"
)

var (
	// ErrLowConfidence is returned when neither leg is visible enough to measure.
	ErrLowConfidence = errors.New("no reliable leg triplet")

	// ErrIncompleteLandmarks is returned when the landmark set does not
	// contain both legs. It wraps ErrLowConfidence.
	ErrIncompleteLandmarks = fmt.Errorf("%w: incomplete landmark set", ErrLowConfidence)
)

// Side identifies a leg.
type Side string

const (
	SideLeft  Side = "left"
	SideRight Side = "right"
)

// Leg triplets as hip, knee, ankle landmark indices.
var (
	LeftLeg  = [3]int{detector.LeftHip, detector.LeftKnee, detector.LeftAnkle}
	RightLeg = [3]int{detector.RightHip, detector.RightKnee, detector.RightAnkle}
)

// Triplet holds the hip, knee and ankle of one leg for a single frame.
type Triplet struct {
	Side  Side
	Hip   detector.Landmark
	Knee  detector.Landmark
	Ankle detector.Landmark
}

// MeanVisibility is the average visibility of the three points.
func (t Triplet) MeanVisibility() float64 {
	return (t.Hip.Visibility + t.Knee.Visibility + t.Ankle.Visibility) / 3
}

func tripletAt(landmarks []detector.Landmark, side Side, idx [3]int) Triplet {
	return Triplet{
		Side:  side,
		Hip:   landmarks[idx[0]],
		Knee:  landmarks[idx[1]],
		Ankle: landmarks[idx[2]],
	}
}

// SelectTriplet picks the leg with the higher mean visibility, preferring
// the left leg on a tie. It returns ErrLowConfidence when the chosen leg's
// mean visibility is below minVisibility.
func SelectTriplet(landmarks []detector.Landmark, minVisibility float64) (Triplet, error) {
	if len(landmarks) <= detector.RightAnkle {
		return Triplet{}, ErrIncompleteLandmarks
	}

	left := tripletAt(landmarks, SideLeft, LeftLeg)
	right := tripletAt(landmarks, SideRight, RightLeg)

	chosen := left
	if right.MeanVisibility() > left.MeanVisibility() {
		chosen = right
	}

	if chosen.MeanVisibility() < minVisibility {
		return chosen, ErrLowConfidence
	}
	return chosen, nil
}
