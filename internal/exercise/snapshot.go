package exercise

import (
	"math"
	"time"
)

// Quality percentages shown for good and bad form.
const (
	QualityGood = 85
	QualityBad  = 40
)

// restingAngle is displayed before the first sample arrives.
const restingAngle = 180.0

// statusNotInProfile replaces the phase label while no leg can be measured.
const statusNotInProfile = "not in profile"

// Snapshot is everything the heads-up display shows at one instant.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Phase     Phase     `json:"phase"`
	Status    string    `json:"status"`
	Reps      int       `json:"reps"`
	FormOK    bool      `json:"form_ok"`
	Quality   int       `json:"quality"`
	Feedback  Feedback  `json:"feedback"`
	Message   string    `json:"message"`
	Angle     int       `json:"angle"`
	AngleRaw  float64   `json:"angle_raw"`
	Flash     bool      `json:"flash"`
	Tracking  bool      `json:"tracking"`
	Side      Side      `json:"side,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// QualityPercent maps the form flag to the coarse quality readout.
func QualityPercent(formOK bool) int {
	if formOK {
		return QualityGood
	}
	return QualityBad
}

// Snapshot derives the display values at now. When tracking is false the
// cue and status say the subject must reposition; the rep state is shown
// unchanged.
func (c *Counter) Snapshot(now time.Time, tracking bool, side Side) Snapshot {
	angle := restingAngle
	updated := time.Time{}
	if c.hasSample {
		angle = c.last.Degrees
		updated = c.last.At
	}

	feedback := c.feedback
	status := c.state.Phase.Label()
	if !tracking {
		feedback = FeedbackReposition
		status = statusNotInProfile
	}

	return Snapshot{
		Phase:     c.state.Phase,
		Status:    status,
		Reps:      c.state.Reps,
		FormOK:    c.state.FormOK,
		Quality:   QualityPercent(c.state.FormOK),
		Feedback:  feedback,
		Message:   feedback.Message(),
		Angle:     int(math.Round(angle)),
		AngleRaw:  angle,
		Flash:     c.flash.Active(now),
		Tracking:  tracking,
		Side:      side,
		UpdatedAt: updated,
	}
}
