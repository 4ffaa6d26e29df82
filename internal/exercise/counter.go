package exercise

import "time"

// Phase is the binary state of the rep cycle.
type Phase string

const (
	// PhaseDown is the starting phase: the lifter is expected to descend.
	PhaseDown Phase = "down"
	// PhaseUp is entered once full depth is reached: the lifter drives up.
	PhaseUp Phase = "up"
)

// Label is the short status shown for the phase.
func (p Phase) Label() string {
	if p == PhaseUp {
		return "drive up"
	}
	return "ready"
}

// Feedback is the coaching cue derived from the latest angle.
type Feedback string

const (
	FeedbackWaiting    Feedback = "waiting"
	FeedbackDescend    Feedback = "descend"
	FeedbackGood       Feedback = "good"
	FeedbackGoLower    Feedback = "go_lower"
	FeedbackReposition Feedback = "reposition"
)

// Message is the text displayed for the cue.
func (f Feedback) Message() string {
	switch f {
	case FeedbackDescend:
		return "Go down!"
	case FeedbackGood:
		return "Perfect!"
	case FeedbackGoLower:
		return "Lower +"
	case FeedbackReposition:
		return "Turn side-on to the camera"
	default:
		return "Waiting..."
	}
}

// RepState is the state owned by the rep/form state machine.
type RepState struct {
	Phase  Phase `json:"phase"`
	Reps   int   `json:"reps"`
	FormOK bool  `json:"form_ok"`
}

// InitialRepState is the state at session start and after a reset.
func InitialRepState() RepState {
	return RepState{Phase: PhaseDown, Reps: 0, FormOK: true}
}

// AngleSample is one accepted knee angle measurement.
type AngleSample struct {
	Degrees float64
	At      time.Time
}

// EventType names a state machine event.
type EventType string

const (
	EventRepCompleted EventType = "rep_completed"
	EventFormWarning  EventType = "form_warning"
	EventReset        EventType = "reset"
)

// Event is emitted by the counter when something worth announcing happens.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Reps      int       `json:"reps"`
	Angle     float64   `json:"angle"`
	Side      Side      `json:"side,omitempty"`
	At        time.Time `json:"at"`
}

// Flash is the transient success signal shown after a rep. It is a value
// with an expiry rather than a timer, so it needs no clearing callback.
type Flash struct {
	Until time.Time
}

// Active reports whether the flash is still on at now.
func (f Flash) Active(now time.Time) bool {
	return !f.Until.IsZero() && now.Before(f.Until)
}

// Counter counts squat reps and grades depth from a stream of knee angles.
// It is not safe for concurrent use.
type Counter struct {
	thresholds Thresholds
	state      RepState
	feedback   Feedback
	flash      Flash
	last       AngleSample
	hasSample  bool
}

// NewCounter creates a counter in the initial state.
func NewCounter(t Thresholds) *Counter {
	return &Counter{
		thresholds: t,
		state:      InitialRepState(),
		feedback:   FeedbackWaiting,
	}
}

// Update feeds one accepted angle sample through the state machine and
// returns the events it produced, if any.
//
//	angle > Extension:           up -> down counts a rep; form ok; "go down"
//	angle < Flexion:             -> up; form ok; "perfect"
//	Flexion <= angle <= Warning: form bad; "lower" (either phase unless gated)
//	otherwise:                   no change
func (c *Counter) Update(s AngleSample) []Event {
	c.last = s
	c.hasSample = true

	t := c.thresholds
	var events []Event

	switch {
	case s.Degrees > t.Extension:
		if c.state.Phase == PhaseUp {
			c.state.Reps++
			c.state.Phase = PhaseDown
			c.flash = Flash{Until: s.At.Add(t.FlashDuration)}
			events = append(events, Event{Type: EventRepCompleted, Reps: c.state.Reps, Angle: s.Degrees, At: s.At})
		}
		c.state.FormOK = true
		c.feedback = FeedbackDescend

	case s.Degrees < t.Flexion:
		c.state.Phase = PhaseUp
		c.state.FormOK = true
		c.feedback = FeedbackGood

	case s.Degrees <= t.DepthWarning:
		if t.GateDepthWarning && c.state.Phase == PhaseUp {
			break
		}
		if c.state.FormOK {
			events = append(events, Event{Type: EventFormWarning, Reps: c.state.Reps, Angle: s.Degrees, At: s.At})
		}
		c.state.FormOK = false
		c.feedback = FeedbackGoLower
	}

	return events
}

// Reset restores the initial state and clears the flash.
func (c *Counter) Reset(now time.Time) Event {
	c.state = InitialRepState()
	c.feedback = FeedbackWaiting
	c.flash = Flash{}
	return Event{Type: EventReset, At: now}
}

// State returns the current rep state.
func (c *Counter) State() RepState {
	return c.state
}

// Feedback returns the current coaching cue.
func (c *Counter) Feedback() Feedback {
	return c.feedback
}

// Flash returns the current success flash token.
func (c *Counter) Flash() Flash {
	return c.flash
}

// LastSample returns the most recent accepted sample.
func (c *Counter) LastSample() (AngleSample, bool) {
	return c.last, c.hasSample
}

// Thresholds returns the bands in use.
func (c *Counter) Thresholds() Thresholds {
	return c.thresholds
}

// SetThresholds replaces the bands without touching the rep state.
func (c *Counter) SetThresholds(t Thresholds) {
	c.thresholds = t
}
