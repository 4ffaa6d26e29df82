package app

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/overlay"
)

// ErrNoPerson is reported for frames in which the detector found nobody.
var ErrNoPerson = errors.New("no person in frame")

// EventSink receives rep events. HandleEvent is called on the frame
// goroutine and must not block.
type EventSink interface {
	HandleEvent(exercise.Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(exercise.Event)

// HandleEvent calls f(e).
func (f EventSinkFunc) HandleEvent(e exercise.Event) { f(e) }

// Outcome describes what happened to one frame.
type Outcome struct {
	// Accepted is set when a knee angle was measured and fed to the counter.
	Accepted bool
	// Rendered is set when the overlay was drawn onto the frame.
	Rendered bool
	Snapshot exercise.Snapshot
	Events   []exercise.Event
	// Err explains why the frame was not accepted or not rendered.
	Err error
}

// Pipeline is the per-frame driver: landmark selection, knee angle, rep
// state machine and overlay, run synchronously for each frame. It is safe
// for concurrent use; frames are processed one at a time.
type Pipeline struct {
	mu        sync.Mutex
	counter   *exercise.Counter
	renderer  *overlay.Renderer
	log       *slog.Logger
	sessionID string
	tracking  bool
	side      exercise.Side
	sinks     []EventSink
}

// NewPipeline creates a pipeline with a fresh session. A nil renderer
// disables drawing.
func NewPipeline(t exercise.Thresholds, renderer *overlay.Renderer, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		counter:   exercise.NewCounter(t),
		renderer:  renderer,
		log:       log,
		sessionID: uuid.NewString(),
		tracking:  true,
	}
}

// AddSink registers a receiver for rep events.
func (p *Pipeline) AddSink(s EventSink) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sinks = append(p.sinks, s)
}

// Process runs one detection result through the pipeline and draws the
// overlay onto frame when it is usable. A frame without a reliable leg
// leaves the rep state and last angle untouched.
func (p *Pipeline) Process(res *detector.Result, frame *gocv.Mat, now time.Time) Outcome {
	p.mu.Lock()

	var out Outcome
	view := overlay.View{}

	switch {
	case !res.HasPose():
		p.tracking = false
		out.Err = ErrNoPerson

	default:
		view.Landmarks = res.Landmarks
		trip, err := exercise.SelectTriplet(res.Landmarks, p.counter.Thresholds().MinVisibility)
		if err != nil {
			p.tracking = false
			out.Err = err
			break
		}

		angle := exercise.KneeAngle(trip)
		events := p.counter.Update(exercise.AngleSample{Degrees: angle, At: now})
		for i := range events {
			events[i].SessionID = p.sessionID
			events[i].Side = trip.Side
		}

		p.tracking = true
		p.side = trip.Side
		out.Accepted = true
		out.Events = events
		view.Triplet = &trip
	}

	if frame != nil && p.renderer != nil {
		p.fillView(&view, now)
		if err := p.renderer.Render(frame, view); err != nil {
			if out.Err == nil {
				out.Err = err
			}
		} else {
			out.Rendered = true
		}
	}

	out.Snapshot = p.snapshot(now)
	sinks := append([]EventSink(nil), p.sinks...)
	p.mu.Unlock()

	p.dispatch(sinks, out.Events)
	return out
}

// RenderIdle draws the current display state without new landmarks, for
// frames the motion gate kept away from the detector.
func (p *Pipeline) RenderIdle(frame *gocv.Mat, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.renderer == nil {
		return nil
	}
	view := overlay.View{}
	p.fillView(&view, now)
	return p.renderer.Render(frame, view)
}

func (p *Pipeline) fillView(v *overlay.View, now time.Time) {
	if s, ok := p.counter.LastSample(); ok {
		v.Angle = s.Degrees
	}
	v.FormOK = p.counter.State().FormOK
	v.Flash = p.counter.Flash().Active(now)
}

// Reset returns the counter to its initial state and starts a new session.
func (p *Pipeline) Reset(now time.Time) exercise.Snapshot {
	p.mu.Lock()
	ev := p.counter.Reset(now)
	p.sessionID = uuid.NewString()
	p.tracking = true
	p.side = ""
	ev.SessionID = p.sessionID
	snap := p.snapshot(now)
	sinks := append([]EventSink(nil), p.sinks...)
	p.mu.Unlock()

	p.dispatch(sinks, []exercise.Event{ev})
	return snap
}

// Snapshot returns the display state at now.
func (p *Pipeline) Snapshot(now time.Time) exercise.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot(now)
}

func (p *Pipeline) snapshot(now time.Time) exercise.Snapshot {
	s := p.counter.Snapshot(now, p.tracking, p.side)
	s.SessionID = p.sessionID
	return s
}

// Thresholds returns the bands in use.
func (p *Pipeline) Thresholds() exercise.Thresholds {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counter.Thresholds()
}

// SetThresholds validates and applies new bands without resetting reps.
func (p *Pipeline) SetThresholds(t exercise.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counter.SetThresholds(t)
	return nil
}

// SessionID returns the current session identifier.
func (p *Pipeline) SessionID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sessionID
}

func (p *Pipeline) dispatch(sinks []EventSink, events []exercise.Event) {
	for _, e := range events {
		switch e.Type {
		case exercise.EventRepCompleted:
			p.log.Info("rep completed", "reps", e.Reps, "angle", e.Angle, "side", e.Side, "session", e.SessionID)
		case exercise.EventFormWarning:
			p.log.Debug("form warning", "angle", e.Angle, "side", e.Side)
		case exercise.EventReset:
			p.log.Info("session reset", "session", e.SessionID)
		}
		for _, s := range sinks {
			s.HandleEvent(e)
		}
	}
}
