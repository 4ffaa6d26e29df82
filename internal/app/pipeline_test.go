package app

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/exercise"
	"github.com/ayusman/squatcoach/internal/overlay"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// recorder is an EventSink that keeps every event.
type recorder struct {
	mu     sync.Mutex
	events []exercise.Event
}

func (r *recorder) HandleEvent(e exercise.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(typ exercise.EventType) []exercise.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []exercise.Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func newTestPipeline() *Pipeline {
	return NewPipeline(exercise.DefaultThresholds(), overlay.NewRenderer(overlay.DefaultOptions()), discardLogger())
}

func processAngles(p *Pipeline, angles ...float64) []Outcome {
	var outs []Outcome
	for i, a := range angles {
		res := detector.PoseWithKneeAngle(a, 0.9, 0.4)
		outs = append(outs, p.Process(res, nil, t0.Add(time.Duration(i)*66*time.Millisecond)))
	}
	return outs
}

func TestPipeline_CountsReps(t *testing.T) {
	p := newTestPipeline()
	rec := &recorder{}
	p.AddSink(rec)

	outs := processAngles(p, 170, 90, 170, 150, 95, 165)

	for i, out := range outs {
		if !out.Accepted {
			t.Errorf("frame %d not accepted: %v", i, out.Err)
		}
	}

	last := outs[len(outs)-1].Snapshot
	if last.Reps != 2 {
		t.Errorf("Reps = %d, want 2", last.Reps)
	}
	if last.Side != exercise.SideLeft {
		t.Errorf("Side = %s, want left", last.Side)
	}

	reps := rec.ofType(exercise.EventRepCompleted)
	if len(reps) != 2 {
		t.Fatalf("expected 2 rep events, got %d", len(reps))
	}
	for _, e := range reps {
		if e.SessionID != p.SessionID() {
			t.Errorf("event session = %q, want %q", e.SessionID, p.SessionID())
		}
		if e.Side != exercise.SideLeft {
			t.Errorf("event side = %s, want left", e.Side)
		}
	}
}

func TestPipeline_RejectedFrames(t *testing.T) {
	tests := []struct {
		name    string
		res     *detector.Result
		wantErr error
	}{
		{name: "no person", res: &detector.Result{}, wantErr: ErrNoPerson},
		{name: "nil result", res: nil, wantErr: ErrNoPerson},
		{name: "both legs hidden", res: detector.PoseWithKneeAngle(170, 0.3, 0.2), wantErr: exercise.ErrLowConfidence},
		{name: "truncated landmarks", res: &detector.Result{Landmarks: make([]detector.Landmark, 10)}, wantErr: exercise.ErrIncompleteLandmarks},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestPipeline()
			processAngles(p, 170, 90)
			before := p.Snapshot(t0)

			out := p.Process(tt.res, nil, t0.Add(time.Second))

			if out.Accepted {
				t.Error("frame should be rejected")
			}
			if !errors.Is(out.Err, tt.wantErr) {
				t.Errorf("Err = %v, want %v", out.Err, tt.wantErr)
			}
			s := out.Snapshot
			if s.Reps != before.Reps || s.Phase != before.Phase || s.AngleRaw != before.AngleRaw {
				t.Errorf("rejected frame changed state: %+v -> %+v", before, s)
			}
			if s.Tracking {
				t.Error("Tracking should be false")
			}
			if s.Feedback != exercise.FeedbackReposition {
				t.Errorf("Feedback = %s, want reposition", s.Feedback)
			}
		})
	}
}

func TestPipeline_TrackingRecovers(t *testing.T) {
	p := newTestPipeline()

	p.Process(&detector.Result{}, nil, t0)
	out := processAngles(p, 170)[0]

	if !out.Snapshot.Tracking {
		t.Error("tracking should recover on an accepted frame")
	}
}

func TestPipeline_NilSurfaceStillUpdates(t *testing.T) {
	p := newTestPipeline()

	outs := processAngles(p, 170, 90, 170)

	last := outs[len(outs)-1]
	if last.Rendered {
		t.Error("nothing should be rendered without a frame")
	}
	if last.Snapshot.Reps != 1 {
		t.Errorf("Reps = %d, want 1", last.Snapshot.Reps)
	}
}

func TestPipeline_Reset(t *testing.T) {
	p := newTestPipeline()
	rec := &recorder{}
	p.AddSink(rec)
	processAngles(p, 170, 90, 170, 120)
	oldSession := p.SessionID()

	snap := p.Reset(t0.Add(time.Minute))

	if snap.Reps != 0 || snap.Phase != exercise.PhaseDown || !snap.FormOK {
		t.Errorf("unexpected snapshot after reset: %+v", snap)
	}
	if snap.SessionID == oldSession {
		t.Error("reset should start a new session")
	}
	if got := rec.ofType(exercise.EventReset); len(got) != 1 || got[0].SessionID != snap.SessionID {
		t.Errorf("unexpected reset events %+v", got)
	}
}

func TestPipeline_SetThresholds(t *testing.T) {
	p := newTestPipeline()

	bad := exercise.DefaultThresholds()
	bad.Flexion = 150
	if err := p.SetThresholds(bad); !errors.Is(err, exercise.ErrInvalidThresholds) {
		t.Errorf("expected ErrInvalidThresholds, got %v", err)
	}
	if p.Thresholds() != exercise.DefaultThresholds() {
		t.Error("invalid thresholds must not be applied")
	}

	good := exercise.DefaultThresholds()
	good.Extension = 165
	if err := p.SetThresholds(good); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outs := processAngles(p, 90, 160)
	if outs[1].Snapshot.Reps != 0 {
		t.Error("160 should not complete a rep with extension at 165")
	}
}

func TestPipeline_SinkFunc(t *testing.T) {
	p := newTestPipeline()

	var got []exercise.EventType
	p.AddSink(EventSinkFunc(func(e exercise.Event) {
		got = append(got, e.Type)
	}))

	processAngles(p, 170, 120, 90, 170)

	want := []exercise.EventType{exercise.EventFormWarning, exercise.EventRepCompleted}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestPipeline_SinkCanReadSnapshot(t *testing.T) {
	p := newTestPipeline()

	var reps int
	p.AddSink(EventSinkFunc(func(e exercise.Event) {
		reps = p.Snapshot(e.At).Reps
	}))

	processAngles(p, 170, 90, 170)

	if reps != 1 {
		t.Errorf("sink saw %d reps, want 1", reps)
	}
}
