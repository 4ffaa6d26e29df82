package replay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/cheggaaa/pb/v3"

	"github.com/ayusman/squatcoach/internal/app"
	"github.com/ayusman/squatcoach/internal/exercise"
)

const barTemplate = `{{ string . "prefix" }} {{counters . }} {{bar . }} {{percent . }} {{etime . "%s elapsed"}}`

// Options configures a replay run.
type Options struct {
	// Start is the timestamp of the first frame. Zero means time.Now().
	Start time.Time
	// Progress receives a progress bar when not nil.
	Progress io.Writer
	// Realtime paces frames at the recording's rate instead of as fast as
	// possible.
	Realtime bool
}

// Summary describes the outcome of a replay.
type Summary struct {
	Frames       int               `json:"frames"`
	Accepted     int               `json:"accepted"`
	Rejected     int               `json:"rejected"`
	NoPerson     int               `json:"no_person"`
	Reps         int               `json:"reps"`
	FormWarnings int               `json:"form_warnings"`
	Duration     time.Duration     `json:"duration"`
	Final        exercise.Snapshot `json:"final"`
}

// Run feeds every frame of rec through p in order and summarizes the
// outcome. Frames are processed without a render surface. Run stops early
// when ctx is cancelled and returns the partial summary with ctx.Err().
func Run(ctx context.Context, rec *Recording, p *app.Pipeline, opts Options, log *slog.Logger) (Summary, error) {
	if log == nil {
		log = slog.Default()
	}
	start := opts.Start
	if start.IsZero() {
		start = time.Now()
	}

	var bar *pb.ProgressBar
	if opts.Progress != nil {
		bar = pb.ProgressBarTemplate(barTemplate).New(len(rec.Frames))
		bar.SetWriter(opts.Progress)
		bar.Set("prefix", "replay")
		bar.Start()
		defer bar.Finish()
	}

	var ticker *time.Ticker
	if opts.Realtime {
		ticker = time.NewTicker(rec.FrameInterval())
		defer ticker.Stop()
	}

	summary := Summary{Duration: rec.Duration()}
	var last time.Time

	for i := range rec.Frames {
		if ticker != nil {
			select {
			case <-ctx.Done():
			case <-ticker.C:
			}
		}
		if err := ctx.Err(); err != nil {
			summary.Final = p.Snapshot(last)
			return summary, err
		}

		res := rec.Result(i, start)
		last = res.Timestamp
		out := p.Process(res, nil, res.Timestamp)

		summary.Frames++
		switch {
		case out.Accepted:
			summary.Accepted++
		case errors.Is(out.Err, app.ErrNoPerson):
			summary.NoPerson++
		default:
			summary.Rejected++
		}
		for _, e := range out.Events {
			switch e.Type {
			case exercise.EventRepCompleted:
				summary.Reps = e.Reps
			case exercise.EventFormWarning:
				summary.FormWarnings++
			}
		}

		if bar != nil {
			bar.Increment()
		}
	}

	summary.Final = p.Snapshot(last)
	summary.Reps = summary.Final.Reps
	log.Info("replay finished",
		"frames", summary.Frames,
		"accepted", summary.Accepted,
		"rejected", summary.Rejected,
		"no_person", summary.NoPerson,
		"reps", summary.Reps,
		"form_warnings", summary.FormWarnings,
	)
	return summary, nil
}
