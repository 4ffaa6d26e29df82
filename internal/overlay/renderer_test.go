package overlay

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/exercise"
)

func TestToPixel(t *testing.T) {
	tests := []struct {
		name string
		lm   detector.Landmark
		want image.Point
	}{
		{name: "origin", lm: detector.Landmark{X: 0, Y: 0}, want: image.Pt(0, 0)},
		{name: "center", lm: detector.Landmark{X: 0.5, Y: 0.5}, want: image.Pt(320, 240)},
		{name: "rounds", lm: detector.Landmark{X: 0.10009, Y: 0.2501}, want: image.Pt(64, 120)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := toPixel(tt.lm, 640, 480); got != tt.want {
				t.Errorf("toPixel() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRender_MissingSurface(t *testing.T) {
	r := NewRenderer(DefaultOptions())

	if err := r.Render(nil, View{}); !errors.Is(err, ErrMissingSurface) {
		t.Errorf("nil frame: expected ErrMissingSurface, got %v", err)
	}
}

func TestRender_EmptyMat(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	r := NewRenderer(DefaultOptions())
	frame := gocv.NewMat()
	defer frame.Close()

	if err := r.Render(&frame, View{}); !errors.Is(err, ErrMissingSurface) {
		t.Errorf("empty frame: expected ErrMissingSurface, got %v", err)
	}
}

func viewFor(degrees float64, formOK, flash bool) View {
	pose := detector.PoseWithKneeAngle(degrees, 0.9, 0.6)
	trip, _ := exercise.SelectTriplet(pose.Landmarks, exercise.DefaultMinVisibility)
	return View{
		Landmarks: pose.Landmarks,
		Triplet:   &trip,
		Angle:     exercise.KneeAngle(trip),
		FormOK:    formOK,
		Flash:     flash,
	}
}

func TestRender_DrawsOnFrame(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	tests := []struct {
		name string
		opts Options
		view View
	}{
		{name: "good form mirrored", opts: DefaultOptions(), view: viewFor(90, true, false)},
		{name: "bad form", opts: Options{MinVisibility: 0.5}, view: viewFor(120, false, false)},
		{name: "flash with skeleton", opts: DefaultOptions(), view: viewFor(170, true, true)},
		{name: "rejected frame", opts: DefaultOptions(), view: View{Landmarks: detector.StandingPose().Landmarks}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
			defer frame.Close()

			if err := NewRenderer(tt.opts).Render(&frame, tt.view); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if frame.Rows() != 480 || frame.Cols() != 640 {
				t.Errorf("frame resized to %dx%d", frame.Cols(), frame.Rows())
			}

			gray := gocv.NewMat()
			defer gray.Close()
			gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)
			if gocv.CountNonZero(gray) == 0 {
				t.Error("nothing was drawn")
			}
		})
	}
}

func TestRender_SkeletonFollowsForm(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	// The shoulder line of the fixture pose crosses (320, 120) and nothing
	// else is drawn there.
	shoulders := image.Pt(320, 120)

	tests := []struct {
		name   string
		formOK bool
		want   color.RGBA
	}{
		{name: "good form", formOK: true, want: ColorGood},
		{name: "bad form", formOK: false, want: ColorBad},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
			defer frame.Close()

			view := View{Landmarks: detector.StandingPose().Landmarks, FormOK: tt.formOK}
			r := NewRenderer(Options{MinVisibility: 0.5, Skeleton: true})
			if err := r.Render(&frame, view); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			px := frame.GetVecbAt(shoulders.Y, shoulders.X)
			if px[0] != tt.want.B || px[1] != tt.want.G || px[2] != tt.want.R {
				t.Errorf("shoulder pixel BGR = %v, want %v", px, []uint8{tt.want.B, tt.want.G, tt.want.R})
			}
		})
	}
}

func TestRender_MirrorFlipsGeometry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping test that requires GoCV Mat creation")
	}

	// A single visible point on the left edge should end up on the right.
	lm := make([]detector.Landmark, detector.NumLandmarks)
	lm[detector.Nose] = detector.Landmark{X: 0.05, Y: 0.5, Visibility: 1}

	frame := gocv.NewMatWithSize(480, 640, gocv.MatTypeCV8UC3)
	defer frame.Close()

	r := NewRenderer(Options{Mirror: true, MinVisibility: 0.5, Skeleton: true})
	if err := r.Render(&frame, View{Landmarks: lm}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	left := gray.Region(image.Rect(0, 0, 320, 480))
	defer left.Close()
	right := gray.Region(image.Rect(320, 0, 640, 480))
	defer right.Close()

	if gocv.CountNonZero(left) != 0 {
		t.Error("expected the left half to be empty after mirroring")
	}
	if gocv.CountNonZero(right) == 0 {
		t.Error("expected the joint on the right half after mirroring")
	}
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	if !opts.Mirror {
		t.Error("live preview should be mirrored")
	}
	if opts.MinVisibility != exercise.DefaultMinVisibility {
		t.Errorf("MinVisibility = %f", opts.MinVisibility)
	}
}
