// Package overlay draws the squat heads-up display onto camera frames.
package overlay

import (
	"errors"
	"image"
	"image/color"
	"math"
	"strconv"

	"gocv.io/x/gocv"

	"github.com/ayusman/squatcoach/internal/detector"
	"github.com/ayusman/squatcoach/internal/exercise"
)

// ErrMissingSurface is returned when there is no frame to draw on.
var ErrMissingSurface = errors.New("overlay: missing drawing surface")

var (
	// ColorGood is used for the skeleton, limb and border while form is good.
	ColorGood = color.RGBA{R: 0x00, G: 0xf2, B: 0xfe, A: 0xff}
	// ColorBad is used for the skeleton and limb while the lifter is above
	// depth.
	ColorBad = color.RGBA{R: 0xff, G: 0x00, B: 0x7c, A: 0xff}

	colorLabel = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Drawing sizes in pixels.
const (
	skeletonThickness = 2
	jointRadius       = 3
	glowThickness     = 18
	glowOpacity       = 0.35
	limbThickness     = 6
	limbJointRadius   = 8
	labelOffset       = 30
	labelScale        = 1.2
	labelThickness    = 3
	degreeRadius      = 5
	borderThickness   = 14
)

// View is the state to draw for one frame.
type View struct {
	// Landmarks of the whole body in normalized coordinates.
	Landmarks []detector.Landmark
	// Triplet is the measured leg, or nil when the frame was rejected.
	Triplet *exercise.Triplet
	// Angle is the knee angle in degrees.
	Angle  float64
	FormOK bool
	Flash  bool
}

// Options configures a Renderer.
type Options struct {
	// Mirror flips the frame horizontally, as a front camera preview does.
	Mirror bool
	// MinVisibility hides skeleton points the model is unsure about.
	MinVisibility float64
	// Skeleton draws the full body in addition to the measured leg.
	Skeleton bool
}

// DefaultOptions returns the options used by the live app.
func DefaultOptions() Options {
	return Options{
		Mirror:        true,
		MinVisibility: exercise.DefaultMinVisibility,
		Skeleton:      true,
	}
}

// Renderer draws a View onto frames. It keeps no per-frame state.
type Renderer struct {
	opts Options
}

// NewRenderer creates a renderer with the given options.
func NewRenderer(opts Options) *Renderer {
	return &Renderer{opts: opts}
}

// Options returns the renderer configuration.
func (r *Renderer) Options() Options {
	return r.opts
}

// Render draws v onto frame in place. Geometry is drawn in camera space
// before the mirror flip; text is drawn after it at the mirrored knee
// position so it stays right-reading.
func (r *Renderer) Render(frame *gocv.Mat, v View) error {
	if frame == nil || frame.Empty() {
		return ErrMissingSurface
	}

	w, h := frame.Cols(), frame.Rows()
	c := formColor(v.FormOK)

	if r.opts.Skeleton {
		r.drawSkeleton(frame, v.Landmarks, c)
	}
	if v.Triplet != nil {
		drawLimb(frame, *v.Triplet, c)
	}

	if r.opts.Mirror {
		gocv.Flip(*frame, frame, 1)
	}

	if v.Triplet != nil {
		knee := toPixel(v.Triplet.Knee, w, h)
		if r.opts.Mirror {
			knee.X = w - 1 - knee.X
		}
		drawAngleLabel(frame, knee, v.Angle)
	}

	if v.Flash {
		gocv.Rectangle(frame, image.Rect(0, 0, w, h), ColorGood, borderThickness)
	}
	return nil
}

// formColor returns the skeleton and limb color for the current form.
func formColor(formOK bool) color.RGBA {
	if formOK {
		return ColorGood
	}
	return ColorBad
}

func (r *Renderer) drawSkeleton(frame *gocv.Mat, landmarks []detector.Landmark, c color.RGBA) {
	w, h := frame.Cols(), frame.Rows()
	visible := func(i int) bool {
		return i < len(landmarks) && landmarks[i].Visibility >= r.opts.MinVisibility
	}

	for _, conn := range detector.PoseConnections {
		if !visible(conn[0]) || !visible(conn[1]) {
			continue
		}
		gocv.Line(frame, toPixel(landmarks[conn[0]], w, h), toPixel(landmarks[conn[1]], w, h), c, skeletonThickness)
	}
	for i := range landmarks {
		if visible(i) {
			gocv.Circle(frame, toPixel(landmarks[i], w, h), jointRadius, c, -1)
		}
	}
}

// drawLimb draws the hip-knee-ankle path with a translucent glow under a
// solid core line.
func drawLimb(frame *gocv.Mat, t exercise.Triplet, c color.RGBA) {
	w, h := frame.Cols(), frame.Rows()
	hip, knee, ankle := toPixel(t.Hip, w, h), toPixel(t.Knee, w, h), toPixel(t.Ankle, w, h)

	glow := frame.Clone()
	defer glow.Close()

	gocv.Line(&glow, hip, knee, c, glowThickness)
	gocv.Line(&glow, knee, ankle, c, glowThickness)
	gocv.AddWeighted(glow, glowOpacity, *frame, 1-glowOpacity, 0, frame)

	gocv.Line(frame, hip, knee, c, limbThickness)
	gocv.Line(frame, knee, ankle, c, limbThickness)
	for _, p := range []image.Point{hip, knee, ankle} {
		gocv.Circle(frame, p, limbJointRadius, c, -1)
	}
}

// drawAngleLabel writes the rounded angle to the right of the knee with a
// small ring for the degree sign.
func drawAngleLabel(frame *gocv.Mat, knee image.Point, degrees float64) {
	text := strconv.Itoa(int(math.Round(degrees)))
	origin := image.Pt(knee.X+labelOffset, knee.Y)

	gocv.PutText(frame, text, origin, gocv.FontHersheyDuplex, labelScale, colorLabel, labelThickness)

	size := gocv.GetTextSize(text, gocv.FontHersheyDuplex, labelScale, labelThickness)
	ring := image.Pt(origin.X+size.X+degreeRadius+2, origin.Y-size.Y+degreeRadius)
	gocv.Circle(frame, ring, degreeRadius, colorLabel, 2)
}

func toPixel(l detector.Landmark, w, h int) image.Point {
	return image.Pt(int(math.Round(l.X*float64(w))), int(math.Round(l.Y*float64(h))))
}
