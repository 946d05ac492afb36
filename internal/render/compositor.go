package render

import (
	"image"
	"image/color"
	"time"

	"github.com/golang/geo/r2"
	"gocv.io/x/gocv"

	"github.com/dudu/faceoverlay/internal/geometry"
	"github.com/dudu/faceoverlay/internal/pipeline"
	"github.com/dudu/faceoverlay/internal/pose"
)

// Presenter displays composed frames
type Presenter interface {
	Show(frame *gocv.Mat)
	WaitKey(delayMs int) int
}

// Resizable is implemented by presenters whose display area the user can resize
type Resizable interface {
	Size() (width, height int)
}

// idleWait is how long Idle waits for window events
const idleWait = 10 * time.Millisecond

// Options configures the compositor
type Options struct {
	Width, Height int
	Background    float64 // brightness of the video outside the windows, 0 is black
	Gizmo         bool    // draw the tracked pose axes
	GizmoLength   float64 // axis length as a fraction of the pose scale
	Feather       int     // edge blur kernel in pixels, 0 for hard edges
}

// DefaultOptions returns a black background with the pose gizmo on
func DefaultOptions(width, height int) Options {
	return Options{Width: width, Height: height, Gizmo: true, GizmoLength: 0.5}
}

// Compositor paints camera pixels into the region windows on a display-sized
// canvas and hands the result to a presenter. It implements the pipeline's
// Compositor, RegionRenderer and ObjectRenderer for gocv frames.
type Compositor struct {
	opts    Options
	out     Presenter
	canvas  gocv.Mat
	painted gocv.Mat
	mask    gocv.Mat
	frame   gocv.Mat
	active  bool
	source  r2.Rect
	status  string
	feather *feather
}

// NewCompositor creates a compositor. out may be nil to compose without display.
func NewCompositor(opts Options, out Presenter) *Compositor {
	c := &Compositor{
		opts:    opts,
		out:     out,
		canvas:  gocv.NewMatWithSize(opts.Height, opts.Width, gocv.MatTypeCV8UC3),
		painted: gocv.NewMat(),
		mask:    gocv.NewMatWithSize(opts.Height, opts.Width, gocv.MatTypeCV8UC1),
		source:  r2.EmptyRect(),
	}
	if opts.Feather > 0 {
		c.feather = newFeather(opts.Feather)
	}
	return c
}

// Begin starts a frame. The frame must stay valid until End.
func (c *Compositor) Begin(frame pipeline.VideoFrame[gocv.Mat]) {
	c.frame = frame.Image
	c.active = frame.Width > 0 && frame.Height > 0
	c.source = r2.EmptyRect()
	c.canvas.SetTo(gocv.NewScalar(0, 0, 0, 0))

	if !c.active || c.opts.Background <= 0 {
		return
	}
	t, ok := geometry.ComputeCover(float64(c.opts.Width), float64(c.opts.Height),
		float64(frame.Width), float64(frame.Height))
	if !ok {
		return
	}
	c.paint(t.SourceRect())
	c.painted.ConvertToWithParams(&c.canvas, gocv.MatTypeCV8UC3, float32(c.opts.Background), 0)
}

// DrawRegion copies the painted video into the canvas through the region polygon
func (c *Compositor) DrawRegion(region pipeline.Region) {
	if !c.active || len(region.Polygon) < 3 {
		return
	}
	c.paint(region.Source)

	pts := make([]image.Point, len(region.Polygon))
	for i, p := range region.Polygon {
		pts[i] = image.Pt(int(p.X+0.5), int(p.Y+0.5))
	}
	pv := gocv.NewPointsVectorFromPoints([][]image.Point{pts})
	defer pv.Close()

	c.mask.SetTo(gocv.NewScalar(0, 0, 0, 0))
	gocv.FillPoly(&c.mask, pv, color.RGBA{R: 255, G: 255, B: 255, A: 255})
	if c.feather != nil {
		c.feather.blend(c.painted, &c.canvas, c.mask)
	} else {
		c.painted.CopyToWithMask(&c.canvas, c.mask)
	}

	if region.Style.Outline && region.Style.LineWidth > 0 {
		gocv.Polylines(&c.canvas, pv, true, region.Style.Color, region.Style.LineWidth)
	}
}

// ShowPose draws the pose axes at the tracked position
func (c *Compositor) ShowPose(p pose.Pose) {
	if !c.opts.Gizmo {
		return
	}
	origin, ends := GizmoPoints(p, c.opts.Width, c.opts.Height, c.opts.GizmoLength)
	colors := [3]color.RGBA{
		{R: 255, G: 80, B: 80, A: 255},
		{R: 80, G: 255, B: 80, A: 255},
		{R: 80, G: 80, B: 255, A: 255},
	}
	for i, end := range ends {
		gocv.ArrowedLine(&c.canvas, origin, end, colors[i], 2)
	}
}

// Hide is a no-op: the canvas is cleared every frame
func (c *Compositor) Hide() {}

// SetStatus sets the text drawn in the top-left corner
func (c *Compositor) SetStatus(text string) {
	c.status = text
}

// End presents the canvas. It returns pipeline.ErrStopped when the user quits.
func (c *Compositor) End() error {
	c.active = false

	if c.status != "" {
		gocv.PutText(&c.canvas, c.status, image.Pt(10, 60),
			gocv.FontHersheyPlain, 1.5, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 2)
	}
	if c.out == nil {
		return nil
	}

	c.out.Show(&c.canvas)
	// WaitKey must be called to process window events on macOS
	return quit(c.out.WaitKey(1))
}

// Idle keeps the window responsive while the camera delivers nothing. It returns
// pipeline.ErrStopped when the user quits.
func (c *Compositor) Idle() error {
	if c.out == nil {
		time.Sleep(idleWait)
		return nil
	}
	return quit(c.out.WaitKey(int(idleWait / time.Millisecond)))
}

// Viewport follows the presenter's display size, reallocating the canvas when it
// changed. ok is false when the presenter cannot report a size.
func (c *Compositor) Viewport() (width, height int, ok bool) {
	r, ok := c.out.(Resizable)
	if !ok {
		return c.opts.Width, c.opts.Height, false
	}
	width, height = r.Size()
	if width <= 0 || height <= 0 {
		return c.opts.Width, c.opts.Height, false
	}
	if width != c.opts.Width || height != c.opts.Height {
		c.resize(width, height)
	}
	return width, height, true
}

func (c *Compositor) resize(width, height int) {
	c.opts.Width, c.opts.Height = width, height
	c.canvas.Close()
	c.mask.Close()
	c.canvas = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	c.mask = gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	c.source = r2.EmptyRect()
}

func quit(key int) error {
	if key == 'q' || key == 27 { // 'q' or ESC
		return pipeline.ErrStopped
	}
	return nil
}

// Close releases the compositor's buffers
func (c *Compositor) Close() error {
	if c.feather != nil {
		c.feather.Close()
	}
	c.canvas.Close()
	c.painted.Close()
	return c.mask.Close()
}

// paint scales the whole frame into rect on a display-sized buffer, once per rect
func (c *Compositor) paint(rect r2.Rect) {
	if rect.IsEmpty() || c.source == rect {
		return
	}
	c.source = rect

	sx := rect.X.Length() / float64(c.frame.Cols())
	sy := rect.Y.Length() / float64(c.frame.Rows())

	M := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer M.Close()
	M.SetDoubleAt(0, 0, sx)
	M.SetDoubleAt(0, 1, 0)
	M.SetDoubleAt(0, 2, rect.X.Lo)
	M.SetDoubleAt(1, 0, 0)
	M.SetDoubleAt(1, 1, sy)
	M.SetDoubleAt(1, 2, rect.Y.Lo)

	gocv.WarpAffine(c.frame, &c.painted, M, image.Pt(c.opts.Width, c.opts.Height))
}
