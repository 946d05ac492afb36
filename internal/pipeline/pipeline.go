package pipeline

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/dudu/faceoverlay/internal/detector"
	"github.com/dudu/faceoverlay/internal/geometry"
	"github.com/dudu/faceoverlay/internal/pose"
)

// State is the visibility state of the tracked object
type State int

const (
	StateHidden State = iota
	StateTracking
)

func (s State) String() string {
	if s == StateTracking {
		return "tracking"
	}
	return "hidden"
}

// Timing holds performance timing information
type Timing struct {
	Detection time.Duration
	Geometry  time.Duration
	Total     time.Duration
}

// Report describes the outcome of one pipeline pass
type Report struct {
	State        State
	Transitioned bool // state changed on this frame
	Regions      []Region
	Pose         pose.Pose
	HasPose      bool
	RollOnly     bool // orientation came from the 2D roll fallback
	Timing       Timing
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithReportHook registers a function called with every frame report
func WithReportHook(fn func(Report)) Option {
	return func(p *Pipeline) {
		p.hook = fn
	}
}

// Pipeline turns detection results into region windows and a smoothed object pose.
// It is driven from a single goroutine and is not safe for concurrent use.
type Pipeline struct {
	config   Config
	loops    [regionCount]geometry.Loop
	regions  RegionRenderer
	object   ObjectRenderer
	smoother *pose.Smoother
	logger   *slog.Logger
	hook     func(Report)

	viewportW, viewportH float64
	videoW, videoH       float64
	transform            geometry.Transform
	hasTransform         bool

	state      State
	lastTiming Timing
}

// New creates a pipeline. The region loops are built here, once, from the topology.
func New(config Config, topo detector.Topology, regions RegionRenderer, object ObjectRenderer, opts ...Option) (*Pipeline, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	smoother, err := pose.NewSmoother(config.Blend)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if regions == nil {
		regions = nopRegions{}
	}
	if object == nil {
		object = nopObject{}
	}

	p := &Pipeline{
		config:   config,
		regions:  regions,
		object:   object,
		smoother: smoother,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(p)
	}

	p.loops[RegionLeftEye] = geometry.BuildLoop(geometry.Edges(topo.LeftEye))
	p.loops[RegionRightEye] = geometry.BuildLoop(geometry.Edges(topo.RightEye))
	p.loops[RegionMouth] = geometry.BuildLoop(geometry.Edges(topo.Lips))
	for kind, loop := range p.loops {
		if len(loop) < 3 {
			p.logger.Warn("no contour available, region will not be drawn", "region", RegionKind(kind))
			continue
		}
		p.logger.Debug("region contour built", "region", RegionKind(kind), "points", len(loop))
	}

	p.SetViewport(config.DisplayWidth, config.DisplayHeight)
	return p, nil
}

// Loop returns the precomputed contour of a region
func (p *Pipeline) Loop(kind RegionKind) geometry.Loop {
	return p.loops[kind]
}

// SetViewport updates the display size, recomputing the transform if it changed
func (p *Pipeline) SetViewport(width, height int) {
	w, h := float64(width), float64(height)
	if w == p.viewportW && h == p.viewportH {
		return
	}
	p.viewportW, p.viewportH = w, h
	p.updateTransform()
}

// SetVideoSize updates the source resolution, recomputing the transform if it changed
func (p *Pipeline) SetVideoSize(width, height int) {
	w, h := float64(width), float64(height)
	if w == p.videoW && h == p.videoH {
		return
	}
	p.videoW, p.videoH = w, h
	p.updateTransform()
}

func (p *Pipeline) updateTransform() {
	p.transform, p.hasTransform = geometry.ComputeCover(p.viewportW, p.viewportH, p.videoW, p.videoH)
	if p.hasTransform {
		p.logger.Debug("cover transform updated",
			"viewport", fmt.Sprintf("%.0fx%.0f", p.viewportW, p.viewportH),
			"video", fmt.Sprintf("%.0fx%.0f", p.videoW, p.videoH),
			"scale", p.transform.Scale)
	}
}

// Transform returns the current cover transform, or false before both sizes are known
func (p *Pipeline) Transform() (geometry.Transform, bool) {
	return p.transform, p.hasTransform
}

// State returns the current visibility state
func (p *Pipeline) State() State {
	return p.state
}

// Pose returns the smoothed pose and whether one has ever been computed.
// While hidden this is the frozen pose from the last tracked frame.
func (p *Pipeline) Pose() (pose.Pose, bool) {
	return p.smoother.Current()
}

// LastTiming returns timing from the last ProcessFrame call
func (p *Pipeline) LastTiming() Timing {
	return p.lastTiming
}

// ProcessFrame runs one pass over a detection result: it draws the windows of every
// face and moves the object to the first face. A frame without faces hides the object
// and leaves its pose untouched.
func (p *Pipeline) ProcessFrame(result detector.Result) Report {
	return p.processFrame(result, 0)
}

func (p *Pipeline) processFrame(result detector.Result, detection time.Duration) Report {
	start := time.Now()
	report := p.process(result)
	report.Timing.Detection = detection
	report.Timing.Geometry = time.Since(start)
	report.Timing.Total = detection + report.Timing.Geometry
	p.lastTiming = report.Timing

	if report.Transitioned {
		p.logger.Info("tracking state changed", "state", report.State, "faces", len(result.Faces))
	}
	if p.hook != nil {
		p.hook(report)
	}
	return report
}

func (p *Pipeline) process(result detector.Result) Report {
	var report Report

	if result.Empty() || !p.hasTransform {
		report.Transitioned = p.setState(StateHidden)
		report.State = p.state
		p.object.Hide()
		return report
	}

	source := p.transform.SourceRect()
	var polygons [regionCount][]r2.Point
	for face, landmarks := range result.Faces {
		for kind, loop := range p.loops {
			points, ok := geometry.LoopToDisplayPoints(landmarks, loop, p.transform)
			if !ok {
				continue
			}
			region := Region{
				Face:    face,
				Kind:    RegionKind(kind),
				Style:   p.config.Styles[kind],
				Polygon: points,
				Source:  source,
			}
			p.regions.DrawRegion(region)
			report.Regions = append(report.Regions, region)
			if face == 0 {
				polygons[kind] = points
			}
		}
	}

	if !p.config.TrackObject {
		report.State = p.state
		return report
	}

	target, ok := p.target(result.Faces[0], polygons)
	if !ok {
		p.logger.Debug("face has no usable bounds or eye contours")
		report.Transitioned = p.setState(StateHidden)
		report.State = p.state
		p.object.Hide()
		return report
	}

	report.Transitioned = p.setState(StateTracking)
	report.State = p.state
	report.Pose = p.smoother.Update(target.position, target.rotation, target.scale)
	report.HasPose = true
	report.RollOnly = target.rollOnly
	p.object.ShowPose(report.Pose)
	return report
}

type poseTarget struct {
	position r3.Vec
	rotation quat.Number
	scale    float64
	rollOnly bool
}

// target derives the unsmoothed pose of one face
func (p *Pipeline) target(landmarks detector.Landmarks, polygons [regionCount][]r2.Point) (poseTarget, bool) {
	box, ok := geometry.Bounds(landmarks, p.transform)
	if !ok || box.Width <= 0 {
		return poseTarget{}, false
	}
	// MediaPipe names the eyes from the subject's side, so on an unmirrored frame
	// the subject's right eye is on the viewer's left.
	viewerLeft, viewerRight := polygons[RegionRightEye], polygons[RegionLeftEye]
	if viewerLeft == nil || viewerRight == nil {
		return poseTarget{}, false
	}

	depthScale := box.Width
	left3 := geometry.Centroid3D(landmarks, p.loops[RegionRightEye])
	right3 := geometry.Centroid3D(landmarks, p.loops[RegionLeftEye])
	forehead := geometry.Centroid3D(landmarks, []int{detector.ForeheadIndex})
	chin := geometry.Centroid3D(landmarks, []int{detector.ChinIndex})

	t := poseTarget{scale: box.Width / p.config.ModelWidth}
	t.rotation, ok = pose.EstimateOrientation(left3, right3, forehead, chin, p.transform,
		depthScale, p.viewportW, p.viewportH)
	if !ok {
		t.rotation = pose.RollOrientation(geometry.Centroid2D(viewerLeft), geometry.Centroid2D(viewerRight))
		t.rollOnly = true
	}

	var depth float64
	if anchor := geometry.AverageOf(left3, right3, forehead, chin); anchor != nil {
		depth = anchor.Z
	}
	t.position = r3.Vec{
		X: box.Center.X - p.viewportW/2,
		Y: p.viewportH/2 - box.Center.Y,
		Z: -depth * depthScale,
	}
	return t, true
}

func (p *Pipeline) setState(s State) bool {
	if p.state == s {
		return false
	}
	p.state = s
	return true
}
