package pipeline

import (
	"errors"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/dudu/faceoverlay/internal/detector"
	"github.com/dudu/faceoverlay/internal/geometry"
	"github.com/dudu/faceoverlay/internal/pose"
)

// recorder captures everything the pipeline sends to the renderers.
type recorder struct {
	regions []Region
	poses   []pose.Pose
	hides   int
}

func (r *recorder) DrawRegion(region Region) { r.regions = append(r.regions, region) }
func (r *recorder) ShowPose(p pose.Pose)     { r.poses = append(r.poses, p) }
func (r *recorder) Hide()                    { r.hides++ }

// placeRing puts the landmarks of a region on an ellipse, in loop order.
func placeRing(lms detector.Landmarks, pairs [][2]int, cx, cy, rx, ry float64) {
	loop := geometry.BuildLoop(geometry.Edges(pairs))
	for i, idx := range loop {
		a := 2 * math.Pi * float64(i) / float64(len(loop))
		lms[idx] = detector.Landmark{X: cx + rx*math.Cos(a), Y: cy + ry*math.Sin(a)}
	}
	// indices of a second ring (inner lips) that the walk did not visit
	for _, p := range pairs {
		for _, idx := range p {
			if lms[idx] == (detector.Landmark{}) {
				lms[idx] = detector.Landmark{X: cx, Y: cy}
			}
		}
	}
}

// syntheticFace builds an upright face mesh centred on (cx, cy) in normalized coordinates.
func syntheticFace(cx, cy, size float64) detector.Landmarks {
	topo := detector.FaceMeshTopology()
	lms := make(detector.Landmarks, detector.FaceMeshPoints)
	for i := range lms {
		lms[i] = detector.Landmark{}
	}
	// The subject's left eye appears on the viewer's right.
	placeRing(lms, topo.LeftEye, cx+0.3*size, cy-0.1*size, 0.08*size, 0.03*size)
	placeRing(lms, topo.RightEye, cx-0.3*size, cy-0.1*size, 0.08*size, 0.03*size)
	placeRing(lms, topo.Lips, cx, cy+0.3*size, 0.15*size, 0.05*size)
	lms[detector.ForeheadIndex] = detector.Landmark{X: cx, Y: cy - 0.5*size}
	lms[detector.ChinIndex] = detector.Landmark{X: cx, Y: cy + 0.5*size}
	for i := range lms {
		if lms[i] == (detector.Landmark{}) {
			lms[i] = detector.Landmark{X: cx, Y: cy}
		}
	}
	return lms
}

func newTestPipeline(t *testing.T, config Config, opts ...Option) (*Pipeline, *recorder) {
	t.Helper()
	rec := &recorder{}
	p, err := New(config, detector.FaceMeshTopology(), rec, rec, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p.SetVideoSize(config.DisplayWidth, config.DisplayHeight)
	return p, rec
}

func testConfig() Config {
	c := DefaultConfig()
	c.DisplayWidth, c.DisplayHeight = 640, 480
	c.Blend = 0.2
	return c
}

func oneFace() detector.Result {
	return detector.Result{Faces: []detector.Landmarks{syntheticFace(0.5, 0.5, 0.4)}}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero display", func(c *Config) { c.DisplayWidth = 0 }},
		{"zero blend", func(c *Config) { c.Blend = 0 }},
		{"blend above one", func(c *Config) { c.Blend = 1.5 }},
		{"zero model width", func(c *Config) { c.ModelWidth = 0 }},
		{"negative line width", func(c *Config) { c.Styles[RegionMouth].LineWidth = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := testConfig()
			tt.mutate(&c)
			if _, err := New(c, detector.FaceMeshTopology(), nil, nil); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNew_BuildsLoops(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig())
	want := map[RegionKind]int{RegionLeftEye: 16, RegionRightEye: 16, RegionMouth: 20}
	for kind, n := range want {
		if got := len(p.Loop(kind)); got != n {
			t.Errorf("%s loop length = %d, want %d", kind, got, n)
		}
	}
}

func TestNew_EmptyTopology(t *testing.T) {
	p, err := New(testConfig(), detector.Topology{}, nil, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	p.SetVideoSize(640, 480)
	report := p.ProcessFrame(oneFace())
	if len(report.Regions) != 0 {
		t.Errorf("regions = %d, want 0 without topology", len(report.Regions))
	}
	if report.State != StateHidden {
		t.Errorf("state = %v, want hidden without eye contours", report.State)
	}
}

func TestProcessFrame_EndToEnd(t *testing.T) {
	p, rec := newTestPipeline(t, testConfig())
	if p.State() != StateHidden {
		t.Fatalf("initial state = %v, want hidden", p.State())
	}

	report := p.ProcessFrame(oneFace())
	if report.State != StateTracking || !report.Transitioned {
		t.Fatalf("state = %v transitioned = %v, want tracking transition", report.State, report.Transitioned)
	}
	if !report.HasPose {
		t.Fatal("no pose while tracking")
	}
	if len(report.Regions) != 3 {
		t.Fatalf("regions = %d, want 3", len(report.Regions))
	}
	for _, r := range report.Regions {
		if len(r.Polygon) < 3 {
			t.Errorf("%s polygon has %d points", r.Kind, len(r.Polygon))
		}
		if r.Style != p.config.Styles[r.Kind] {
			t.Errorf("%s style = %+v, want %+v", r.Kind, r.Style, p.config.Styles[r.Kind])
		}
	}
	if len(rec.regions) != 3 || len(rec.poses) != 1 {
		t.Errorf("renderer got %d regions and %d poses, want 3 and 1", len(rec.regions), len(rec.poses))
	}
	if report.RollOnly {
		t.Error("upright face fell back to roll-only orientation")
	}

	tracked, ok := p.Pose()
	if !ok {
		t.Fatal("Pose() not available after tracking")
	}

	report = p.ProcessFrame(detector.Result{})
	if report.State != StateHidden || !report.Transitioned {
		t.Fatalf("state = %v transitioned = %v, want hidden transition", report.State, report.Transitioned)
	}
	if rec.hides != 1 {
		t.Errorf("hide signals = %d, want 1", rec.hides)
	}
	frozen, ok := p.Pose()
	if !ok || frozen != tracked {
		t.Errorf("pose after hide = %+v, want frozen %+v", frozen, tracked)
	}
	if len(rec.regions) != 3 {
		t.Errorf("regions drawn on an empty frame: %d", len(rec.regions)-3)
	}
}

func TestProcessFrame_UprightPose(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig())
	report := p.ProcessFrame(oneFace())

	if math.Abs(report.Pose.Position.X) > 1e-6 || math.Abs(report.Pose.Position.Y) > 1e-6 {
		t.Errorf("position = %v, want the viewport centre", report.Pose.Position)
	}
	x, y, z := pose.Axes(report.Pose.Rotation)
	for name, pair := range map[string][2]r3.Vec{
		"x": {x, {X: 1}},
		"y": {y, {Y: 1}},
		"z": {z, {Z: 1}},
	} {
		if r3.Norm(r3.Sub(pair[0], pair[1])) > 1e-6 {
			t.Errorf("axis %s = %v, want %v", name, pair[0], pair[1])
		}
	}

	// bounds run from the eye corners across the face
	wantWidth := 0.76 * 0.4 * 640
	if math.Abs(report.Pose.Scale-wantWidth) > 1e-6 {
		t.Errorf("scale = %v, want %v", report.Pose.Scale, wantWidth)
	}
}

func TestProcessFrame_Smoothing(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig())
	first := p.ProcessFrame(oneFace()).Pose

	moved := detector.Result{Faces: []detector.Landmarks{syntheticFace(0.6, 0.5, 0.4)}}
	second := p.ProcessFrame(moved).Pose

	// target moved 0.1 * 640 pixels to the right, blend 0.2
	if got, want := second.Position.X-first.Position.X, 0.2*64; math.Abs(got-want) > 1e-6 {
		t.Errorf("position moved %v, want %v", got, want)
	}
}

func TestProcessFrame_ReappearKeepsPose(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig())
	p.ProcessFrame(oneFace())
	frozen, _ := p.Pose()

	p.ProcessFrame(detector.Result{})

	moved := detector.Result{Faces: []detector.Landmarks{syntheticFace(0.6, 0.5, 0.4)}}
	report := p.ProcessFrame(moved)
	if report.State != StateTracking || !report.Transitioned {
		t.Fatalf("state = %v, want tracking transition", report.State)
	}
	// blends from the frozen pose instead of snapping to the new target
	if got, want := report.Pose.Position.X, frozen.Position.X+0.2*64; math.Abs(got-want) > 1e-6 {
		t.Errorf("position.X = %v, want %v", got, want)
	}
}

func TestProcessFrame_MultipleFaces(t *testing.T) {
	p, rec := newTestPipeline(t, testConfig())
	result := detector.Result{Faces: []detector.Landmarks{
		syntheticFace(0.3, 0.5, 0.2),
		syntheticFace(0.7, 0.5, 0.2),
	}}

	report := p.ProcessFrame(result)
	if len(report.Regions) != 6 {
		t.Fatalf("regions = %d, want 6", len(report.Regions))
	}
	faces := map[int]int{}
	for _, r := range rec.regions {
		faces[r.Face]++
	}
	if faces[0] != 3 || faces[1] != 3 {
		t.Errorf("regions per face = %v, want 3 each", faces)
	}
	if report.Pose.Position.X >= 0 {
		t.Errorf("pose follows face at x=%v, want the first (left) face", report.Pose.Position.X)
	}
}

func TestProcessFrame_ShortLandmarks(t *testing.T) {
	p, rec := newTestPipeline(t, testConfig())
	short := detector.Result{Faces: []detector.Landmarks{{{X: 0.5, Y: 0.5}, {X: 0.4, Y: 0.4}}}}

	report := p.ProcessFrame(short)
	if len(report.Regions) != 0 {
		t.Errorf("regions = %d, want 0", len(report.Regions))
	}
	if report.State != StateHidden || report.HasPose {
		t.Errorf("state = %v hasPose = %v, want hidden without pose", report.State, report.HasPose)
	}
	if rec.hides != 1 {
		t.Errorf("hide signals = %d, want 1", rec.hides)
	}
}

func TestProcessFrame_RollFallback(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig())
	face := syntheticFace(0.5, 0.5, 0.4)
	face[detector.ForeheadIndex] = face[detector.ChinIndex]

	report := p.ProcessFrame(detector.Result{Faces: []detector.Landmarks{face}})
	if report.State != StateTracking {
		t.Fatalf("state = %v, want tracking", report.State)
	}
	if !report.RollOnly {
		t.Error("degenerate anchors did not use the roll fallback")
	}
	x, _, _ := pose.Axes(report.Pose.Rotation)
	if r3.Norm(r3.Sub(x, r3.Vec{X: 1})) > 1e-6 {
		t.Errorf("x axis = %v, want +x for level eyes", x)
	}
}

func TestProcessFrame_NoTransform(t *testing.T) {
	rec := &recorder{}
	p, err := New(testConfig(), detector.FaceMeshTopology(), rec, rec)
	if err != nil {
		t.Fatal(err)
	}
	report := p.ProcessFrame(oneFace())
	if report.State != StateHidden || len(report.Regions) != 0 {
		t.Errorf("state = %v regions = %d, want hidden with no regions before the video size is known",
			report.State, len(report.Regions))
	}
}

func TestProcessFrame_WindowsOnly(t *testing.T) {
	c := testConfig()
	c.TrackObject = false
	p, rec := newTestPipeline(t, c)

	report := p.ProcessFrame(oneFace())
	if len(report.Regions) != 3 {
		t.Errorf("regions = %d, want 3", len(report.Regions))
	}
	if report.HasPose || len(rec.poses) != 0 {
		t.Error("pose produced with object tracking disabled")
	}
}

func TestProcessFrame_ReportHook(t *testing.T) {
	var reports []Report
	p, _ := newTestPipeline(t, testConfig(), WithReportHook(func(r Report) { reports = append(reports, r) }))
	p.ProcessFrame(oneFace())
	p.ProcessFrame(detector.Result{})
	if len(reports) != 2 {
		t.Fatalf("hook called %d times, want 2", len(reports))
	}
	if reports[0].State != StateTracking || reports[1].State != StateHidden {
		t.Errorf("hook states = %v, %v", reports[0].State, reports[1].State)
	}
}

func TestSetViewport_RecomputesTransform(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig())
	before, ok := p.Transform()
	if !ok {
		t.Fatal("no transform after sizes are set")
	}

	p.SetViewport(800, 600)
	after, _ := p.Transform()
	want, _ := geometry.ComputeCover(800, 600, 640, 480)
	if after != want {
		t.Errorf("transform = %+v, want %+v", after, want)
	}
	if after == before {
		t.Error("transform unchanged after viewport resize")
	}

	p.SetVideoSize(1280, 720)
	after, _ = p.Transform()
	want, _ = geometry.ComputeCover(800, 600, 1280, 720)
	if after != want {
		t.Errorf("transform = %+v, want %+v", after, want)
	}
}

func TestStateString(t *testing.T) {
	if StateHidden.String() != "hidden" || StateTracking.String() != "tracking" {
		t.Errorf("State strings = %q, %q", StateHidden, StateTracking)
	}
}
