package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dudu/faceoverlay/internal/detector"
	"github.com/dudu/faceoverlay/internal/geometry"
)

// fakeFrame stands in for a decoded image.
type fakeFrame struct {
	id int
}

// scriptedSource replays a fixed list of frames and errors.
type scriptedSource struct {
	steps []sourceStep
	pos   int
}

type sourceStep struct {
	frame VideoFrame[fakeFrame]
	err   error
}

func (s *scriptedSource) Next(ctx context.Context) (VideoFrame[fakeFrame], error) {
	if s.pos >= len(s.steps) {
		return VideoFrame[fakeFrame]{}, ErrSourceClosed
	}
	step := s.steps[s.pos]
	s.pos++
	return step.frame, step.err
}

// fakeDetector returns a face for every frame id listed in faces.
type fakeDetector struct {
	faces map[int]bool
	err   error
	calls []int
}

func (d *fakeDetector) Detect(frame fakeFrame, _ time.Duration) (detector.Result, error) {
	d.calls = append(d.calls, frame.id)
	if d.err != nil {
		return detector.Result{}, d.err
	}
	if d.faces[frame.id] {
		return oneFace(), nil
	}
	return detector.Result{}, nil
}

type fakeCompositor struct {
	begun  []int
	ended  int
	stopAt int
}

func (c *fakeCompositor) Begin(frame VideoFrame[fakeFrame]) { c.begun = append(c.begun, frame.Image.id) }

func (c *fakeCompositor) End() error {
	c.ended++
	if c.stopAt > 0 && c.ended >= c.stopAt {
		return ErrStopped
	}
	return nil
}

// idleCompositor counts the ticks serviced without a frame and quits after stopAfter.
type idleCompositor struct {
	fakeCompositor
	idles     int
	stopAfter int
}

func (c *idleCompositor) Idle() error {
	c.idles++
	if c.stopAfter > 0 && c.idles >= c.stopAfter {
		return ErrStopped
	}
	return nil
}

// resizingCompositor reports a new display size once two frames were presented.
type resizingCompositor struct {
	fakeCompositor
	width, height int
}

func (c *resizingCompositor) Viewport() (int, int, bool) {
	if c.ended < 2 {
		return 0, 0, false
	}
	return c.width, c.height, true
}

func frameAt(id int, ms int) sourceStep {
	return sourceStep{frame: VideoFrame[fakeFrame]{
		Image:     fakeFrame{id: id},
		Timestamp: time.Duration(ms) * time.Millisecond,
		Width:     640,
		Height:    480,
	}}
}

func TestRun_SkipsRepeatedTimestamps(t *testing.T) {
	var reports []Report
	p, err := New(testConfig(), detector.FaceMeshTopology(), nil, nil,
		WithReportHook(func(r Report) { reports = append(reports, r) }))
	if err != nil {
		t.Fatal(err)
	}

	src := &scriptedSource{steps: []sourceStep{
		frameAt(1, 0),
		frameAt(2, 0),
		frameAt(3, 33),
		frameAt(4, 33),
		frameAt(5, 66),
	}}
	det := &fakeDetector{faces: map[int]bool{1: true, 3: true}}
	comp := &fakeCompositor{}

	if err := Run[fakeFrame](context.Background(), p, src, det, comp); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	wantCalls := []int{1, 3, 5}
	if len(det.calls) != len(wantCalls) {
		t.Fatalf("detector calls = %v, want %v", det.calls, wantCalls)
	}
	for i := range wantCalls {
		if det.calls[i] != wantCalls[i] || comp.begun[i] != wantCalls[i] {
			t.Errorf("call %d: detector %d compositor %d, want %d", i, det.calls[i], comp.begun[i], wantCalls[i])
		}
	}
	if comp.ended != 3 {
		t.Errorf("compositor End calls = %d, want 3", comp.ended)
	}
	if len(reports) != 3 || reports[0].State != StateTracking || reports[2].State != StateHidden {
		t.Errorf("unexpected reports: %+v", reports)
	}
	if tr, ok := p.Transform(); !ok || tr.VideoWidth != 640 {
		t.Errorf("video size not taken from frames: %+v", tr)
	}
}

func TestRun_DetectorErrorIsEmptyFrame(t *testing.T) {
	rec := &recorder{}
	p, err := New(testConfig(), detector.FaceMeshTopology(), rec, rec)
	if err != nil {
		t.Fatal(err)
	}
	src := &scriptedSource{steps: []sourceStep{frameAt(1, 0), frameAt(2, 10)}}
	det := &fakeDetector{err: errors.New("model crashed")}

	if err := Run[fakeFrame](context.Background(), p, src, det, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(det.calls) != 2 {
		t.Errorf("detector calls = %d, want 2", len(det.calls))
	}
	if rec.hides != 2 || p.State() != StateHidden {
		t.Errorf("hides = %d state = %v, want 2 and hidden", rec.hides, p.State())
	}
}

func TestRun_SkipsMissingFrames(t *testing.T) {
	p, err := New(testConfig(), detector.FaceMeshTopology(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := &scriptedSource{steps: []sourceStep{
		{err: ErrNoFrame},
		frameAt(1, 0),
		{err: ErrNoFrame},
		frameAt(2, 5),
	}}
	det := &fakeDetector{}
	if err := Run[fakeFrame](context.Background(), p, src, det, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(det.calls) != 2 {
		t.Errorf("detector calls = %d, want 2", len(det.calls))
	}
}

func TestRun_SourceError(t *testing.T) {
	p, err := New(testConfig(), detector.FaceMeshTopology(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("device unplugged")
	src := &scriptedSource{steps: []sourceStep{{err: boom}}}
	if err := Run[fakeFrame](context.Background(), p, src, &fakeDetector{}, nil); !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want %v", err, boom)
	}
}

func TestRun_CompositorStop(t *testing.T) {
	p, err := New(testConfig(), detector.FaceMeshTopology(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := &scriptedSource{steps: []sourceStep{frameAt(1, 0), frameAt(2, 1), frameAt(3, 2), frameAt(4, 3)}}
	det := &fakeDetector{}
	comp := &fakeCompositor{stopAt: 2}

	if err := Run[fakeFrame](context.Background(), p, src, det, comp); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(det.calls) != 2 {
		t.Errorf("detector calls = %d, want 2", len(det.calls))
	}
}

func TestRun_Cancelled(t *testing.T) {
	p, err := New(testConfig(), detector.FaceMeshTopology(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	det := &fakeDetector{}
	src := &scriptedSource{steps: []sourceStep{frameAt(1, 0)}}
	if err := Run[fakeFrame](ctx, p, src, det, nil); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(det.calls) != 0 {
		t.Errorf("detector called %d times after cancellation", len(det.calls))
	}
}

func TestRun_IdleServicesDisplayWithoutFrames(t *testing.T) {
	p, err := New(testConfig(), detector.FaceMeshTopology(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := &scriptedSource{steps: []sourceStep{
		frameAt(1, 0),
		{err: ErrNoFrame},
		{err: ErrNoFrame},
		{err: ErrNoFrame},
		frameAt(2, 5),
	}}
	det := &fakeDetector{}
	comp := &idleCompositor{stopAfter: 2}

	if err := Run[fakeFrame](context.Background(), p, src, det, comp); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if comp.idles != 2 {
		t.Errorf("idle calls = %d, want 2", comp.idles)
	}
	if len(det.calls) != 1 || comp.ended != 1 {
		t.Errorf("detector calls = %v, End calls = %d, want one frame before quitting", det.calls, comp.ended)
	}
}

func TestRun_IdleErrorIsReturned(t *testing.T) {
	p, err := New(testConfig(), detector.FaceMeshTopology(), nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	src := &scriptedSource{steps: []sourceStep{{err: ErrNoFrame}}}
	comp := &failingIdle{err: errors.New("display lost")}
	if err := Run[fakeFrame](context.Background(), p, src, &fakeDetector{}, comp); !errors.Is(err, comp.err) {
		t.Errorf("Run() error = %v, want %v", err, comp.err)
	}
}

type failingIdle struct {
	fakeCompositor
	err error
}

func (c *failingIdle) Idle() error { return c.err }

func TestRun_ViewportResizeMovesRegions(t *testing.T) {
	rec := &recorder{}
	p, err := New(testConfig(), detector.FaceMeshTopology(), rec, rec)
	if err != nil {
		t.Fatal(err)
	}
	src := &scriptedSource{steps: []sourceStep{frameAt(1, 0), frameAt(2, 33), frameAt(3, 66)}}
	det := &fakeDetector{faces: map[int]bool{1: true, 2: true, 3: true}}
	comp := &resizingCompositor{width: 1280, height: 720}

	if err := Run[fakeFrame](context.Background(), p, src, det, comp); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.regions) == 0 {
		t.Fatal("no regions drawn")
	}

	startup, _ := geometry.ComputeCover(640, 480, 640, 480)
	if got := rec.regions[0].Source; got != startup.SourceRect() {
		t.Errorf("first region source = %v, want %v", got, startup.SourceRect())
	}
	resized, _ := geometry.ComputeCover(1280, 720, 640, 480)
	if got := rec.regions[len(rec.regions)-1].Source; got != resized.SourceRect() {
		t.Errorf("last region source = %v, want %v", got, resized.SourceRect())
	}
	if tr, _ := p.Transform(); tr != resized {
		t.Errorf("transform = %+v, want %+v", tr, resized)
	}
}
