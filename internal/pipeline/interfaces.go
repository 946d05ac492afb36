package pipeline

import (
	"context"
	"errors"
	"image/color"
	"time"

	"github.com/golang/geo/r2"

	"github.com/dudu/faceoverlay/internal/detector"
	"github.com/dudu/faceoverlay/internal/pose"
)

var (
	// ErrSourceClosed is returned by a FrameSource when no more frames will arrive
	ErrSourceClosed = errors.New("frame source closed")
	// ErrNoFrame is returned by a FrameSource when a read produced nothing this tick
	ErrNoFrame = errors.New("no frame available")
	// ErrStopped is returned by a Compositor when the user asked to quit
	ErrStopped = errors.New("stopped by user")
)

// RegionKind identifies a feature region
type RegionKind int

const (
	RegionLeftEye RegionKind = iota
	RegionRightEye
	RegionMouth
	regionCount
)

func (k RegionKind) String() string {
	switch k {
	case RegionLeftEye:
		return "left_eye"
	case RegionRightEye:
		return "right_eye"
	case RegionMouth:
		return "mouth"
	}
	return "unknown"
}

// RegionStyle controls how a region window is painted
type RegionStyle struct {
	Color     color.RGBA
	LineWidth int
	Outline   bool
}

// Region is one clipped window to paint: the polygon in display pixels and the
// display rectangle the whole video frame is drawn into before clipping
type Region struct {
	Face    int
	Kind    RegionKind
	Style   RegionStyle
	Polygon []r2.Point
	Source  r2.Rect
}

// RegionRenderer paints region windows
type RegionRenderer interface {
	DrawRegion(region Region)
}

// ObjectRenderer places or hides the tracked 3D object
type ObjectRenderer interface {
	ShowPose(p pose.Pose)
	Hide()
}

// VideoFrame is one captured frame with its pixel size and capture time
type VideoFrame[F any] struct {
	Image     F
	Timestamp time.Duration
	Width     int
	Height    int
}

// FrameSource delivers video frames
type FrameSource[F any] interface {
	Next(ctx context.Context) (VideoFrame[F], error)
}

// FaceDetector finds face landmarks in a frame
type FaceDetector[F any] interface {
	Detect(frame F, timestamp time.Duration) (detector.Result, error)
}

// Compositor wraps the renderers of one frame: it receives the video frame before
// any region is drawn and presents the result afterward
type Compositor[F any] interface {
	Begin(frame VideoFrame[F])
	End() error
}

// Idler is implemented by compositors that must keep servicing their display while
// the source has no frame. Idle returns ErrStopped when the user quits.
type Idler interface {
	Idle() error
}

// Viewporter is implemented by compositors whose display can change size. Run
// reads the size after every presented frame; ok is false when it is unknown.
type Viewporter interface {
	Viewport() (width, height int, ok bool)
}

type nopRegions struct{}

func (nopRegions) DrawRegion(Region) {}

type nopObject struct{}

func (nopObject) ShowPose(pose.Pose) {}
func (nopObject) Hide()              {}
