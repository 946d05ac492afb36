package geometry

import (
	"math"

	"github.com/golang/geo/r1"
	"github.com/golang/geo/r2"
)

// Transform maps normalized video coordinates into display pixels.
// The video is scaled uniformly so it fills the display; overflow is cropped.
type Transform struct {
	Scale       float64
	OffsetX     float64
	OffsetY     float64
	VideoWidth  float64
	VideoHeight float64
}

// ComputeCover returns the cover transform for a display and video size.
// It returns false when any dimension is zero or negative, which means there is
// no drawable frame yet.
func ComputeCover(displayW, displayH, videoW, videoH float64) (Transform, bool) {
	if displayW <= 0 || displayH <= 0 || videoW <= 0 || videoH <= 0 {
		return Transform{}, false
	}

	scale := math.Max(displayW/videoW, displayH/videoH)
	return Transform{
		Scale:       scale,
		OffsetX:     (displayW - videoW*scale) / 2,
		OffsetY:     (displayH - videoH*scale) / 2,
		VideoWidth:  videoW,
		VideoHeight: videoH,
	}, true
}

// Valid reports whether the transform came from a successful ComputeCover
func (t Transform) Valid() bool {
	return t.Scale > 0 && t.VideoWidth > 0 && t.VideoHeight > 0
}

// Map converts a normalized point into display pixels
func (t Transform) Map(x, y float64) r2.Point {
	return r2.Point{
		X: x*t.VideoWidth*t.Scale + t.OffsetX,
		Y: y*t.VideoHeight*t.Scale + t.OffsetY,
	}
}

// SourceRect is the display-space rectangle the full video frame is painted into
func (t Transform) SourceRect() r2.Rect {
	return r2.Rect{
		X: r1.Interval{Lo: t.OffsetX, Hi: t.OffsetX + t.VideoWidth*t.Scale},
		Y: r1.Interval{Lo: t.OffsetY, Hi: t.OffsetY + t.VideoHeight*t.Scale},
	}
}

// Covers reports whether the painted video leaves no gap in a display of the given size
func (t Transform) Covers(displayW, displayH float64) bool {
	const eps = 1e-9
	src := t.SourceRect()
	return src.X.Lo <= eps && src.Y.Lo <= eps &&
		src.X.Hi >= displayW-eps && src.Y.Hi >= displayH-eps
}
