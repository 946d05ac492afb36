package render

import (
	"image"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/dudu/faceoverlay/internal/pose"
)

// GizmoPoints projects the pose axes onto the display. The pose position is
// centred on the viewport with y up; the returned points are in pixels with y down.
// Depth is dropped.
func GizmoPoints(p pose.Pose, width, height int, length float64) (image.Point, [3]image.Point) {
	cx := p.Position.X + float64(width)/2
	cy := float64(height)/2 - p.Position.Y
	origin := image.Pt(round(cx), round(cy))

	size := p.Scale * length
	x, y, z := pose.Axes(p.Rotation)

	var ends [3]image.Point
	for i, axis := range [3]r3.Vec{x, y, z} {
		ends[i] = image.Pt(round(cx+axis.X*size), round(cy-axis.Y*size))
	}
	return origin, ends
}

func round(v float64) int {
	if v < 0 {
		return int(v - 0.5)
	}
	return int(v + 0.5)
}
