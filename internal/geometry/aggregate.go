package geometry

import (
	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/dudu/faceoverlay/internal/detector"
)

// Box is an axis-aligned bounding box in display pixels
type Box struct {
	Min    r2.Point
	Max    r2.Point
	Center r2.Point
	Width  float64
	Height float64
}

// LoopToDisplayPoints maps every index of a loop through the landmarks and the
// transform. It returns false when the loop has fewer than 3 entries or any index
// is missing; callers skip the region for this frame.
func LoopToDisplayPoints(landmarks detector.Landmarks, loop Loop, t Transform) ([]r2.Point, bool) {
	if len(loop) < 3 {
		return nil, false
	}
	points := make([]r2.Point, 0, len(loop))
	for _, idx := range loop {
		lm, ok := landmarks.At(idx)
		if !ok {
			return nil, false
		}
		points = append(points, t.Map(lm.X, lm.Y))
	}
	return points, true
}

// Centroid2D returns the arithmetic mean of the points
func Centroid2D(points []r2.Point) r2.Point {
	if len(points) == 0 {
		return r2.Point{}
	}
	var sum r2.Point
	for _, p := range points {
		sum = sum.Add(p)
	}
	return sum.Mul(1 / float64(len(points)))
}

// Centroid3D averages the normalized landmarks at the given indices, skipping
// missing ones. It returns nil when no index is present.
func Centroid3D(landmarks detector.Landmarks, indices []int) *r3.Vec {
	var sum r3.Vec
	n := 0
	for _, idx := range indices {
		lm, ok := landmarks.At(idx)
		if !ok {
			continue
		}
		sum = r3.Add(sum, r3.Vec{X: lm.X, Y: lm.Y, Z: lm.Z})
		n++
	}
	if n == 0 {
		return nil
	}
	c := r3.Scale(1/float64(n), sum)
	return &c
}

// Bounds returns the display-space bounding box of all landmarks
func Bounds(landmarks detector.Landmarks, t Transform) (Box, bool) {
	if len(landmarks) == 0 || !t.Valid() {
		return Box{}, false
	}

	rect := r2.EmptyRect()
	for _, lm := range landmarks {
		rect = rect.AddPoint(t.Map(lm.X, lm.Y))
	}
	size := rect.Size()
	return Box{
		Min:    rect.Lo(),
		Max:    rect.Hi(),
		Center: rect.Center(),
		Width:  size.X,
		Height: size.Y,
	}, true
}

// AverageOf returns the mean of the non-nil points, or nil when all are nil
func AverageOf(points ...*r3.Vec) *r3.Vec {
	var sum r3.Vec
	n := 0
	for _, p := range points {
		if p == nil {
			continue
		}
		sum = r3.Add(sum, *p)
		n++
	}
	if n == 0 {
		return nil
	}
	avg := r3.Scale(1/float64(n), sum)
	return &avg
}
