package pose

import (
	"math"

	"github.com/golang/geo/r2"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"

	"github.com/dudu/faceoverlay/internal/geometry"
)

// minAxisLength2 is the squared length below which an anchor axis is degenerate
const minAxisLength2 = 1e-6

// Identity is the rotation that leaves the object facing the viewer
var Identity = quat.Number{Real: 1}

// ToViewport projects a normalized landmark into viewport-centred display space:
// x to the right, y up, z toward the viewer, all in pixels.
// depthScale converts the detector's relative depth into pixels and is normally the
// on-screen face width.
func ToViewport(p r3.Vec, t geometry.Transform, depthScale, viewportW, viewportH float64) r3.Vec {
	d := t.Map(p.X, p.Y)
	return r3.Vec{
		X: d.X - viewportW/2,
		Y: viewportH/2 - d.Y,
		Z: -p.Z * depthScale,
	}
}

// EstimateOrientation derives the head rotation from the eye centroids, forehead and
// chin anchors, given as normalized landmarks. It returns false if any anchor is missing
// or the anchors are degenerate; callers then fall back to RollOrientation.
func EstimateOrientation(left, right, forehead, chin *r3.Vec, t geometry.Transform,
	depthScale, viewportW, viewportH float64) (quat.Number, bool) {
	if left == nil || right == nil || forehead == nil || chin == nil || !t.Valid() {
		return quat.Number{}, false
	}

	project := func(p *r3.Vec) r3.Vec {
		return ToViewport(*p, t, depthScale, viewportW, viewportH)
	}
	return OrientationFromAxes(project(left), project(right), project(forehead), project(chin))
}

// OrientationFromAxes builds the rotation whose x axis runs from left to right and whose
// y axis runs from chin to forehead. The up axis is re-derived so the basis stays
// orthonormal when the inputs are not exactly perpendicular.
func OrientationFromAxes(left, right, forehead, chin r3.Vec) (quat.Number, bool) {
	xAxis, ok := unitAxis(left, right)
	if !ok {
		return quat.Number{}, false
	}
	yAxis, ok := unitAxis(chin, forehead)
	if !ok {
		return quat.Number{}, false
	}

	zAxis := r3.Cross(xAxis, yAxis)
	if r3.Norm2(zAxis) < minAxisLength2 {
		// eye line parallel to the face's vertical
		return quat.Number{}, false
	}
	zAxis = r3.Unit(zAxis)
	yAxis = r3.Cross(zAxis, xAxis)

	return fromBasis(xAxis, yAxis, zAxis), true
}

// RollOrientation is the fallback rotation: a pure roll about the viewing axis taken
// from the display-space eye centroids. Pitch and yaw are zero.
func RollOrientation(leftEye, rightEye r2.Point) quat.Number {
	d := rightEye.Sub(leftEye)
	roll := math.Atan2(d.Y, d.X)
	// display y grows downward, the 3D frame has y up
	return quat.Number(r3.NewRotation(-roll, r3.Vec{Z: 1}))
}

// Axes returns the rotated x, y and z unit axes of q
func Axes(q quat.Number) (x, y, z r3.Vec) {
	rot := r3.Rotation(q)
	return rot.Rotate(r3.Vec{X: 1}), rot.Rotate(r3.Vec{Y: 1}), rot.Rotate(r3.Vec{Z: 1})
}

func unitAxis(from, to r3.Vec) (r3.Vec, bool) {
	d := r3.Sub(to, from)
	if r3.Norm2(d) < minAxisLength2 {
		return r3.Vec{}, false
	}
	return r3.Unit(d), true
}

// fromBasis converts the rotation matrix with columns x, y, z into a unit quaternion
func fromBasis(x, y, z r3.Vec) quat.Number {
	m00, m01, m02 := x.X, y.X, z.X
	m10, m11, m12 := x.Y, y.Y, z.Y
	m20, m21, m22 := x.Z, y.Z, z.Z

	var q quat.Number
	switch trace := m00 + m11 + m22; {
	case trace > 0:
		s := math.Sqrt(trace+1) * 2
		q = quat.Number{Real: s / 4, Imag: (m21 - m12) / s, Jmag: (m02 - m20) / s, Kmag: (m10 - m01) / s}
	case m00 > m11 && m00 > m22:
		s := math.Sqrt(1+m00-m11-m22) * 2
		q = quat.Number{Real: (m21 - m12) / s, Imag: s / 4, Jmag: (m01 + m10) / s, Kmag: (m02 + m20) / s}
	case m11 > m22:
		s := math.Sqrt(1+m11-m00-m22) * 2
		q = quat.Number{Real: (m02 - m20) / s, Imag: (m01 + m10) / s, Jmag: s / 4, Kmag: (m12 + m21) / s}
	default:
		s := math.Sqrt(1+m22-m00-m11) * 2
		q = quat.Number{Real: (m10 - m01) / s, Imag: (m02 + m20) / s, Jmag: (m12 + m21) / s, Kmag: s / 4}
	}
	return normalize(q)
}

func normalize(q quat.Number) quat.Number {
	n := quat.Abs(q)
	if n == 0 {
		return Identity
	}
	return quat.Scale(1/n, q)
}
