package pose

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrInvalidBlend is returned for a blend factor outside (0, 1]
var ErrInvalidBlend = errors.New("blend factor must be in (0, 1]")

// DefaultBlend tracks a head turn in a few frames while hiding most detector jitter
const DefaultBlend = 0.18

// Pose places the virtual object: position in viewport-centred display pixels,
// a unit rotation and a model-space scale multiplier.
type Pose struct {
	Position r3.Vec
	Rotation quat.Number
	Scale    float64
}

// Step blends the current pose toward a target by blend.
// Position and scale move linearly, rotation along the shortest arc.
func Step(current Pose, targetPos r3.Vec, targetRot quat.Number, targetScale, blend float64) Pose {
	return Pose{
		Position: r3.Add(current.Position, r3.Scale(blend, r3.Sub(targetPos, current.Position))),
		Rotation: Slerp(current.Rotation, targetRot, blend),
		Scale:    current.Scale*(1-blend) + targetScale*blend,
	}
}

// Slerp interpolates between two rotations, taking the shorter way around
func Slerp(a, b quat.Number, t float64) quat.Number {
	a, b = normalize(a), normalize(b)

	dot := a.Real*b.Real + a.Imag*b.Imag + a.Jmag*b.Jmag + a.Kmag*b.Kmag
	if dot < 0 {
		b = quat.Scale(-1, b)
		dot = -dot
	}

	if dot > 0.9995 {
		return normalize(quat.Add(a, quat.Scale(t, quat.Sub(b, a))))
	}

	theta := math.Acos(math.Min(dot, 1))
	sinTheta := math.Sin(theta)
	wa := math.Sin((1-t)*theta) / sinTheta
	wb := math.Sin(t*theta) / sinTheta
	return normalize(quat.Add(quat.Scale(wa, a), quat.Scale(wb, b)))
}

// Smoother owns the single smoothed pose of the tracked object
type Smoother struct {
	blend       float64
	pose        Pose
	initialized bool
}

// NewSmoother creates a smoother with a fixed blend factor
func NewSmoother(blend float64) (*Smoother, error) {
	if !(blend > 0 && blend <= 1) {
		return nil, fmt.Errorf("%w: got %v", ErrInvalidBlend, blend)
	}
	return &Smoother{blend: blend}, nil
}

// Blend returns the configured blend factor
func (s *Smoother) Blend() float64 {
	return s.blend
}

// Update moves the pose toward the target and returns it.
// The first update adopts the target directly since there is nothing to blend from.
func (s *Smoother) Update(targetPos r3.Vec, targetRot quat.Number, targetScale float64) Pose {
	if !s.initialized {
		s.pose = Pose{Position: targetPos, Rotation: normalize(targetRot), Scale: targetScale}
		s.initialized = true
		return s.pose
	}
	s.pose = Step(s.pose, targetPos, targetRot, targetScale, s.blend)
	return s.pose
}

// Current returns the last pose and whether any update has happened
func (s *Smoother) Current() (Pose, bool) {
	return s.pose, s.initialized
}

// Reset forgets the smoothed pose
func (s *Smoother) Reset() {
	s.pose = Pose{}
	s.initialized = false
}
