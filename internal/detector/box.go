package detector

// Box is a face bounding box in frame pixels
type Box struct {
	X1, Y1 float32 // top-left
	X2, Y2 float32 // bottom-right
	Score  float32
}

// Width returns box width
func (b Box) Width() float32 {
	return b.X2 - b.X1
}

// Height returns box height
func (b Box) Height() float32 {
	return b.Y2 - b.Y1
}

// Center returns the box centre
func (b Box) Center() (float32, float32) {
	return (b.X1 + b.X2) / 2, (b.Y1 + b.Y2) / 2
}

// Area returns box area
func (b Box) Area() float32 {
	if b.X2 <= b.X1 || b.Y2 <= b.Y1 {
		return 0
	}
	return b.Width() * b.Height()
}

// Square returns a square box around the same centre whose side is the longer
// edge times factor.
func (b Box) Square(factor float32) Box {
	side := b.Width()
	if h := b.Height(); h > side {
		side = h
	}
	half := side * factor / 2
	cx, cy := b.Center()
	return Box{X1: cx - half, Y1: cy - half, X2: cx + half, Y2: cy + half, Score: b.Score}
}

// BoxOf returns the pixel bounds of a face given the frame size.
// ok is false for an empty face.
func BoxOf(face Landmarks, width, height int) (Box, bool) {
	if len(face) == 0 {
		return Box{}, false
	}
	b := Box{X1: float32(face[0].X), Y1: float32(face[0].Y), X2: float32(face[0].X), Y2: float32(face[0].Y)}
	for _, lm := range face[1:] {
		x, y := float32(lm.X), float32(lm.Y)
		b.X1 = min32(b.X1, x)
		b.Y1 = min32(b.Y1, y)
		b.X2 = max32(b.X2, x)
		b.Y2 = max32(b.Y2, y)
	}
	w, h := float32(width), float32(height)
	b.X1, b.X2 = b.X1*w, b.X2*w
	b.Y1, b.Y2 = b.Y1*h, b.Y2*h
	return b, true
}
