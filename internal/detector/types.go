package detector

import "errors"

// ErrModelLoad is returned when a landmark model cannot be loaded
var ErrModelLoad = errors.New("landmark model could not be loaded")

// Landmark is a single tracked facial point.
// X and Y are normalized to the source frame, Z is depth relative to the face centre
// (smaller is closer to the camera).
type Landmark struct {
	X float64 `msgpack:"x"`
	Y float64 `msgpack:"y"`
	Z float64 `msgpack:"z"`
}

// Landmarks is the fixed-length ordered point sequence for one face.
// An index past the end of the slice is a missing landmark.
type Landmarks []Landmark

// At returns the landmark at index i, or false if it is missing
func (l Landmarks) At(i int) (Landmark, bool) {
	if i < 0 || i >= len(l) {
		return Landmark{}, false
	}
	return l[i], true
}

// Result is the output of one detection pass
type Result struct {
	Faces []Landmarks `msgpack:"faces"`
}

// Empty reports whether no face was detected
func (r Result) Empty() bool {
	return len(r.Faces) == 0
}

// Topology lists the index pairs that outline each feature region.
// It is supplied once at startup and never changes.
type Topology struct {
	LeftEye  [][2]int
	RightEye [][2]int
	Lips     [][2]int
}
