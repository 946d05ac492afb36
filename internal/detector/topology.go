package detector

// Face mesh anchor indices (MediaPipe 468-point layout)
const (
	FaceMeshPoints = 468
	ForeheadIndex  = 10
	ChinIndex      = 152
)

// Eyes are named from the subject's point of view, matching MediaPipe.
var (
	faceMeshLeftEye = [][2]int{
		{263, 249}, {249, 390}, {390, 373}, {373, 374}, {374, 380}, {380, 381}, {381, 382}, {382, 362},
		{263, 466}, {466, 388}, {388, 387}, {387, 386}, {386, 385}, {385, 384}, {384, 398}, {398, 362},
	}

	faceMeshRightEye = [][2]int{
		{33, 7}, {7, 163}, {163, 144}, {144, 145}, {145, 153}, {153, 154}, {154, 155}, {155, 133},
		{33, 246}, {246, 161}, {161, 160}, {160, 159}, {159, 158}, {158, 157}, {157, 173}, {173, 133},
	}

	// Outer lip ring first, inner ring second
	faceMeshLips = [][2]int{
		{61, 146}, {146, 91}, {91, 181}, {181, 84}, {84, 17}, {17, 314}, {314, 405}, {405, 321},
		{321, 375}, {375, 291}, {61, 185}, {185, 40}, {40, 39}, {39, 37}, {37, 0}, {0, 267},
		{267, 269}, {269, 270}, {270, 409}, {409, 291},
		{78, 95}, {95, 88}, {88, 178}, {178, 87}, {87, 14}, {14, 317}, {317, 402}, {402, 318},
		{318, 324}, {324, 308}, {78, 191}, {191, 80}, {80, 81}, {81, 82}, {82, 13}, {13, 312},
		{312, 311}, {311, 310}, {310, 415}, {415, 308},
	}
)

// FaceMeshTopology returns the eye and lip connection tables of the face mesh model.
// Each call returns fresh slices.
func FaceMeshTopology() Topology {
	return Topology{
		LeftEye:  clonePairs(faceMeshLeftEye),
		RightEye: clonePairs(faceMeshRightEye),
		Lips:     clonePairs(faceMeshLips),
	}
}

func clonePairs(pairs [][2]int) [][2]int {
	out := make([][2]int, len(pairs))
	copy(out, pairs)
	return out
}
