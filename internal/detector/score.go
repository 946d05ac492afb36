package detector

import "math"

// Sigmoid maps a logit to a probability
func Sigmoid(x float32) float32 {
	return 1.0 / (1.0 + float32(math.Exp(float64(-x))))
}

// Confidence converts a raw model score to a probability. Exports that end in
// a sigmoid emit probabilities already; others emit logits, which pass any
// threshold below 1 unless converted.
func Confidence(raw float32, logit bool) float32 {
	if logit {
		return Sigmoid(raw)
	}
	return raw
}
