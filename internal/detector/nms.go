package detector

import "sort"

// NMS performs Non-Maximum Suppression on candidate face boxes.
// The result is ordered by descending score.
func NMS(boxes []Box, iouThreshold float32) []Box {
	if len(boxes) == 0 {
		return boxes
	}

	// Sort by score (descending)
	sort.SliceStable(boxes, func(i, j int) bool {
		return boxes[i].Score > boxes[j].Score
	})

	keep := make([]bool, len(boxes))
	for i := range keep {
		keep[i] = true
	}

	for i := 0; i < len(boxes); i++ {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(boxes); j++ {
			if !keep[j] {
				continue
			}
			if IoU(boxes[i], boxes[j]) > iouThreshold {
				keep[j] = false
			}
		}
	}

	result := make([]Box, 0, len(boxes))
	for i, box := range boxes {
		if keep[i] {
			result = append(result, box)
		}
	}

	return result
}

// IoU calculates Intersection over Union of two boxes
func IoU(a, b Box) float32 {
	// Intersection
	x1 := max32(a.X1, b.X1)
	y1 := max32(a.Y1, b.Y1)
	x2 := min32(a.X2, b.X2)
	y2 := min32(a.Y2, b.Y2)

	if x1 >= x2 || y1 >= y2 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Area() + b.Area() - intersection

	if union <= 0 {
		return 0
	}

	return intersection / union
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
