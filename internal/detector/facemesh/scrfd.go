package facemesh

import (
	"fmt"
	"image"
	"math"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/faceoverlay/internal/detector"
	"github.com/dudu/faceoverlay/internal/inference"
)

// SCRFD finds face boxes that seed the mesh crops
type SCRFD struct {
	session        *inference.Session
	inputSize      int
	confThreshold  float32
	nmsThreshold   float32
	featureStrides []int
	numAnchors     int
	logits         bool
}

// NewSCRFD creates a new SCRFD face finder. logits must be set for exports whose
// score outputs skip the final sigmoid.
func NewSCRFD(modelPath string, inputSize int, confThreshold, nmsThreshold float32, logits bool) (*SCRFD, error) {
	// SCRFD has 1 input and 9 outputs (3 levels × 3 outputs each: score, bbox, kps)
	inputNames := []string{"input.1"}
	outputNames := []string{
		"score_8", "score_16", "score_32",
		"bbox_8", "bbox_16", "bbox_32",
		"kps_8", "kps_16", "kps_32",
	}

	session, err := inference.NewSession(modelPath, inputNames, outputNames)
	if err != nil {
		return nil, fmt.Errorf("failed to create SCRFD session: %w", err)
	}

	return &SCRFD{
		session:        session,
		inputSize:      inputSize,
		confThreshold:  confThreshold,
		nmsThreshold:   nmsThreshold,
		featureStrides: []int{8, 16, 32},
		numAnchors:     2, // anchors per position
		logits:         logits,
	}, nil
}

// Find returns face boxes in frame pixels, best first
func (s *SCRFD) Find(img gocv.Mat) ([]detector.Box, error) {
	origHeight := img.Rows()
	origWidth := img.Cols()

	inputBlob, scale := s.preprocess(img)
	defer inputBlob.Close()

	floatData := bytesToFloat32(inputBlob.ToBytes())
	inputTensor, err := ort.NewTensor(
		ort.NewShape(1, 3, int64(s.inputSize), int64(s.inputSize)),
		floatData,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := make([]ort.Value, 9)
	outputTensors := make([]*ort.Tensor[float32], 0, 9)
	defer func() {
		for _, t := range outputTensors {
			t.Destroy()
		}
	}()

	widths := []int64{1, 4, 10} // score, bbox, kps
	for level, stride := range s.featureStrides {
		fm := s.inputSize / stride
		numAnchors := int64(fm * fm * s.numAnchors)
		for kind, width := range widths {
			t, err := inference.CreateEmptyTensor[float32]([]int64{numAnchors, width})
			if err != nil {
				return nil, fmt.Errorf("failed to create output tensor: %w", err)
			}
			outputTensors = append(outputTensors, t)
			outputs[kind*3+level] = t
		}
	}

	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("face detection inference failed: %w", err)
	}

	scores := make([][]float32, 3)
	bboxes := make([][]float32, 3)
	for level := range s.featureStrides {
		scores[level] = outputs[level].(*ort.Tensor[float32]).GetData()
		bboxes[level] = outputs[3+level].(*ort.Tensor[float32]).GetData()
	}

	boxes := s.postprocess(scores, bboxes, scale, origWidth, origHeight)
	return detector.NMS(boxes, s.nmsThreshold), nil
}

// preprocess letterboxes the frame to the input size and normalizes it
func (s *SCRFD) preprocess(img gocv.Mat) (gocv.Mat, float32) {
	height := img.Rows()
	width := img.Cols()

	scale := float32(s.inputSize) / float32(max(height, width))

	newWidth := int(float32(width) * scale)
	newHeight := int(float32(height) * scale)

	resized := gocv.NewMat()
	gocv.Resize(img, &resized, image.Pt(newWidth, newHeight), 0, 0, gocv.InterpolationLinear)

	// Letterbox into the top-left corner
	padded := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), s.inputSize, s.inputSize, gocv.MatTypeCV8UC3)
	roi := padded.Region(image.Rect(0, 0, newWidth, newHeight))
	resized.CopyTo(&roi)
	roi.Close()
	resized.Close()

	// (x - 127.5) / 128 with BGR to RGB swap, HWC to NCHW
	blob := gocv.BlobFromImage(padded, 1.0/128.0, image.Pt(s.inputSize, s.inputSize),
		gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	padded.Close()

	return blob, scale
}

// postprocess decodes per-level anchor outputs to boxes
func (s *SCRFD) postprocess(scores, bboxes [][]float32, scale float32, origWidth, origHeight int) []detector.Box {
	var boxes []detector.Box

	for level, stride := range s.featureStrides {
		fm := s.inputSize / stride
		st := float32(stride)

		anchorIdx := 0
		for y := 0; y < fm; y++ {
			for x := 0; x < fm; x++ {
				for a := 0; a < s.numAnchors; a++ {
					score := detector.Confidence(scores[level][anchorIdx], s.logits)
					if score > s.confThreshold {
						cx := (float32(x) + 0.5) * st
						cy := (float32(y) + 0.5) * st

						// Distances to the four edges
						i := anchorIdx * 4
						boxes = append(boxes, detector.Box{
							X1:    clamp((cx-bboxes[level][i]*st)/scale, 0, float32(origWidth)),
							Y1:    clamp((cy-bboxes[level][i+1]*st)/scale, 0, float32(origHeight)),
							X2:    clamp((cx+bboxes[level][i+2]*st)/scale, 0, float32(origWidth)),
							Y2:    clamp((cy+bboxes[level][i+3]*st)/scale, 0, float32(origHeight)),
							Score: score,
						})
					}
					anchorIdx++
				}
			}
		}
	}

	return boxes
}

// Close releases detector resources
func (s *SCRFD) Close() error {
	return s.session.Destroy()
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func bytesToFloat32(data []byte) []float32 {
	result := make([]float32, len(data)/4)
	for i := range result {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		result[i] = math.Float32frombits(bits)
	}
	return result
}
