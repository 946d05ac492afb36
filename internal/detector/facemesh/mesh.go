package facemesh

import (
	"fmt"
	"image"

	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/faceoverlay/internal/detector"
	"github.com/dudu/faceoverlay/internal/inference"
)

// MeshConfig describes the face mesh model's tensors
type MeshConfig struct {
	InputName      string
	LandmarkOutput string
	ScoreOutput    string
	InputSize      int
	NHWC           bool    // input is [1,H,W,3] instead of [1,3,H,W]
	LandmarkShape  []int64 // 468*3 values in any shape
	ScoreShape     []int64
}

// DefaultMeshConfig matches the MediaPipe face_landmark model exported to ONNX
func DefaultMeshConfig() MeshConfig {
	return MeshConfig{
		InputName:      "input_1",
		LandmarkOutput: "conv2d_21",
		ScoreOutput:    "conv2d_31",
		InputSize:      192,
		NHWC:           true,
		LandmarkShape:  []int64{1, 1, 1, detector.FaceMeshPoints * 3},
		ScoreShape:     []int64{1, 1, 1, 1},
	}
}

// Mesh regresses 468 face mesh landmarks from a square face crop
type Mesh struct {
	session *inference.Session
	config  MeshConfig
}

// NewMesh creates a new face mesh landmark model
func NewMesh(modelPath string, config MeshConfig) (*Mesh, error) {
	session, err := inference.NewSession(modelPath,
		[]string{config.InputName},
		[]string{config.LandmarkOutput, config.ScoreOutput})
	if err != nil {
		return nil, fmt.Errorf("failed to create face mesh session: %w", err)
	}
	return &Mesh{session: session, config: config}, nil
}

// Detect runs the model on the crop square and returns the landmarks normalized to
// the full frame along with the face presence score.
func (m *Mesh) Detect(img gocv.Mat, crop detector.Box) (detector.Landmarks, float32, error) {
	size := m.config.InputSize
	centerX, centerY := crop.Center()
	scale := float32(size) / crop.Width()

	M := m.getTransformMatrix(centerX, centerY, scale)
	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(img, &aligned, M, image.Pt(size, size))
	M.Close()

	floatData, err := m.preprocess(aligned)
	if err != nil {
		return nil, 0, err
	}

	shape := ort.NewShape(1, 3, int64(size), int64(size))
	if m.config.NHWC {
		shape = ort.NewShape(1, int64(size), int64(size), 3)
	}
	inputTensor, err := ort.NewTensor(shape, floatData)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	landmarkTensor, err := inference.CreateEmptyTensor[float32](m.config.LandmarkShape)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer landmarkTensor.Destroy()

	scoreTensor, err := inference.CreateEmptyTensor[float32](m.config.ScoreShape)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer scoreTensor.Destroy()

	err = m.session.Run([]ort.Value{inputTensor}, []ort.Value{landmarkTensor, scoreTensor})
	if err != nil {
		return nil, 0, fmt.Errorf("face mesh inference failed: %w", err)
	}

	output := landmarkTensor.GetData()
	if len(output) < detector.FaceMeshPoints*3 {
		return nil, 0, fmt.Errorf("face mesh output has %d values, want %d", len(output), detector.FaceMeshPoints*3)
	}

	score := detector.Sigmoid(scoreTensor.GetData()[0])
	landmarks := m.postprocess(output, centerX, centerY, scale, img.Cols(), img.Rows())
	return landmarks, score, nil
}

// preprocess converts the BGR crop to RGB floats in [0, 1]
func (m *Mesh) preprocess(aligned gocv.Mat) ([]float32, error) {
	size := m.config.InputSize

	if !m.config.NHWC {
		blob := gocv.BlobFromImage(aligned, 1.0/255.0, image.Pt(size, size),
			gocv.NewScalar(0, 0, 0, 0), true, false)
		defer blob.Close()
		return bytesToFloat32(blob.ToBytes()), nil
	}

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(aligned, &rgb, gocv.ColorBGRToRGB)

	floatMat := gocv.NewMat()
	defer floatMat.Close()
	rgb.ConvertToWithParams(&floatMat, gocv.MatTypeCV32FC3, 1.0/255.0, 0)

	data, err := floatMat.DataPtrFloat32()
	if err != nil {
		return nil, fmt.Errorf("failed to read crop pixels: %w", err)
	}
	// floatMat is released on return
	return append([]float32(nil), data...), nil
}

// getTransformMatrix creates the affine transform for the face crop
func (m *Mesh) getTransformMatrix(centerX, centerY, scale float32) gocv.Mat {
	half := float64(m.config.InputSize) / 2

	// No rotation, just scale and translate
	M := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	M.SetDoubleAt(0, 0, float64(scale))
	M.SetDoubleAt(0, 1, 0)
	M.SetDoubleAt(0, 2, half-float64(centerX*scale))
	M.SetDoubleAt(1, 0, 0)
	M.SetDoubleAt(1, 1, float64(scale))
	M.SetDoubleAt(1, 2, half-float64(centerY*scale))

	return M
}

// postprocess maps crop pixel coordinates back to the frame and normalizes them.
// Depth uses the same unit as x.
func (m *Mesh) postprocess(output []float32, centerX, centerY, scale float32, width, height int) detector.Landmarks {
	half := float32(m.config.InputSize) / 2
	w, h := float64(width), float64(height)

	landmarks := make(detector.Landmarks, detector.FaceMeshPoints)
	for i := range landmarks {
		x := (output[i*3]-half)/scale + centerX
		y := (output[i*3+1]-half)/scale + centerY
		z := output[i*3+2] / scale

		landmarks[i] = detector.Landmark{
			X: float64(x) / w,
			Y: float64(y) / h,
			Z: float64(z) / w,
		}
	}
	return landmarks
}

// Close releases model resources
func (m *Mesh) Close() error {
	return m.session.Destroy()
}
