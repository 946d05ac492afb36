// Package facemesh detects face mesh landmarks in camera frames with ONNX Runtime.
// An optional SCRFD model proposes face boxes; without it the detector tracks a
// single face from the previous frame's landmarks.
package facemesh

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/faceoverlay/internal/detector"
)

// Config holds detector settings
type Config struct {
	MeshModelPath   string
	FaceModelPath   string // SCRFD model, empty to track from the previous frame
	FaceScoreLogits bool   // SCRFD scores are logits and need a sigmoid
	Mesh            MeshConfig
	DetectionSize   int
	ConfThreshold   float32
	NMSThreshold    float32
	ScoreThreshold  float32 // minimum face presence for a mesh to count
	CropExpansion   float32
	MaxFaces        int
	Logger          *slog.Logger
}

// DefaultConfig returns a config for the given mesh model
func DefaultConfig(meshModelPath string) Config {
	return Config{
		MeshModelPath:  meshModelPath,
		Mesh:           DefaultMeshConfig(),
		DetectionSize:  640,
		ConfThreshold:  0.5,
		NMSThreshold:   0.4,
		ScoreThreshold: 0.5,
		CropExpansion:  1.5,
		MaxFaces:       1,
	}
}

// Detector finds faces and their mesh landmarks
type Detector struct {
	config Config
	mesh   *Mesh
	faces  *SCRFD
	prev   []detector.Box
	logger *slog.Logger
}

// New loads the models. Load failures wrap detector.ErrModelLoad.
func New(config Config) (*Detector, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.MaxFaces < 1 {
		config.MaxFaces = 1
	}

	mesh, err := NewMesh(config.MeshModelPath, config.Mesh)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", detector.ErrModelLoad, err)
	}

	d := &Detector{config: config, mesh: mesh, logger: logger}
	if config.FaceModelPath != "" {
		d.faces, err = NewSCRFD(config.FaceModelPath, config.DetectionSize, config.ConfThreshold, config.NMSThreshold, config.FaceScoreLogits)
		if err != nil {
			mesh.Close()
			return nil, fmt.Errorf("%w: %w", detector.ErrModelLoad, err)
		}
	}
	return d, nil
}

// Detect returns the landmarks of every face found in the frame
func (d *Detector) Detect(img gocv.Mat, _ time.Duration) (detector.Result, error) {
	crops, err := d.crops(img)
	if err != nil {
		return detector.Result{}, err
	}

	var (
		result detector.Result
		next   []detector.Box
	)
	for _, crop := range crops {
		if crop.Width() <= 0 {
			continue
		}
		landmarks, score, err := d.mesh.Detect(img, crop)
		if err != nil {
			d.prev = nil
			return detector.Result{}, err
		}
		if score < d.config.ScoreThreshold {
			d.logger.Debug("face mesh rejected", "score", score)
			continue
		}
		result.Faces = append(result.Faces, landmarks)
		if box, ok := detector.BoxOf(landmarks, img.Cols(), img.Rows()); ok {
			next = append(next, box)
		}
	}
	d.prev = next
	return result, nil
}

// crops picks the square regions fed to the mesh model
func (d *Detector) crops(img gocv.Mat) ([]detector.Box, error) {
	expand := d.config.CropExpansion

	if d.faces != nil {
		boxes, err := d.faces.Find(img)
		if err != nil {
			return nil, err
		}
		if len(boxes) > d.config.MaxFaces {
			boxes = boxes[:d.config.MaxFaces]
		}
		crops := make([]detector.Box, len(boxes))
		for i, b := range boxes {
			crops[i] = b.Square(expand)
		}
		return crops, nil
	}

	if len(d.prev) > 0 {
		crops := make([]detector.Box, len(d.prev))
		for i, b := range d.prev {
			crops[i] = b.Square(expand)
		}
		return crops, nil
	}

	// Nothing to follow: search the centre square of the frame
	side := float32(min(img.Cols(), img.Rows()))
	cx, cy := float32(img.Cols())/2, float32(img.Rows())/2
	return []detector.Box{{X1: cx - side/2, Y1: cy - side/2, X2: cx + side/2, Y2: cy + side/2}}, nil
}

// Close releases the models
func (d *Detector) Close() error {
	var err error
	if d.faces != nil {
		err = d.faces.Close()
	}
	if merr := d.mesh.Close(); merr != nil {
		err = merr
	}
	return err
}
