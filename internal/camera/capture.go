package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/dudu/faceoverlay/internal/pipeline"
)

var (
	// ErrOpen is returned when the camera device cannot be opened
	ErrOpen = errors.New("camera could not be opened")
	// ErrBusy is returned when the device opened but delivers no frames
	ErrBusy = errors.New("camera is in use or not delivering frames")
)

// Capture manages webcam capture
type Capture struct {
	webcam    *gocv.VideoCapture
	frame     gocv.Mat
	deviceID  int
	targetFPS int
	width     int
	height    int
	started   time.Time
	mu        sync.Mutex
}

// NewCaptureWithResolution creates a new camera capture with the requested resolution.
// The resolution is a hint; Width and Height report what the device delivers.
func NewCaptureWithResolution(deviceID int, targetFPS int, width, height int) (*Capture, error) {
	webcam, err := gocv.OpenVideoCapture(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: device %d: %v", ErrOpen, deviceID, err)
	}
	if !webcam.IsOpened() {
		webcam.Close()
		return nil, fmt.Errorf("%w: device %d", ErrOpen, deviceID)
	}

	webcam.Set(gocv.VideoCaptureFrameWidth, float64(width))
	webcam.Set(gocv.VideoCaptureFrameHeight, float64(height))
	webcam.Set(gocv.VideoCaptureFPS, float64(targetFPS))

	actualWidth := int(webcam.Get(gocv.VideoCaptureFrameWidth))
	actualHeight := int(webcam.Get(gocv.VideoCaptureFrameHeight))

	c := &Capture{
		webcam:    webcam,
		frame:     gocv.NewMat(),
		deviceID:  deviceID,
		targetFPS: targetFPS,
		width:     actualWidth,
		height:    actualHeight,
		started:   time.Now(),
	}

	// Some devices open fine but never deliver while another app holds them
	if !webcam.Read(&c.frame) || c.frame.Empty() {
		c.Close()
		return nil, fmt.Errorf("%w: device %d", ErrBusy, deviceID)
	}
	return c, nil
}

// Next captures the next frame. The returned Mat is owned by the capture and is
// only valid until the following call.
func (c *Capture) Next(ctx context.Context) (pipeline.VideoFrame[gocv.Mat], error) {
	if err := ctx.Err(); err != nil {
		return pipeline.VideoFrame[gocv.Mat]{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam == nil {
		return pipeline.VideoFrame[gocv.Mat]{}, pipeline.ErrSourceClosed
	}
	if !c.webcam.Read(&c.frame) || c.frame.Empty() {
		return pipeline.VideoFrame[gocv.Mat]{}, pipeline.ErrNoFrame
	}

	return pipeline.VideoFrame[gocv.Mat]{
		Image:     c.frame,
		Timestamp: time.Since(c.started),
		Width:     c.frame.Cols(),
		Height:    c.frame.Rows(),
	}, nil
}

// Width returns frame width
func (c *Capture) Width() int {
	return c.width
}

// Height returns frame height
func (c *Capture) Height() int {
	return c.height
}

// Close releases the camera
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.webcam != nil {
		err := c.webcam.Close()
		c.webcam = nil
		c.frame.Close()
		return err
	}
	return nil
}
