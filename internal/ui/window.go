package ui

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"
)

// Window manages the preview display
type Window struct {
	window     *gocv.Window
	name       string
	width      int
	height     int
	lastFrame  time.Time
	frameCount int
	fps        float64
	showFPS    bool
}

// NewWindow creates a new preview window of the given size
func NewWindow(name string, width, height int) *Window {
	window := gocv.NewWindow(name)
	// Force window to appear on macOS
	window.ResizeWindow(width, height)
	window.MoveWindow(100, 100)
	return &Window{
		window:    window,
		name:      name,
		width:     width,
		height:    height,
		lastFrame: time.Now(),
		showFPS:   true,
	}
}

// SetShowFPS toggles the FPS counter overlay
func (w *Window) SetShowFPS(show bool) {
	w.showFPS = show
}

// Show displays a frame and updates FPS counter
func (w *Window) Show(frame *gocv.Mat) {
	w.tick(time.Now())

	if w.showFPS {
		fpsText := fmt.Sprintf("FPS: %.1f", w.fps)
		gocv.PutText(frame, fpsText, image.Pt(10, 30),
			gocv.FontHersheyPlain, 2, color.RGBA{R: 0, G: 255, B: 0, A: 255}, 2)
	}

	w.window.IMShow(*frame)
}

// ShowStatus replaces the preview with a centred status message, for errors
// that stop the pipeline before the first frame
func (w *Window) ShowStatus(text string) {
	width, height := w.Size()
	canvas := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), height, width, gocv.MatTypeCV8UC3)
	defer canvas.Close()

	size := gocv.GetTextSize(text, gocv.FontHersheyPlain, 2, 2)
	at := image.Pt((width-size.X)/2, (height+size.Y)/2)
	gocv.PutText(&canvas, text, at, gocv.FontHersheyPlain, 2, color.RGBA{R: 255, G: 255, B: 255, A: 255}, 2)
	w.window.IMShow(canvas)
}

// tick counts a frame and recomputes FPS every second
func (w *Window) tick(now time.Time) {
	w.frameCount++
	elapsed := now.Sub(w.lastFrame)
	if elapsed >= time.Second {
		w.fps = float64(w.frameCount) / elapsed.Seconds()
		w.frameCount = 0
		w.lastFrame = now
	}
}

// Size returns the current size of the image area, which follows the user
// resizing the window. It falls back to the requested size before the first
// frame is shown.
func (w *Window) Size() (int, int) {
	r := w.window.GetWindowImageRect()
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return w.width, w.height
	}
	return r.Dx(), r.Dy()
}

// WaitKey waits for key press, returns key code or -1
func (w *Window) WaitKey(delayMs int) int {
	return w.window.WaitKey(delayMs)
}

// FPS returns current frames per second
func (w *Window) FPS() float64 {
	return w.fps
}

// Close closes the window
func (w *Window) Close() error {
	if w.window != nil {
		return w.window.Close()
	}
	return nil
}
