package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/dudu/faceoverlay/internal/camera"
	"github.com/dudu/faceoverlay/internal/detector"
	"github.com/dudu/faceoverlay/internal/detector/facemesh"
	"github.com/dudu/faceoverlay/internal/inference"
	"github.com/dudu/faceoverlay/internal/pipeline"
	"github.com/dudu/faceoverlay/internal/render"
	"github.com/dudu/faceoverlay/internal/replay"
	"github.com/dudu/faceoverlay/internal/ui"
)

const (
	defaultMeshModel = "models/face_landmark.onnx"
	defaultORTLib    = "lib/libonnxruntime.dylib"
)

// liveOptions holds the camera and model flags of the root command
type liveOptions struct {
	CameraIndex   int
	TargetFPS     int
	CaptureWidth  int
	CaptureHeight int
	MeshModel     string
	FaceModel     string
	FaceLogits    bool
	ORTLib        string
	CoreML        bool
	MaxFaces      int
	Record        string
	NoPreview     bool
}

func (o *liveOptions) bindFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.IntVarP(&o.CameraIndex, "camera", "c", 0, "Camera device index")
	f.IntVar(&o.TargetFPS, "fps", 30, "Target frames per second")
	f.IntVar(&o.CaptureWidth, "capture-width", 1280, "Requested camera width")
	f.IntVar(&o.CaptureHeight, "capture-height", 720, "Requested camera height")
	f.StringVarP(&o.MeshModel, "model", "m", "", "Face mesh ONNX model (env FACEOVERLAY_MODEL, default "+defaultMeshModel+")")
	f.StringVar(&o.FaceModel, "face-model", "", "SCRFD face detector ONNX model, enables multiple faces")
	f.BoolVar(&o.FaceLogits, "face-logits", false, "The face model outputs raw logits instead of scores")
	f.StringVar(&o.ORTLib, "ort-lib", "", "ONNX Runtime shared library (env FACEOVERLAY_ORT_LIB, default "+defaultORTLib+")")
	f.BoolVar(&o.CoreML, "coreml", false, "Use the CoreML execution provider when available")
	f.IntVar(&o.MaxFaces, "max-faces", 1, "Maximum number of faces when --face-model is set")
	f.StringVarP(&o.Record, "record", "r", "", "Record detections to this file for replay")
	f.BoolVar(&o.NoPreview, "no-preview", false, "Run without a preview window")
}

// applyEnv fills unset paths from the environment, then from the defaults
func (o *liveOptions) applyEnv() {
	if o.MeshModel == "" {
		o.MeshModel = os.Getenv("FACEOVERLAY_MODEL")
	}
	if o.MeshModel == "" {
		o.MeshModel = defaultMeshModel
	}
	if o.ORTLib == "" {
		o.ORTLib = os.Getenv("FACEOVERLAY_ORT_LIB")
	}
	if o.ORTLib == "" {
		o.ORTLib = defaultORTLib
	}
}

func runLive(ctx context.Context, opts Options, live liveOptions) error {
	logger, err := opts.logger()
	if err != nil {
		return err
	}
	config, err := opts.pipelineConfig()
	if err != nil {
		return err
	}

	logger.Info("faceoverlay starting", "version", Version)

	// The window comes first so startup failures can be shown in it
	var window *ui.Window
	if !live.NoPreview {
		window = opts.newWindow("faceoverlay")
		defer window.Close()
	}
	fail := func(err error) error {
		status := describeInitError(err)
		logger.Error(status, "error", err)
		if window != nil {
			window.ShowStatus(status)
			window.WaitKey(3000)
		}
		return err
	}

	logger.Info("loading models", "mesh", live.MeshModel, "faces", live.FaceModel)
	err = inference.Initialize(inference.Options{
		LibraryPath: live.ORTLib,
		UseCoreML:   live.CoreML,
		Logger:      logger,
	})
	if err != nil {
		return fail(err)
	}
	defer inference.Shutdown()

	detConfig := facemesh.DefaultConfig(live.MeshModel)
	detConfig.FaceModelPath = live.FaceModel
	detConfig.FaceScoreLogits = live.FaceLogits
	detConfig.MaxFaces = live.MaxFaces
	detConfig.Logger = logger
	det, err := facemesh.New(detConfig)
	if err != nil {
		return fail(err)
	}
	defer det.Close()

	logger.Info("opening camera", "device", live.CameraIndex)
	cam, err := camera.NewCaptureWithResolution(live.CameraIndex, live.TargetFPS, live.CaptureWidth, live.CaptureHeight)
	if err != nil {
		return fail(err)
	}
	defer cam.Close()
	logger.Info("camera opened", "width", cam.Width(), "height", cam.Height())

	renderOpts := opts.renderOptions()
	var presenter render.Presenter
	if window != nil {
		presenter = window
	}
	comp := render.NewCompositor(renderOpts, presenter)
	defer comp.Close()

	var frameDetector pipeline.FaceDetector[gocv.Mat] = det
	if live.Record != "" {
		file, err := os.Create(live.Record)
		if err != nil {
			return fmt.Errorf("failed to create recording: %w", err)
		}
		buf := bufio.NewWriter(file)
		writer := replay.NewWriter(buf)
		defer func() {
			if err := closeRecording(buf, file); err != nil {
				logger.Warn("recording incomplete", "path", live.Record, "frames", writer.Count(), "error", err)
				return
			}
			logger.Info("recording saved", "path", live.Record, "frames", writer.Count())
		}()

		frameDetector = replay.NewTee[gocv.Mat](det, writer,
			func(m gocv.Mat) (int, int) { return m.Cols(), m.Rows() },
			func(err error) { logger.Warn("recording failed", "error", err) })
	}

	var rate func() float64
	if window != nil {
		rate = window.FPS
	}
	p, err := pipeline.New(config, detector.FaceMeshTopology(), comp, comp,
		pipeline.WithLogger(logger),
		pipeline.WithReportHook(liveReporter(logger, comp, rate)))
	if err != nil {
		return fail(err)
	}

	logger.Info("running, press 'q' to quit")
	if err := pipeline.Run[gocv.Mat](ctx, p, cam, frameDetector, comp); err != nil {
		return err
	}
	logger.Info("shutting down")
	return nil
}

// liveReporter keeps the timing overlay current. rate reports the measured
// display rate and may be nil.
func liveReporter(logger *slog.Logger, comp *render.Compositor, rate func() float64) func(pipeline.Report) {
	return func(r pipeline.Report) {
		if r.RollOnly {
			logger.Debug("orientation from eye roll only")
		}
		fps := 0.0
		if rate != nil {
			fps = rate()
		}
		comp.SetStatus(timingText(r.Timing, r.State, fps))
	}
}

// timingText formats the per-pass timings. A measured fps of 0 falls back to
// the rate one pass would allow.
func timingText(t pipeline.Timing, state pipeline.State, fps float64) string {
	if fps <= 0 && t.Total > 0 {
		fps = float64(time.Second) / float64(t.Total)
	}
	return fmt.Sprintf("D:%.0fms G:%.1fms T:%.0fms (%.1f FPS) %s",
		ms(t.Detection), ms(t.Geometry), ms(t.Total), fps, state)
}

// closeRecording flushes the buffered records and closes the file
func closeRecording(buf *bufio.Writer, file io.Closer) error {
	if err := buf.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to flush recording: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close recording: %w", err)
	}
	return nil
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
