package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"

	"github.com/dudu/faceoverlay/internal/detector"
	"github.com/dudu/faceoverlay/internal/pipeline"
	"github.com/dudu/faceoverlay/internal/render"
	"github.com/dudu/faceoverlay/internal/replay"
)

func newReplayCmd(opts *Options) *cobra.Command {
	var (
		preview bool
		delay   time.Duration
	)

	cmd := &cobra.Command{
		Use:   "replay <recording>",
		Short: "Run the pipeline over recorded detections",
		Long: `replay feeds a file written with --record through the tracking pipeline without a
camera or model, and prints how often the face was tracked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd, *opts, args[0], preview, delay)
		},
	}
	cmd.Flags().BoolVarP(&preview, "preview", "p", false, "Show the windows over a blank frame")
	cmd.Flags().DurationVar(&delay, "delay", 0, "Pause between frames, e.g. 33ms for real time")
	return cmd
}

// replayStats accumulates the reports of a replay run
type replayStats struct {
	frames      int
	tracking    int
	rollOnly    int
	transitions int
	geometry    time.Duration
}

func (s *replayStats) add(r pipeline.Report) {
	s.frames++
	if r.State == pipeline.StateTracking {
		s.tracking++
	}
	if r.RollOnly {
		s.rollOnly++
	}
	if r.Transitioned {
		s.transitions++
	}
	s.geometry += r.Timing.Geometry
}

func (s *replayStats) String() string {
	if s.frames == 0 {
		return "no frames replayed"
	}
	return fmt.Sprintf("%d frames, tracking %.1f%%, %d state changes, %d roll-only poses, %.3fms geometry per frame",
		s.frames, 100*float64(s.tracking)/float64(s.frames), s.transitions, s.rollOnly,
		ms(s.geometry)/float64(s.frames))
}

func runReplay(cmd *cobra.Command, opts Options, path string, preview bool, delay time.Duration) error {
	logger, err := opts.logger()
	if err != nil {
		return err
	}
	config, err := opts.pipelineConfig()
	if err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open recording: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat recording: %w", err)
	}

	bar := progressbar.DefaultBytes(info.Size(), "Replaying")
	defer bar.Finish()
	src := replay.NewSource(io.TeeReader(file, bar))

	var comp pipeline.Compositor[replay.Record]
	var regions pipeline.RegionRenderer
	var object pipeline.ObjectRenderer
	if preview {
		window := opts.newWindow("faceoverlay replay")
		defer window.Close()

		c := render.NewCompositor(opts.renderOptions(), window)
		defer c.Close()

		blank := newBlankCompositor(c, delay)
		defer blank.Close()
		comp, regions, object = blank, c, c
	}

	stats := &replayStats{}
	p, err := pipeline.New(config, detector.FaceMeshTopology(), regions, object,
		pipeline.WithLogger(logger),
		pipeline.WithReportHook(stats.add))
	if err != nil {
		return err
	}

	if err := pipeline.Run[replay.Record](cmd.Context(), p, src, src, comp); err != nil {
		return err
	}
	bar.Finish()
	fmt.Fprintln(cmd.OutOrStdout())
	fmt.Fprintln(cmd.OutOrStdout(), stats)
	return nil
}

// blankCompositor stands a grey frame of the recorded size in for the missing
// camera pixels
type blankCompositor struct {
	*render.Compositor
	blank gocv.Mat
	delay time.Duration
}

func newBlankCompositor(c *render.Compositor, delay time.Duration) *blankCompositor {
	return &blankCompositor{Compositor: c, blank: gocv.NewMat(), delay: delay}
}

func (b *blankCompositor) Begin(frame pipeline.VideoFrame[replay.Record]) {
	if b.blank.Cols() != frame.Width || b.blank.Rows() != frame.Height {
		b.blank.Close()
		b.blank = gocv.NewMatWithSizeFromScalar(gocv.NewScalar(160, 160, 160, 0),
			frame.Height, frame.Width, gocv.MatTypeCV8UC3)
	}
	b.Compositor.Begin(pipeline.VideoFrame[gocv.Mat]{
		Image:     b.blank,
		Timestamp: frame.Timestamp,
		Width:     frame.Width,
		Height:    frame.Height,
	})
}

func (b *blankCompositor) End() error {
	if b.delay > 0 {
		time.Sleep(b.delay)
	}
	return b.Compositor.End()
}

func (b *blankCompositor) Close() error {
	return b.blank.Close()
}
