package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dudu/faceoverlay/internal/detector"
)

// Run drives the pipeline one frame at a time until the source closes, the
// compositor reports ErrStopped, or ctx is cancelled. Each tick reads a frame,
// detects faces, runs ProcessFrame and presents the result before the next read,
// so passes never overlap.
//
// A frame whose timestamp equals the previous one is skipped. A detector error is
// logged and treated as a frame without faces. comp may be nil.
//
// While the source has no frame, a compositor implementing Idler is serviced
// instead of presenting; otherwise Run backs off briefly. After each presented
// frame the display size of a Viewporter is fed to SetViewport.
func Run[F any](ctx context.Context, p *Pipeline, src FrameSource[F], det FaceDetector[F], comp Compositor[F]) error {
	var (
		lastTimestamp time.Duration
		haveLast      bool
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		frame, err := src.Next(ctx)
		switch {
		case errors.Is(err, ErrSourceClosed):
			return nil
		case errors.Is(err, ErrNoFrame):
			if err := idle(ctx, comp); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				return fmt.Errorf("failed to service display: %w", err)
			}
			continue
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return fmt.Errorf("failed to read frame: %w", err)
		}

		if haveLast && frame.Timestamp == lastTimestamp {
			continue
		}
		lastTimestamp, haveLast = frame.Timestamp, true

		p.SetVideoSize(frame.Width, frame.Height)
		if comp != nil {
			comp.Begin(frame)
		}

		detectStart := time.Now()
		result, err := det.Detect(frame.Image, frame.Timestamp)
		detection := time.Since(detectStart)
		if err != nil {
			p.logger.Debug("detection failed, treating frame as empty", "error", err)
			result = detector.Result{}
		}

		p.processFrame(result, detection)

		if comp != nil {
			if err := comp.End(); err != nil {
				if errors.Is(err, ErrStopped) {
					return nil
				}
				return fmt.Errorf("failed to present frame: %w", err)
			}
			if v, ok := comp.(Viewporter); ok {
				if w, h, ok := v.Viewport(); ok && w > 0 && h > 0 {
					p.SetViewport(w, h)
				}
			}
		}
	}
}

// noFrameBackoff paces the loop while the source is dry and nothing services it
const noFrameBackoff = 5 * time.Millisecond

func idle[F any](ctx context.Context, comp Compositor[F]) error {
	if i, ok := comp.(Idler); ok {
		return i.Idle()
	}
	timer := time.NewTimer(noFrameBackoff)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
	return nil
}
