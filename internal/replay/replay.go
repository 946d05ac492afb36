// Package replay records detection results to a msgpack stream and plays them back
// through the pipeline without a camera or a model.
package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/dudu/faceoverlay/internal/detector"
	"github.com/dudu/faceoverlay/internal/pipeline"
)

// Record is one recorded frame: its capture time, pixel size and detected faces
type Record struct {
	Timestamp time.Duration   `msgpack:"t"`
	Width     int             `msgpack:"w"`
	Height    int             `msgpack:"h"`
	Result    detector.Result `msgpack:"r"`
}

// Writer appends records to a stream
type Writer struct {
	enc *msgpack.Encoder
	mu  sync.Mutex
	n   int
}

// NewWriter creates a record writer on w
func NewWriter(w io.Writer) *Writer {
	return &Writer{enc: msgpack.NewEncoder(w)}
}

// Write encodes one record
func (w *Writer) Write(rec Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(&rec); err != nil {
		return fmt.Errorf("failed to encode record %d: %w", w.n, err)
	}
	w.n++
	return nil
}

// Count returns the number of records written
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.n
}

// Source plays a record stream back. It is both the frame source and the
// detector of a pipeline run: each frame carries its own recorded result.
type Source struct {
	dec *msgpack.Decoder
	n   int
}

// NewSource reads records from r
func NewSource(r io.Reader) *Source {
	return &Source{dec: msgpack.NewDecoder(r)}
}

// Next decodes the next record
func (s *Source) Next(ctx context.Context) (pipeline.VideoFrame[Record], error) {
	if err := ctx.Err(); err != nil {
		return pipeline.VideoFrame[Record]{}, err
	}

	var rec Record
	if err := s.dec.Decode(&rec); err != nil {
		if errors.Is(err, io.EOF) {
			return pipeline.VideoFrame[Record]{}, pipeline.ErrSourceClosed
		}
		return pipeline.VideoFrame[Record]{}, fmt.Errorf("failed to decode record %d: %w", s.n, err)
	}
	s.n++

	return pipeline.VideoFrame[Record]{
		Image:     rec,
		Timestamp: rec.Timestamp,
		Width:     rec.Width,
		Height:    rec.Height,
	}, nil
}

// Detect returns the result stored in the record
func (s *Source) Detect(rec Record, _ time.Duration) (detector.Result, error) {
	return rec.Result, nil
}

// Count returns the number of records read so far
func (s *Source) Count() int {
	return s.n
}

// Tee wraps a detector and records every result it returns
type Tee[F any] struct {
	det     pipeline.FaceDetector[F]
	w       *Writer
	sizeOf  func(F) (int, int)
	onError func(error)
}

// NewTee records the results of det to w. sizeOf reports the pixel size of a frame.
// onError is called when a record cannot be written; detection carries on.
func NewTee[F any](det pipeline.FaceDetector[F], w *Writer, sizeOf func(F) (int, int), onError func(error)) *Tee[F] {
	return &Tee[F]{det: det, w: w, sizeOf: sizeOf, onError: onError}
}

// Detect runs the wrapped detector and records its result
func (t *Tee[F]) Detect(frame F, timestamp time.Duration) (detector.Result, error) {
	result, err := t.det.Detect(frame, timestamp)
	if err != nil {
		return result, err
	}

	width, height := t.sizeOf(frame)
	werr := t.w.Write(Record{Timestamp: timestamp, Width: width, Height: height, Result: result})
	if werr != nil && t.onError != nil {
		t.onError(werr)
	}
	return result, nil
}
