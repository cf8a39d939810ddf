package pipeline

import (
	"context"
	"errors"
	"image"
)

// ErrStopRequested is returned by a sink (the display's quit key, a frame
// budget) to end the run cleanly. The driver treats it as a normal stop.
var ErrStopRequested = errors.New("pipeline: stop requested")

// FrameSource yields decoded frames in order. Next returns io.EOF once the
// stream is exhausted. Implementations need not be safe for concurrent use.
type FrameSource interface {
	Width() int
	Height() int
	// FrameCount is the number of frames when known up front, else 0.
	FrameCount() int
	Next(ctx context.Context) (image.Image, error)
	Close() error
}

// Frame is one composited output image. Index is the decode-order index of
// the source frame it was built from.
type Frame struct {
	Index int
	Image image.Image
}

// FrameSink consumes composited frames.
type FrameSink interface {
	WriteFrame(ctx context.Context, f Frame) error
	Close() error
}

// MultiSink fans every frame out to each sink in order. The first error
// stops the fan-out for that frame and is returned.
type MultiSink []FrameSink

// WriteFrame implements FrameSink.
func (m MultiSink) WriteFrame(ctx context.Context, f Frame) error {
	for _, s := range m {
		if err := s.WriteFrame(ctx, f); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink, even after a failure, and joins the errors.
func (m MultiSink) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Discard is a FrameSink that drops every frame. Useful for benchmark runs
// where only the stats and the session density are wanted.
type Discard struct{}

func (Discard) WriteFrame(context.Context, Frame) error { return nil }

func (Discard) Close() error { return nil }
