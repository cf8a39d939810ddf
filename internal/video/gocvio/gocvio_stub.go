//go:build !gocv
// +build !gocv

package gocvio

import (
	"context"
	"image"
	"time"

	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/heatmap/pipeline"
)

// Available reports whether OpenCV support is compiled in.
const Available = false

// DefaultWaitKey is the per-frame key poll for the display window.
const DefaultWaitKey = 10 * time.Millisecond

// Capture is unavailable without the gocv build tag.
type Capture struct{}

// OpenCapture always fails without the gocv build tag.
func OpenCapture(path string) (*Capture, error) {
	return nil, &heatmap.ResourceError{Resource: "video", Op: "open " + path, Err: ErrUnavailable}
}

func (*Capture) Width() int                                { return 0 }
func (*Capture) Height() int                               { return 0 }
func (*Capture) FrameCount() int                           { return 0 }
func (*Capture) FPS() float64                              { return 0 }
func (*Capture) FrameInterval() time.Duration              { return 0 }
func (*Capture) Next(context.Context) (image.Image, error) { return nil, ErrUnavailable }
func (*Capture) Close() error                              { return nil }

// Window is unavailable without the gocv build tag.
type Window struct{}

// OpenWindow always fails without the gocv build tag.
func OpenWindow(name string, wait time.Duration) (*Window, error) {
	return nil, &heatmap.ResourceError{Resource: "display", Op: "open " + name, Err: ErrUnavailable}
}

func (*Window) WriteFrame(context.Context, pipeline.Frame) error { return ErrUnavailable }
func (*Window) Close() error                                     { return nil }

// Writer is unavailable without the gocv build tag.
type Writer struct{}

// OpenWriter always fails without the gocv build tag.
func OpenWriter(path string, fps float64, width, height int) (*Writer, error) {
	return nil, &heatmap.ResourceError{Resource: "output", Op: "open " + path, Err: ErrUnavailable}
}

func (*Writer) WriteFrame(context.Context, pipeline.Frame) error { return ErrUnavailable }
func (*Writer) Close() error                                     { return nil }
