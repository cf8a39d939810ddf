// Package gocvio adapts OpenCV (via gocv) video capture, display windows and
// video writers to the pipeline's FrameSource and FrameSink interfaces.
//
// Build with -tags gocv on a host with OpenCV 4 installed. Without the tag
// every constructor returns ErrUnavailable.
package gocvio

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnavailable is returned when the binary was built without OpenCV.
var ErrUnavailable = errors.New("gocvio: OpenCV support not compiled in (build with -tags gocv)")

// ErrDecode reports a frame that could not be read before the end of the
// stream.
var ErrDecode = errors.New("gocvio: frame decode failed")

// readFailure classifies a failed read at position pos. Streams and
// containers without a frame count (count == 0) end at the first failed
// read.
func readFailure(pos, count int) error {
	if count > 0 && pos < count {
		return fmt.Errorf("read frame %d of %d: %w", pos, count, ErrDecode)
	}
	return io.EOF
}
