package heatmap

import (
	"errors"
	"fmt"
)

// ConfigurationError reports an invalid setting or an unusable input path.
// It is always fatal and raised before any frame is processed.
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := fmt.Sprintf("invalid configuration %s=%v: %s", e.Field, e.Value, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// NewConfigurationError is a convenience constructor.
func NewConfigurationError(field string, value interface{}, reason string) *ConfigurationError {
	return &ConfigurationError{Field: field, Value: value, Reason: reason}
}

// FeedMismatchError reports that the detection feed does not cover every
// video frame. Frames past the feed are rendered with zero detections, so
// this is a warning rather than a failure.
type FeedMismatchError struct {
	FeedFrames  int
	VideoFrames int
}

func (e *FeedMismatchError) Error() string {
	return fmt.Sprintf("detection feed covers %d frames but video has %d", e.FeedFrames, e.VideoFrames)
}

// MalformedDetectionError describes a box with out-of-range or inverted
// coordinates. The box is clamped and the run continues.
type MalformedDetectionError struct {
	FrameIndex  int
	ObjectIndex int
	X1, Y1      float64
	X2, Y2      float64
}

func (e *MalformedDetectionError) Error() string {
	return fmt.Sprintf("frame %d object %d: malformed box (%.4f,%.4f)-(%.4f,%.4f)",
		e.FrameIndex, e.ObjectIndex, e.X1, e.Y1, e.X2, e.Y2)
}

// ResourceError reports a video source or sink that could not be opened or
// failed mid-stream. It is fatal for the run.
type ResourceError struct {
	Resource string
	Op       string
	Err      error
}

func (e *ResourceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s failed", e.Resource, e.Op)
	}
	return fmt.Sprintf("%s %s failed: %v", e.Resource, e.Op, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort a run. Feed mismatches and malformed
// detections are recovered locally; everything else is fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var fm *FeedMismatchError
	var md *MalformedDetectionError
	if errors.As(err, &fm) || errors.As(err, &md) {
		return false
	}
	return true
}
