package heatmap

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigurationError_Message(t *testing.T) {
	err := NewConfigurationError("grid_scale", 0.0, "must be in (0,1]")
	assert.Equal(t, "invalid configuration grid_scale=0: must be in (0,1]", err.Error())

	wrapped := &ConfigurationError{Field: "video_path", Value: "x.mp4", Reason: "unreadable", Err: io.ErrUnexpectedEOF}
	assert.ErrorIs(t, wrapped, io.ErrUnexpectedEOF)
	assert.Contains(t, wrapped.Error(), "unexpected EOF")
}

func TestResourceError_Unwrap(t *testing.T) {
	cause := errors.New("device busy")
	err := fmt.Errorf("open source: %w", &ResourceError{Resource: "video", Op: "open", Err: cause})

	var re *ResourceError
	assert.True(t, errors.As(err, &re))
	assert.Equal(t, "video", re.Resource)
	assert.ErrorIs(t, err, cause)
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"feed mismatch", &FeedMismatchError{FeedFrames: 10, VideoFrames: 12}, false},
		{"malformed", &MalformedDetectionError{FrameIndex: 3}, false},
		{"wrapped malformed", fmt.Errorf("frame: %w", &MalformedDetectionError{}), false},
		{"configuration", NewConfigurationError("sample_rate", 0, "must be positive"), true},
		{"resource", &ResourceError{Resource: "video", Op: "read"}, true},
		{"plain", errors.New("boom"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}
