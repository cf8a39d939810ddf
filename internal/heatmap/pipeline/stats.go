package pipeline

import (
	"fmt"
	"time"
)

// StopReason records why a run ended.
type StopReason string

const (
	StopEndOfStream StopReason = "end_of_stream"
	StopCancelled   StopReason = "cancelled"
	StopRequested   StopReason = "stop_requested"
	StopFrameLimit  StopReason = "frame_limit"
	StopError       StopReason = "error"
)

// Stats summarises a run. It is returned from Driver.Run on every path,
// including errors, and reflects the output already emitted.
type Stats struct {
	FramesEmitted    int           `json:"frames_emitted"`
	Evaluations      int           `json:"evaluations"`
	CarriedForward   int           `json:"carried_forward"`
	MalformedClamped int           `json:"malformed_clamped"`
	FramesBeyondFeed int           `json:"frames_beyond_feed"`
	Detections       int           `json:"detections"`
	Duration         time.Duration `json:"duration_ns"`
	StopReason       StopReason    `json:"stop_reason"`
}

// FPS is the emitted frame rate over the run's wall time.
func (s Stats) FPS() float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.FramesEmitted) / s.Duration.Seconds()
}

func (s Stats) String() string {
	return fmt.Sprintf("frames=%d evaluated=%d carried=%d detections=%d malformed=%d beyond_feed=%d duration=%s fps=%.1f stop=%s",
		s.FramesEmitted, s.Evaluations, s.CarriedForward, s.Detections, s.MalformedClamped,
		s.FramesBeyondFeed, s.Duration.Round(time.Millisecond), s.FPS(), s.StopReason)
}
