package l3heat

import "github.com/banshee-data/crowdheat/internal/heatmap"

// DefaultSampleRate evaluates the kernel on every second frame.
const DefaultSampleRate = 2

// Stride evaluates frames whose index is a multiple of Rate. Frames in
// between reuse the last heat layer; they are never dropped from output.
type Stride struct {
	Rate int
}

// NewStride validates the sampling stride.
func NewStride(rate int) (Stride, error) {
	if rate < 1 {
		return Stride{}, heatmap.NewConfigurationError("sample_rate", rate, "must be a positive integer")
	}
	return Stride{Rate: rate}, nil
}

// ShouldEvaluate reports whether the kernel runs for frameIndex.
func (s Stride) ShouldEvaluate(frameIndex int) bool {
	if s.Rate <= 1 {
		return true
	}
	return frameIndex%s.Rate == 0
}
