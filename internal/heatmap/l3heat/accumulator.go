package l3heat

import (
	"context"
	"fmt"
	"math"

	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/heatmap/l2grid"
)

// Mode selects how evaluated frames combine.
type Mode string

const (
	// ModeFresh recomputes the field from zero on every evaluated frame.
	ModeFresh Mode = "fresh"
	// ModeCumulative carries the field across evaluations, decaying it by
	// Decay^(frames elapsed) before adding the new contribution.
	ModeCumulative Mode = "cumulative"
)

// ParseMode maps a config string to a Mode. Empty means ModeFresh.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeFresh:
		return ModeFresh, nil
	case ModeCumulative:
		return ModeCumulative, nil
	}
	return "", heatmap.NewConfigurationError("accumulation_mode", s, `must be "fresh" or "cumulative"`)
}

// AccumulatorConfig holds the per-session kernel settings.
type AccumulatorConfig struct {
	Width   int
	Height  int
	Bias    float64
	Mode    Mode
	Decay   float64 // cumulative only; 1 keeps every past contribution
	Workers int     // goroutines for the kernel; <= 1 runs inline
}

// Accumulator owns the heat field for one video session. It is not safe for
// concurrent use; the frame driver is its only caller.
type Accumulator struct {
	cfg AccumulatorConfig

	current     *Field
	total       *Field
	lastFrame   int
	evaluations int
}

// NewAccumulator validates cfg and returns an empty accumulator.
func NewAccumulator(cfg AccumulatorConfig) (*Accumulator, error) {
	if cfg.Width < 1 || cfg.Height < 1 {
		return nil, heatmap.NewConfigurationError("working_grid", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height), "must be at least 1x1")
	}
	if math.IsNaN(cfg.Bias) || cfg.Bias <= 0 {
		return nil, heatmap.NewConfigurationError("distance_bias", cfg.Bias, "must be positive")
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if mode == ModeCumulative {
		if cfg.Decay == 0 {
			cfg.Decay = 1
		}
		if math.IsNaN(cfg.Decay) || cfg.Decay < 0 || cfg.Decay > 1 {
			return nil, heatmap.NewConfigurationError("decay_factor", cfg.Decay, "must be in (0,1]")
		}
	}

	return &Accumulator{
		cfg:       cfg,
		total:     NewField(cfg.Width, cfg.Height),
		lastFrame: -1,
	}, nil
}

// Evaluate runs the kernel for one sampled frame and returns the field to
// render. The returned field is owned by the accumulator and is only valid
// until the next call; callers that keep it must Clone it.
func (a *Accumulator) Evaluate(ctx context.Context, frameIndex int, centroids []l2grid.Point) (*Field, error) {
	contrib, err := ComputeParallel(ctx, a.cfg.Width, a.cfg.Height, centroids, a.cfg.Bias, a.cfg.Workers)
	if err != nil {
		return nil, err
	}
	a.total.Add(contrib)

	switch a.cfg.Mode {
	case ModeCumulative:
		if a.current == nil {
			a.current = contrib
			break
		}
		if elapsed := frameIndex - a.lastFrame; elapsed > 0 && a.cfg.Decay < 1 {
			a.current.Scale(math.Pow(a.cfg.Decay, float64(elapsed)))
		}
		a.current.Add(contrib)
	default:
		a.current = contrib
	}

	a.lastFrame = frameIndex
	a.evaluations++
	return a.current, nil
}

// Current returns the most recently evaluated field, or nil before the first
// evaluation.
func (a *Accumulator) Current() *Field {
	return a.current
}

// Total returns the sum of every fresh contribution evaluated this session,
// independent of Mode. Callers must not modify it.
func (a *Accumulator) Total() *Field {
	return a.total
}

// Evaluations returns how many frames have been evaluated.
func (a *Accumulator) Evaluations() int {
	return a.evaluations
}

// Config returns the validated configuration.
func (a *Accumulator) Config() AccumulatorConfig {
	return a.cfg
}
