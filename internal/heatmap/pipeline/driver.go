package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/heatmap/l1feed"
	"github.com/banshee-data/crowdheat/internal/heatmap/l2grid"
	"github.com/banshee-data/crowdheat/internal/heatmap/l3heat"
	"github.com/banshee-data/crowdheat/internal/heatmap/l4render"
	"github.com/banshee-data/crowdheat/internal/monitoring"
	"github.com/banshee-data/crowdheat/internal/timeutil"
)

// DriverConfig wires a session together. Zero values for the scale, rate,
// bias and class fields select the package defaults; blend weights are
// taken as given.
type DriverConfig struct {
	Source FrameSource
	Feed   *l1feed.Feed // nil runs every frame with no detections
	Sink   FrameSink    // nil discards output

	GridScale    float64
	OutputScale  float64
	SampleRate   int
	DistanceBias float64
	TargetClass  string
	SourceWeight float64
	HeatWeight   float64

	Mode    l3heat.Mode
	Decay   float64
	Workers int

	// MaxFrames stops the run after this many emitted frames. 0 means all.
	MaxFrames int
	// FrameInterval paces the loop to at most one frame per interval, for
	// live viewing at the source frame rate. 0 runs flat out.
	FrameInterval time.Duration

	Clock timeutil.Clock // optional, defaults to the real clock

	// OnEvaluate is called after each kernel evaluation with the field being
	// rendered and the session total. Both are owned by the driver and must
	// be copied if retained.
	OnEvaluate func(frameIndex int, current, total *l3heat.Field)
	// OnProgress is called after each emitted frame.
	OnProgress func(Stats)
}

// Driver runs one video session. A Driver owns its source and sink from the
// moment Run is called and closes both before Run returns.
type Driver struct {
	source FrameSource
	feed   *l1feed.Feed
	sink   FrameSink
	clock  timeutil.Clock

	grid        l2grid.WorkingGrid
	stride      l3heat.Stride
	acc         *l3heat.Accumulator
	compositor  l4render.Compositor
	targetClass string

	maxFrames     int
	frameInterval time.Duration
	onEvaluate    func(int, *l3heat.Field, *l3heat.Field)
	onProgress    func(Stats)

	ran bool
}

// NewDriver validates the configuration against the source dimensions.
// On error nothing has been taken over and the caller still owns Source
// and Sink.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if cfg.Source == nil {
		return nil, heatmap.NewConfigurationError("video_path", nil, "no frame source")
	}
	if cfg.GridScale == 0 {
		cfg.GridScale = l2grid.DefaultGridScale
	}
	if cfg.OutputScale == 0 {
		cfg.OutputScale = l4render.DefaultOutputScale
	}
	if cfg.SampleRate == 0 {
		cfg.SampleRate = l3heat.DefaultSampleRate
	}
	if cfg.DistanceBias == 0 {
		cfg.DistanceBias = l3heat.DefaultDistanceBias
	}
	if cfg.TargetClass == "" {
		cfg.TargetClass = l1feed.DefaultTargetClass
	}

	w, h := cfg.Source.Width(), cfg.Source.Height()
	grid, err := l2grid.NewWorkingGrid(w, h, cfg.GridScale)
	if err != nil {
		return nil, err
	}
	stride, err := l3heat.NewStride(cfg.SampleRate)
	if err != nil {
		return nil, err
	}
	acc, err := l3heat.NewAccumulator(l3heat.AccumulatorConfig{
		Width:   grid.Width,
		Height:  grid.Height,
		Bias:    cfg.DistanceBias,
		Mode:    cfg.Mode,
		Decay:   cfg.Decay,
		Workers: cfg.Workers,
	})
	if err != nil {
		return nil, err
	}
	comp, err := l4render.NewCompositor(w, h, cfg.OutputScale, cfg.SourceWeight, cfg.HeatWeight)
	if err != nil {
		return nil, err
	}
	if cfg.MaxFrames < 0 {
		return nil, heatmap.NewConfigurationError("max_frames", cfg.MaxFrames, "must be non-negative")
	}

	sink := cfg.Sink
	if sink == nil {
		sink = Discard{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &Driver{
		source:        cfg.Source,
		feed:          cfg.Feed,
		sink:          sink,
		clock:         clock,
		grid:          grid,
		stride:        stride,
		acc:           acc,
		compositor:    comp,
		targetClass:   cfg.TargetClass,
		maxFrames:     cfg.MaxFrames,
		frameInterval: cfg.FrameInterval,
		onEvaluate:    cfg.OnEvaluate,
		onProgress:    cfg.OnProgress,
	}, nil
}

// Grid returns the working grid derived from the source.
func (d *Driver) Grid() l2grid.WorkingGrid { return d.grid }

// OutputSize returns the dimensions of emitted frames.
func (d *Driver) OutputSize() (int, int) {
	return d.compositor.OutputWidth, d.compositor.OutputHeight
}

// Total returns the sum of every evaluated contribution so far. Callers must
// not modify it.
func (d *Driver) Total() *l3heat.Field { return d.acc.Total() }

// Run processes frames until the source is exhausted, ctx is cancelled, a
// sink requests a stop, MaxFrames is reached, or a fatal error occurs.
// Cancellation and stop requests are not errors; they are reported through
// Stats.StopReason. The source and sink are closed on every path.
func (d *Driver) Run(ctx context.Context) (stats Stats, err error) {
	if d.ran {
		return Stats{}, errors.New("pipeline: driver already ran")
	}
	d.ran = true

	start := d.clock.Now()
	defer func() {
		stats.Duration = d.clock.Since(start)
		if cerr := d.closeAll(); cerr != nil && err == nil {
			err = cerr
			stats.StopReason = StopError
		}
		monitoring.Logf("[pipeline] done: %s", stats)
	}()

	if d.feed != nil {
		if err := d.feed.CheckCoverage(d.source.FrameCount()); err != nil {
			// Frames past the feed are rendered with no detections.
			monitoring.Logf("[pipeline] warning: %v", err)
		}
	}
	monitoring.Logf("[pipeline] start: source %dx%d, grid %s, sample rate %d, mode %s",
		d.source.Width(), d.source.Height(), d.grid, d.stride.Rate, d.acc.Config().Mode)

	var heat *image.NRGBA
	feedEnd := d.feed.MaxFrameIndex()

	for idx := 0; ; idx++ {
		if ctx.Err() != nil {
			stats.StopReason = StopCancelled
			return stats, nil
		}
		frameStart := d.clock.Now()

		img, err := d.source.Next(ctx)
		if errors.Is(err, io.EOF) {
			stats.StopReason = StopEndOfStream
			return stats, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				stats.StopReason = StopCancelled
				return stats, nil
			}
			stats.StopReason = StopError
			return stats, &heatmap.ResourceError{Resource: "video", Op: fmt.Sprintf("read frame %d", idx), Err: err}
		}

		if d.feed != nil && idx > feedEnd {
			stats.FramesBeyondFeed++
		}
		for _, m := range d.feed.Malformed(idx) {
			stats.MalformedClamped++
			monitoring.Debugf("[pipeline] clamped %v", m)
		}

		if heat == nil || d.stride.ShouldEvaluate(idx) {
			centroids := d.grid.Centroids(d.feed.Objects(idx), d.targetClass)
			field, err := d.acc.Evaluate(ctx, idx, centroids)
			if err != nil {
				if ctx.Err() != nil {
					stats.StopReason = StopCancelled
					return stats, nil
				}
				stats.StopReason = StopError
				return stats, fmt.Errorf("evaluate frame %d: %w", idx, err)
			}
			heat = l4render.Heatmap(field)
			stats.Evaluations++
			stats.Detections += len(centroids)
			if d.onEvaluate != nil {
				d.onEvaluate(idx, field, d.acc.Total())
			}
		} else {
			stats.CarriedForward++
		}

		out := d.compositor.Compose(img, heat)
		if err := d.sink.WriteFrame(ctx, Frame{Index: idx, Image: out}); err != nil {
			if errors.Is(err, ErrStopRequested) {
				stats.StopReason = StopRequested
				return stats, nil
			}
			stats.StopReason = StopError
			return stats, &heatmap.ResourceError{Resource: "output", Op: fmt.Sprintf("write frame %d", idx), Err: err}
		}
		stats.FramesEmitted++
		if d.onProgress != nil {
			d.onProgress(stats)
		}

		if d.maxFrames > 0 && stats.FramesEmitted >= d.maxFrames {
			stats.StopReason = StopFrameLimit
			return stats, nil
		}
		if d.frameInterval > 0 {
			if wait := d.frameInterval - d.clock.Since(frameStart); wait > 0 {
				d.clock.Sleep(wait)
			}
		}
	}
}

func (d *Driver) closeAll() error {
	var errs []error
	if err := d.source.Close(); err != nil {
		errs = append(errs, &heatmap.ResourceError{Resource: "video", Op: "close", Err: err})
	}
	if err := d.sink.Close(); err != nil {
		errs = append(errs, &heatmap.ResourceError{Resource: "output", Op: "close", Err: err})
	}
	return errors.Join(errs...)
}
