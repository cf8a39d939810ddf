package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/heatmap/l1feed"
	"github.com/banshee-data/crowdheat/internal/heatmap/l3heat"
	"github.com/banshee-data/crowdheat/internal/monitoring"
	"github.com/banshee-data/crowdheat/internal/timeutil"
)

func TestMain(m *testing.M) {
	monitoring.SetLogger(nil)
	os.Exit(m.Run())
}

// fakeSource yields n uniform grey frames.
type fakeSource struct {
	w, h     int
	n        int
	count    int // reported FrameCount
	failAt   int // -1 never
	closeErr error

	next   int
	closed int
}

func newFakeSource(w, h, n int) *fakeSource {
	return &fakeSource{w: w, h: h, n: n, count: n, failAt: -1}
}

func (s *fakeSource) Width() int      { return s.w }
func (s *fakeSource) Height() int     { return s.h }
func (s *fakeSource) FrameCount() int { return s.count }

func (s *fakeSource) Next(ctx context.Context) (image.Image, error) {
	if s.next == s.failAt {
		return nil, errors.New("corrupt packet")
	}
	if s.next >= s.n {
		return nil, io.EOF
	}
	s.next++
	return imaging.New(s.w, s.h, color.NRGBA{R: 90, G: 90, B: 90, A: 255}), nil
}

func (s *fakeSource) Close() error {
	s.closed++
	return s.closeErr
}

// recordSink keeps every frame it receives.
type recordSink struct {
	frames   []Frame
	stopAt   int // index at which to return ErrStopRequested, -1 never
	failAt   int // index at which to return a write error, -1 never
	closeErr error
	closed   int
}

func newRecordSink() *recordSink { return &recordSink{stopAt: -1, failAt: -1} }

func (s *recordSink) WriteFrame(_ context.Context, f Frame) error {
	if f.Index == s.stopAt {
		return ErrStopRequested
	}
	if f.Index == s.failAt {
		return errors.New("disk full")
	}
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordSink) Close() error {
	s.closed++
	return s.closeErr
}

func person(x1, y1, x2, y2 float64) l1feed.Detection {
	return l1feed.Detection{Label: "person", Box: l1feed.Box{X1: x1, Y1: y1, X2: x2, Y2: y2}}
}

func mustFeed(t *testing.T, recs ...l1feed.Record) *l1feed.Feed {
	t.Helper()
	f, err := l1feed.NewFeed(recs)
	require.NoError(t, err)
	return f
}

func baseConfig(src FrameSource, feed *l1feed.Feed, sink FrameSink) DriverConfig {
	return DriverConfig{
		Source:       src,
		Feed:         feed,
		Sink:         sink,
		GridScale:    0.1,
		OutputScale:  0.5,
		SampleRate:   2,
		SourceWeight: 0.6,
		HeatWeight:   0.4,
		Clock:        timeutil.NewMockClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
	}
}

func TestDriver_CarryForward(t *testing.T) {
	src := newFakeSource(200, 100, 5)
	sink := newRecordSink()
	feed := mustFeed(t,
		l1feed.Record{FrameIndex: 0, Objects: []l1feed.Detection{person(0.0, 0.0, 0.2, 0.2)}},
		l1feed.Record{FrameIndex: 1, Objects: []l1feed.Detection{person(0.8, 0.8, 1.0, 1.0)}},
		l1feed.Record{FrameIndex: 2, Objects: []l1feed.Detection{person(0.8, 0.0, 1.0, 0.2)}},
		l1feed.Record{FrameIndex: 4},
	)

	var evaluated []int
	cfg := baseConfig(src, feed, sink)
	cfg.OnEvaluate = func(idx int, current, total *l3heat.Field) {
		evaluated = append(evaluated, idx)
	}
	d, err := NewDriver(cfg)
	require.NoError(t, err)

	stats, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 4}, evaluated)
	assert.Equal(t, 5, stats.FramesEmitted)
	assert.Equal(t, 3, stats.Evaluations)
	assert.Equal(t, 2, stats.CarriedForward)
	assert.Equal(t, 2, stats.Detections, "frame 1 is never evaluated")
	assert.Equal(t, StopEndOfStream, stats.StopReason)

	require.Len(t, sink.frames, 5)
	for i, f := range sink.frames {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, image.Rect(0, 0, 100, 50), f.Image.Bounds())
	}
	frame := func(i int) []uint8 { return sink.frames[i].Image.(*image.NRGBA).Pix }
	assert.Equal(t, frame(0), frame(1), "frame 1 reuses the heat layer of frame 0")
	assert.NotEqual(t, frame(1), frame(2))
	assert.Equal(t, frame(2), frame(3))

	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, sink.closed)
}

func TestDriver_SampleRateOneEvaluatesEveryFrame(t *testing.T) {
	src := newFakeSource(100, 100, 4)
	cfg := baseConfig(src, nil, nil)
	cfg.SampleRate = 1
	d, err := NewDriver(cfg)
	require.NoError(t, err)

	stats, err := d.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Evaluations)
	assert.Equal(t, 0, stats.CarriedForward)
}

func TestDriver_AbsentTargetClassRendersCold(t *testing.T) {
	src := newFakeSource(100, 60, 4)
	sink := newRecordSink()
	feed := mustFeed(t,
		l1feed.Record{FrameIndex: 0, Objects: []l1feed.Detection{{Label: "car", Box: l1feed.Box{X1: 0.1, Y1: 0.1, X2: 0.3, Y2: 0.3}}}},
		l1feed.Record{FrameIndex: 2, Objects: []l1feed.Detection{{Label: "dog", Box: l1feed.Box{X1: 0.5, Y1: 0.5, X2: 0.6, Y2: 0.6}}}},
	)

	zero := true
	cfg := baseConfig(src, feed, sink)
	cfg.OnEvaluate = func(_ int, current, total *l3heat.Field) {
		zero = zero && current.IsZero() && total.IsZero()
	}
	d, err := NewDriver(cfg)
	require.NoError(t, err)
	_, err = d.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, zero)
	assert.True(t, d.Total().IsZero())
	// 90*0.6 = 54 on red/green, 54 + 128*0.4 = 105.2 on blue
	for _, f := range sink.frames {
		px := f.Image.(*image.NRGBA).NRGBAAt(10, 10)
		assert.Equal(t, color.NRGBA{R: 54, G: 54, B: 105, A: 255}, px, "frame %d", f.Index)
	}
}

func TestDriver_TotalAccumulatesEvaluations(t *testing.T) {
	src := newFakeSource(1000, 1000, 3)
	feed := mustFeed(t,
		l1feed.Record{FrameIndex: 0, Objects: []l1feed.Detection{person(0.4, 0.4, 0.6, 0.6)}},
		l1feed.Record{FrameIndex: 2, Objects: []l1feed.Detection{person(0.4, 0.4, 0.6, 0.6)}},
	)
	d, err := NewDriver(baseConfig(src, feed, nil))
	require.NoError(t, err)
	assert.Equal(t, 100, d.Grid().Width)

	_, err = d.Run(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 0.02, d.Total().At(50, 50), 1e-15)
	assert.InDelta(t, 2.0/5100, d.Total().At(0, 0), 1e-15)
}

func TestDriver_StopRequested(t *testing.T) {
	src := newFakeSource(100, 100, 10)
	sink := newRecordSink()
	sink.stopAt = 3

	d, err := NewDriver(baseConfig(src, nil, sink))
	require.NoError(t, err)
	stats, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopRequested, stats.StopReason)
	assert.Equal(t, 3, stats.FramesEmitted)
	assert.Len(t, sink.frames, 3)
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, sink.closed)
}

func TestDriver_ContextCancelled(t *testing.T) {
	src := newFakeSource(100, 100, 10)
	sink := newRecordSink()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := baseConfig(src, nil, sink)
	cfg.OnProgress = func(s Stats) {
		if s.FramesEmitted == 2 {
			cancel()
		}
	}
	d, err := NewDriver(cfg)
	require.NoError(t, err)
	stats, err := d.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, StopCancelled, stats.StopReason)
	assert.Equal(t, 2, stats.FramesEmitted)
	assert.Len(t, sink.frames, 2, "emitted output is retained")
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, sink.closed)
}

func TestDriver_ReadFailureIsResourceError(t *testing.T) {
	src := newFakeSource(100, 100, 10)
	src.failAt = 2
	sink := newRecordSink()

	d, err := NewDriver(baseConfig(src, nil, sink))
	require.NoError(t, err)
	stats, err := d.Run(context.Background())

	var re *heatmap.ResourceError
	require.True(t, errors.As(err, &re), "got %v", err)
	assert.Equal(t, "video", re.Resource)
	assert.Contains(t, err.Error(), "corrupt packet")
	assert.True(t, heatmap.IsFatal(err))
	assert.Equal(t, StopError, stats.StopReason)
	assert.Len(t, sink.frames, 2, "no frame emitted for the failed read")
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, sink.closed)
}

func TestDriver_WriteFailureIsResourceError(t *testing.T) {
	src := newFakeSource(100, 100, 10)
	sink := newRecordSink()
	sink.failAt = 1

	d, err := NewDriver(baseConfig(src, nil, sink))
	require.NoError(t, err)
	_, err = d.Run(context.Background())

	var re *heatmap.ResourceError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "output", re.Resource)
	assert.Equal(t, 1, src.closed)
	assert.Equal(t, 1, sink.closed)
}

func TestDriver_CloseErrorSurfaces(t *testing.T) {
	src := newFakeSource(100, 100, 2)
	src.closeErr = errors.New("device busy")

	d, err := NewDriver(baseConfig(src, nil, nil))
	require.NoError(t, err)
	stats, err := d.Run(context.Background())

	var re *heatmap.ResourceError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "close", re.Op)
	assert.Equal(t, 2, stats.FramesEmitted)
	assert.Equal(t, StopError, stats.StopReason)
}

func TestDriver_FeedShorterThanVideo(t *testing.T) {
	var mu sync.Mutex
	var logs []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		mu.Lock()
		defer mu.Unlock()
		logs = append(logs, fmt.Sprintf(format, v...))
	})
	defer monitoring.SetLogger(nil)

	src := newFakeSource(100, 100, 6)
	feed := mustFeed(t,
		l1feed.Record{FrameIndex: 0, Objects: []l1feed.Detection{person(0.1, 0.1, 0.2, 0.2)}},
		l1feed.Record{FrameIndex: 2, Objects: []l1feed.Detection{person(0.1, 0.1, 0.2, 0.2)}},
	)
	d, err := NewDriver(baseConfig(src, feed, nil))
	require.NoError(t, err)
	stats, err := d.Run(context.Background())
	require.NoError(t, err, "a short feed is a warning, not a failure")

	assert.Equal(t, 6, stats.FramesEmitted)
	assert.Equal(t, 3, stats.FramesBeyondFeed)

	mu.Lock()
	defer mu.Unlock()
	var warned bool
	for _, l := range logs {
		if strings.Contains(l, "warning") && strings.Contains(l, "3 frames") {
			warned = true
		}
	}
	assert.True(t, warned, "logs: %v", logs)
}

func TestDriver_MalformedBoxesCounted(t *testing.T) {
	src := newFakeSource(100, 100, 3)
	feed := mustFeed(t,
		l1feed.Record{FrameIndex: 0, Objects: []l1feed.Detection{person(0.6, 0.6, 0.4, 0.4), person(-0.2, 0.1, 0.3, 1.4)}},
		l1feed.Record{FrameIndex: 2, Objects: []l1feed.Detection{person(0.1, 0.1, 0.2, 0.2)}},
	)
	d, err := NewDriver(baseConfig(src, feed, nil))
	require.NoError(t, err)
	stats, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.MalformedClamped)
	assert.Equal(t, 3, stats.Detections, "clamped boxes still contribute")
}

func TestDriver_MaxFramesAndPacing(t *testing.T) {
	clock := timeutil.NewMockClock(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	src := newFakeSource(100, 100, 10)
	cfg := baseConfig(src, nil, nil)
	cfg.Clock = clock
	cfg.MaxFrames = 3
	cfg.FrameInterval = 40 * time.Millisecond

	d, err := NewDriver(cfg)
	require.NoError(t, err)
	stats, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StopFrameLimit, stats.StopReason)
	assert.Equal(t, 3, stats.FramesEmitted)
	// no sleep after the final frame
	assert.Equal(t, []time.Duration{40 * time.Millisecond, 40 * time.Millisecond}, clock.Sleeps())
	assert.Equal(t, 80*time.Millisecond, stats.Duration)
	assert.InDelta(t, 37.5, stats.FPS(), 1e-9)
}

func TestDriver_RunOnce(t *testing.T) {
	d, err := NewDriver(baseConfig(newFakeSource(100, 100, 1), nil, nil))
	require.NoError(t, err)
	_, err = d.Run(context.Background())
	require.NoError(t, err)
	_, err = d.Run(context.Background())
	assert.Error(t, err)
}

func TestNewDriver_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DriverConfig)
		field  string
	}{
		{"no source", func(c *DriverConfig) { c.Source = nil }, "video_path"},
		{"grid collapses", func(c *DriverConfig) { c.Source = newFakeSource(8, 8, 1) }, "grid_scale"},
		{"grid scale above one", func(c *DriverConfig) { c.GridScale = 2 }, "grid_scale"},
		{"output scale negative", func(c *DriverConfig) { c.OutputScale = -0.5 }, "output_scale"},
		{"sample rate negative", func(c *DriverConfig) { c.SampleRate = -1 }, "sample_rate"},
		{"bias negative", func(c *DriverConfig) { c.DistanceBias = -1 }, "distance_bias"},
		{"bad mode", func(c *DriverConfig) { c.Mode = "sliding" }, "accumulation_mode"},
		{"negative weight", func(c *DriverConfig) { c.HeatWeight = -0.4 }, "blend_heat_weight"},
		{"negative frame limit", func(c *DriverConfig) { c.MaxFrames = -1 }, "max_frames"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(newFakeSource(640, 480, 1), nil, nil)
			tt.mutate(&cfg)
			_, err := NewDriver(cfg)
			var ce *heatmap.ConfigurationError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestMultiSink(t *testing.T) {
	a, b := newRecordSink(), newRecordSink()
	b.closeErr = errors.New("flush failed")
	m := MultiSink{a, b}

	f := Frame{Index: 7, Image: image.NewNRGBA(image.Rect(0, 0, 1, 1))}
	require.NoError(t, m.WriteFrame(context.Background(), f))
	assert.Len(t, a.frames, 1)
	assert.Len(t, b.frames, 1)

	a.stopAt = 8
	err := m.WriteFrame(context.Background(), Frame{Index: 8})
	assert.ErrorIs(t, err, ErrStopRequested)
	assert.Len(t, b.frames, 1, "fan-out stops at the first error")

	err = m.Close()
	assert.ErrorContains(t, err, "flush failed")
	assert.Equal(t, 1, a.closed)
	assert.Equal(t, 1, b.closed)
}
