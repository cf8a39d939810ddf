package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/crowdheat/internal/config"
	"github.com/banshee-data/crowdheat/internal/fsutil"
	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/heatmap/l1feed"
	"github.com/banshee-data/crowdheat/internal/heatmap/l2grid"
	"github.com/banshee-data/crowdheat/internal/heatmap/l3heat"
	"github.com/banshee-data/crowdheat/internal/heatmap/pipeline"
	"github.com/banshee-data/crowdheat/internal/monitor"
	"github.com/banshee-data/crowdheat/internal/monitoring"
	"github.com/banshee-data/crowdheat/internal/storage/sqlite"
	"github.com/banshee-data/crowdheat/internal/video"
	"github.com/banshee-data/crowdheat/internal/video/gocvio"
)

// openSource opens a directory of frame images, or anything else through
// OpenCV. The returned interval is the source frame period when known.
func openSource(fsys fsutil.FileSystem, path string) (pipeline.FrameSource, time.Duration, float64, error) {
	if fi, err := fsys.Stat(path); err == nil && fi.IsDir() {
		src, err := video.OpenImageSequence(fsys, path)
		return src, 0, 0, err
	}
	c, err := gocvio.OpenCapture(path)
	if err != nil {
		return nil, 0, 0, err
	}
	return c, c.FrameInterval(), c.FPS(), nil
}

// loadFeed reads the detection feed from JSON, or from a feed store when
// the path names one.
func loadFeed(fsys fsutil.FileSystem, cfg *config.HeatmapConfig) (*l1feed.Feed, error) {
	path := cfg.GetDetectionsPath()
	if !config.IsStorePath(path) {
		return l1feed.Load(fsys, path)
	}
	db, err := sqlite.Open(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	feed, err := sqlite.NewFeedStore(db).Load(cfg.GetVideoKey())
	if errors.Is(err, sqlite.ErrFeedNotFound) {
		return nil, &heatmap.ConfigurationError{Field: "video_key", Value: cfg.GetVideoKey(), Reason: "no feed stored in " + path, Err: err}
	}
	return feed, err
}

// evaluateHook fans evaluations out to the summary plotter and the live
// monitor. It is nil when neither is enabled so the driver skips the call.
func evaluateHook(plotter *monitor.DensityPlotter, state *monitor.State) func(int, *l3heat.Field, *l3heat.Field) {
	if plotter == nil && state == nil {
		return nil
	}
	return func(frameIndex int, current, total *l3heat.Field) {
		if plotter != nil {
			plotter.Observe(frameIndex, current, total)
		}
		if state != nil {
			state.ObserveEvaluation(frameIndex, current, total)
		}
	}
}

// finishRun records the outcome of a run. A store failure is logged and
// does not replace the run's own error.
func finishRun(runs *sqlite.RunStore, runID string, stats pipeline.Stats, runErr error) {
	if err := runs.Finish(runID, stats, runErr); err != nil {
		monitoring.Logf("[store] finish run %s: %v", runID, err)
	}
}

// run executes one render session. Output sinks are opened before the
// driver so that a bad output path fails before any frame is decoded.
func run(ctx context.Context, opts *options) (stats pipeline.Stats, err error) {
	cfg := opts.cfg
	fsys := fsutil.OSFileSystem{}

	if err := cfg.ValidateInputs(fsys); err != nil {
		return stats, err
	}
	mode, err := l3heat.ParseMode(cfg.GetAccumulationMode())
	if err != nil {
		return stats, err
	}
	feed, err := loadFeed(fsys, cfg)
	if err != nil {
		return stats, err
	}
	monitoring.Logf("[feed] %d frame records, %d %q detections", feed.Len(), feed.CountLabel(cfg.GetTargetClass()), cfg.GetTargetClass())

	src, interval, fps, err := openSource(fsys, cfg.GetVideoPath())
	if err != nil {
		return stats, err
	}
	outW, outH, err := l2grid.OutputSize(src.Width(), src.Height(), cfg.GetOutputScale())
	if err != nil {
		src.Close()
		return stats, err
	}

	var sinks pipeline.MultiSink
	fail := func(err error) (pipeline.Stats, error) {
		sinks.Close()
		src.Close()
		return stats, err
	}

	var db *sqlite.DB
	if opts.dbPath != "" {
		if db, err = sqlite.Open(opts.dbPath); err != nil {
			return fail(err)
		}
		defer db.Close()
	}

	if opts.outFrames != "" {
		seq, err := video.NewPNGSequence(fsys, opts.outFrames, "frame")
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, seq)
	}
	if opts.outVideo != "" {
		w, err := gocvio.OpenWriter(opts.outVideo, fps, outW, outH)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, w)
	}
	if opts.display {
		win, err := gocvio.OpenWindow("crowdheat", cfg.GetDisplayWait())
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, win)
	}

	var rec *sqlite.Run
	var runs *sqlite.RunStore
	if db != nil {
		cfgJSON, err := json.Marshal(cfg)
		if err != nil {
			monitoring.Logf("[store] encode run config: %v", err)
		}
		runs = sqlite.NewRunStore(db)
		rec = &sqlite.Run{VideoKey: cfg.GetVideoKey(), ConfigJSON: cfgJSON}
		if err := runs.Start(rec); err != nil {
			return fail(err)
		}
	}

	var state *monitor.State
	if opts.listen != "" {
		runID := ""
		if rec != nil {
			runID = rec.RunID
		}
		state = monitor.NewState(runID, cfg.GetVideoKey())
		sinks = append(sinks, state)
	}
	if len(sinks) == 0 {
		monitoring.Logf("[pipeline] no output selected; rendering for stats only")
	}

	var plotter *monitor.DensityPlotter
	if opts.summaryDir != "" {
		plotter = monitor.NewDensityPlotter(cfg.GetVideoKey())
	}
	onEvaluate := evaluateHook(plotter, state)
	var onProgress func(pipeline.Stats)
	if state != nil {
		onProgress = state.ObserveProgress
	}

	var frameInterval time.Duration
	if opts.realtime {
		frameInterval = interval
	}

	var sink pipeline.FrameSink = sinks
	if len(sinks) == 0 {
		sink = pipeline.Discard{}
	}
	driver, err := pipeline.NewDriver(pipeline.DriverConfig{
		Source:        src,
		Feed:          feed,
		Sink:          sink,
		GridScale:     cfg.GetGridScale(),
		OutputScale:   cfg.GetOutputScale(),
		SampleRate:    cfg.GetSampleRate(),
		DistanceBias:  cfg.GetDistanceBias(),
		TargetClass:   cfg.GetTargetClass(),
		SourceWeight:  cfg.GetBlendSourceWeight(),
		HeatWeight:    cfg.GetBlendHeatWeight(),
		Mode:          mode,
		Decay:         cfg.GetDecayFactor(),
		Workers:       cfg.GetKernelWorkers(),
		MaxFrames:     opts.maxFrames,
		FrameInterval: frameInterval,
		OnEvaluate:    onEvaluate,
		OnProgress:    onProgress,
	})
	if err != nil {
		if runs != nil {
			finishRun(runs, rec.RunID, stats, err)
		}
		return fail(err)
	}

	var wg sync.WaitGroup
	serverCtx, stopServer := context.WithCancel(context.Background())
	defer func() {
		stopServer()
		wg.Wait()
	}()
	if state != nil {
		ws := monitor.NewWebServer(monitor.WebServerConfig{Address: opts.listen, State: state, DB: db})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := ws.Start(serverCtx); err != nil {
				monitoring.Logf("[monitor] %v", err)
			}
		}()
	}

	stats, err = driver.Run(ctx)
	if state != nil {
		state.Finish(stats, err)
	}

	if runs != nil {
		finishRun(runs, rec.RunID, stats, err)
		if stats.Evaluations > 0 {
			if _, serr := sqlite.NewDensityStore(db).Save(rec.RunID, rec.VideoKey, driver.Total(), stats.Evaluations); serr != nil {
				monitoring.Logf("[store] %v", serr)
			}
		}
	}
	if plotter != nil {
		if _, perr := plotter.GeneratePlots(fsys, opts.summaryDir); perr != nil {
			err = errors.Join(err, fmt.Errorf("summary plots: %w", perr))
		}
	}
	return stats, err
}
