package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/banshee-data/crowdheat/internal/config"
)

// options is the parsed command line. cfg holds the merged configuration:
// defaults, then the -config file, then explicitly set flags.
type options struct {
	cfg *config.HeatmapConfig

	configPath  string
	display     bool
	outVideo    string
	outFrames   string
	summaryDir  string
	dbPath      string
	listen      string
	maxFrames   int
	realtime    bool
	debug       bool
	showVersion bool
}

const usageText = `Usage: crowdheat [flags] [VIDEO DETECTIONS]

Renders a temporal heatmap of tracked objects over a video. VIDEO is a video
file, stream URL or directory of frame images; DETECTIONS is a JSON feed or a
SQLite store (.db) holding one imported with feed-import.

Flags:
`

func parseOptions(args []string, stderr io.Writer) (*options, error) {
	fs := flag.NewFlagSet("crowdheat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageText)
		fs.PrintDefaults()
	}

	opts := &options{}
	fs.StringVar(&opts.configPath, "config", "", "JSON configuration file (see "+config.DefaultConfigPath+")")
	fs.BoolVar(&opts.display, "display", false, "Show frames in a window; press q to stop (needs -tags gocv)")
	fs.StringVar(&opts.outVideo, "out-video", "", "Write the composited video to this file (MJPG, needs -tags gocv)")
	fs.StringVar(&opts.outFrames, "out-frames", "", "Write composited frames as PNGs into this directory")
	fs.StringVar(&opts.summaryDir, "summary-png", "", "Write density and mass plots into this directory when the run ends")
	fs.StringVar(&opts.dbPath, "db", "", "SQLite store for run history and density snapshots")
	fs.StringVar(&opts.listen, "listen", "", "Serve the live monitor on this address, e.g. :8090")
	fs.IntVar(&opts.maxFrames, "max-frames", 0, "Stop after this many frames (0 = all)")
	fs.BoolVar(&opts.realtime, "realtime", false, "Pace output at the source frame rate")
	fs.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	fs.BoolVar(&opts.showVersion, "version", false, "Print version and exit")

	// Configuration flags. Only flags that are set on the command line
	// override the file; the defaults shown here are informational.
	var (
		videoPath         = fs.String("video", "", "Video file, stream URL or frame directory")
		detectionsPath    = fs.String("detections", "", "Detection feed (JSON) or feed store (.db)")
		videoKey          = fs.String("video-key", "", "Feed key in the store (default: base name of -video)")
		gridScale         = fs.Float64("grid-scale", config.DefaultGridScale, "Working grid scale in (0,1]")
		outputScale       = fs.Float64("output-scale", config.DefaultOutputScale, "Output frame scale in (0,1]")
		sampleRate        = fs.Int("sample-rate", config.DefaultSampleRate, "Recompute heat every Nth frame")
		distanceBias      = fs.Float64("distance-bias", config.DefaultDistanceBias, "Kernel distance bias")
		targetClass       = fs.String("target-class", config.DefaultTargetClass, "Detection label that contributes heat")
		accumulationMode  = fs.String("mode", config.DefaultAccumulationMode, `Heat mode: "fresh" or "cumulative"`)
		decayFactor       = fs.Float64("decay", config.DefaultDecayFactor, "Per-frame decay in cumulative mode, (0,1]")
		kernelWorkers     = fs.Int("workers", config.DefaultKernelWorkers, "Goroutines per kernel evaluation")
		blendSourceWeight = fs.Float64("source-weight", config.DefaultBlendSourceWeight, "Blend weight of the source frame")
		blendHeatWeight   = fs.Float64("heat-weight", config.DefaultBlendHeatWeight, "Blend weight of the heat layer")
		displayWait       = fs.Duration("display-wait", config.DefaultDisplayWait, "Per-frame key wait for -display")
	)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if opts.showVersion {
		return opts, nil
	}

	overrides := config.EmptyHeatmapConfig()
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "video":
			overrides.VideoPath = config.String(*videoPath)
		case "detections":
			overrides.DetectionsPath = config.String(*detectionsPath)
		case "video-key":
			overrides.VideoKey = config.String(*videoKey)
		case "grid-scale":
			overrides.GridScale = config.Float64(*gridScale)
		case "output-scale":
			overrides.OutputScale = config.Float64(*outputScale)
		case "sample-rate":
			overrides.SampleRate = config.Int(*sampleRate)
		case "distance-bias":
			overrides.DistanceBias = config.Float64(*distanceBias)
		case "target-class":
			overrides.TargetClass = config.String(*targetClass)
		case "mode":
			overrides.AccumulationMode = config.String(*accumulationMode)
		case "decay":
			overrides.DecayFactor = config.Float64(*decayFactor)
		case "workers":
			overrides.KernelWorkers = config.Int(*kernelWorkers)
		case "source-weight":
			overrides.BlendSourceWeight = config.Float64(*blendSourceWeight)
		case "heat-weight":
			overrides.BlendHeatWeight = config.Float64(*blendHeatWeight)
		case "display-wait":
			overrides.DisplayWait = config.String(displayWait.String())
		}
	})
	switch fs.NArg() {
	case 0:
	case 2:
		overrides.VideoPath = config.String(fs.Arg(0))
		overrides.DetectionsPath = config.String(fs.Arg(1))
	default:
		fs.Usage()
		return nil, fmt.Errorf("expected VIDEO and DETECTIONS, got %d positional arguments", fs.NArg())
	}
	if opts.maxFrames < 0 {
		return nil, fmt.Errorf("-max-frames must not be negative")
	}

	cfg := config.DefaultHeatmapConfig()
	if opts.configPath != "" {
		fileCfg, err := config.LoadHeatmapConfig(opts.configPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(fileCfg)
	}
	cfg.Merge(overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts.cfg = cfg
	return opts, nil
}
