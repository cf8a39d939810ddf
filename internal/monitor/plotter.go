package monitor

import (
	"fmt"
	"image/color"
	"path/filepath"
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/crowdheat/internal/fsutil"
	"github.com/banshee-data/crowdheat/internal/heatmap/l3heat"
	"github.com/banshee-data/crowdheat/internal/heatmap/l4render"
	"github.com/banshee-data/crowdheat/internal/monitoring"
)

// DensityPlotter records the heat mass of every evaluation during a run and
// writes summary plots afterwards: the session density as a heat map and the
// per-evaluation mass over time.
type DensityPlotter struct {
	mu      sync.Mutex
	title   string
	samples []MassSample
	total   *l3heat.Field
}

// MassSample is the summed heat of one evaluation.
type MassSample struct {
	FrameIndex int
	Current    float64
	Total      float64
}

// NewDensityPlotter creates a plotter; title labels every plot.
func NewDensityPlotter(title string) *DensityPlotter {
	return &DensityPlotter{title: title}
}

// Observe matches pipeline.DriverConfig.OnEvaluate.
func (dp *DensityPlotter) Observe(frameIndex int, current, total *l3heat.Field) {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.samples = append(dp.samples, MassSample{FrameIndex: frameIndex, Current: current.Sum(), Total: total.Sum()})
	dp.total = total.Clone()
}

// Samples returns a copy of the recorded samples.
func (dp *DensityPlotter) Samples() []MassSample {
	dp.mu.Lock()
	defer dp.mu.Unlock()
	return append([]MassSample(nil), dp.samples...)
}

// GeneratePlots writes density.png and mass.png into dir and returns the
// paths written. A run without evaluations writes nothing.
func (dp *DensityPlotter) GeneratePlots(fsys fsutil.FileSystem, dir string) ([]string, error) {
	dp.mu.Lock()
	defer dp.mu.Unlock()

	if len(dp.samples) == 0 || dp.total == nil {
		return nil, nil
	}
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	densityPath := filepath.Join(dir, "density.png")
	if err := savePlot(fsys, densityPath, densityPlot(dp.title, dp.total), 10*vg.Inch, 6*vg.Inch); err != nil {
		return nil, err
	}
	massPath := filepath.Join(dir, "mass.png")
	p, err := massPlot(dp.title, dp.samples)
	if err != nil {
		return []string{densityPath}, err
	}
	if err := savePlot(fsys, massPath, p, 14*vg.Inch, 6*vg.Inch); err != nil {
		return []string{densityPath}, err
	}
	monitoring.Logf("[monitor] wrote %s and %s (%d evaluations)", densityPath, massPath, len(dp.samples))
	return []string{densityPath, massPath}, nil
}

// SaveDensityPNG renders f as a standalone heat map plot at path.
func SaveDensityPNG(fsys fsutil.FileSystem, path, title string, f *l3heat.Field) error {
	return savePlot(fsys, path, densityPlot(title, f), 10*vg.Inch, 6*vg.Inch)
}

func savePlot(fsys fsutil.FileSystem, path string, p *plot.Plot, w, h vg.Length) error {
	wt, err := p.WriterTo(w, h, "png")
	if err != nil {
		return fmt.Errorf("render %s: %w", path, err)
	}
	out, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(out); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}

// fieldGrid adapts a Field to plotter.GridXYZ. Plot rows grow upwards, so
// row r of the grid is field row height-1-r and the image reads top-down.
type fieldGrid struct {
	f *l3heat.Field
}

func (g fieldGrid) Dims() (c, r int)   { return g.f.Width(), g.f.Height() }
func (g fieldGrid) Z(c, r int) float64 { return g.f.At(g.f.Height()-1-r, c) }
func (g fieldGrid) X(c int) float64    { return float64(c) }
func (g fieldGrid) Y(r int) float64    { return float64(r) }

func densityPlot(title string, f *l3heat.Field) *plot.Plot {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: session density (%dx%d)", title, f.Width(), f.Height())
	p.X.Label.Text = "x (cell)"
	p.Y.Label.Text = "y (cell, from bottom)"

	lo, hi := f.MinMax()
	jet := l4render.NewJet()
	hm := plotter.NewHeatMap(fieldGrid{f}, jet.Palette(255))
	if hi > lo {
		hm.Min, hm.Max = lo, hi
	} else {
		hm.Min, hm.Max = lo, lo+1
	}
	p.Add(hm)
	p.X.Min, p.X.Max = -0.5, float64(f.Width())-0.5
	p.Y.Min, p.Y.Max = -0.5, float64(f.Height())-0.5
	return p
}

func massPlot(title string, samples []MassSample) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s: heat mass per evaluation", title)
	p.X.Label.Text = "frame"
	p.Y.Label.Text = "sum of heat"
	p.Legend.Top = true

	cur := make(plotter.XYs, len(samples))
	tot := make(plotter.XYs, len(samples))
	for i, s := range samples {
		cur[i].X, cur[i].Y = float64(s.FrameIndex), s.Current
		tot[i].X, tot[i].Y = float64(s.FrameIndex), s.Total
	}

	curLine, err := plotter.NewLine(cur)
	if err != nil {
		return nil, fmt.Errorf("current mass line: %w", err)
	}
	curLine.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	curLine.Width = vg.Points(1)

	totLine, err := plotter.NewLine(tot)
	if err != nil {
		return nil, fmt.Errorf("total mass line: %w", err)
	}
	totLine.Color = color.RGBA{R: 214, G: 39, B: 40, A: 255}
	totLine.Width = vg.Points(1.5)

	p.Add(plotter.NewGrid(), curLine, totLine)
	p.Legend.Add("current", curLine)
	p.Legend.Add("session", totLine)
	return p, nil
}
