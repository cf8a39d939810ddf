package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"net/http"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/crowdheat/internal/heatmap/l3heat"
	"github.com/banshee-data/crowdheat/internal/heatmap/l4render"
	"github.com/banshee-data/crowdheat/internal/httputil"
)

const (
	echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"
	maxChartCells     = 20000
	rampStops         = 9
)

type densitySource struct {
	field  *l3heat.Field
	origin string
}

// resolveDensity picks the stored snapshot for ?video=KEY, or the live run's
// density otherwise. On failure it returns a nil source with the HTTP status
// and message to report.
func (ws *WebServer) resolveDensity(r *http.Request) (*densitySource, int, string) {
	if key := r.URL.Query().Get("video"); key != "" {
		if ws.density == nil {
			return nil, http.StatusNotFound, "no density store configured"
		}
		snap, err := ws.density.Latest(key)
		if err != nil {
			return nil, http.StatusInternalServerError, err.Error()
		}
		if snap == nil {
			return nil, http.StatusNotFound, fmt.Sprintf("no density stored for %s", key)
		}
		return &densitySource{field: snap.Field, origin: fmt.Sprintf("%s run=%s", key, snap.RunID)}, 0, ""
	}
	if ws.state == nil {
		return nil, http.StatusNotFound, "no live run"
	}
	f := ws.state.Density()
	if f == nil {
		return nil, http.StatusNotFound, "no density evaluated yet"
	}
	return &densitySource{field: f, origin: ws.state.VideoKey() + " (live)"}, 0, ""
}

// chartStride returns the cell step that keeps the chart within maxCells.
func chartStride(width, height, maxCells int) int {
	cells := width * height
	if cells <= maxCells {
		return 1
	}
	return int(math.Ceil(math.Sqrt(float64(cells) / float64(maxCells))))
}

// rampColors returns the Jet ramp as CSS hex stops for the visual map.
func rampColors(n int) []string {
	cols := l4render.NewJet().Palette(n).Colors()
	out := make([]string, len(cols))
	for i, c := range cols {
		nc := color.NRGBAModel.Convert(c).(color.NRGBA)
		out[i] = fmt.Sprintf("#%02x%02x%02x", nc.R, nc.G, nc.B)
	}
	return out
}

// handleDensityChart renders the session density as an ECharts heatmap.
// Query params:
//   - video (optional; latest stored snapshot instead of the live run)
//   - stride (optional; cell step, default keeps the chart under 20000 cells)
func (ws *WebServer) handleDensityChart(w http.ResponseWriter, r *http.Request) {
	src, status, msg := ws.resolveDensity(r)
	if src == nil {
		httputil.WriteJSONError(w, status, msg)
		return
	}
	f := src.field
	width, height := f.Width(), f.Height()

	stride, err := httputil.QueryInt(r, "stride", chartStride(width, height, maxChartCells), 1, max(width, height))
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var xs, ys []int
	for j := 0; j < width; j += stride {
		xs = append(xs, j)
	}
	// Row 0 is the top of the frame; ECharts draws the first category at
	// the bottom, so rows are listed bottom-up.
	for i := height - 1; i >= 0; i -= stride {
		ys = append(ys, i)
	}

	lo, hi := f.MinMax()
	data := make([]opts.HeatMapData, 0, len(xs)*len(ys))
	for yi, i := range ys {
		for xi, j := range xs {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{xi, yi, f.At(i, j)}})
		}
	}
	if hi <= lo {
		hi = lo + 1
	}

	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "crowdheat density", Width: "100%", Height: "720px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Session density", Subtitle: fmt.Sprintf("%s grid=%dx%d stride=%d", src.origin, width, height, stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "x (cell)"}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Name: "y (cell)", Data: ys}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(lo),
			Max:        float32(hi),
			InRange:    &opts.VisualMapInRange{Color: rampColors(rampStops)},
		}),
	)
	hm.SetXAxis(xs).AddSeries("density", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
