// Package l2grid owns Layer 2 (Grid) of the heatmap engine: mapping between
// the source frame resolution and the reduced working grid.
//
// Dependency rule: L2 may depend on L1, never on L3+.
package l2grid

import (
	"fmt"
	"math"

	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/heatmap/l1feed"
)

// DefaultGridScale computes heat at a tenth of the source resolution.
const DefaultGridScale = 0.1

// WorkingGrid is the reduced resolution at which heat is computed. It is
// created once per video session and never resized.
type WorkingGrid struct {
	Width  int
	Height int
	Scale  float64

	SourceWidth  int
	SourceHeight int
}

// Point is an integer cell position; X is the column, Y the row.
type Point struct {
	X int
	Y int
}

// GridBox is a detection box in working-grid pixels.
type GridBox struct {
	X1, Y1, X2, Y2 int
}

// NewWorkingGrid derives the working grid from the source dimensions:
// floor(w*scale) by floor(h*scale). It fails when the scale is outside (0,1]
// or either dimension rounds down to zero.
func NewWorkingGrid(sourceWidth, sourceHeight int, scale float64) (WorkingGrid, error) {
	w, h, err := scaledSize("grid_scale", sourceWidth, sourceHeight, scale)
	if err != nil {
		return WorkingGrid{}, err
	}
	return WorkingGrid{
		Width:        w,
		Height:       h,
		Scale:        scale,
		SourceWidth:  sourceWidth,
		SourceHeight: sourceHeight,
	}, nil
}

// OutputSize applies the same floor rule to the final output resolution.
func OutputSize(sourceWidth, sourceHeight int, scale float64) (int, int, error) {
	return scaledSize("output_scale", sourceWidth, sourceHeight, scale)
}

func scaledSize(field string, w, h int, scale float64) (int, int, error) {
	if math.IsNaN(scale) || scale <= 0 || scale > 1 {
		return 0, 0, heatmap.NewConfigurationError(field, scale, "must be in (0,1]")
	}
	if w < 1 || h < 1 {
		return 0, 0, heatmap.NewConfigurationError("source_size", fmt.Sprintf("%dx%d", w, h), "frame dimensions must be positive")
	}
	sw := int(math.Floor(float64(w) * scale))
	sh := int(math.Floor(float64(h) * scale))
	if sw < 1 || sh < 1 {
		return 0, 0, heatmap.NewConfigurationError(field, scale,
			fmt.Sprintf("%dx%d frame scales to an empty %dx%d grid", w, h, sw, sh))
	}
	return sw, sh, nil
}

// ToGrid converts a normalized box to working-grid pixels, rounding each
// coordinate to the nearest cell.
func (g WorkingGrid) ToGrid(b l1feed.Box) GridBox {
	return GridBox{
		X1: int(math.Round(b.X1 * float64(g.Width))),
		Y1: int(math.Round(b.Y1 * float64(g.Height))),
		X2: int(math.Round(b.X2 * float64(g.Width))),
		Y2: int(math.Round(b.Y2 * float64(g.Height))),
	}
}

// Centroid returns the integer centre of the box (floor of the midpoint).
func (b GridBox) Centroid() Point {
	return Point{X: floorDiv(b.X1+b.X2, 2), Y: floorDiv(b.Y1+b.Y2, 2)}
}

// Centroids maps every detection whose label equals targetClass to its
// working-grid centroid, preserving feed order.
func (g WorkingGrid) Centroids(dets []l1feed.Detection, targetClass string) []Point {
	var pts []Point
	for _, d := range dets {
		if d.Label != targetClass {
			continue
		}
		pts = append(pts, g.ToGrid(d.Box).Centroid())
	}
	return pts
}

// Contains reports whether p lies on the grid.
func (g WorkingGrid) Contains(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.Width && p.Y < g.Height
}

func (g WorkingGrid) String() string {
	return fmt.Sprintf("%dx%d (scale %.3g of %dx%d)", g.Width, g.Height, g.Scale, g.SourceWidth, g.SourceHeight)
}

// floorDiv keeps centroids of unclamped negative boxes consistent with
// floor division.
func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
