package l3heat

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/crowdheat/internal/heatmap/l2grid"
)

// DefaultDistanceBias keeps the kernel finite at the centroid and sets the
// peak value to 1/bias. Larger values flatten the peak.
const DefaultDistanceBias = 100.0

// Compute returns the heat produced by the given centroids on a width x
// height grid:
//
//	heat(i, j) = sum over centroids of 1 / (bias + (cx-j)^2 + (cy-i)^2)
//
// Centroids off the grid are allowed; only cells are indexed. No centroids
// gives an all-zero field. bias must be positive.
func Compute(width, height int, centroids []l2grid.Point, bias float64) *Field {
	f := NewField(width, height)
	if len(centroids) == 0 {
		return f
	}
	fillRows(f.Data(), width, 0, height, centroids, bias)
	return f
}

// ComputeParallel produces exactly the same field as Compute, splitting the
// rows into bands across up to workers goroutines. Each band writes a
// disjoint part of the grid.
func ComputeParallel(ctx context.Context, width, height int, centroids []l2grid.Point, bias float64, workers int) (*Field, error) {
	if workers <= 1 || len(centroids) == 0 || height < 2 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return Compute(width, height, centroids, bias), nil
	}
	if workers > height {
		workers = height
	}

	f := NewField(width, height)
	data := f.Data()
	band := (height + workers - 1) / workers

	g, gctx := errgroup.WithContext(ctx)
	for start := 0; start < height; start += band {
		start, end := start, min(start+band, height)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fillRows(data, width, start, end, centroids, bias)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return f, nil
}

// fillRows adds the kernel for rows [rowStart, rowEnd). The per-cell sum is
// accumulated in centroid order so every caller gets identical rounding.
func fillRows(data []float64, width, rowStart, rowEnd int, centroids []l2grid.Point, bias float64) {
	for i := rowStart; i < rowEnd; i++ {
		row := data[i*width : (i+1)*width]
		for j := range row {
			var v float64
			for _, c := range centroids {
				dx := float64(c.X - j)
				dy := float64(c.Y - i)
				v += 1 / (bias + dx*dx + dy*dy)
			}
			row[j] += v
		}
	}
}
