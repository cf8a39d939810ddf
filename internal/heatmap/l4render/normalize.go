package l4render

import (
	"image"
	"math"

	"github.com/banshee-data/crowdheat/internal/heatmap/l3heat"
)

// Normalize maps f to 8-bit intensities with a min-max stretch:
//
//	out = trunc(255 * (v - min) / (max - min))
//
// Levels within levelTolerance of an integer are snapped to it first, so
// that scaling the field by any k > 0 yields the same image even when the
// scaled quotient lands an ulp below the level.
//
// When every cell holds the same value the result is all zero, so a frame
// with no detections renders as the coldest colour rather than dividing by
// zero. Row i of the field becomes pixel row i.
// levelTolerance is far above float64 rounding noise on [0,255] and far
// below the spacing between levels.
const levelTolerance = 1e-9

func Normalize(f *l3heat.Field) *image.Gray {
	w, h := f.Width(), f.Height()
	g := image.NewGray(image.Rect(0, 0, w, h))

	lo, hi := f.MinMax()
	span := hi - lo
	if span <= 0 {
		return g
	}

	data := f.Data()
	for i := 0; i < h; i++ {
		src := data[i*w : (i+1)*w]
		dst := g.Pix[i*g.Stride : i*g.Stride+w]
		for j, v := range src {
			n := (v - lo) / span * 255
			if r := math.Round(n); math.Abs(n-r) < levelTolerance {
				n = r
			}
			switch {
			case n <= 0:
				dst[j] = 0
			case n >= 255:
				dst[j] = 255
			default:
				dst[j] = uint8(n)
			}
		}
	}
	return g
}
