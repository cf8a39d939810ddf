package l4render

import (
	"image"
	"math"

	"github.com/disintegration/imaging"

	"github.com/banshee-data/crowdheat/internal/heatmap"
	"github.com/banshee-data/crowdheat/internal/heatmap/l2grid"
)

// Default blend settings.
const (
	DefaultSourceWeight = 0.6
	DefaultHeatWeight   = 0.4
	DefaultOutputScale  = 0.5
)

// Compositor blends a heat layer over a source frame and scales the result
// to the output size. It holds no per-frame state.
type Compositor struct {
	SourceWeight float64
	HeatWeight   float64
	Gamma        float64

	// OutputWidth and OutputHeight of the emitted frame. Zero keeps the
	// heat layer's size.
	OutputWidth  int
	OutputHeight int
}

// NewCompositor sizes the output as floor(source * outputScale) per axis
// and validates the blend weights.
func NewCompositor(sourceWidth, sourceHeight int, outputScale, sourceWeight, heatWeight float64) (Compositor, error) {
	w, h, err := l2grid.OutputSize(sourceWidth, sourceHeight, outputScale)
	if err != nil {
		return Compositor{}, err
	}
	if math.IsNaN(sourceWeight) || sourceWeight < 0 {
		return Compositor{}, heatmap.NewConfigurationError("blend_source_weight", sourceWeight, "must be non-negative")
	}
	if math.IsNaN(heatWeight) || heatWeight < 0 {
		return Compositor{}, heatmap.NewConfigurationError("blend_heat_weight", heatWeight, "must be non-negative")
	}
	return Compositor{
		SourceWeight: sourceWeight,
		HeatWeight:   heatWeight,
		OutputWidth:  w,
		OutputHeight: h,
	}, nil
}

// Compose resizes frame to the heat layer (bilinear), blends each channel as
//
//	round(src*SourceWeight + heat*HeatWeight + Gamma)
//
// saturated to [0,255], and resizes the blend to the output size. Alpha is
// always opaque.
func (c Compositor) Compose(frame image.Image, heat *image.NRGBA) *image.NRGBA {
	hb := heat.Bounds()
	hw, hh := hb.Dx(), hb.Dy()

	var src *image.NRGBA
	if fb := frame.Bounds(); fb.Dx() == hw && fb.Dy() == hh {
		src = imaging.Clone(frame)
	} else {
		src = imaging.Resize(frame, hw, hh, imaging.Linear)
	}

	out := image.NewNRGBA(image.Rect(0, 0, hw, hh))
	for y := 0; y < hh; y++ {
		s := src.Pix[y*src.Stride : y*src.Stride+4*hw]
		h := heat.Pix[y*heat.Stride : y*heat.Stride+4*hw]
		d := out.Pix[y*out.Stride : y*out.Stride+4*hw]
		for i := 0; i < len(d); i += 4 {
			d[i+0] = c.blend(s[i+0], h[i+0])
			d[i+1] = c.blend(s[i+1], h[i+1])
			d[i+2] = c.blend(s[i+2], h[i+2])
			d[i+3] = 0xff
		}
	}

	if c.OutputWidth <= 0 || c.OutputHeight <= 0 || (c.OutputWidth == hw && c.OutputHeight == hh) {
		return out
	}
	return imaging.Resize(out, c.OutputWidth, c.OutputHeight, imaging.Linear)
}

func (c Compositor) blend(src, heat uint8) uint8 {
	v := math.Round(float64(src)*c.SourceWeight + float64(heat)*c.HeatWeight + c.Gamma)
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v)
}
