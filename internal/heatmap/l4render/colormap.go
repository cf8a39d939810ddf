package l4render

import (
	"image"
	"image/color"
	"math"

	"gonum.org/v1/plot/palette"

	"github.com/banshee-data/crowdheat/internal/heatmap/l3heat"
)

// Jet is the blue→cyan→yellow→red ramp used for every heat rendering. It
// satisfies palette.ColorMap so summary plots share the exact colours of the
// per-frame overlay.
type Jet struct {
	min, max float64
	alpha    float64
}

var _ palette.ColorMap = (*Jet)(nil)

// NewJet returns a Jet spanning [0, 1] at full opacity.
func NewJet() *Jet {
	return &Jet{min: 0, max: 1, alpha: 1}
}

// At returns the colour for v. Values outside [Min, Max] are clamped to the
// nearest end and reported with palette.ErrUnderflow or palette.ErrOverflow.
func (j *Jet) At(v float64) (color.Color, error) {
	if math.IsNaN(v) {
		return nil, palette.ErrNaN
	}
	if j.max <= j.min {
		return nil, palette.ErrOverflow
	}
	t := (v - j.min) / (j.max - j.min)
	var err error
	switch {
	case t < 0:
		t, err = 0, palette.ErrUnderflow
	case t > 1:
		t, err = 1, palette.ErrOverflow
	}
	c := jetAt(t)
	c.A = uint8(math.Round(j.alpha * 255))
	return c, err
}

func (j *Jet) Min() float64 { return j.min }

func (j *Jet) SetMin(v float64) { j.min = v }

func (j *Jet) Max() float64 { return j.max }

func (j *Jet) SetMax(v float64) { j.max = v }

func (j *Jet) Alpha() float64 { return j.alpha }

func (j *Jet) SetAlpha(alpha float64) { j.alpha = alpha }

// Palette samples n evenly spaced colours from Min to Max.
func (j *Jet) Palette(n int) palette.Palette {
	cols := make(jetPalette, n)
	for i := range cols {
		v := j.min
		if n > 1 {
			v += (j.max - j.min) * float64(i) / float64(n-1)
		}
		c, _ := j.At(v)
		cols[i] = c
	}
	return cols
}

type jetPalette []color.Color

func (p jetPalette) Colors() []color.Color { return p }

// jetAt evaluates the ramp at t in [0, 1]. t = 0 is dark blue (0,0,128),
// t = 1 is dark red (128,0,0).
func jetAt(t float64) color.NRGBA {
	ch := func(offset float64) uint8 {
		v := 1.5 - math.Abs(4*t-offset)
		if v < 0 {
			v = 0
		} else if v > 1 {
			v = 1
		}
		return uint8(math.Round(v * 255))
	}
	return color.NRGBA{R: ch(3), G: ch(2), B: ch(1), A: 255}
}

// jetLUT holds jetAt for each 8-bit intensity.
var jetLUT = func() (lut [256]color.NRGBA) {
	for i := range lut {
		lut[i] = jetAt(float64(i) / 255)
	}
	return lut
}()

// ColdColor is the colour of zero intensity.
func ColdColor() color.NRGBA {
	return jetLUT[0]
}

// Colorize maps each intensity through the Jet ramp. Output is opaque.
func Colorize(g *image.Gray) *image.NRGBA {
	b := g.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		src := g.Pix[y*g.Stride : y*g.Stride+b.Dx()]
		dst := out.Pix[y*out.Stride : y*out.Stride+4*b.Dx()]
		for x, v := range src {
			c := jetLUT[v]
			d := dst[4*x : 4*x+4]
			d[0], d[1], d[2], d[3] = c.R, c.G, c.B, c.A
		}
	}
	return out
}

// Heatmap renders a field as a colour image at the field's resolution.
func Heatmap(f *l3heat.Field) *image.NRGBA {
	return Colorize(Normalize(f))
}
