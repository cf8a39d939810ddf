package l3heat

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Field is a dense Height x Width grid of non-negative heat values. Row i is
// y, column j is x.
type Field struct {
	m *mat.Dense
}

// NewField returns a zero-valued field. Width and height must be positive.
func NewField(width, height int) *Field {
	return &Field{m: mat.NewDense(height, width, nil)}
}

// Width returns the number of columns.
func (f *Field) Width() int {
	_, c := f.m.Dims()
	return c
}

// Height returns the number of rows.
func (f *Field) Height() int {
	r, _ := f.m.Dims()
	return r
}

// At returns the value at row i, column j.
func (f *Field) At(i, j int) float64 {
	return f.m.At(i, j)
}

// Data exposes the row-major backing slice. Fields are always created with
// stride == width so the slice is contiguous.
func (f *Field) Data() []float64 {
	return f.m.RawMatrix().Data
}

// Matrix returns the underlying matrix for read-only use.
func (f *Field) Matrix() mat.Matrix {
	return f.m
}

// Clone returns a deep copy.
func (f *Field) Clone() *Field {
	return &Field{m: mat.DenseCopyOf(f.m)}
}

// Add adds o element-wise into f. Both fields must have the same shape.
func (f *Field) Add(o *Field) {
	floats.Add(f.Data(), o.Data())
}

// Scale multiplies every cell by k.
func (f *Field) Scale(k float64) {
	floats.Scale(k, f.Data())
}

// Reset zeroes every cell.
func (f *Field) Reset() {
	f.m.Zero()
}

// MinMax returns the smallest and largest cell values.
func (f *Field) MinMax() (float64, float64) {
	d := f.Data()
	return floats.Min(d), floats.Max(d)
}

// Sum returns the total heat in the field.
func (f *Field) Sum() float64 {
	return floats.Sum(f.Data())
}

// IsZero reports whether every cell is exactly zero.
func (f *Field) IsZero() bool {
	for _, v := range f.Data() {
		if v != 0 {
			return false
		}
	}
	return true
}

// Equal reports whether both fields have the same shape and values within tol.
func (f *Field) Equal(o *Field, tol float64) bool {
	if f.Width() != o.Width() || f.Height() != o.Height() {
		return false
	}
	return floats.EqualApprox(f.Data(), o.Data(), tol)
}
