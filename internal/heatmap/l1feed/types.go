package l1feed

// DefaultTargetClass is the label that contributes heat unless configured otherwise.
const DefaultTargetClass = "person"

// Box is a bounding box in normalized frame coordinates: each value is a
// fraction of the frame width (X) or height (Y).
type Box struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// Valid reports whether every coordinate lies in [0,1] and the corners are
// ordered.
func (b Box) Valid() bool {
	for _, v := range [...]float64{b.X1, b.Y1, b.X2, b.Y2} {
		if v < 0 || v > 1 || v != v {
			return false
		}
	}
	return b.X1 <= b.X2 && b.Y1 <= b.Y2
}

// Clamped returns b with inverted edges swapped and every coordinate forced
// into [0,1]. NaN coordinates become 0.
func (b Box) Clamped() Box {
	if b.X1 > b.X2 {
		b.X1, b.X2 = b.X2, b.X1
	}
	if b.Y1 > b.Y2 {
		b.Y1, b.Y2 = b.Y2, b.Y1
	}
	b.X1 = clampUnit(b.X1)
	b.Y1 = clampUnit(b.Y1)
	b.X2 = clampUnit(b.X2)
	b.Y2 = clampUnit(b.Y2)
	return b
}

func clampUnit(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// Detection is one object seen in one frame.
type Detection struct {
	Label      string  `json:"name"`
	ClassID    int     `json:"class"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	// TrackID correlates the same physical object across frames. The heat
	// engine ignores it; it is kept for the box renderer and the store.
	TrackID *int64 `json:"track_id,omitempty"`
}

// Record holds every detection of a single frame.
type Record struct {
	FrameIndex int         `json:"frame_number"`
	Objects    []Detection `json:"objects"`
}
