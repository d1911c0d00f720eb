package focus

// DefaultMarginRatio is the share of each viewport dimension added around the
// screen edges. Gaze slightly past an edge still counts as focused.
const DefaultMarginRatio = 0.1

// Bounds is the tolerance rectangle used for classification.
type Bounds struct {
	Left    float64 `json:"left"`
	Top     float64 `json:"top"`
	Right   float64 `json:"right"`
	Bottom  float64 `json:"bottom"`
	MarginX float64 `json:"margin_x"`
	MarginY float64 `json:"margin_y"`
}

// NewBounds returns bounds for a viewport with the default margin.
func NewBounds(width, height float64) Bounds {
	return NewBoundsWithMargin(width, height, DefaultMarginRatio)
}

// NewBoundsWithMargin returns bounds for a viewport; the margins are ratio times
// the width and height.
func NewBoundsWithMargin(width, height, ratio float64) Bounds {
	return Bounds{
		Left:    0,
		Top:     0,
		Right:   width,
		Bottom:  height,
		MarginX: width * ratio,
		MarginY: height * ratio,
	}
}

// Classify reports whether s falls inside b expanded by its margins.
// Points exactly on the expanded edge are focused.
func Classify(s Sample, b Bounds) bool {
	return s.X >= b.Left-b.MarginX &&
		s.X <= b.Right+b.MarginX &&
		s.Y >= b.Top-b.MarginY &&
		s.Y <= b.Bottom+b.MarginY
}
