package focus

import "fmt"

// DefaultCalibrationPoints is the number of fixation points in the calibration grid.
const DefaultCalibrationPoints = 9

// CalibrationProgress reports how far a calibration handshake has advanced.
type CalibrationProgress struct {
	Progress int  `json:"progress"`
	Points   int  `json:"points"`
	Done     bool `json:"done"`
}

// Calibration tracks the fixation points visited so far. Points are visited in
// index order, 0 through Points-1.
type Calibration struct {
	points int
	next   int
}

// NewCalibration creates a handshake over the given number of points.
func NewCalibration(points int) *Calibration {
	if points <= 0 {
		points = DefaultCalibrationPoints
	}
	return &Calibration{points: points}
}

// Record marks point as fixated.
func (c *Calibration) Record(point int) (CalibrationProgress, error) {
	if c.Done() {
		return c.Progress(), ErrAlreadyCalibrated
	}
	if point != c.next {
		return c.Progress(), fmt.Errorf("%w: expected point %d, got %d", ErrCalibrationOrder, c.next, point)
	}
	c.next++
	return c.Progress(), nil
}

// Progress returns the current progress.
func (c *Calibration) Progress() CalibrationProgress {
	return CalibrationProgress{Progress: c.next, Points: c.points, Done: c.Done()}
}

// Done reports whether every point has been visited.
func (c *Calibration) Done() bool { return c.next >= c.points }
