// Package focus turns a stream of gaze points into a focus/distraction timeline.
//
// A Monitor classifies each Sample against tolerance Bounds derived from the
// viewport, opens an interval when the gaze leaves the screen and closes it when
// the gaze returns. A Monitor is not safe for concurrent use; Runner owns one and
// feeds it from a channel.
package focus

// Sample is one estimated point of regard in viewport pixels.
// Timestamp is in milliseconds.
type Sample struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Timestamp int64   `json:"timestamp"`
}

// Interval is a closed span during which the subject looked away.
type Interval struct {
	Start    int64 `json:"start"`
	End      int64 `json:"end"`
	Duration int64 `json:"duration"`
}
