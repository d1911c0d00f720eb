package focus

import "math"

// Summary is the aggregate attention report for a monitor.
type Summary struct {
	TotalTime              int64      `json:"total_time"`
	FocusedTime            int64      `json:"focused_time"`
	DistractedTime         int64      `json:"distracted_time"`
	AttentionPercentage    float64    `json:"attention_percentage"`
	DistractionCount       int        `json:"distraction_count"`
	AvgDistractionDuration float64    `json:"avg_distraction_duration"`
	LongestDistraction     int64      `json:"longest_distraction"`
	Distractions           []Interval `json:"distractions"`
}

// Summarize derives a Summary from elapsed time, distracted time and the closed intervals.
func Summarize(total, distracted int64, intervals []Interval) Summary {
	s := Summary{
		TotalTime:        total,
		FocusedTime:      total - distracted,
		DistractedTime:   distracted,
		DistractionCount: len(intervals),
		Distractions:     make([]Interval, len(intervals)),
	}
	copy(s.Distractions, intervals)
	if total > 0 {
		s.AttentionPercentage = round2(float64(s.FocusedTime) / float64(total) * 100)
	}
	if len(intervals) > 0 {
		s.AvgDistractionDuration = round2(float64(distracted) / float64(len(intervals)))
	}
	for _, iv := range intervals {
		if iv.Duration > s.LongestDistraction {
			s.LongestDistraction = iv.Duration
		}
	}
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
