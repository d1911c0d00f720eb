// Package reports builds, compresses and stores per-session attention reports.
package reports

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/models"
)

// FormatVersion is bumped when the report layout changes incompatibly.
const FormatVersion = 1

// Report is the exported record of one session.
type Report struct {
	Version        int             `json:"version"`
	SessionID      uuid.UUID       `json:"session_id"`
	CandidateID    uuid.UUID       `json:"candidate_id"`
	InterviewRef   string          `json:"interview_ref,omitempty"`
	ViewportWidth  float64         `json:"viewport_width"`
	ViewportHeight float64         `json:"viewport_height"`
	MarginRatio    float64         `json:"margin_ratio"`
	ResetPolicy    string          `json:"reset_policy"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	StoppedAt      *time.Time      `json:"stopped_at,omitempty"`
	Summary        focus.Summary   `json:"summary"`
	ClientSummary  json.RawMessage `json:"client_summary,omitempty"`
	GeneratedAt    time.Time       `json:"generated_at"`
}

// Build assembles a report from a stored session and its intervals.
func Build(s *models.AttentionSession, intervals []models.DistractionInterval, now time.Time) Report {
	sum := focus.Summary{
		TotalTime:              s.TotalMs,
		FocusedTime:            s.FocusedMs,
		DistractedTime:         s.DistractedMs,
		AttentionPercentage:    s.AttentionPercentage,
		DistractionCount:       s.DistractionCount,
		AvgDistractionDuration: s.AvgDistractionMs,
		LongestDistraction:     s.LongestDistractionMs,
		Distractions:           make([]focus.Interval, 0, len(intervals)),
	}
	for _, d := range intervals {
		sum.Distractions = append(sum.Distractions, focus.Interval{Start: d.StartMs, End: d.EndMs, Duration: d.DurationMs})
	}
	return Report{
		Version:        FormatVersion,
		SessionID:      s.ID,
		CandidateID:    s.CandidateID,
		InterviewRef:   s.InterviewRef,
		ViewportWidth:  s.ViewportWidth,
		ViewportHeight: s.ViewportHeight,
		MarginRatio:    s.MarginRatio,
		ResetPolicy:    s.ResetPolicy,
		StartedAt:      s.StartedAt,
		StoppedAt:      s.StoppedAt,
		Summary:        sum,
		ClientSummary:  s.ClientSummary,
		GeneratedAt:    now.UTC(),
	}
}
