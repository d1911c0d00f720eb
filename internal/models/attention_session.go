package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Session status values mirror focus.Phase plus the closed state.
const (
	SessionUncalibrated = "uncalibrated"
	SessionCalibrated   = "calibrated"
	SessionTracking     = "tracking"
	SessionStopped      = "stopped"
	SessionClosed       = "closed"
)

// AttentionSession is one gaze-tracked interview session.
type AttentionSession struct {
	ID             uuid.UUID  `json:"id"`
	CandidateID    uuid.UUID  `json:"candidate_id"`
	InterviewRef   string     `json:"interview_ref"`
	Status         string     `json:"status"`
	ViewportWidth  float64    `json:"viewport_width"`
	ViewportHeight float64    `json:"viewport_height"`
	MarginRatio    float64    `json:"margin_ratio"`
	ResetPolicy    string     `json:"reset_policy"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	StoppedAt      *time.Time `json:"stopped_at,omitempty"`

	TotalMs              int64   `json:"total_ms"`
	FocusedMs            int64   `json:"focused_ms"`
	DistractedMs         int64   `json:"distracted_ms"`
	AttentionPercentage  float64 `json:"attention_percentage"`
	DistractionCount     int     `json:"distraction_count"`
	AvgDistractionMs     float64 `json:"avg_distraction_ms"`
	LongestDistractionMs int64   `json:"longest_distraction_ms"`

	ReportKey     *string         `json:"report_key,omitempty"`
	ClientSummary json.RawMessage `json:"client_summary,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// DistractionInterval is a persisted closed distraction interval.
type DistractionInterval struct {
	SessionID  uuid.UUID `json:"session_id"`
	Seq        int       `json:"seq"`
	StartMs    int64     `json:"start_ms"`
	EndMs      int64     `json:"end_ms"`
	DurationMs int64     `json:"duration_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// CandidateAttention holds aggregates over a candidate's stopped sessions.
type CandidateAttention struct {
	CandidateID             uuid.UUID  `json:"candidate_id"`
	SessionsCount           int        `json:"sessions_count"`
	TotalTrackedMs          int64      `json:"total_tracked_ms"`
	TotalDistractedMs       int64      `json:"total_distracted_ms"`
	DistractionCount        int        `json:"distraction_count"`
	MeanAttentionPercentage float64    `json:"mean_attention_percentage"`
	LatestAttention         *float64   `json:"latest_attention_percentage,omitempty"`
	LatestSessionID         *uuid.UUID `json:"latest_session_id,omitempty"`
}
