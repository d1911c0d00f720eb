package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/models"
	"github.com/aura-interview/attention/pkg/database"
)

// Store persists attention sessions and their distraction intervals.
type Store interface {
	Create(ctx context.Context, s *models.AttentionSession) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.AttentionSession, error)
	ListByCandidate(ctx context.Context, candidateID uuid.UUID) ([]models.AttentionSession, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) error
	SaveSummary(ctx context.Context, id uuid.UUID, sum focus.Summary, stoppedAt time.Time) error
	ListDistractions(ctx context.Context, id uuid.UUID) ([]models.DistractionInterval, error)
	SaveClientSummary(ctx context.Context, id uuid.UUID, raw json.RawMessage) error
	SetReportKey(ctx context.Context, id uuid.UUID, key string) error
}

// Repository handles attention_sessions and distraction_intervals.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const sessionColumns = `id, candidate_id, interview_ref, status, viewport_width, viewport_height,
	margin_ratio, reset_policy, started_at, stopped_at, total_ms, focused_ms, distracted_ms,
	attention_percentage, distraction_count, avg_distraction_ms, longest_distraction_ms,
	report_key, client_summary, created_at, updated_at`

func scanSession(row pgx.Row) (*models.AttentionSession, error) {
	var s models.AttentionSession
	var client []byte
	err := row.Scan(&s.ID, &s.CandidateID, &s.InterviewRef, &s.Status, &s.ViewportWidth, &s.ViewportHeight,
		&s.MarginRatio, &s.ResetPolicy, &s.StartedAt, &s.StoppedAt, &s.TotalMs, &s.FocusedMs, &s.DistractedMs,
		&s.AttentionPercentage, &s.DistractionCount, &s.AvgDistractionMs, &s.LongestDistractionMs,
		&s.ReportKey, &client, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(client) > 0 {
		s.ClientSummary = json.RawMessage(client)
	}
	return &s, nil
}

// Create inserts s and fills its id and timestamps.
func (r *Repository) Create(ctx context.Context, s *models.AttentionSession) error {
	const q = `INSERT INTO attention_sessions (candidate_id, interview_ref, status, viewport_width, viewport_height, margin_ratio, reset_policy)
		VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, s.CandidateID, s.InterviewRef, s.Status, s.ViewportWidth, s.ViewportHeight,
		s.MarginRatio, s.ResetPolicy).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GetByID returns the session, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.AttentionSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM attention_sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return s, err
}

// ListByCandidate returns a candidate's sessions, newest first.
func (r *Repository) ListByCandidate(ctx context.Context, candidateID uuid.UUID) ([]models.AttentionSession, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+sessionColumns+` FROM attention_sessions
		WHERE candidate_id = $1 ORDER BY created_at DESC`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.AttentionSession{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *s)
	}
	return list, rows.Err()
}

// UpdateStatus sets the session status.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := r.pool.Exec(ctx, `UPDATE attention_sessions SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	return err
}

// MarkStarted records a successful start.
func (r *Repository) MarkStarted(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE attention_sessions SET status = $2, started_at = $3, stopped_at = NULL, updated_at = NOW()
		WHERE id = $1`, id, models.SessionTracking, at)
	return err
}

// SaveSummary stores the summary columns and replaces the session's intervals in one transaction.
func (r *Repository) SaveSummary(ctx context.Context, id uuid.UUID, sum focus.Summary, stoppedAt time.Time) error {
	return database.InTx(ctx, r.pool, func(tx pgx.Tx) error {
		const upd = `UPDATE attention_sessions SET status = $2, stopped_at = $3, total_ms = $4, focused_ms = $5,
			distracted_ms = $6, attention_percentage = $7, distraction_count = $8, avg_distraction_ms = $9,
			longest_distraction_ms = $10, updated_at = NOW() WHERE id = $1`
		if _, err := tx.Exec(ctx, upd, id, models.SessionStopped, stoppedAt, sum.TotalTime, sum.FocusedTime,
			sum.DistractedTime, sum.AttentionPercentage, sum.DistractionCount, sum.AvgDistractionDuration,
			sum.LongestDistraction); err != nil {
			return err
		}
		batch := &pgx.Batch{}
		batch.Queue(`DELETE FROM distraction_intervals WHERE session_id = $1`, id)
		for i, iv := range sum.Distractions {
			batch.Queue(`INSERT INTO distraction_intervals (session_id, seq, start_ms, end_ms, duration_ms)
				VALUES ($1, $2, $3, $4, $5)`, id, i, iv.Start, iv.End, iv.Duration)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// ListDistractions returns the persisted intervals in order.
func (r *Repository) ListDistractions(ctx context.Context, id uuid.UUID) ([]models.DistractionInterval, error) {
	rows, err := r.pool.Query(ctx, `SELECT session_id, seq, start_ms, end_ms, duration_ms, created_at
		FROM distraction_intervals WHERE session_id = $1 ORDER BY seq`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.DistractionInterval{}
	for rows.Next() {
		var d models.DistractionInterval
		if err := rows.Scan(&d.SessionID, &d.Seq, &d.StartMs, &d.EndMs, &d.DurationMs, &d.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// SaveClientSummary stores a summary computed by the client.
func (r *Repository) SaveClientSummary(ctx context.Context, id uuid.UUID, raw json.RawMessage) error {
	_, err := r.pool.Exec(ctx, `UPDATE attention_sessions SET client_summary = $2, updated_at = NOW() WHERE id = $1`, id, []byte(raw))
	return err
}

// SetReportKey records the exported report object key.
func (r *Repository) SetReportKey(ctx context.Context, id uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx, `UPDATE attention_sessions SET report_key = $2, updated_at = NOW() WHERE id = $1`, id, key)
	return err
}

// SummaryFromRow rebuilds a summary from persisted columns.
func SummaryFromRow(s *models.AttentionSession, intervals []models.DistractionInterval) focus.Summary {
	out := focus.Summary{
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
		out.Distractions = append(out.Distractions, focus.Interval{Start: d.StartMs, End: d.EndMs, Duration: d.DurationMs})
	}
	return out
}
