package analytics

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-interview/attention/internal/models"
)

// Only sessions that have been stopped at least once count towards aggregates.
const aggregateQuery = `
SELECT s.candidate_id,
       COUNT(*),
       COALESCE(SUM(s.total_ms), 0),
       COALESCE(SUM(s.distracted_ms), 0),
       COALESCE(SUM(s.distraction_count), 0),
       COALESCE(AVG(s.attention_percentage), 0),
       (ARRAY_AGG(s.attention_percentage ORDER BY s.stopped_at DESC))[1],
       (ARRAY_AGG(s.id ORDER BY s.stopped_at DESC))[1]
FROM attention_sessions s
WHERE s.stopped_at IS NOT NULL`

// Repository reads attention aggregates from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an analytics repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CandidateAttention aggregates a candidate's stopped sessions. A candidate with none
// gets a zero aggregate.
func (r *Repository) CandidateAttention(ctx context.Context, candidateID uuid.UUID) (*models.CandidateAttention, error) {
	row := r.pool.QueryRow(ctx, aggregateQuery+` AND s.candidate_id = $1 GROUP BY s.candidate_id`, candidateID)
	a, err := scanAggregate(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return &models.CandidateAttention{CandidateID: candidateID}, nil
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// LeastAttentive lists candidates by ascending mean attention.
func (r *Repository) LeastAttentive(ctx context.Context, limit int) ([]models.CandidateAttention, error) {
	rows, err := r.pool.Query(ctx, aggregateQuery+` GROUP BY s.candidate_id ORDER BY AVG(s.attention_percentage) ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	list := []models.CandidateAttention{}
	for rows.Next() {
		a, err := scanAggregate(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

func scanAggregate(row pgx.Row) (*models.CandidateAttention, error) {
	var a models.CandidateAttention
	var latestID uuid.UUID
	var latest float64
	if err := row.Scan(&a.CandidateID, &a.SessionsCount, &a.TotalTrackedMs, &a.TotalDistractedMs,
		&a.DistractionCount, &a.MeanAttentionPercentage, &latest, &latestID); err != nil {
		return nil, err
	}
	a.MeanAttentionPercentage = round2(a.MeanAttentionPercentage)
	a.LatestAttention = &latest
	a.LatestSessionID = &latestID
	return &a, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
