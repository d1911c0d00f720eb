package reports

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-interview/attention/internal/metrics"
	"github.com/aura-interview/attention/internal/models"
	"github.com/aura-interview/attention/pkg/storage"
)

// Export results recorded in metrics.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// ErrSessionGone is returned when the session was deleted before its export ran.
var ErrSessionGone = errors.New("reports: session no longer exists")

// SessionSource reads sessions and records the report location.
type SessionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.AttentionSession, error)
	ListDistractions(ctx context.Context, id uuid.UUID) ([]models.DistractionInterval, error)
	SetReportKey(ctx context.Context, id uuid.UUID, key string) error
}

// Uploader stores compressed reports.
type Uploader interface {
	UploadReport(ctx context.Context, key string, body io.Reader, size int64) (string, error)
}

// Exporter builds a session report and uploads it.
type Exporter struct {
	sessions SessionSource
	uploader Uploader
	breaker  *Breaker
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewExporter creates an exporter. breaker and m may be nil.
func NewExporter(sessions SessionSource, uploader Uploader, breaker *Breaker, m *metrics.Metrics, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{sessions: sessions, uploader: uploader, breaker: breaker, metrics: m, logger: logger, now: time.Now}
}

// Export writes the report for sessionID and returns its object key. Sessions that
// never ran are skipped with an empty key.
func (e *Exporter) Export(ctx context.Context, sessionID uuid.UUID) (string, error) {
	sess, err := e.sessions.GetByID(ctx, sessionID)
	if err != nil {
		e.metrics.Export(ResultError)
		return "", fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		e.metrics.Export(ResultSkipped)
		return "", ErrSessionGone
	}
	if sess.StoppedAt == nil {
		e.metrics.Export(ResultSkipped)
		e.logger.Info("report skipped, session never stopped", zap.String("session_id", sessionID.String()))
		return "", nil
	}
	intervals, err := e.sessions.ListDistractions(ctx, sessionID)
	if err != nil {
		e.metrics.Export(ResultError)
		return "", fmt.Errorf("list distractions: %w", err)
	}

	body, err := EncodeBytes(Build(sess, intervals, e.now()))
	if err != nil {
		e.metrics.Export(ResultError)
		return "", err
	}
	key := storage.ReportKey(sess.CandidateID.String(), sess.ID.String())
	if _, err := e.breaker.Execute(func() (string, error) {
		return e.uploader.UploadReport(ctx, key, bytes.NewReader(body), int64(len(body)))
	}); err != nil {
		e.metrics.Export(ResultError)
		return "", fmt.Errorf("upload report: %w", err)
	}
	if err := e.sessions.SetReportKey(ctx, sessionID, key); err != nil {
		e.metrics.Export(ResultError)
		return "", fmt.Errorf("set report key: %w", err)
	}
	e.metrics.Export(ResultOK)
	e.logger.Info("report exported",
		zap.String("session_id", sessionID.String()),
		zap.String("key", key),
		zap.Int("bytes", len(body)))
	return key, nil
}
