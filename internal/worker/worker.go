// Package worker runs background jobs from the Redis queue.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-interview/attention/internal/reports"
	"github.com/aura-interview/attention/pkg/queue"
)

// JobSource is the queue the processor consumes.
type JobSource interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Exporter writes one session report.
type Exporter interface {
	Export(ctx context.Context, sessionID uuid.UUID) (string, error)
}

// ReportProcessor processes report export jobs: build the session report, compress it, upload to S3, record the key.
type ReportProcessor struct {
	exporter Exporter
	queue    JobSource
	logger   *zap.Logger
	backoff  time.Duration
}

// NewReportProcessor creates a report export processor.
func NewReportProcessor(exporter Exporter, q JobSource, logger *zap.Logger) *ReportProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportProcessor{exporter: exporter, queue: q, logger: logger, backoff: queue.RetryBackoff}
}

// Process executes one job. Jobs for deleted sessions are dropped without error.
func (p *ReportProcessor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeReportExport {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ReportExportPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	_, err := p.exporter.Export(ctx, payload.SessionID)
	if errors.Is(err, reports.ErrSessionGone) {
		p.logger.Info("session deleted before export", zap.String("session_id", payload.SessionID.String()))
		return nil
	}
	return err
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *ReportProcessor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("report worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *ReportProcessor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
