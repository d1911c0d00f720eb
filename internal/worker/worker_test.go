package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aura-interview/attention/internal/reports"
	"github.com/aura-interview/attention/pkg/queue"
)

type fakeExporter struct {
	mu    sync.Mutex
	calls []uuid.UUID
	err   error
}

func (f *fakeExporter) Export(_ context.Context, id uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, id)
	return "key", f.err
}

type chanQueue struct {
	jobs    chan *queue.Job
	retried chan *queue.Job
}

func (q *chanQueue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	select {
	case j := <-q.jobs:
		return j, queue.QueueReports, nil
	case <-ctx.Done():
		return nil, "", ctx.Err()
	}
}

func (q *chanQueue) Retry(_ context.Context, job *queue.Job) error {
	q.retried <- job
	return nil
}

func exportJob(t *testing.T, id uuid.UUID) *queue.Job {
	t.Helper()
	job, err := queue.NewJob(queue.JobTypeReportExport, queue.ReportExportPayload{SessionID: id})
	if err != nil {
		t.Fatal(err)
	}
	return job
}

func TestProcess(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name    string
		job     *queue.Job
		exp     error
		wantErr bool
	}{
		{"ok", exportJob(t, id), nil, false},
		{"session gone", exportJob(t, id), reports.ErrSessionGone, false},
		{"upload failure", exportJob(t, id), errors.New("s3"), true},
		{"unknown type", &queue.Job{ID: "1", Type: "recording_upload"}, nil, true},
		{"bad payload", &queue.Job{ID: "1", Type: queue.JobTypeReportExport, Payload: json.RawMessage(`"x"`)}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewReportProcessor(&fakeExporter{err: tt.exp}, nil, nil)
			if err := p.Process(context.Background(), tt.job); (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunRetriesFailedJobs(t *testing.T) {
	q := &chanQueue{jobs: make(chan *queue.Job, 1), retried: make(chan *queue.Job, 1)}
	exp := &fakeExporter{err: errors.New("s3")}
	p := NewReportProcessor(exp, q, nil)
	p.backoff = time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	job := exportJob(t, uuid.New())
	q.jobs <- job
	select {
	case got := <-q.retried:
		if got.ID != job.ID {
			t.Errorf("retried %s, want %s", got.ID, job.ID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("job was not retried")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
