package sessions

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/models"
	"github.com/aura-interview/attention/pkg/queue"
)

type memStore struct {
	mu        sync.Mutex
	sessions  map[uuid.UUID]*models.AttentionSession
	intervals map[uuid.UUID][]models.DistractionInterval
}

func newMemStore() *memStore {
	return &memStore{
		sessions:  map[uuid.UUID]*models.AttentionSession{},
		intervals: map[uuid.UUID][]models.DistractionInterval{},
	}
}

func (m *memStore) Create(_ context.Context, s *models.AttentionSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = uuid.New()
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*models.AttentionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (m *memStore) ListByCandidate(_ context.Context, candidateID uuid.UUID) ([]models.AttentionSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AttentionSession{}
	for _, s := range m.sessions {
		if s.CandidateID == candidateID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memStore) update(id uuid.UUID, fn func(*models.AttentionSession)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[id]; ok {
		fn(s)
	}
	return nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, status string) error {
	return m.update(id, func(s *models.AttentionSession) { s.Status = status })
}

func (m *memStore) MarkStarted(_ context.Context, id uuid.UUID, at time.Time) error {
	return m.update(id, func(s *models.AttentionSession) {
		s.Status = models.SessionTracking
		s.StartedAt = &at
	})
}

func (m *memStore) SaveSummary(_ context.Context, id uuid.UUID, sum focus.Summary, stoppedAt time.Time) error {
	m.mu.Lock()
	var list []models.DistractionInterval
	for i, iv := range sum.Distractions {
		list = append(list, models.DistractionInterval{SessionID: id, Seq: i, StartMs: iv.Start, EndMs: iv.End, DurationMs: iv.Duration})
	}
	m.intervals[id] = list
	m.mu.Unlock()
	return m.update(id, func(s *models.AttentionSession) {
		s.Status = models.SessionStopped
		s.StoppedAt = &stoppedAt
		s.TotalMs = sum.TotalTime
		s.FocusedMs = sum.FocusedTime
		s.DistractedMs = sum.DistractedTime
		s.AttentionPercentage = sum.AttentionPercentage
		s.DistractionCount = sum.DistractionCount
		s.AvgDistractionMs = sum.AvgDistractionDuration
		s.LongestDistractionMs = sum.LongestDistraction
	})
}

func (m *memStore) ListDistractions(_ context.Context, id uuid.UUID) ([]models.DistractionInterval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DistractionInterval(nil), m.intervals[id]...), nil
}

func (m *memStore) SaveClientSummary(_ context.Context, id uuid.UUID, raw json.RawMessage) error {
	return m.update(id, func(s *models.AttentionSession) { s.ClientSummary = raw })
}

func (m *memStore) SetReportKey(_ context.Context, id uuid.UUID, key string) error {
	return m.update(id, func(s *models.AttentionSession) { s.ReportKey = &key })
}

type sentEvent struct {
	session uuid.UUID
	event   string
	payload interface{}
}

type recordingHub struct {
	events chan sentEvent
}

func newRecordingHub() *recordingHub { return &recordingHub{events: make(chan sentEvent, 64)} }

func (h *recordingHub) BroadcastToSession(id uuid.UUID, event string, payload interface{}) {
	h.events <- sentEvent{session: id, event: event, payload: payload}
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []queue.ReportExportPayload
}

func (q *recordingQueue) EnqueueReportExport(_ context.Context, p queue.ReportExportPayload) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = append(q.jobs, p)
	return nil
}

func (q *recordingQueue) count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.jobs)
}

type testClock struct{ ms atomic.Int64 }

func (c *testClock) now() int64 { return c.ms.Load() }
