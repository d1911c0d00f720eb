package realtime

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/aura-interview/attention/internal/auth"
	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/models"
	"github.com/aura-interview/attention/internal/sessions"
)

type fakeTracker struct {
	mu         sync.Mutex
	owner      uuid.UUID
	calibrated bool
	ingested   []focus.Sample
	points     []int
}

func (f *fakeTracker) Owner(_ context.Context, id uuid.UUID) (uuid.UUID, error) {
	if f.owner == uuid.Nil {
		return uuid.Nil, sessions.ErrSessionNotFound
	}
	return f.owner, nil
}

func (f *fakeTracker) Calibrate(_ context.Context, _ uuid.UUID, point int) (focus.CalibrationProgress, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if point != len(f.points) {
		return focus.CalibrationProgress{}, focus.ErrCalibrationOrder
	}
	f.points = append(f.points, point)
	return focus.CalibrationProgress{Progress: len(f.points), Points: 9}, nil
}

func (f *fakeTracker) Start(context.Context, uuid.UUID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calibrated, nil
}

func (f *fakeTracker) Ingest(_ context.Context, _ uuid.UUID, samples []focus.Sample) (sessions.IngestResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ingested = append(f.ingested, samples...)
	return sessions.IngestResult{Accepted: len(samples)}, nil
}

func (f *fakeTracker) Stop(context.Context, uuid.UUID) (focus.Summary, error) {
	return focus.Summarize(1000, 250, []focus.Interval{{Start: 0, End: 250, Duration: 250}}), nil
}

func (f *fakeTracker) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.ingested)
}

type fakeValidator map[string]*auth.Claims

func (v fakeValidator) Validate(token string) (*auth.Claims, error) {
	if c, ok := v[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func claims(id uuid.UUID, role models.Role) *auth.Claims {
	return &auth.Claims{UserID: id, Role: role}
}
