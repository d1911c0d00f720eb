package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/metrics"
	"github.com/aura-interview/attention/internal/models"
)

type harness struct {
	svc     *Service
	store   *memStore
	hub     *recordingHub
	reports *recordingQueue
	clock   *testClock
	reg     *Registry
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   newMemStore(),
		hub:     newRecordingHub(),
		reports: &recordingQueue{},
		clock:   &testClock{},
	}
	m := metrics.New()
	h.reg = NewRegistry(0, nil, m)
	h.svc = NewService(h.store, h.reg, h.hub, h.reports, m, Options{MonitorClock: h.clock.now}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go h.svc.Run(ctx)
	t.Cleanup(func() {
		cancel()
		h.reg.Shutdown()
	})
	return h
}

func (h *harness) create(t *testing.T) *models.AttentionSession {
	t.Helper()
	sess, err := h.svc.Create(context.Background(), CreateParams{CandidateID: uuid.New(), ViewportWidth: 1000, ViewportHeight: 800})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return sess
}

func (h *harness) waitEvent(t *testing.T, name string) sentEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-h.hub.events:
			if ev.event == name {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", name)
		}
	}
}

func TestServiceLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.create(t)

	for p := 0; p < focus.DefaultCalibrationPoints; p++ {
		if _, err := h.svc.Calibrate(ctx, sess.ID, p); err != nil {
			t.Fatalf("Calibrate(%d): %v", p, err)
		}
	}
	if got, _ := h.store.GetByID(ctx, sess.ID); got.Status != models.SessionCalibrated {
		t.Fatalf("status after calibration = %q", got.Status)
	}

	started, err := h.svc.Start(ctx, sess.ID)
	if err != nil || !started {
		t.Fatalf("Start = %v, %v", started, err)
	}
	h.waitEvent(t, EventTrackingStarted)

	res, err := h.svc.Ingest(ctx, sess.ID, []focus.Sample{
		{X: 500, Y: 400, Timestamp: 0},
		{X: 1200, Y: 400, Timestamp: 1000},
		{X: 500, Y: 400, Timestamp: 3000},
	})
	if err != nil || res.Accepted != 3 {
		t.Fatalf("Ingest = %+v, %v", res, err)
	}

	h.clock.ms.Store(5000)
	sum, err := h.svc.Stop(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if sum.TotalTime != 5000 || sum.DistractedTime != 2000 || sum.AttentionPercentage != 60 {
		t.Errorf("summary = %+v", sum)
	}

	ev := h.waitEvent(t, EventFocusChanged)
	if fc, ok := ev.payload.(FocusChanged); !ok || fc.To != focus.Distracted {
		t.Errorf("first focus_changed = %+v", ev.payload)
	}
	h.waitEvent(t, EventSummary)

	stored, _ := h.store.GetByID(ctx, sess.ID)
	if stored.Status != models.SessionStopped || stored.DistractedMs != 2000 || stored.DistractionCount != 1 {
		t.Errorf("stored = %+v", stored)
	}
	intervals, _ := h.store.ListDistractions(ctx, sess.ID)
	if len(intervals) != 1 || intervals[0].DurationMs != 2000 {
		t.Errorf("intervals = %+v", intervals)
	}
	if h.reports.count() != 1 {
		t.Errorf("report jobs = %d, want 1", h.reports.count())
	}
}

func TestServiceStartUncalibrated(t *testing.T) {
	h := newHarness(t)
	sess := h.create(t)
	started, err := h.svc.Start(context.Background(), sess.ID)
	if err != nil || started {
		t.Fatalf("Start = %v, %v; want false, nil", started, err)
	}
}

func TestServiceStopBeforeStartPersistsNothing(t *testing.T) {
	h := newHarness(t)
	sess := h.create(t)
	if _, err := h.svc.Stop(context.Background(), sess.ID); err != nil {
		t.Fatal(err)
	}
	if got, _ := h.store.GetByID(context.Background(), sess.ID); got.Status != models.SessionUncalibrated {
		t.Errorf("status = %q, want uncalibrated", got.Status)
	}
	if h.reports.count() != 0 {
		t.Error("report export enqueued for a session that never ran")
	}
}

func TestServiceCalibrationOrder(t *testing.T) {
	h := newHarness(t)
	sess := h.create(t)
	if _, err := h.svc.Calibrate(context.Background(), sess.ID, 3); !errors.Is(err, focus.ErrCalibrationOrder) {
		t.Errorf("err = %v, want ErrCalibrationOrder", err)
	}
}

func TestServiceCreateValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	bad := 1.5
	tests := []struct {
		name string
		p    CreateParams
		want error
	}{
		{"zero width", CreateParams{ViewportWidth: 0, ViewportHeight: 10}, ErrInvalidViewport},
		{"margin", CreateParams{ViewportWidth: 10, ViewportHeight: 10, MarginRatio: &bad}, ErrInvalidMargin},
		{"policy", CreateParams{ViewportWidth: 10, ViewportHeight: 10, ResetPolicy: "never"}, focus.ErrInvalidResetPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := h.svc.Create(ctx, tt.p); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestServiceUnknownSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	id := uuid.New()
	if _, err := h.svc.Start(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Start: err = %v", err)
	}
	if _, err := h.svc.Ingest(ctx, id, []focus.Sample{{}}); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Ingest: err = %v", err)
	}
	if _, err := h.svc.Summary(ctx, id); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Summary: err = %v", err)
	}
}

func TestServiceReopensRunner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.create(t)
	if err := h.svc.SkipCalibration(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	h.reg.Close(sess.ID)

	started, err := h.svc.Start(ctx, sess.ID)
	if err != nil || !started {
		t.Fatalf("Start after reopen = %v, %v", started, err)
	}
	if h.reg.Len() != 1 {
		t.Errorf("registry len = %d, want 1", h.reg.Len())
	}
}

func TestServiceConcurrentReopenKeepsOneRunner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		sess := h.create(t)
		if err := h.svc.SkipCalibration(ctx, sess.ID); err != nil {
			t.Fatal(err)
		}
		h.reg.Close(sess.ID)

		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			started bool
			errs    []error
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				var err error
				if i%2 == 0 {
					var ok bool
					ok, err = h.svc.Start(ctx, sess.ID)
					mu.Lock()
					started = started || ok
					mu.Unlock()
				} else {
					_, err = h.svc.Ingest(ctx, sess.ID, []focus.Sample{{X: 500, Y: 400, Timestamp: int64(i)}})
				}
				if err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}(i)
		}
		wg.Wait()

		if len(errs) > 0 {
			t.Fatalf("round %d: concurrent calls failed: %v", round, errs)
		}
		if !started {
			t.Fatalf("round %d: no Start succeeded", round)
		}
		live, err := h.svc.Live(ctx, sess.ID)
		if err != nil || live == nil {
			t.Fatalf("round %d: Live = %v, %v", round, live, err)
		}
		if live.Phase != focus.PhaseTracking.String() {
			t.Errorf("round %d: live phase = %s after a successful Start", round, live.Phase)
		}
		h.reg.Close(sess.ID)
	}
	if h.reg.Len() != 0 {
		t.Errorf("registry len = %d, want 0", h.reg.Len())
	}
}

func TestServiceLiveReportsContextErrors(t *testing.T) {
	h := newHarness(t)
	sess := h.create(t)
	r, ok := h.reg.Get(sess.ID)
	if !ok {
		t.Fatal("no runner after Create")
	}

	busy, release := make(chan struct{}), make(chan struct{})
	go r.Exec(context.Background(), func(*focus.Monitor) {
		close(busy)
		<-release
	})
	<-busy
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	live, err := h.svc.Live(ctx, sess.ID)
	if !errors.Is(err, context.DeadlineExceeded) || live != nil {
		t.Errorf("Live on a busy runner = %v, %v; want deadline exceeded", live, err)
	}
}

func TestServiceLiveWithoutRunner(t *testing.T) {
	h := newHarness(t)
	sess := h.create(t)
	h.reg.Close(sess.ID)
	live, err := h.svc.Live(context.Background(), sess.ID)
	if err != nil || live != nil {
		t.Errorf("Live without runner = %v, %v; want nil, nil", live, err)
	}
}

func TestServiceSummaryFromStoreWhenNoRunner(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.create(t)
	h.svc.SkipCalibration(ctx, sess.ID)
	h.svc.Start(ctx, sess.ID)
	h.svc.Ingest(ctx, sess.ID, []focus.Sample{{X: -900, Timestamp: 10}, {X: 5, Timestamp: 40}})
	h.clock.ms.Store(100)
	h.svc.Stop(ctx, sess.ID)
	h.reg.Close(sess.ID)

	sum, err := h.svc.Summary(ctx, sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	if sum.TotalTime != 100 || sum.DistractedTime != 30 || len(sum.Distractions) != 1 {
		t.Errorf("summary = %+v", sum)
	}
	hist, err := h.svc.History(ctx, sess.ID)
	if err != nil || len(hist) != 0 {
		t.Errorf("History = %v, %v", hist, err)
	}
}

func TestServiceClose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.create(t)
	if err := h.svc.Close(ctx, sess.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := h.svc.Start(ctx, sess.ID); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Start after close: err = %v", err)
	}
}

func TestServiceClientSummary(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	sess := h.create(t)
	if err := h.svc.SubmitClientSummary(ctx, sess.ID, json.RawMessage(`[1,2]`)); !errors.Is(err, ErrInvalidSummary) {
		t.Errorf("array: err = %v", err)
	}
	raw := json.RawMessage(`{"attentionPercentage":91.5}`)
	if err := h.svc.SubmitClientSummary(ctx, sess.ID, raw); err != nil {
		t.Fatal(err)
	}
	got, _ := h.store.GetByID(ctx, sess.ID)
	if string(got.ClientSummary) != string(raw) {
		t.Errorf("client summary = %s", got.ClientSummary)
	}
}
