package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aura-interview/attention/internal/focus"
	"github.com/aura-interview/attention/internal/metrics"
	"github.com/aura-interview/attention/internal/models"
	"github.com/aura-interview/attention/pkg/queue"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrInvalidViewport = errors.New("viewport width and height must be positive")
	ErrInvalidMargin   = errors.New("margin ratio must be between 0 and 1")
	ErrInvalidSummary  = errors.New("client summary must be a JSON object")
)

// Realtime event names sent to session observers.
const (
	EventCalibrationProgress = "calibration_progress"
	EventTrackingStarted     = "tracking_started"
	EventFocusChanged        = "focus_changed"
	EventSummary             = "summary"
)

const outboxSize = 1024

// Broadcaster delivers events to everyone watching a session.
type Broadcaster interface {
	BroadcastToSession(sessionID uuid.UUID, event string, payload interface{})
}

// ReportQueue schedules report exports.
type ReportQueue interface {
	EnqueueReportExport(ctx context.Context, payload queue.ReportExportPayload) error
}

// Options are the monitor defaults for new sessions.
type Options struct {
	HistorySize       int
	CalibrationPoints int
	QueueSize         int
	MarginRatio       float64
	ResetPolicy       focus.ResetPolicy
	// MonitorClock overrides the monitor's millisecond clock.
	MonitorClock func() int64
}

// CreateParams describes a new session.
type CreateParams struct {
	CandidateID    uuid.UUID
	InterviewRef   string
	ViewportWidth  float64
	ViewportHeight float64
	MarginRatio    *float64
	ResetPolicy    string
}

// FocusChanged is the payload of focus_changed.
type FocusChanged struct {
	SessionID uuid.UUID        `json:"session_id"`
	From      focus.FocusState `json:"from"`
	To        focus.FocusState `json:"to"`
	At        int64            `json:"at"`
	Closed    *focus.Interval  `json:"closed,omitempty"`
}

// TrackingStarted is the payload of tracking_started.
type TrackingStarted struct {
	SessionID uuid.UUID `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
}

// SummaryEvent is the payload of summary.
type SummaryEvent struct {
	SessionID uuid.UUID     `json:"session_id"`
	Summary   focus.Summary `json:"summary"`
}

// CalibrationEvent is the payload of calibration_progress.
type CalibrationEvent struct {
	SessionID uuid.UUID `json:"session_id"`
	focus.CalibrationProgress
}

// IngestResult reports how many submitted samples were queued.
type IngestResult struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// LiveState is the in-memory view of a session's monitor.
type LiveState struct {
	Phase       string                    `json:"phase"`
	Focus       focus.FocusState          `json:"focus"`
	Bounds      *focus.Bounds             `json:"bounds,omitempty"`
	Calibration focus.CalibrationProgress `json:"calibration"`
	Summary     focus.Summary             `json:"summary"`
}

type outboundEvent struct {
	session uuid.UUID
	event   string
	payload interface{}
}

// Service owns session lifecycles: persistence, the runner registry and observer broadcasts.
type Service struct {
	store    Store
	registry *Registry
	hub      Broadcaster
	reports  ReportQueue
	metrics  *metrics.Metrics
	logger   *zap.Logger
	opts     Options
	outbox   chan outboundEvent
	now      func() time.Time
	reopen   singleflight.Group
}

// NewService wires a Service. hub and reports may be nil.
func NewService(store Store, registry *Registry, hub Broadcaster, reports ReportQueue, m *metrics.Metrics, opts Options, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.ResetPolicy == "" {
		opts.ResetPolicy = focus.ResetAccumulate
	}
	if opts.MarginRatio <= 0 {
		opts.MarginRatio = focus.DefaultMarginRatio
	}
	return &Service{
		store:    store,
		registry: registry,
		hub:      hub,
		reports:  reports,
		metrics:  m,
		logger:   logger,
		opts:     opts,
		outbox:   make(chan outboundEvent, outboxSize),
		now:      time.Now,
	}
}

// Run delivers queued broadcasts and sweeps idle runners until ctx is done.
func (s *Service) Run(ctx context.Context) {
	go s.registry.RunSweeper(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.outbox:
			if s.hub != nil {
				s.hub.BroadcastToSession(ev.session, ev.event, ev.payload)
			}
		}
	}
}

func (s *Service) publish(id uuid.UUID, event string, payload interface{}) {
	select {
	case s.outbox <- outboundEvent{session: id, event: event, payload: payload}:
	default:
		s.logger.Warn("broadcast outbox full, event dropped", zap.String("session_id", id.String()), zap.String("event", event))
	}
}

// Create validates p, persists a new session and opens its runner.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.AttentionSession, error) {
	if p.ViewportWidth <= 0 || p.ViewportHeight <= 0 {
		return nil, ErrInvalidViewport
	}
	margin := s.opts.MarginRatio
	if p.MarginRatio != nil {
		margin = *p.MarginRatio
	}
	if margin < 0 || margin >= 1 {
		return nil, ErrInvalidMargin
	}
	policy := s.opts.ResetPolicy
	if p.ResetPolicy != "" {
		parsed, err := focus.ParseResetPolicy(p.ResetPolicy)
		if err != nil {
			return nil, err
		}
		policy = parsed
	}

	sess := &models.AttentionSession{
		CandidateID:    p.CandidateID,
		InterviewRef:   p.InterviewRef,
		Status:         models.SessionUncalibrated,
		ViewportWidth:  p.ViewportWidth,
		ViewportHeight: p.ViewportHeight,
		MarginRatio:    margin,
		ResetPolicy:    string(policy),
	}
	if err := s.store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	s.registry.Open(sess.ID, s.newRunner(sess, false))
	s.logger.Info("attention session created",
		zap.String("session_id", sess.ID.String()),
		zap.String("candidate_id", sess.CandidateID.String()),
		zap.Float64("viewport_width", sess.ViewportWidth),
		zap.Float64("viewport_height", sess.ViewportHeight))
	return sess, nil
}

func (s *Service) newMonitor(sess *models.AttentionSession) *focus.Monitor {
	opts := []focus.Option{
		focus.WithMarginRatio(sess.MarginRatio),
		focus.WithResetPolicy(focus.ResetPolicy(sess.ResetPolicy)),
	}
	if s.opts.HistorySize > 0 {
		opts = append(opts, focus.WithHistorySize(s.opts.HistorySize))
	}
	if s.opts.CalibrationPoints > 0 {
		opts = append(opts, focus.WithCalibrationPoints(s.opts.CalibrationPoints))
	}
	if s.opts.MonitorClock != nil {
		opts = append(opts, focus.WithClock(s.opts.MonitorClock))
	}
	m := focus.NewMonitor(opts...)
	m.Configure(sess.ViewportWidth, sess.ViewportHeight)
	return m
}

func (s *Service) newRunner(sess *models.AttentionSession, calibrated bool) *focus.Runner {
	m := s.newMonitor(sess)
	if calibrated {
		m.MarkCalibrated()
	}
	id := sess.ID
	r := focus.NewRunner(m, s.opts.QueueSize, s.logger.With(zap.String("session_id", id.String())))
	r.OnTransition(func(t focus.Transition) {
		var closed int64
		if t.Closed != nil {
			closed = t.Closed.Duration
		}
		s.metrics.Transition(t.To.String(), closed)
		s.publish(id, EventFocusChanged, FocusChanged{SessionID: id, From: t.From, To: t.To, At: t.At, Closed: t.Closed})
	})
	r.OnReject(func(_ focus.Sample, _ error) {
		s.metrics.Dropped(metrics.DropRejected)
	})
	return r
}

// runner returns the live runner for id, reopening one from the stored row when the
// registry has none. A reopened monitor keeps the calibration status but not the
// in-memory accumulators. Concurrent reopens of one session share a single runner.
func (s *Service) runner(ctx context.Context, id uuid.UUID) (*focus.Runner, error) {
	if r, ok := s.registry.Get(id); ok {
		return r, nil
	}
	v, err, _ := s.reopen.Do(id.String(), func() (interface{}, error) {
		if r, ok := s.registry.Get(id); ok {
			return r, nil
		}
		sess, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess.Status == models.SessionClosed {
			return nil, ErrSessionClosed
		}
		calibrated := sess.Status != models.SessionUncalibrated
		// The row must not claim tracking before the new runner is visible.
		if sess.Status == models.SessionTracking {
			if err := s.store.UpdateStatus(ctx, id, models.SessionCalibrated); err != nil {
				return nil, fmt.Errorf("reset status: %w", err)
			}
			sess.Status = models.SessionCalibrated
		}
		r, opened := s.registry.GetOrOpen(id, func() *focus.Runner { return s.newRunner(sess, calibrated) })
		if opened {
			s.logger.Info("focus runner reopened", zap.String("session_id", id.String()), zap.String("status", sess.Status))
		}
		return r, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*focus.Runner), nil
}

// exec runs fn on the session's monitor. A runner closed by the idle sweeper
// between lookup and Exec is reopened once.
func (s *Service) exec(ctx context.Context, id uuid.UUID, fn func(*focus.Monitor)) error {
	for attempt := 0; ; attempt++ {
		r, err := s.runner(ctx, id)
		if err != nil {
			return err
		}
		err = r.Exec(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, focus.ErrRunnerClosed) {
			return err
		}
		if attempt > 0 {
			return ErrSessionClosed
		}
	}
}

// Get returns the stored session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.AttentionSession, error) {
	sess, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrSessionNotFound
	}
	return sess, nil
}

// Owner returns the candidate a session belongs to.
func (s *Service) Owner(ctx context.Context, id uuid.UUID) (uuid.UUID, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return uuid.Nil, err
	}
	return sess.CandidateID, nil
}

// ListByCandidate returns every session of a candidate.
func (s *Service) ListByCandidate(ctx context.Context, candidateID uuid.UUID) ([]models.AttentionSession, error) {
	return s.store.ListByCandidate(ctx, candidateID)
}

// Live returns the in-memory monitor state, or nil when no runner is open. A runner
// closed while it is read also yields nil.
func (s *Service) Live(ctx context.Context, id uuid.UUID) (*LiveState, error) {
	r, ok := s.registry.Get(id)
	if !ok {
		return nil, nil
	}
	var st LiveState
	err := r.Exec(ctx, func(m *focus.Monitor) {
		st.Phase = m.Phase().String()
		st.Focus = m.Focus()
		if b, ok := m.Bounds(); ok {
			st.Bounds = &b
		}
		st.Calibration = m.CalibrationProgress()
		st.Summary = m.Summary()
	})
	if errors.Is(err, focus.ErrRunnerClosed) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read live state: %w", err)
	}
	return &st, nil
}

// Calibrate records a calibration fixation point.
func (s *Service) Calibrate(ctx context.Context, id uuid.UUID, point int) (focus.CalibrationProgress, error) {
	var (
		progress focus.CalibrationProgress
		calErr   error
	)
	if err := s.exec(ctx, id, func(m *focus.Monitor) {
		progress, calErr = m.Calibrate(point)
	}); err != nil {
		return progress, err
	}
	if calErr != nil {
		return progress, calErr
	}
	if progress.Done {
		if err := s.store.UpdateStatus(ctx, id, models.SessionCalibrated); err != nil {
			return progress, fmt.Errorf("update status: %w", err)
		}
	}
	s.publish(id, EventCalibrationProgress, CalibrationEvent{SessionID: id, CalibrationProgress: progress})
	return progress, nil
}

// SkipCalibration marks the session calibrated without the handshake.
func (s *Service) SkipCalibration(ctx context.Context, id uuid.UUID) error {
	var phase focus.Phase
	if err := s.exec(ctx, id, func(m *focus.Monitor) {
		m.MarkCalibrated()
		phase = m.Phase()
	}); err != nil {
		return err
	}
	if phase != focus.PhaseCalibrated {
		return nil
	}
	return s.store.UpdateStatus(ctx, id, models.SessionCalibrated)
}

// Start begins tracking. It returns false when the session is not calibrated.
func (s *Service) Start(ctx context.Context, id uuid.UUID) (bool, error) {
	var started, already bool
	if err := s.exec(ctx, id, func(m *focus.Monitor) {
		already = m.Phase() == focus.PhaseTracking
		started = m.Start()
	}); err != nil {
		return false, err
	}
	if !started || already {
		return started, nil
	}
	at := s.now()
	if err := s.store.MarkStarted(ctx, id, at); err != nil {
		return true, fmt.Errorf("mark started: %w", err)
	}
	s.publish(id, EventTrackingStarted, TrackingStarted{SessionID: id, StartedAt: at})
	s.logger.Info("attention tracking started", zap.String("session_id", id.String()))
	return true, nil
}

// Ingest queues samples on the session runner without blocking.
func (s *Service) Ingest(ctx context.Context, id uuid.UUID, samples []focus.Sample) (IngestResult, error) {
	r, err := s.runner(ctx, id)
	if err != nil {
		return IngestResult{}, err
	}
	var res IngestResult
	for _, sample := range samples {
		if r.Submit(sample) {
			res.Accepted++
			continue
		}
		res.Dropped++
		s.metrics.Dropped(metrics.DropQueueFull)
	}
	s.metrics.Ingested(res.Accepted)
	return res, nil
}

// Stop ends tracking, persists the summary and intervals, notifies observers and
// schedules a report export. The runner stays open so the session can be restarted.
// A session that never started returns its empty summary and persists nothing.
func (s *Service) Stop(ctx context.Context, id uuid.UUID) (focus.Summary, error) {
	var (
		sum     focus.Summary
		stopped bool
	)
	if err := s.exec(ctx, id, func(m *focus.Monitor) {
		sum = m.Stop()
		stopped = m.Phase() == focus.PhaseStopped
	}); err != nil {
		return sum, err
	}
	if !stopped {
		return sum, nil
	}
	if err := s.store.SaveSummary(ctx, id, sum, s.now()); err != nil {
		return sum, fmt.Errorf("save summary: %w", err)
	}
	s.publish(id, EventSummary, SummaryEvent{SessionID: id, Summary: sum})
	s.logger.Info("attention tracking stopped",
		zap.String("session_id", id.String()),
		zap.Int64("total_ms", sum.TotalTime),
		zap.Int64("distracted_ms", sum.DistractedTime),
		zap.Float64("attention_percentage", sum.AttentionPercentage),
		zap.Int("distractions", sum.DistractionCount))

	if s.reports != nil {
		sess, err := s.Get(ctx, id)
		if err == nil {
			err = s.reports.EnqueueReportExport(ctx, queue.ReportExportPayload{SessionID: id, CandidateID: sess.CandidateID})
		}
		if err != nil {
			s.logger.Warn("enqueue report export failed", zap.String("session_id", id.String()), zap.Error(err))
		}
	}
	return sum, nil
}

// Summary returns the live summary, or the persisted one when no runner is open.
func (s *Service) Summary(ctx context.Context, id uuid.UUID) (focus.Summary, error) {
	if r, ok := s.registry.Get(id); ok {
		var sum focus.Summary
		if err := r.Exec(ctx, func(m *focus.Monitor) { sum = m.Summary() }); err == nil {
			return sum, nil
		}
	}
	sess, err := s.Get(ctx, id)
	if err != nil {
		return focus.Summary{}, err
	}
	intervals, err := s.store.ListDistractions(ctx, id)
	if err != nil {
		return focus.Summary{}, fmt.Errorf("list distractions: %w", err)
	}
	return SummaryFromRow(sess, intervals), nil
}

// Distractions returns the closed intervals.
func (s *Service) Distractions(ctx context.Context, id uuid.UUID) ([]focus.Interval, error) {
	sum, err := s.Summary(ctx, id)
	if err != nil {
		return nil, err
	}
	return sum.Distractions, nil
}

// History returns the retained samples. Sessions without a runner have none.
func (s *Service) History(ctx context.Context, id uuid.UUID) ([]focus.Sample, error) {
	if r, ok := s.registry.Get(id); ok {
		var h []focus.Sample
		if err := r.Exec(ctx, func(m *focus.Monitor) { h = m.History() }); err == nil {
			return h, nil
		}
	}
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	return []focus.Sample{}, nil
}

// SubmitClientSummary stores a summary computed by the candidate's browser.
func (s *Service) SubmitClientSummary(ctx context.Context, id uuid.UUID, raw json.RawMessage) error {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return ErrInvalidSummary
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.store.SaveClientSummary(ctx, id, raw)
}

// Close stops the session runner and marks the session closed.
func (s *Service) Close(ctx context.Context, id uuid.UUID) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	s.registry.Close(id)
	return s.store.UpdateStatus(ctx, id, models.SessionClosed)
}
