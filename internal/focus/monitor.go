package focus

import "time"

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock replaces the millisecond clock used by Start, Stop and Summary.
func WithClock(now func() int64) Option {
	return func(m *Monitor) { m.now = now }
}

// WithHistorySize sets how many recent samples are retained.
func WithHistorySize(n int) Option {
	return func(m *Monitor) { m.history = NewHistory(n) }
}

// WithResetPolicy sets the accumulator policy applied on Start.
func WithResetPolicy(p ResetPolicy) Option {
	return func(m *Monitor) { m.policy = p }
}

// WithCalibrationPoints sets the number of fixation points required before Start.
func WithCalibrationPoints(n int) Option {
	return func(m *Monitor) { m.calibration = NewCalibration(n) }
}

// WithMarginRatio sets the margin used by Configure.
func WithMarginRatio(ratio float64) Option {
	return func(m *Monitor) {
		if ratio >= 0 {
			m.marginRatio = ratio
		}
	}
}

// Monitor is the focus state machine for one tracked subject.
type Monitor struct {
	phase       Phase
	bounds      *Bounds
	marginRatio float64
	calibration *Calibration
	policy      ResetPolicy

	focus            FocusState
	distractionStart *int64
	distractions     []Interval
	distractedTime   int64

	started   bool
	startTime int64
	totalTime int64

	history *History
	now     func() int64
}

// NewMonitor creates an uncalibrated, unconfigured monitor.
func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		phase:       PhaseUncalibrated,
		marginRatio: DefaultMarginRatio,
		calibration: NewCalibration(DefaultCalibrationPoints),
		policy:      ResetAccumulate,
		focus:       Focused,
		history:     NewHistory(DefaultHistorySize),
		now:         func() int64 { return time.Now().UnixMilli() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Configure computes bounds for the viewport and installs them. Bounds are not
// recomputed on resize; call Configure again if the viewport changes.
func (m *Monitor) Configure(width, height float64) Bounds {
	b := NewBoundsWithMargin(width, height, m.marginRatio)
	m.bounds = &b
	return b
}

// Bounds returns the installed bounds, if any.
func (m *Monitor) Bounds() (Bounds, bool) {
	if m.bounds == nil {
		return Bounds{}, false
	}
	return *m.bounds, true
}

// Calibrate records a fixation point. The monitor becomes calibrated once every
// point has been visited.
func (m *Monitor) Calibrate(point int) (CalibrationProgress, error) {
	if m.phase != PhaseUncalibrated {
		return m.calibration.Progress(), ErrAlreadyCalibrated
	}
	p, err := m.calibration.Record(point)
	if err != nil {
		return p, err
	}
	if p.Done {
		m.phase = PhaseCalibrated
	}
	return p, nil
}

// MarkCalibrated skips the handshake for upstream adapters that calibrate themselves.
func (m *Monitor) MarkCalibrated() {
	if m.phase == PhaseUncalibrated {
		m.phase = PhaseCalibrated
	}
}

// Start begins tracking. It returns false without changing state when the monitor
// is not calibrated or has no bounds. Starting while already tracking keeps the
// original start time.
func (m *Monitor) Start() bool {
	switch {
	case m.phase == PhaseUncalibrated, m.bounds == nil:
		return false
	case m.phase == PhaseTracking:
		return true
	}
	if m.policy == ResetOnStart {
		m.focus = Focused
		m.distractionStart = nil
		m.distractions = nil
		m.distractedTime = 0
	}
	m.startTime = m.now()
	m.started = true
	m.phase = PhaseTracking
	return true
}

// Stop ends tracking and returns the summary. Total time is measured from the
// last Start to now, so calling Stop twice yields a longer total.
func (m *Monitor) Stop() Summary {
	if m.phase == PhaseTracking {
		m.phase = PhaseStopped
	}
	if m.started {
		m.totalTime = m.now() - m.startTime
	}
	return m.Summary()
}

// Ingest records s and updates the focus state.
func (m *Monitor) Ingest(s Sample) (Transition, error) {
	if m.bounds == nil {
		return Transition{}, ErrNotConfigured
	}
	if m.phase != PhaseTracking {
		return Transition{}, ErrNotTracking
	}
	m.history.Push(s)

	next := Distracted
	if Classify(s, *m.bounds) {
		next = Focused
	}
	if next == m.focus {
		return Transition{From: m.focus, To: m.focus, At: s.Timestamp}, nil
	}

	t := Transition{Changed: true, From: m.focus, To: next, At: s.Timestamp}
	if next == Distracted {
		start := s.Timestamp
		m.distractionStart = &start
	} else if m.distractionStart != nil {
		// Out-of-order timestamps must not shrink distracted time.
		d := s.Timestamp - *m.distractionStart
		if d < 0 {
			d = 0
		}
		iv := Interval{Start: *m.distractionStart, End: s.Timestamp, Duration: d}
		m.distractions = append(m.distractions, iv)
		m.distractedTime += d
		m.distractionStart = nil
		t.Closed = &iv
	}
	m.focus = next
	return t, nil
}

// Summary derives the attention summary from the current accumulators. While
// tracking, total time is the elapsed time so far.
func (m *Monitor) Summary() Summary {
	total := m.totalTime
	if m.phase == PhaseTracking {
		total = m.now() - m.startTime
	}
	return Summarize(total, m.distractedTime, m.distractions)
}

// Phase returns the lifecycle phase.
func (m *Monitor) Phase() Phase { return m.phase }

// Focus returns the current focus state.
func (m *Monitor) Focus() FocusState { return m.focus }

// DistractedTime returns the accumulated closed distraction time in milliseconds.
func (m *Monitor) DistractedTime() int64 { return m.distractedTime }

// Distractions returns a copy of the closed intervals.
func (m *Monitor) Distractions() []Interval {
	out := make([]Interval, len(m.distractions))
	copy(out, m.distractions)
	return out
}

// History returns the retained samples, oldest first.
func (m *Monitor) History() []Sample { return m.history.Snapshot() }

// CalibrationProgress returns the handshake progress.
func (m *Monitor) CalibrationProgress() CalibrationProgress {
	if m.phase != PhaseUncalibrated {
		p := m.calibration.Progress()
		p.Done = true
		return p
	}
	return m.calibration.Progress()
}
