package focus

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when a sample arrives before Configure.
	ErrNotConfigured = errors.New("focus: bounds not configured")
	// ErrNotTracking is returned for samples received outside a tracking phase.
	ErrNotTracking = errors.New("focus: not tracking")
	// ErrCalibrationOrder is returned when a calibration point is visited out of order.
	ErrCalibrationOrder = errors.New("focus: calibration point out of order")
	// ErrAlreadyCalibrated is returned when calibrating a monitor that is past calibration.
	ErrAlreadyCalibrated = errors.New("focus: already calibrated")
	// ErrInvalidResetPolicy is returned by ParseResetPolicy for unknown names.
	ErrInvalidResetPolicy = errors.New("focus: unknown reset policy")
)

// FocusState is the binary on-screen/off-screen classification.
type FocusState int

const (
	Focused FocusState = iota
	Distracted
)

func (s FocusState) String() string {
	if s == Distracted {
		return "distracted"
	}
	return "focused"
}

// MarshalText encodes the state as its name.
func (s FocusState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes "focused" or "distracted".
func (s *FocusState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "focused":
		*s = Focused
	case "distracted":
		*s = Distracted
	default:
		return fmt.Errorf("focus: unknown state %q", b)
	}
	return nil
}

// Phase is the lifecycle position of a Monitor.
type Phase int

const (
	PhaseUncalibrated Phase = iota
	PhaseCalibrated
	PhaseTracking
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseCalibrated:
		return "calibrated"
	case PhaseTracking:
		return "tracking"
	case PhaseStopped:
		return "stopped"
	default:
		return "uncalibrated"
	}
}

// ResetPolicy decides what happens to accumulated distractions when tracking restarts.
type ResetPolicy string

const (
	// ResetAccumulate keeps intervals and distracted time across start/stop cycles.
	ResetAccumulate ResetPolicy = "accumulate"
	// ResetOnStart clears intervals and distracted time on every successful Start.
	ResetOnStart ResetPolicy = "reset"
)

// ParseResetPolicy parses a policy name. The empty string means ResetAccumulate.
func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch ResetPolicy(s) {
	case "", ResetAccumulate:
		return ResetAccumulate, nil
	case ResetOnStart:
		return ResetOnStart, nil
	default:
		return "", fmt.Errorf("%w %q", ErrInvalidResetPolicy, s)
	}
}

// Transition describes the effect of one ingested sample.
type Transition struct {
	Changed bool       `json:"changed"`
	From    FocusState `json:"from"`
	To      FocusState `json:"to"`
	At      int64      `json:"at"`
	// Closed is set when the sample ended a distraction.
	Closed *Interval `json:"closed,omitempty"`
}
