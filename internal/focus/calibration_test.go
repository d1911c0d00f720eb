package focus

import (
	"errors"
	"testing"
)

func TestCalibrationInOrder(t *testing.T) {
	c := NewCalibration(3)
	for i := 0; i < 3; i++ {
		p, err := c.Record(i)
		if err != nil {
			t.Fatalf("Record(%d): %v", i, err)
		}
		if p.Progress != i+1 {
			t.Errorf("Progress = %d, want %d", p.Progress, i+1)
		}
	}
	if !c.Done() {
		t.Error("Done = false after all points")
	}
	if _, err := c.Record(3); !errors.Is(err, ErrAlreadyCalibrated) {
		t.Errorf("Record after done: err = %v, want ErrAlreadyCalibrated", err)
	}
}

func TestCalibrationOutOfOrder(t *testing.T) {
	c := NewCalibration(DefaultCalibrationPoints)
	if _, err := c.Record(2); !errors.Is(err, ErrCalibrationOrder) {
		t.Fatalf("err = %v, want ErrCalibrationOrder", err)
	}
	if c.Progress().Progress != 0 {
		t.Errorf("Progress advanced on rejected point")
	}
}

func TestMonitorCalibrateNinePoints(t *testing.T) {
	m := NewMonitor()
	m.Configure(1000, 800)
	if m.Start() {
		t.Fatal("Start succeeded before calibration")
	}
	for i := 0; i < DefaultCalibrationPoints; i++ {
		p, err := m.Calibrate(i)
		if err != nil {
			t.Fatalf("Calibrate(%d): %v", i, err)
		}
		if done := i == DefaultCalibrationPoints-1; p.Done != done {
			t.Errorf("point %d: Done = %v, want %v", i, p.Done, done)
		}
	}
	if m.Phase() != PhaseCalibrated {
		t.Fatalf("Phase = %v, want calibrated", m.Phase())
	}
	if _, err := m.Calibrate(0); !errors.Is(err, ErrAlreadyCalibrated) {
		t.Errorf("Calibrate after done: err = %v", err)
	}
	if !m.Start() {
		t.Error("Start failed after calibration")
	}
}
