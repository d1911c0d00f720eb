package storage

import (
	"testing"
	"time"
)

func TestReportKey(t *testing.T) {
	got := ReportKey("cand-1", "sess-9")
	if want := "reports/cand-1/sess-9.json.zst"; got != want {
		t.Errorf("ReportKey = %q, want %q", got, want)
	}
}

func TestPresignExpireDefault(t *testing.T) {
	s := &S3{}
	if got := s.PresignExpire(); got != 15*time.Minute {
		t.Errorf("PresignExpire = %v, want 15m", got)
	}
	s.cfg.PresignExpireMinutes = 5
	if got := s.PresignExpire(); got != 5*time.Minute {
		t.Errorf("PresignExpire = %v, want 5m", got)
	}
}
