package reports

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	"github.com/aura-interview/attention/internal/models"
)

func stoppedSession() *models.AttentionSession {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	stopped := started.Add(5 * time.Second)
	return &models.AttentionSession{
		ID:                   uuid.New(),
		CandidateID:          uuid.New(),
		Status:               models.SessionStopped,
		ViewportWidth:        1000,
		ViewportHeight:       800,
		MarginRatio:          0.1,
		ResetPolicy:          "accumulate",
		StartedAt:            &started,
		StoppedAt:            &stopped,
		TotalMs:              5000,
		FocusedMs:            3000,
		DistractedMs:         2000,
		AttentionPercentage:  60,
		DistractionCount:     1,
		AvgDistractionMs:     2000,
		LongestDistractionMs: 2000,
	}
}

var oneInterval = []models.DistractionInterval{{Seq: 0, StartMs: 1000, EndMs: 3000, DurationMs: 2000}}

func TestEncodeDecode(t *testing.T) {
	now := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	want := Build(stoppedSession(), oneInterval, now)

	raw, err := EncodeBytes(want)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(raw, []byte{0x28, 0xb5, 0x2f, 0xfd}) {
		t.Errorf("output is not a zstd frame: % x", raw[:4])
	}
	got, err := Decode(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	if got.SessionID != want.SessionID || got.Version != FormatVersion || !got.GeneratedAt.Equal(now) {
		t.Errorf("header = %+v", got)
	}
	if got.Summary.AttentionPercentage != 60 || len(got.Summary.Distractions) != 1 || got.Summary.Distractions[0].Duration != 2000 {
		t.Errorf("summary = %+v", got.Summary)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := Decode(bytes.NewReader([]byte("plain json"))); err == nil {
		t.Error("expected error for non-zstd input")
	}
}

type fakeSessions struct {
	sess *models.AttentionSession
	key  string
}

func (f *fakeSessions) GetByID(context.Context, uuid.UUID) (*models.AttentionSession, error) {
	return f.sess, nil
}

func (f *fakeSessions) ListDistractions(context.Context, uuid.UUID) ([]models.DistractionInterval, error) {
	return oneInterval, nil
}

func (f *fakeSessions) SetReportKey(_ context.Context, _ uuid.UUID, key string) error {
	f.key = key
	return nil
}

type fakeUploader struct {
	calls int
	err   error
	body  []byte
}

func (f *fakeUploader) UploadReport(_ context.Context, key string, body io.Reader, size int64) (string, error) {
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	f.body, _ = io.ReadAll(body)
	return "s3://" + key, nil
}

func TestExporter(t *testing.T) {
	sess := stoppedSession()
	src := &fakeSessions{sess: sess}
	up := &fakeUploader{}
	key, err := NewExporter(src, up, nil, nil, nil).Export(context.Background(), sess.ID)
	if err != nil {
		t.Fatal(err)
	}
	wantKey := "reports/" + sess.CandidateID.String() + "/" + sess.ID.String() + ".json.zst"
	if key != wantKey || src.key != wantKey {
		t.Errorf("key = %q, stored %q, want %q", key, src.key, wantKey)
	}
	r, err := Decode(bytes.NewReader(up.body))
	if err != nil || r.SessionID != sess.ID {
		t.Errorf("uploaded report = %+v, %v", r, err)
	}
}

func TestExporterSkips(t *testing.T) {
	up := &fakeUploader{}
	if _, err := NewExporter(&fakeSessions{}, up, nil, nil, nil).Export(context.Background(), uuid.New()); !errors.Is(err, ErrSessionGone) {
		t.Errorf("missing session: err = %v", err)
	}
	neverRan := stoppedSession()
	neverRan.StoppedAt = nil
	key, err := NewExporter(&fakeSessions{sess: neverRan}, up, nil, nil, nil).Export(context.Background(), neverRan.ID)
	if err != nil || key != "" {
		t.Errorf("never stopped: key %q err %v", key, err)
	}
	if up.calls != 0 {
		t.Errorf("uploader called %d times", up.calls)
	}
}

func TestExporterBreakerOpens(t *testing.T) {
	sess := stoppedSession()
	src := &fakeSessions{sess: sess}
	up := &fakeUploader{err: errors.New("s3 unavailable")}
	b := NewBreaker(BreakerSettings{MaxRequests: 1, Timeout: time.Minute, MinFailures: 2}, nil)
	e := NewExporter(src, up, b, nil, nil)

	for i := 0; i < 2; i++ {
		if _, err := e.Export(context.Background(), sess.ID); err == nil {
			t.Fatal("expected upload error")
		}
	}
	if b.State() != "open" {
		t.Fatalf("breaker state = %s, want open", b.State())
	}
	_, err := e.Export(context.Background(), sess.ID)
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("err = %v, want ErrOpenState", err)
	}
	if up.calls != 2 {
		t.Errorf("uploader calls = %d, want 2", up.calls)
	}
	if src.key != "" {
		t.Error("report key set despite failure")
	}
}

func TestNilBreaker(t *testing.T) {
	var b *Breaker
	if b.State() != "disabled" {
		t.Errorf("State = %s", b.State())
	}
	got, err := b.Execute(func() (string, error) { return "x", nil })
	if got != "x" || err != nil {
		t.Errorf("Execute = %q, %v", got, err)
	}
}
