package queue

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestNewJobAndDecode(t *testing.T) {
	p := ReportExportPayload{SessionID: uuid.New(), CandidateID: uuid.New()}
	job, err := NewJob(JobTypeReportExport, p)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	raw, err := json.Marshal(job)
	if err != nil {
		t.Fatal(err)
	}
	got, err := DecodeJob(raw)
	if err != nil {
		t.Fatalf("DecodeJob: %v", err)
	}
	if got.Type != JobTypeReportExport || got.Attempt != 0 || got.ID != job.ID {
		t.Errorf("job = %+v", got)
	}
	var back ReportExportPayload
	if err := json.Unmarshal(got.Payload, &back); err != nil || back != p {
		t.Errorf("payload = %+v, err %v", back, err)
	}
}

func TestDecodeJobRejectsGarbage(t *testing.T) {
	for _, raw := range []string{`not json`, `{}`, `{"id":"x"}`} {
		if _, err := DecodeJob([]byte(raw)); err == nil {
			t.Errorf("DecodeJob(%q) succeeded", raw)
		}
	}
}
