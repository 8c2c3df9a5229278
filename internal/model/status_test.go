package model

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJobStatus_TransitionStampsOnlyCompleted(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 0, time.Local)

	end, ok := JobCompleted.Transition(now)
	if !ok {
		t.Fatalf("expected completed to stamp end time")
	}
	if end != "2026-03-04 05:06:07" {
		t.Fatalf("unexpected end time %q", end)
	}

	for _, s := range []JobStatus{JobPending, JobRunning, JobFailed} {
		if _, ok := s.Transition(now); ok {
			t.Fatalf("expected %s not to stamp end time", s)
		}
	}
}

func TestJobStatus_UnmarshalRejectsUnknown(t *testing.T) {
	var body struct {
		Status *JobStatus `json:"status"`
	}
	if err := json.Unmarshal([]byte(`{"status":2}`), &body); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if body.Status == nil || *body.Status != JobCompleted {
		t.Fatalf("expected completed, got %v", body.Status)
	}

	if err := json.Unmarshal([]byte(`{"status":7}`), &body); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}

func TestParseJobStatus(t *testing.T) {
	st, err := ParseJobStatus("3")
	if err != nil || st != JobFailed {
		t.Fatalf("expected failed, got %v %v", st, err)
	}
	if _, err := ParseJobStatus("2x"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := ParseJobStatus("-1"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestTimeRoundTrip(t *testing.T) {
	now := time.Date(2026, 10, 19, 20, 10, 0, 0, time.Local)
	parsed, err := ParseTime(FormatTime(now))
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if !parsed.Equal(now) {
		t.Fatalf("expected %v, got %v", now, parsed)
	}
}
