package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNewJSONEnvironment(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Environment: "production", Level: "debug", Output: &buf})

	log.Component("poller").WithField("job_id", "job-1").Debug("tick")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON line, got %q: %v", buf.String(), err)
	}
	if line["component"] != "poller" || line["job_id"] != "job-1" || line["msg"] != "tick" {
		t.Fatalf("unexpected fields: %v", line)
	}
	if line["service"] != "sales-coach" {
		t.Fatalf("service = %v, want sales-coach", line["service"])
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Environment: "production", Level: "warn", Output: &buf})

	log.Info("hidden")
	log.Warn("shown")

	if strings.Contains(buf.String(), "hidden") {
		t.Fatalf("info line should be filtered: %q", buf.String())
	}
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn line missing: %q", buf.String())
	}
}

func TestWithRequestKeepsIncomingID(t *testing.T) {
	log := New(Options{Output: &bytes.Buffer{}})
	r := httptest.NewRequest("GET", "/api/session", nil)
	r.Header.Set("X-Request-ID", "req-42")

	entry := log.WithRequest(r)
	if entry.Data["req_id"] != "req-42" {
		t.Fatalf("req_id = %v, want req-42", entry.Data["req_id"])
	}

	r.Header.Del("X-Request-ID")
	entry = log.WithRequest(r)
	if id, _ := entry.Data["req_id"].(string); id == "" {
		t.Fatal("expected generated request id")
	}
}

func TestWithError(t *testing.T) {
	log := New(Options{Output: &bytes.Buffer{}})
	if got := log.WithError(errors.New("boom")).Data["error"]; got != "boom" {
		t.Fatalf("error field = %v, want boom", got)
	}
	if _, ok := log.WithError(nil).Data["error"]; ok {
		t.Fatal("nil error should not add an error field")
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected discard logger")
	}
}
