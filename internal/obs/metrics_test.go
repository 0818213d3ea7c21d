package obs

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
)

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                "/",
		"/metrics":                        "/metrics",
		"/v1/apps":                        "/v1/apps",
		"/v1/apps/01J0ABC":                "/v1/apps/:id",
		"/v1/apps/stats":                  "/v1/apps/stats",
		"/v1/apps/score?clinical_score=4": "/v1/apps/score",
		"/v1/apps/abc/extra":              "/v1/apps/abc/extra",
		"/v1/prescriptions/rx-1":          "/v1/prescriptions/:id",
		"/v1/prescriptions?patient_id=P1": "/v1/prescriptions",
		"/v1/messages/m-1/read":           "/v1/messages/:id/read",
		"/v1/messages/unread-count":       "/v1/messages/unread-count",
		"/v1/progress":                    "/v1/progress",
		"/v1/unknown/abc":                 "/v1/unknown/abc",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}

func TestInstrumentRecordsStatus(t *testing.T) {
	Init()
	Init()
	h := Instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/apps/xyz", nil))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("unexpected status %d", rr.Code)
	}

	mrr := httptest.NewRecorder()
	Handler().ServeHTTP(mrr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(mrr.Body.String(), `path="/v1/apps/:id",status="418"`) {
		t.Fatalf("expected canonical path in metrics output")
	}
}

func TestLogRequestWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	t.Cleanup(func() { SetOutput(os.Stdout) })

	LogRequest(map[string]any{"request_id": "req-1", "status": 201})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid json log: %v (%q)", err, buf.String())
	}
	if entry["msg"] != "request_complete" || entry["request_id"] != "req-1" || entry["level"] != "info" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("missing ts field")
	}
}
