package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/battwatch/battwatch/internal/alerts"
	"github.com/battwatch/battwatch/internal/api"
	"github.com/battwatch/battwatch/internal/config"
	"github.com/battwatch/battwatch/internal/diagnose"
	"github.com/battwatch/battwatch/internal/scheduler"
	"github.com/battwatch/battwatch/internal/telemetry"
)

// --- test helpers -----------------------------------------------------------

const dataset = `[
  {"temp": 30, "voltage": 360, "current": -20, "soc": 70, "soh": 90, "cell": "A1"},
  {"enc": {"temp": 52, "voltage": 378, "current": 145, "soc": 12, "soh": 80}}
]`

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newScheduler(t *testing.T) (*scheduler.Scheduler, *telemetry.Dataset) {
	t.Helper()
	ds, err := telemetry.Parse([]byte(dataset))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	s, err := scheduler.New(ds.Samples, scheduler.WithClock(fixedClock(start)))
	if err != nil {
		t.Fatalf("scheduler.New: %v", err)
	}
	return s, ds
}

func newHandler(t *testing.T, opts ...api.Option) (*api.Handler, *scheduler.Scheduler) {
	t.Helper()
	s, ds := newScheduler(t)
	h, err := api.New(s, ds.Raw, opts...)
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return h, s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode JSON: %v (body: %s)", err, rr.Body.String())
	}
}

type nilLatest struct{}

func (nilLatest) Latest() *diagnose.Record { return nil }

// --- /api/latest ------------------------------------------------------------

func TestLatest_ServesInitialRecord(t *testing.T) {
	h, _ := newHandler(t)
	rr := get(t, h, "/api/latest")

	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q", ct)
	}
	var rec diagnose.Record
	decode(t, rr, &rec)
	if rec.Timestamp != "2024-01-01T00:00:00.000Z" {
		t.Errorf("timestamp: got %q", rec.Timestamp)
	}
	if rec.Telemetry.Temp != 30 || rec.Diagnostics.Risk != diagnose.LevelLow {
		t.Errorf("record: got %+v", rec)
	}
	if rec.Diagnostics.Anomalies == nil {
		t.Error("anomalies should decode as [] not null")
	}
}

func TestLatest_FollowsTicks(t *testing.T) {
	h, s := newHandler(t)
	s.Tick(start.Add(3 * time.Second)) // samples[0] again
	s.Tick(start.Add(6 * time.Second)) // samples[1]

	var rec diagnose.Record
	decode(t, get(t, h, "/api/latest"), &rec)
	if rec.Timestamp != "2024-01-01T00:00:06.000Z" {
		t.Errorf("timestamp: got %q", rec.Timestamp)
	}
	if rec.Diagnostics.FireRisk != diagnose.LevelHigh {
		t.Errorf("fireRisk: got %q, want HIGH", rec.Diagnostics.FireRisk)
	}
	if len(rec.Diagnostics.Anomalies) != 4 {
		t.Errorf("anomalies: got %v", rec.Diagnostics.Anomalies)
	}
}

func TestLatest_NoRecordIs503(t *testing.T) {
	h, err := api.New(nilLatest{}, nil)
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	if rr := get(t, h, "/api/latest"); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status: got %d, want 503", rr.Code)
	}
}

// --- /api/all ---------------------------------------------------------------

func TestAll_ServesRawDataset(t *testing.T) {
	h, _ := newHandler(t)
	rr := get(t, h, "/api/all")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}

	var got []map[string]interface{}
	decode(t, rr, &got)
	if len(got) != 2 {
		t.Fatalf("len: got %d, want 2", len(got))
	}
	if got[0]["cell"] != "A1" {
		t.Errorf("extra fields should be preserved: %v", got[0])
	}
	enc, ok := got[1]["enc"].(map[string]interface{})
	if !ok || enc["temp"] != float64(52) {
		t.Errorf("nested form should be preserved: %v", got[1])
	}
	if _, flat := got[1]["temp"]; flat {
		t.Errorf("raw sample should not be normalized: %v", got[1])
	}
}

func TestAll_NilDatasetIsEmptyArray(t *testing.T) {
	h, err := api.New(nilLatest{}, nil)
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	if body := strings.TrimSpace(get(t, h, "/api/all").Body.String()); body != "[]" {
		t.Errorf("body: got %q, want []", body)
	}
}

// --- /api/health ------------------------------------------------------------

func TestHealth(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 30, 45, 123456789, time.FixedZone("CEST", 2*3600))
	h, err := api.New(nilLatest{}, nil, api.WithClock(fixedClock(now)))
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	rr := get(t, h, "/api/health")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rr.Code)
	}
	var resp api.HealthResponse
	decode(t, rr, &resp)
	if !resp.OK {
		t.Error("ok: got false, want true")
	}
	if resp.Now != "2024-06-01T10:30:45.123Z" {
		t.Errorf("now: got %q, want 2024-06-01T10:30:45.123Z", resp.Now)
	}
}

// --- /api/alerts ------------------------------------------------------------

func TestAlerts_EmptyWithoutEngine(t *testing.T) {
	h, _ := newHandler(t)
	rr := get(t, h, "/api/alerts")
	if body := strings.TrimSpace(rr.Body.String()); body != "[]" {
		t.Errorf("body: got %q, want []", body)
	}
}

func TestAlerts_ListsFiring(t *testing.T) {
	eng, err := alerts.New(config.AlertsConfig{Rules: []config.AlertRule{
		{Name: "low-soc", Condition: "anomaly == Low SoC", Severity: "critical"},
	}})
	if err != nil {
		t.Fatalf("alerts.New: %v", err)
	}
	h, s := newHandler(t, api.WithAlerts(eng))
	s.Tick(start)
	eng.Evaluate(s.Tick(start.Add(3 * time.Second)))

	var got []alerts.Alert
	decode(t, get(t, h, "/api/alerts"), &got)
	if len(got) != 1 {
		t.Fatalf("alerts: got %d, want 1", len(got))
	}
	if got[0].RuleName != "low-soc" || got[0].State != alerts.StateFiring {
		t.Errorf("alert: got %+v", got[0])
	}
}

// --- method and routing -----------------------------------------------------

func TestNonGET_Returns405(t *testing.T) {
	h, _ := newHandler(t)
	for _, path := range []string{"/api/latest", "/api/all", "/api/health", "/api/alerts"} {
		for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete} {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(method, path, nil))
			if rr.Code != http.StatusMethodNotAllowed {
				t.Errorf("%s %s: got %d, want 405", method, path, rr.Code)
			}
		}
	}
}

func TestUnknownPath_Returns404(t *testing.T) {
	h, _ := newHandler(t)
	if rr := get(t, h, "/api/history"); rr.Code != http.StatusNotFound {
		t.Errorf("status: got %d, want 404", rr.Code)
	}
}

// --- CORS -------------------------------------------------------------------

func TestCORS(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		method     string
		origin     string
		wantCode   int
		wantOrigin string
	}{
		{"wildcard", []string{"*"}, http.MethodGet, "https://a.example", http.StatusOK, "*"},
		{"empty list allows all", nil, http.MethodGet, "https://a.example", http.StatusOK, "*"},
		{"listed origin", []string{"https://dash.example"}, http.MethodGet, "https://dash.example", http.StatusOK, "https://dash.example"},
		{"unlisted origin", []string{"https://dash.example"}, http.MethodGet, "https://evil.example", http.StatusOK, ""},
		{"preflight", []string{"*"}, http.MethodOptions, "https://a.example", http.StatusNoContent, "*"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newHandler(t)
			wrapped := api.CORS(tc.allowed)(h)

			req := httptest.NewRequest(tc.method, "/api/health", nil)
			req.Header.Set("Origin", tc.origin)
			rr := httptest.NewRecorder()
			wrapped.ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Errorf("status: got %d, want %d", rr.Code, tc.wantCode)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("Allow-Origin: got %q, want %q", got, tc.wantOrigin)
			}
		})
	}
}

func TestCORS_PreflightReflectsRequestedHeaders(t *testing.T) {
	h, _ := newHandler(t)
	wrapped := api.CORS([]string{"*"})(h)

	req := httptest.NewRequest(http.MethodOptions, "/api/latest", nil)
	req.Header.Set("Origin", "https://a.example")
	req.Header.Set("Access-Control-Request-Method", "GET")
	req.Header.Set("Access-Control-Request-Headers", "x-api-key")
	rr := httptest.NewRecorder()
	wrapped.ServeHTTP(rr, req)

	if got := rr.Header().Get("Access-Control-Allow-Headers"); got != "x-api-key" {
		t.Errorf("Allow-Headers: got %q, want x-api-key", got)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(got, "GET") {
		t.Errorf("Allow-Methods: got %q", got)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("preflight body should be empty, got %q", rr.Body.String())
	}
}
