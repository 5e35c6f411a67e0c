package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/battwatch/battwatch/internal/alerts"
	"github.com/battwatch/battwatch/internal/diagnose"
)

// Handler is the HTTP handler for all /api/* endpoints.
type Handler struct {
	latest LatestReader
	alerts AlertLister
	all    []byte // pre-encoded /api/all body
	now    func() time.Time
	mux    *http.ServeMux
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the time source reported by /api/health.
func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

// WithAlerts serves al at /api/alerts. Without it the endpoint returns [].
func WithAlerts(al AlertLister) Option {
	return func(h *Handler) { h.alerts = al }
}

// New creates a Handler reading the latest record from latest and serving raw
// as the dataset. raw is encoded once; it must not change afterwards.
func New(latest LatestReader, raw []json.RawMessage, opts ...Option) (*Handler, error) {
	if raw == nil {
		raw = []json.RawMessage{}
	}
	all, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("api: encode dataset: %w", err)
	}

	h := &Handler{
		latest: latest,
		all:    append(all, '\n'),
		now:    time.Now,
		mux:    http.NewServeMux(),
	}
	for _, o := range opts {
		o(h)
	}

	h.mux.HandleFunc("/api/latest", h.getLatest)
	h.mux.HandleFunc("/api/all", h.getAll)
	h.mux.HandleFunc("/api/health", h.health)
	h.mux.HandleFunc("/api/alerts", h.listAlerts)

	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// getLatest returns GET /api/latest, the record from the most recent tick.
func (h *Handler) getLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	rec := h.latest.Latest()
	if rec == nil {
		jsonErr(w, http.StatusServiceUnavailable, "no record derived yet")
		return
	}
	jsonResp(w, http.StatusOK, rec)
}

// getAll returns GET /api/all, the dataset as it was loaded.
func (h *Handler) getAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(h.all); err != nil {
		slog.Debug("api: write dataset", "err", err)
	}
}

// health returns GET /api/health. It never depends on derivation state.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		OK:  true,
		Now: diagnose.FormatTimestamp(h.now()),
	})
}

// listAlerts returns GET /api/alerts.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	out := []*alerts.Alert{}
	if h.alerts != nil {
		out = append(out, h.alerts.Active()...)
	}
	jsonResp(w, http.StatusOK, out)
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
