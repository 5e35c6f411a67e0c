package api

import (
	"github.com/battwatch/battwatch/internal/alerts"
	"github.com/battwatch/battwatch/internal/diagnose"
)

// LatestReader returns the current diagnostic record. The scheduler
// satisfies it.
type LatestReader interface {
	Latest() *diagnose.Record
}

// AlertLister returns recent alerts. The alert engine satisfies it.
type AlertLister interface {
	Active() []*alerts.Alert
}

// HealthResponse is the payload for GET /api/health.
type HealthResponse struct {
	OK  bool   `json:"ok"`
	Now string `json:"now"` // ISO-8601 UTC, millisecond precision
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
