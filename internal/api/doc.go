// Package api implements the battwatch REST API.
//
// Endpoints (all GET, JSON responses):
//
//	/api/latest : most recently derived diagnostic record
//	/api/all    : the raw dataset exactly as loaded
//	/api/health : liveness probe {"ok": true, "now": <ISO-8601>}
//	/api/alerts : firing alerts plus those resolved in the past hour
//
// CORS wraps any handler with the configured origin policy and answers
// OPTIONS preflights with 204.
package api
