// Package alerts evaluates operator-defined rules against every derived
// battery record and delivers notifications when a rule fires or resolves.
//
// Rules are parsed up front by ParseCondition so a typo in the config is
// reported at startup (or rejected on hot reload) instead of silently never
// firing. Delivery targets are Slack, Teams, generic HTTP and Pushover; each
// delivery is retried with exponential backoff on its own goroutine.
package alerts
