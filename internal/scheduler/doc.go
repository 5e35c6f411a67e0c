// Package scheduler cycles through the fixed telemetry dataset and keeps the
// most recently derived diagnostic record.
//
// New(samples, opts...) refuses an empty dataset and derives the first record
// from samples[0] before returning, so Latest never returns nil.
//
// Tick(now) derives samples[cursor], publishes the record and advances the
// cursor modulo the dataset length. Ticks are serialized; the published
// record is swapped in with a single atomic pointer store, so Latest never
// blocks and never sees a partially built record.
//
// Run(ctx) calls Tick every interval (DefaultInterval unless WithInterval is
// given) using the injectable clock until ctx is cancelled.
//
// Observers registered with WithObserver run synchronously after each tick,
// in tick order, on the ticking goroutine. Keep them quick.
package scheduler
