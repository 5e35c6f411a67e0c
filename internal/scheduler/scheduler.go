package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/battwatch/battwatch/internal/diagnose"
	"github.com/battwatch/battwatch/internal/telemetry"
)

// DefaultInterval is the tick period used when no WithInterval option is set.
const DefaultInterval = 3 * time.Second

// ErrNoSamples is returned by New when the dataset is empty.
var ErrNoSamples = errors.New("scheduler: dataset has no samples")

// Event describes one completed tick.
type Event struct {
	Record   *diagnose.Record
	Index    int           // dataset index the record was derived from
	Duration time.Duration // wall time spent in Derive
}

// Observer is notified after every tick.
type Observer func(Event)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick period.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) { s.interval = d }
}

// WithClock replaces time.Now as the source of record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithObserver registers fn to be called after every tick.
func WithObserver(fn Observer) Option {
	return func(s *Scheduler) { s.observers = append(s.observers, fn) }
}

// Scheduler owns the dataset cursor and the latest-record slot.
//
// All exported methods are safe for concurrent use.
type Scheduler struct {
	samples   []telemetry.Sample
	interval  time.Duration
	now       func() time.Time
	observers []Observer

	mu     sync.Mutex // serializes Tick, guards cursor
	cursor int

	latest atomic.Pointer[diagnose.Record]
}

// New creates a Scheduler over samples and derives the initial record from
// samples[0] at the current clock time. The cursor starts at 0, so the first
// Tick derives samples[0] again with a fresh timestamp.
func New(samples []telemetry.Sample, opts ...Option) (*Scheduler, error) {
	if len(samples) == 0 {
		return nil, ErrNoSamples
	}

	s := &Scheduler{
		samples:  slices.Clone(samples),
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.interval <= 0 {
		return nil, fmt.Errorf("scheduler: interval must be positive, got %v", s.interval)
	}

	s.latest.Store(diagnose.Derive(s.samples[0], diagnose.FormatTimestamp(s.now())))
	return s, nil
}

// Tick derives the record for the sample at the cursor, publishes it as the
// latest record, advances the cursor and notifies observers.
func (s *Scheduler) Tick(now time.Time) *diagnose.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.cursor
	start := time.Now()
	rec := diagnose.Derive(s.samples[idx], diagnose.FormatTimestamp(now))
	elapsed := time.Since(start)

	s.latest.Store(rec)
	s.cursor = (idx + 1) % len(s.samples)

	ev := Event{Record: rec, Index: idx, Duration: elapsed}
	for _, fn := range s.observers {
		fn(ev)
	}
	return rec
}

// Run ticks every interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	slog.Info("scheduler: cycling dataset",
		"samples", len(s.samples), "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			rec := s.Tick(s.now())
			slog.Debug("scheduler: tick",
				"timestamp", rec.Timestamp,
				"risk", rec.Diagnostics.Risk,
				"health_score", rec.Diagnostics.HealthScore,
			)
		}
	}
}

// Latest returns the most recently published record. It never blocks on a
// tick in progress. The returned record must not be modified.
func (s *Scheduler) Latest() *diagnose.Record {
	return s.latest.Load()
}

// Samples returns the dataset in order. The slice must not be modified.
func (s *Scheduler) Samples() []telemetry.Sample {
	return s.samples
}

// Cursor returns the index the next Tick will derive from.
func (s *Scheduler) Cursor() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// Len returns the dataset length.
func (s *Scheduler) Len() int { return len(s.samples) }

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration { return s.interval }
