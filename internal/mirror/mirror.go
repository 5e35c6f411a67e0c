package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/battwatch/battwatch/internal/config"
	"github.com/battwatch/battwatch/internal/diagnose"
	"github.com/battwatch/battwatch/internal/scheduler"
)

// writeTimeout bounds a single SET.
const writeTimeout = 2 * time.Second

// Setter is the subset of redis.Cmdable the mirror uses.
type Setter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// NewClient builds a Redis client from cfg.
func NewClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password(),
		DB:       cfg.DB,
		Protocol: 2,
	})
}

// Mirror writes records to a single Redis key.
type Mirror struct {
	client  Setter
	key     string
	ttl     time.Duration
	pending chan *diagnose.Record
}

// New creates a Mirror writing to key with the given expiry.
func New(client Setter, key string, ttl time.Duration) *Mirror {
	return &Mirror{
		client:  client,
		key:     key,
		ttl:     ttl,
		pending: make(chan *diagnose.Record, 1),
	}
}

// Store writes rec synchronously.
func (m *Mirror) Store(ctx context.Context, rec *diagnose.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("mirror: encode record: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()

	if err := m.client.Set(ctx, m.key, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("mirror: set %s: %w", m.key, err)
	}
	return nil
}

// Observe queues the event's record for Run, replacing any record that has
// not been written yet. It never blocks, so it is safe as a scheduler observer.
func (m *Mirror) Observe(ev scheduler.Event) {
	m.offer(ev.Record)
}

func (m *Mirror) offer(rec *diagnose.Record) {
	for {
		select {
		case m.pending <- rec:
			return
		default:
		}
		select {
		case <-m.pending:
		default:
		}
	}
}

// Run writes queued records until ctx is cancelled. Failures are logged and
// the next record is attempted as usual.
func (m *Mirror) Run(ctx context.Context) {
	slog.Info("mirror: publishing latest record", "key", m.key, "ttl", m.ttl)
	for {
		select {
		case <-ctx.Done():
			return
		case rec := <-m.pending:
			if err := m.Store(ctx, rec); err != nil {
				slog.Warn("mirror: write failed", "key", m.key, "err", err)
				continue
			}
			slog.Debug("mirror: stored", "key", m.key, "timestamp", rec.Timestamp)
		}
	}
}
