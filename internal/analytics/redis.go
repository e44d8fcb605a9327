// Package analytics records per-catalog run outcome counters in Redis,
// bucketed by time window, so dashboards can chart launch/skip/failure rates
// per catalog without touching the run-state store.
package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bloomreach/shopify-to-bloomreach/internal/domain"
)

// Config controls how outcome counters are bucketed and retained.
type Config struct {
	Enabled   bool
	Window    time.Duration // counter bucket width
	Retention time.Duration // TTL on each counter key
}

// DefaultConfig returns hourly buckets kept for 30 days.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Window:    time.Hour,
		Retention: 30 * 24 * time.Hour,
	}
}

type RedisSink struct {
	client *redis.Client
	config Config
}

func NewRedisSink(client *redis.Client, config Config) *RedisSink {
	return &RedisSink{client: client, config: config}
}

// Write increments the bucketed counter for the event's catalog and outcome.
func (s *RedisSink) Write(ctx context.Context, event domain.RunEvent) error {
	if !s.config.Enabled {
		return nil
	}

	key := buildKey(event.CatalogKey, event.Outcome, event.At, s.config.Window)

	pipe := s.client.Pipeline()
	pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, s.config.Retention)

	_, err := pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}

	return nil
}

func buildKey(catalogKey string, outcome domain.RunOutcome, t time.Time, window time.Duration) string {
	bucket := truncateToBucket(t, window)
	return fmt.Sprintf("dish:c:%s:%s:%s", catalogKey, outcome, bucket)
}

func truncateToBucket(t time.Time, window time.Duration) string {
	t = t.UTC()
	switch window {
	case time.Minute:
		return t.Format("200601021504")
	case 5 * time.Minute:
		minute := (t.Minute() / 5) * 5
		return t.Format("2006010215") + fmt.Sprintf("%02d", minute)
	case time.Hour:
		return t.Format("2006010215")
	default:
		return t.Format("200601021504")
	}
}
