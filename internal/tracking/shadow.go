// Package tracking records champion/candidate agreement during shadow
// deployment windows in Redis.
package tracking

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/tradecrew/tradecrew/internal/metrics"
	"github.com/tradecrew/tradecrew/internal/models"
	"github.com/tradecrew/tradecrew/internal/training"
)

// Config configures the shadow tracker
type Config struct {
	RedisURL      string
	RedisPassword string
	RedisDB       int
	Prefix        string        // key prefix (default "shadow:")
	WindowTTL     time.Duration // counter retention (default 72h)
}

// DefaultConfig returns the default tracker configuration
func DefaultConfig() Config {
	return Config{
		RedisURL:  "localhost:6379",
		Prefix:    "shadow:",
		WindowTTL: 72 * time.Hour,
	}
}

func (c Config) withDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "shadow:"
	}
	if c.WindowTTL <= 0 {
		c.WindowTTL = 72 * time.Hour
	}
	return c
}

// Tracker counts per-decision agreement between the champion and the
// shadowed candidate adapter.
type Tracker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewTracker connects to Redis and returns a tracker
func NewTracker(cfg Config, log zerolog.Logger) (*Tracker, error) {
	cfg = cfg.withDefaults()
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewTrackerWithClient(client, cfg, log), nil
}

// NewTrackerWithClient wraps an existing Redis client
func NewTrackerWithClient(client *redis.Client, cfg Config, log zerolog.Logger) *Tracker {
	cfg = cfg.withDefaults()
	return &Tracker{
		client: client,
		prefix: cfg.Prefix,
		ttl:    cfg.WindowTTL,
		log:    log.With().Str("component", "shadow_tracker").Logger(),
	}
}

func (t *Tracker) key(agentID, windowID, field string) string {
	return fmt.Sprintf("%s%s:%s:%s", t.prefix, agentID, windowID, field)
}

// RecordComparison records one champion/candidate decision pair for the
// window. Directions must match exactly to count as agreement.
func (t *Tracker) RecordComparison(ctx context.Context, agentID, windowID string, champion, candidate models.SignalDirection) error {
	pipe := t.client.TxPipeline()
	totalKey := t.key(agentID, windowID, "total")
	agreeKey := t.key(agentID, windowID, "agree")

	pipe.Incr(ctx, totalKey)
	pipe.Expire(ctx, totalKey, t.ttl)
	if champion == candidate {
		pipe.Incr(ctx, agreeKey)
	}
	pipe.Expire(ctx, agreeKey, t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record shadow comparison: %w", err)
	}
	return nil
}

// Result assembles the shadow deployment result for a completed window
func (t *Tracker) Result(ctx context.Context, agentID, windowID string, startedAt, endedAt time.Time) (training.ShadowDeploymentResult, error) {
	total, err := t.counter(ctx, t.key(agentID, windowID, "total"))
	if err != nil {
		return training.ShadowDeploymentResult{}, err
	}
	agree, err := t.counter(ctx, t.key(agentID, windowID, "agree"))
	if err != nil {
		return training.ShadowDeploymentResult{}, err
	}

	rate := 0.0
	if total > 0 {
		rate = float64(agree) / float64(total)
	}
	metrics.ShadowAgreement.WithLabelValues(agentID).Set(rate)

	t.log.Info().
		Str("agent_id", agentID).
		Str("window_id", windowID).
		Int64("total", total).
		Int64("agree", agree).
		Float64("agreement_rate", rate).
		Msg("Shadow window summarized")
	return training.ShadowDeploymentResult{
		StartedAt:     startedAt,
		EndedAt:       endedAt,
		AgreementRate: rate,
		TotalSamples:  int(total),
	}, nil
}

// Reset clears the counters for a window
func (t *Tracker) Reset(ctx context.Context, agentID, windowID string) error {
	keys := []string{
		t.key(agentID, windowID, "total"),
		t.key(agentID, windowID, "agree"),
	}
	if err := t.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to reset shadow window: %w", err)
	}
	return nil
}

// Close releases the Redis connection
func (t *Tracker) Close() error {
	return t.client.Close()
}

func (t *Tracker) counter(ctx context.Context, key string) (int64, error) {
	value, err := t.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter %s: %w", key, err)
	}
	return value, nil
}
