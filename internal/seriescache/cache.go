// Package seriescache keeps observation series in Redis in front of the
// catalog backend.
package seriescache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/metrics"
	"github.com/DeafMist/stat-radar/backend/internal/models"
)

const keyPrefix = "series:"

// Store is the subset of the go-redis client the cache needs.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Dial connects to Redis. An empty url means the cache is disabled and
// returns a nil client.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	if url == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Cache is a read-through catalog.ObservationSource. Redis failures never
// fail a lookup; the backend answers instead.
type Cache struct {
	store   Store
	next    catalog.ObservationSource
	ttl     time.Duration
	metrics *metrics.Metrics
	log     *slog.Logger
}

var _ catalog.ObservationSource = (*Cache)(nil)

// New wraps next with a cache whose entries live for ttl.
func New(store Store, next catalog.ObservationSource, ttl time.Duration, m *metrics.Metrics, log *slog.Logger) *Cache {
	return &Cache{store: store, next: next, ttl: ttl, metrics: m, log: log}
}

// Key returns the Redis key of one series.
func Key(variableDCID, placeDCID string) string {
	return keyPrefix + variableDCID + ":" + placeDCID
}

func (c *Cache) Series(ctx context.Context, variableDCID, placeDCID string) ([]models.Observation, error) {
	key := Key(variableDCID, placeDCID)

	if series, ok := c.get(ctx, key); ok {
		c.metrics.IncrementSeriesCache("hit")
		return series, nil
	}

	series, err := c.next.Series(ctx, variableDCID, placeDCID)
	if err != nil {
		return nil, err
	}
	if series == nil {
		series = []models.Observation{}
	}

	payload, err := json.Marshal(series)
	if err != nil {
		return series, nil
	}
	if err := c.store.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.log.Warn("series cache write failed", slog.String("key", key), slog.Any("err", err))
	}
	return series, nil
}

func (c *Cache) get(ctx context.Context, key string) ([]models.Observation, bool) {
	raw, err := c.store.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		c.metrics.IncrementSeriesCache("miss")
		return nil, false
	}
	if err != nil {
		c.metrics.IncrementSeriesCache("error")
		c.log.Warn("series cache read failed", slog.String("key", key), slog.Any("err", err))
		return nil, false
	}

	var series []models.Observation
	if err := json.Unmarshal(raw, &series); err != nil {
		c.metrics.IncrementSeriesCache("error")
		c.log.Warn("series cache entry corrupt", slog.String("key", key), slog.Any("err", err))
		return nil, false
	}
	return series, true
}
