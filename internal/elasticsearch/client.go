package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/config"
	"github.com/DeafMist/stat-radar/backend/internal/metrics"
)

// seriesPageSize is the number of points read per search_after page.
const seriesPageSize = 1000

// Client wraps go-elasticsearch with the catalog queries and indexing
// helpers of this project.
type Client struct {
	es      *elasticsearch.Client
	indices config.Indices
	log     *slog.Logger
	metrics *metrics.Metrics
}

// Option customises a Client.
type Option func(*Client)

// WithMetrics records backend call durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New instantiates the Elasticsearch client.
func New(addr string, indices config.Indices, logger *slog.Logger, opts ...Option) (*Client, error) {
	cfg := elasticsearch.Config{
		Addresses: []string{addr},
	}

	es, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	c := &Client{es: es, indices: indices, log: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Health asks the cluster for its health to ensure connectivity.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return catalog.Unavailable("cluster health", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return catalog.Unavailable("cluster health", fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(data))))
	}
	return nil
}

type hit[T any] struct {
	Source T     `json:"_source"`
	Sort   []any `json:"sort"`
}

type hitsResponse[T any] struct {
	Hits struct {
		Hits []hit[T] `json:"hits"`
	} `json:"hits"`
}

// search runs body against index and decodes every hit's _source as T.
func search[T any](ctx context.Context, c *Client, op, index string, body map[string]any) ([]T, error) {
	hits, err := searchHits[T](ctx, c, op, index, body)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.Source)
	}
	return out, nil
}

// searchHits is search keeping each hit's sort values for search_after
// paging. A missing index yields no hits.
func searchHits[T any](ctx context.Context, c *Client, op, index string, body map[string]any) ([]hit[T], error) {
	start := time.Now()
	defer c.metrics.ObserveBackendCall(op, start)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal %s body: %w", op, err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, catalog.Unavailable(op, err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		// index not created yet: nothing ingested
		c.log.Debug("search on missing index", slog.String("index", index), slog.String("op", op))
		return nil, nil
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, catalog.Unavailable(op, fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(data))))
	}

	var parsed hitsResponse[T]
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, catalog.Unavailable(op, fmt.Errorf("decode response: %w", err))
	}
	return parsed.Hits.Hits, nil
}
