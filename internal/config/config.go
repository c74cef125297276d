package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr        string
	ElasticsearchIndexPrefix string
}

// Indices names the catalog indices derived from the prefix.
type Indices struct {
	Places       string
	Variables    string
	Topics       string
	Observations string
}

// Indices returns the index names for the configured prefix.
func (c Common) Indices() Indices {
	p := c.ElasticsearchIndexPrefix
	return Indices{
		Places:       p + "-places",
		Variables:    p + "-variables",
		Topics:       p + "-topics",
		Observations: p + "-observations",
	}
}

// Worker holds configuration for the Kafka -> Elasticsearch catalog worker.
type Worker struct {
	Common
	KafkaBrokers     []string
	KafkaTopic       string
	KafkaConsumer    string
	KeywordLimit     int
	KeywordMinLength int
	DedupeCapacity   int
	DedupeTTL        time.Duration
	BatchSize        int
	MetricsAddr      string
}

// API describes HTTP-layer and query service configuration.
type API struct {
	Common
	BindAddr           string
	DefaultSearchLimit int
	MaxSearchLimit     int
	BackendTimeout     time.Duration
	RedisURL           string
	SeriesCacheTTL     time.Duration
}

// Retention configures the observation cleanup loop.
type Retention struct {
	Common
	Interval     time.Duration
	MaxAge       time.Duration
	BatchSize    int
	MaxVariables int
}

func loadCommon() Common {
	return Common{
		ElasticsearchAddr:        getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
		ElasticsearchIndexPrefix: getEnv("ELASTICSEARCH_INDEX_PREFIX", "statcat"),
	}
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	c := &Worker{
		Common:           loadCommon(),
		KafkaBrokers:     splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:       getEnv("KAFKA_TOPIC", "catalog_raw"),
		KafkaConsumer:    getEnv("KAFKA_CONSUMER_GROUP", "catalog-worker"),
		KeywordLimit:     getInt("WORKER_KEYWORD_LIMIT", 12),
		KeywordMinLength: getInt("WORKER_KEYWORD_MIN_LEN", 3),
		DedupeCapacity:   getInt("WORKER_DEDUPE_CAPACITY", 50000),
		DedupeTTL:        getDuration("WORKER_DEDUPE_TTL", "1h"),
		BatchSize:        getInt("WORKER_BATCH_SIZE", 100),
		MetricsAddr:      getEnv("WORKER_METRICS_ADDR", "0.0.0.0:9091"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.KeywordLimit <= 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_LIMIT must be positive")
	}
	if c.KeywordMinLength < 0 {
		return nil, fmt.Errorf("WORKER_KEYWORD_MIN_LEN cannot be negative")
	}

	return c, nil
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	c := &API{
		Common:             loadCommon(),
		BindAddr:           getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		DefaultSearchLimit: getInt("API_DEFAULT_SEARCH_LIMIT", 5),
		MaxSearchLimit:     getInt("API_MAX_SEARCH_LIMIT", 50),
		BackendTimeout:     getDuration("BACKEND_TIMEOUT", "5s"),
		RedisURL:           getEnv("REDIS_URL", ""),
		SeriesCacheTTL:     getDuration("SERIES_CACHE_TTL", "10m"),
	}

	if c.DefaultSearchLimit <= 0 {
		return nil, fmt.Errorf("API_DEFAULT_SEARCH_LIMIT must be positive")
	}
	if c.MaxSearchLimit <= 0 {
		return nil, fmt.Errorf("API_MAX_SEARCH_LIMIT must be positive")
	}
	if c.DefaultSearchLimit > c.MaxSearchLimit {
		return nil, fmt.Errorf("API_DEFAULT_SEARCH_LIMIT cannot exceed API_MAX_SEARCH_LIMIT")
	}
	if c.BackendTimeout <= 0 {
		return nil, fmt.Errorf("BACKEND_TIMEOUT must be positive")
	}
	if c.SeriesCacheTTL <= 0 {
		return nil, fmt.Errorf("SERIES_CACHE_TTL must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common:       loadCommon(),
		Interval:     getDuration("RETENTION_CRON", "24h"),
		MaxAge:       getDuration("RETENTION_MAX_AGE", "2160h"),
		BatchSize:    getInt("RETENTION_BATCH_SIZE", 1000),
		MaxVariables: getInt("RETENTION_MAX_VARIABLES", 500),
	}

	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.Interval <= 0 {
		return nil, fmt.Errorf("RETENTION_CRON must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}
	if c.MaxVariables <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_VARIABLES must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
