package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DeafMist/stat-radar/backend/internal/config"
	"github.com/DeafMist/stat-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/stat-radar/backend/internal/logger"
)

func main() {
	log := logger.New("retention")
	cfg, err := config.LoadRetention()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.Indices(), log)
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := waitForCluster(ctx, log, esClient, defaultBackoff); err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("shutdown signal received during startup")
			return
		}
		log.Error("elasticsearch unreachable", slog.Any("err", err))
		os.Exit(1)
	}

	p := &pruner{log: log, store: esClient, cfg: cfg, now: time.Now}

	log.Info("retention job running",
		slog.String("index", cfg.Indices().Observations),
		slog.Duration("interval", cfg.Interval),
		slog.Duration("max_age", cfg.MaxAge),
		slog.Int("max_variables", cfg.MaxVariables),
	)

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	p.run(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("shutdown signal received")
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

type healthChecker interface {
	Health(ctx context.Context) error
}

type backoff struct {
	Attempts int
	Initial  time.Duration
	Max      time.Duration
}

var defaultBackoff = backoff{Attempts: 10, Initial: 2 * time.Second, Max: 30 * time.Second}

// waitForCluster polls cluster health until it answers, doubling the delay
// between attempts up to b.Max.
func waitForCluster(ctx context.Context, log *slog.Logger, es healthChecker, b backoff) error {
	delay := b.Initial
	err := errors.New("no health check attempts configured")
	for attempt := 1; attempt <= b.Attempts; attempt++ {
		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = es.Health(checkCtx)
		cancel()
		if err == nil {
			log.Info("connected to elasticsearch", slog.Int("attempt", attempt))
			return nil
		}
		if attempt == b.Attempts {
			break
		}

		log.Warn("elasticsearch not ready, retrying",
			slog.Any("err", err),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", delay),
		)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, b.Max)
	}
	return err
}
