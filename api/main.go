package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/config"
	"github.com/DeafMist/stat-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/stat-radar/backend/internal/logger"
	"github.com/DeafMist/stat-radar/backend/internal/metrics"
	"github.com/DeafMist/stat-radar/backend/internal/observations"
	"github.com/DeafMist/stat-radar/backend/internal/places"
	"github.com/DeafMist/stat-radar/backend/internal/search"
	"github.com/DeafMist/stat-radar/backend/internal/seriescache"
)

func main() {
	log := logger.New("api")
	cfg, err := config.LoadAPI()
	if err != nil {
		log.Error("load config", slog.Any("err", err))
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	esClient, err := elasticsearch.New(cfg.ElasticsearchAddr, cfg.Indices(), log, elasticsearch.WithMetrics(m))
	if err != nil {
		log.Error("init elasticsearch", slog.Any("err", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var series catalog.ObservationSource = esClient
	redisClient, err := seriescache.Dial(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("init redis", slog.Any("err", err))
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
		series = seriescache.New(redisClient, esClient, cfg.SeriesCacheTTL, m, log)
		log.Info("series cache enabled", slog.Duration("ttl", cfg.SeriesCacheTTL))
	}

	srv := &server{
		log:    log,
		cfg:    cfg,
		health: esClient,
		search: search.NewService(
			places.NewResolver(esClient, log),
			esClient, esClient,
			search.Config{MaxLimit: cfg.MaxSearchLimit, BackendTimeout: cfg.BackendTimeout},
			m, log,
		),
		fetch: observations.NewFetcher(
			series, esClient,
			observations.Config{BackendTimeout: cfg.BackendTimeout},
			m, log,
		),
		gatherer: reg,
	}

	httpServer := &http.Server{
		Addr:              cfg.BindAddr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		log.Info("api server starting", slog.String("addr", cfg.BindAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server stopped", slog.Any("err", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown", slog.Any("err", err))
	}
}
