package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/DeafMist/stat-radar/backend/internal/config"
	"github.com/DeafMist/stat-radar/backend/internal/elasticsearch"
)

type observationStore interface {
	StaleVariables(ctx context.Context, cutoff time.Time, limit int) ([]elasticsearch.StaleVariable, error)
	DeleteStaleObservations(ctx context.Context, variableDCID string, cutoff time.Time, batchSize int) (int64, error)
}

// pruner drops observations whose import was not refreshed within MaxAge,
// one variable at a time.
type pruner struct {
	log   *slog.Logger
	store observationStore
	cfg   *config.Retention
	now   func() time.Time
}

type pruneReport struct {
	Variables int
	Failed    int
	Deleted   int64
}

func (p *pruner) run(ctx context.Context) pruneReport {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	index := p.cfg.Indices().Observations
	cutoff := p.now().Add(-p.cfg.MaxAge)
	log := p.log.With(slog.String("index", index), slog.Time("cutoff", cutoff))

	stale, err := p.store.StaleVariables(ctx, cutoff, p.cfg.MaxVariables)
	if err != nil {
		log.Warn("list stale variables failed (will retry on next interval)", slog.Any("err", err))
		return pruneReport{}
	}
	if len(stale) == 0 {
		log.Debug("no stale observations found")
		return pruneReport{}
	}

	var report pruneReport
	for _, v := range stale {
		if ctx.Err() != nil {
			log.Warn("retention run interrupted", slog.Int("remaining", len(stale)-report.Variables-report.Failed))
			break
		}

		deleted, err := p.store.DeleteStaleObservations(ctx, v.DCID, cutoff, p.cfg.BatchSize)
		report.Deleted += deleted
		if err != nil {
			report.Failed++
			log.Warn("prune variable failed",
				slog.String("variable", v.DCID),
				slog.Int64("deleted", deleted),
				slog.Any("err", err),
			)
			continue
		}
		report.Variables++
		log.Info("pruned variable",
			slog.String("variable", v.DCID),
			slog.Int64("stale", v.Count),
			slog.Int64("deleted", deleted),
		)
	}

	if len(stale) == p.cfg.MaxVariables {
		log.Info("more stale variables may remain", slog.Int("limit", p.cfg.MaxVariables))
	}
	log.Info("retention run completed",
		slog.Int("variables", report.Variables),
		slog.Int("failed", report.Failed),
		slog.Int64("deleted", report.Deleted),
	)
	return report
}
