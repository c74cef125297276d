// Package observations fetches time series and applies date policies.
package observations

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/metrics"
	"github.com/DeafMist/stat-radar/backend/internal/models"
)

const tracerName = "github.com/DeafMist/stat-radar/backend/internal/observations"

// Request selects a variable's series for one or more places.
type Request struct {
	VariableDCID   string
	PlaceDCIDs     []string
	Date           string
	DateRangeStart string
	DateRangeEnd   string
}

// Config bounds the fetcher.
type Config struct {
	BackendTimeout time.Duration
}

// Fetcher retrieves observations. It is safe for concurrent use.
type Fetcher struct {
	series  catalog.ObservationSource
	places  catalog.PlaceLookup
	cfg     Config
	metrics *metrics.Metrics
	log     *slog.Logger
}

// NewFetcher wires a Fetcher.
func NewFetcher(series catalog.ObservationSource, places catalog.PlaceLookup, cfg Config, m *metrics.Metrics, log *slog.Logger) *Fetcher {
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = 5 * time.Second
	}
	return &Fetcher{series: series, places: places, cfg: cfg, metrics: m, log: log}
}

// Fetch returns one entry per requested place, in request order, each
// filtered by the request's date policy. When none of the places has any
// data the result has no entries. A place whose backend call times out is
// answered with an empty series; other backend failures abort the call.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (*models.ObservationResult, error) {
	start := time.Now()
	defer f.metrics.ObserveFetch(start)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "observations.Fetch")
	defer span.End()

	placeDCIDs, err := validate(req)
	if err != nil {
		return nil, err
	}
	policy, err := ParsePolicy(req.Date, req.DateRangeStart, req.DateRangeEnd)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("observations.variable", req.VariableDCID),
		attribute.StringSlice("observations.places", placeDCIDs),
	)

	raw := make([][]models.Observation, len(placeDCIDs))
	var names map[string]models.Place

	g, gctx := errgroup.WithContext(ctx)
	for i, dcid := range placeDCIDs {
		g.Go(func() error {
			series, err := f.fetchSeries(gctx, req.VariableDCID, dcid)
			if err != nil {
				return err
			}
			raw[i] = series
			return nil
		})
	}
	g.Go(func() error {
		names = f.lookupNames(gctx, placeDCIDs)
		return nil
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	result := &models.ObservationResult{
		VariableDCID:      req.VariableDCID,
		PlaceObservations: []models.PlaceObservations{},
	}

	anyData := false
	for _, series := range raw {
		if len(series) > 0 {
			anyData = true
			break
		}
	}
	if !anyData {
		f.log.Info("no observations",
			slog.String("variable", req.VariableDCID),
			slog.Any("places", placeDCIDs),
		)
		return result, nil
	}

	for i, dcid := range placeDCIDs {
		place, ok := names[dcid]
		if !ok {
			place = models.Place{DCID: dcid, Name: dcid}
		}
		filtered := policy.Apply(raw[i])
		if len(filtered) == 0 {
			f.metrics.IncrementEmptySeries()
		}
		result.PlaceObservations = append(result.PlaceObservations, models.PlaceObservations{
			Place:      place,
			TimeSeries: filtered,
		})
	}

	f.log.Debug("fetched observations",
		slog.String("variable", req.VariableDCID),
		slog.Int("places", len(placeDCIDs)),
	)
	return result, nil
}

func (f *Fetcher) fetchSeries(ctx context.Context, variableDCID, placeDCID string) ([]models.Observation, error) {
	cctx, cancel := context.WithTimeout(ctx, f.cfg.BackendTimeout)
	defer cancel()

	series, err := f.series.Series(cctx, variableDCID, placeDCID)
	if err == nil {
		return series, nil
	}
	// only the per-call deadline degrades to an empty series; a cancelled
	// request or a sibling failure still aborts
	if catalog.IsTimeout(err) && ctx.Err() == nil {
		f.log.Warn("series fetch timed out",
			slog.String("variable", variableDCID),
			slog.String("place", placeDCID),
			slog.Duration("timeout", f.cfg.BackendTimeout),
		)
		return nil, nil
	}
	return nil, err
}

// lookupNames is best effort: display names never fail a fetch.
func (f *Fetcher) lookupNames(ctx context.Context, dcids []string) map[string]models.Place {
	cctx, cancel := context.WithTimeout(ctx, f.cfg.BackendTimeout)
	defer cancel()

	names, err := f.places.PlacesByDCID(cctx, dcids)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			f.log.Warn("place name lookup failed", slog.Any("err", err))
		}
		return nil
	}
	return names
}

func validate(req Request) ([]string, error) {
	if err := catalog.ValidateDCID("variable_dcid", req.VariableDCID); err != nil {
		return nil, err
	}
	if len(req.PlaceDCIDs) == 0 {
		return nil, catalog.InvalidArgument("place_dcid is required")
	}

	out := make([]string, 0, len(req.PlaceDCIDs))
	seen := make(map[string]struct{}, len(req.PlaceDCIDs))
	for _, dcid := range req.PlaceDCIDs {
		if err := catalog.ValidateDCID("place_dcid", dcid); err != nil {
			return nil, err
		}
		if _, dup := seen[dcid]; dup {
			continue
		}
		seen[dcid] = struct{}{}
		out = append(out, dcid)
	}
	return out, nil
}
