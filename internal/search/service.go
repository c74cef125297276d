// Package search finds statistical variables and topics for a query scoped
// to a set of places.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/metrics"
	"github.com/DeafMist/stat-radar/backend/internal/models"
	"github.com/DeafMist/stat-radar/backend/internal/places"
)

const tracerName = "github.com/DeafMist/stat-radar/backend/internal/search"

// Request is an indicator search.
type Request struct {
	Query  string
	Places []string
	// ParentPlace scopes Places; with no Places its children are sampled.
	ParentPlace    string
	PerSearchLimit int
	IncludeTopics  bool
	MaybeBilateral bool
}

// Config bounds the service.
type Config struct {
	MaxLimit       int
	BackendTimeout time.Duration
}

// Service runs indicator searches. It holds no per-request state and is
// safe for concurrent use.
type Service struct {
	resolver  *places.Resolver
	variables catalog.VariableSearcher
	topics    catalog.TopicSearcher
	cfg       Config
	metrics   *metrics.Metrics
	log       *slog.Logger
}

// NewService wires a Service.
func NewService(resolver *places.Resolver, variables catalog.VariableSearcher, topics catalog.TopicSearcher, cfg Config, m *metrics.Metrics, log *slog.Logger) *Service {
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = 50
	}
	if cfg.BackendTimeout <= 0 {
		cfg.BackendTimeout = 5 * time.Second
	}
	return &Service{
		resolver:  resolver,
		variables: variables,
		topics:    topics,
		cfg:       cfg,
		metrics:   m,
		log:       log,
	}
}

// Search resolves the request's places and searches the catalog.
//
// Resolution failures, empty matches and backend outages are reported in
// the result's Status. The returned error is reserved for malformed
// requests (catalog.ErrInvalidArgument).
func (s *Service) Search(ctx context.Context, req Request) (*models.SearchResult, error) {
	start := time.Now()
	ctx, span := otel.Tracer(tracerName).Start(ctx, "search.Indicators")
	defer span.End()

	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, catalog.InvalidArgument("query is required")
	}
	if req.PerSearchLimit <= 0 {
		return nil, catalog.InvalidArgument("per_search_limit must be positive, got %d", req.PerSearchLimit)
	}
	limit := min(req.PerSearchLimit, s.cfg.MaxLimit)

	span.SetAttributes(
		attribute.String("search.query", query),
		attribute.Int("search.places", len(req.Places)),
		attribute.Int("search.limit", limit),
	)

	result := &models.SearchResult{
		Variables:        []models.Variable{},
		DCIDNameMappings: map[string]string{},
	}
	if req.IncludeTopics {
		result.Topics = models.Some([]models.Topic{})
	}

	scope, err := s.resolve(ctx, req, limit, result)
	if err != nil {
		if errors.Is(err, catalog.ErrInvalidArgument) {
			return nil, err
		}
		return s.finish(span, start, query, fail(result, fmt.Sprintf("resolve places: %v", err))), nil
	}
	if result.Status == models.StatusError {
		return s.finish(span, start, query, result), nil
	}

	perPlace, topics, err := s.searchCatalog(ctx, query, scope, limit, req)
	if err != nil {
		return s.finish(span, start, query, fail(result, fmt.Sprintf("search catalog: %v", err))), nil
	}

	result.Variables = mergeVariables(perPlace, req.MaybeBilateral)
	if req.IncludeTopics {
		result.Topics = models.Some(dedupeTopics(topics))
	}

	result.Status = models.StatusSuccess
	if len(result.Variables) == 0 {
		result.Status = models.StatusNoResults
	}
	return s.finish(span, start, query, result), nil
}

// resolve fills the place fields of result and returns the dcids to search.
// An empty, non-nil scope means an unscoped search. It sets StatusError on
// result when places were requested and none resolved.
func (s *Service) resolve(ctx context.Context, req Request, limit int, result *models.SearchResult) ([]string, error) {
	if len(req.Places) == 0 && strings.TrimSpace(req.ParentPlace) == "" {
		return []string{}, nil
	}

	rctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()

	res, err := s.resolver.Resolve(rctx, places.Request{
		Names:       req.Places,
		Parent:      req.ParentPlace,
		SampleLimit: limit,
	})
	if err != nil {
		return nil, err
	}

	result.UnresolvedPlaces = res.Unresolved
	if len(res.Ambiguous) > 0 {
		result.AmbiguousPlaces = res.Ambiguous
	}

	if res.ParentMissing() {
		fail(result, fmt.Sprintf("parent place %q could not be resolved", req.ParentPlace))
		return nil, nil
	}

	resolved := res.Places
	parent, hasParent := res.Parent.Get()
	if hasParent {
		result.ResolvedParentPlace = res.Parent
		if len(resolved) > limit {
			resolved = resolved[:limit]
		}
	}

	if len(resolved) == 0 {
		if hasParent && len(req.Places) == 0 {
			// a parent without catalogued children is searched on its own
			resolved = []models.Place{parent}
		} else {
			fail(result, "none of the requested places could be resolved")
			return nil, nil
		}
	}

	scope := make([]string, 0, len(resolved))
	for _, p := range resolved {
		result.DCIDNameMappings[p.DCID] = p.Name
		scope = append(scope, p.DCID)
	}
	return scope, nil
}

// searchCatalog issues one variable search per place and, when requested,
// the topic search, all concurrently. Results are indexed by place so the
// merge keeps place order.
func (s *Service) searchCatalog(ctx context.Context, query string, scope []string, limit int, req Request) ([][]models.Variable, []models.Topic, error) {
	sctx, cancel := context.WithTimeout(ctx, s.cfg.BackendTimeout)
	defer cancel()

	if len(scope) == 0 {
		scope = []string{""}
	}

	perPlace := make([][]models.Variable, len(scope))
	var topics []models.Topic

	g, gctx := errgroup.WithContext(sctx)
	for i, dcid := range scope {
		g.Go(func() error {
			vars, err := s.variables.SearchVariables(gctx, catalog.VariableQuery{
				Query:            query,
				PlaceDCID:        dcid,
				Limit:            limit,
				IncludeBilateral: req.MaybeBilateral,
			})
			if err != nil {
				return err
			}
			perPlace[i] = vars
			return nil
		})
	}
	if req.IncludeTopics {
		g.Go(func() error {
			found, err := s.topics.SearchTopics(gctx, catalog.TopicQuery{Query: query, Limit: limit})
			if err != nil {
				return err
			}
			topics = found
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return perPlace, topics, nil
}

func (s *Service) finish(span trace.Span, start time.Time, query string, result *models.SearchResult) *models.SearchResult {
	span.SetAttributes(
		attribute.String("search.status", string(result.Status)),
		attribute.Int("search.variables", len(result.Variables)),
	)
	if result.Status == models.StatusError {
		span.SetStatus(codes.Error, result.Message)
		s.log.Warn("indicator search failed",
			slog.String("query", query),
			slog.String("message", result.Message),
		)
	} else {
		s.log.Info("indicator search",
			slog.String("query", query),
			slog.String("status", string(result.Status)),
			slog.Int("variables", len(result.Variables)),
			slog.Int("places", len(result.DCIDNameMappings)),
		)
	}
	s.metrics.ObserveSearch(string(result.Status), start)
	return result
}

func fail(result *models.SearchResult, message string) *models.SearchResult {
	result.Status = models.StatusError
	result.Message = message
	return result
}
