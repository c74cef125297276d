package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/config"
	"github.com/DeafMist/stat-radar/backend/internal/observations"
	"github.com/DeafMist/stat-radar/backend/internal/search"
)

type healthChecker interface {
	Health(ctx context.Context) error
}

type server struct {
	log      *slog.Logger
	cfg      *config.API
	health   healthChecker
	search   *search.Service
	fetch    *observations.Fetcher
	gatherer prometheus.Gatherer
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	r.Get("/indicators/search", s.handleSearch)
	r.Get("/observations", s.handleObservations)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.health.Health(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := s.cfg.DefaultSearchLimit
	if raw := strings.TrimSpace(q.Get("per_search_limit")); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, r, catalog.InvalidArgument("per_search_limit %q is not an integer", raw))
			return
		}
		limit = v
	}
	includeTopics, err := parseBool(q, "include_topics")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	maybeBilateral, err := parseBool(q, "maybe_bilateral")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	result, err := s.search.Search(r.Context(), search.Request{
		Query:          q.Get("query"),
		Places:         nonEmpty(q["place"]),
		ParentPlace:    strings.TrimSpace(q.Get("parent_place")),
		PerSearchLimit: limit,
		IncludeTopics:  includeTopics,
		MaybeBilateral: maybeBilateral,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) handleObservations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	result, err := s.fetch.Fetch(r.Context(), observations.Request{
		VariableDCID:   strings.TrimSpace(q.Get("variable_dcid")),
		PlaceDCIDs:     nonEmpty(q["place_dcid"]),
		Date:           q.Get("date"),
		DateRangeStart: q.Get("date_range_start"),
		DateRangeEnd:   q.Get("date_range_end"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, catalog.ErrInvalidArgument):
		status = http.StatusBadRequest
	case errors.Is(err, catalog.ErrBackendUnavailable), catalog.IsTimeout(err):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.Any("err", err),
		)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// parseBool reads an optional boolean query parameter; absent means false.
func parseBool(q map[string][]string, name string) (bool, error) {
	values := q[name]
	if len(values) == 0 || strings.TrimSpace(values[0]) == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(values[0]))
	if err != nil {
		return false, catalog.InvalidArgument("%s %q is not a boolean", name, values[0])
	}
	return v, nil
}

// nonEmpty trims repeated parameter values and drops blanks. Values are
// not split on commas since place names such as "Georgia, USA" carry them.
func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, raw := range values {
		if trimmed := strings.TrimSpace(raw); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
