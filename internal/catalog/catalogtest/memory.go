// Package catalogtest provides an in-memory catalog for tests.
package catalogtest

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/models"
	"github.com/DeafMist/stat-radar/backend/internal/processing"
)

// Place is a stored place with the extra names it can be looked up by.
type Place struct {
	models.Place
	Aliases []string
}

// Variable is a stored variable with the places it has data for.
type Variable struct {
	models.Variable
	PlaceDCIDs []string
}

// Memory implements every catalog port over slices kept in catalog order.
type Memory struct {
	Places    []Place
	Variables []Variable
	Topics    []models.Topic
	// SeriesData is keyed by SeriesKey(variable, place).
	SeriesData map[string][]models.Observation

	LookupErr   error
	SearchErr   error
	TopicErr    error
	SeriesErrs  map[string]error
	SeriesDelay func(ctx context.Context, placeDCID string) error

	mu              sync.Mutex
	VariableQueries []catalog.VariableQuery
	TopicQueries    []catalog.TopicQuery
}

var (
	_ catalog.PlaceLookup       = (*Memory)(nil)
	_ catalog.VariableSearcher  = (*Memory)(nil)
	_ catalog.TopicSearcher     = (*Memory)(nil)
	_ catalog.ObservationSource = (*Memory)(nil)
)

// SeriesKey builds the SeriesData map key.
func SeriesKey(variableDCID, placeDCID string) string {
	return variableDCID + "|" + placeDCID
}

func (m *Memory) LookupPlaces(_ context.Context, normalizedName string, limit int) ([]models.Place, error) {
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	var out []models.Place
	for _, p := range m.Places {
		keys := processing.PlaceLookupKeys(p.Name, p.Aliases, nil)
		if slices.Contains(keys, normalizedName) {
			out = append(out, p.Place)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) ChildPlaces(_ context.Context, parentDCID string, limit int) ([]models.Place, error) {
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	var out []models.Place
	for _, p := range m.Places {
		if p.Within(parentDCID) {
			out = append(out, p.Place)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) PlacesByDCID(_ context.Context, dcids []string) (map[string]models.Place, error) {
	if m.LookupErr != nil {
		return nil, m.LookupErr
	}
	out := make(map[string]models.Place, len(dcids))
	for _, p := range m.Places {
		if slices.Contains(dcids, p.DCID) {
			out[p.DCID] = p.Place
		}
	}
	return out, nil
}

func (m *Memory) SearchVariables(_ context.Context, q catalog.VariableQuery) ([]models.Variable, error) {
	m.mu.Lock()
	m.VariableQueries = append(m.VariableQueries, q)
	m.mu.Unlock()

	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	var out []models.Variable
	for _, v := range m.Variables {
		if q.PlaceDCID != "" && !slices.Contains(v.PlaceDCIDs, q.PlaceDCID) {
			continue
		}
		if !matches(q.Query, v.Name, v.Description) {
			continue
		}
		hit := v.Variable
		hit.PlacesWithData = nil
		if q.PlaceDCID != "" {
			hit.PlacesWithData = []string{q.PlaceDCID}
		}
		out = append(out, hit)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) SearchTopics(_ context.Context, q catalog.TopicQuery) ([]models.Topic, error) {
	m.mu.Lock()
	m.TopicQueries = append(m.TopicQueries, q)
	m.mu.Unlock()

	if m.TopicErr != nil {
		return nil, m.TopicErr
	}
	var out []models.Topic
	for _, t := range m.Topics {
		if matches(q.Query, t.Name, t.Description) {
			out = append(out, t)
		}
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	return out, nil
}

func (m *Memory) Series(ctx context.Context, variableDCID, placeDCID string) ([]models.Observation, error) {
	if m.SeriesDelay != nil {
		if err := m.SeriesDelay(ctx, placeDCID); err != nil {
			return nil, err
		}
	}
	if err := m.SeriesErrs[placeDCID]; err != nil {
		return nil, err
	}
	return slices.Clone(m.SeriesData[SeriesKey(variableDCID, placeDCID)]), nil
}

// matches reports whether any query word occurs in one of the fields.
func matches(query string, fields ...string) bool {
	haystack := strings.ToLower(strings.Join(fields, " "))
	for _, word := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(haystack, word) {
			return true
		}
	}
	return false
}
