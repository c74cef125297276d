// Package catalog describes the statistical backend the query services
// depend on. Implementations live in internal/elasticsearch; tests use stubs.
package catalog

import (
	"context"

	"github.com/DeafMist/stat-radar/backend/internal/models"
)

// PlaceLookup resolves place names and identifiers.
type PlaceLookup interface {
	// LookupPlaces returns places whose lookup key equals the normalized
	// name, in catalog order.
	LookupPlaces(ctx context.Context, normalizedName string, limit int) ([]models.Place, error)
	// ChildPlaces returns up to limit places contained in parentDCID.
	ChildPlaces(ctx context.Context, parentDCID string, limit int) ([]models.Place, error)
	PlacesByDCID(ctx context.Context, dcids []string) (map[string]models.Place, error)
}

// VariableQuery scopes a variable search.
type VariableQuery struct {
	Query string
	// PlaceDCID is empty for an unscoped search.
	PlaceDCID        string
	Limit            int
	IncludeBilateral bool
}

// VariableSearcher searches statistical variables.
type VariableSearcher interface {
	SearchVariables(ctx context.Context, q VariableQuery) ([]models.Variable, error)
}

// TopicQuery scopes a topic search.
type TopicQuery struct {
	Query string
	Limit int
}

// TopicSearcher searches topics.
type TopicSearcher interface {
	SearchTopics(ctx context.Context, q TopicQuery) ([]models.Topic, error)
}

// ObservationSource returns the full stored series of a variable at a place,
// ascending by date. An empty series is not an error.
type ObservationSource interface {
	Series(ctx context.Context, variableDCID, placeDCID string) ([]models.Observation, error)
}
