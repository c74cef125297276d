package elasticsearch

import (
	"context"
	"fmt"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/models"
)

var (
	_ catalog.PlaceLookup       = (*Client)(nil)
	_ catalog.VariableSearcher  = (*Client)(nil)
	_ catalog.TopicSearcher     = (*Client)(nil)
	_ catalog.ObservationSource = (*Client)(nil)
)

// catalogOrder is the deterministic order places are returned in.
var catalogOrder = []map[string]any{
	{"rank": map[string]any{"order": "asc"}},
	{"dcid": map[string]any{"order": "asc"}},
}

// LookupPlaces finds places by exact normalized lookup key.
func (c *Client) LookupPlaces(ctx context.Context, normalizedName string, limit int) ([]models.Place, error) {
	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"lookup_keys": normalizedName}},
				},
			},
		},
		"sort": catalogOrder,
	}

	docs, err := search[models.PlaceDocument](ctx, c, "lookup places", c.indices.Places, body)
	if err != nil {
		return nil, err
	}
	return toPlaces(docs), nil
}

// ChildPlaces returns places that list parentDCID among their ancestors.
func (c *Client) ChildPlaces(ctx context.Context, parentDCID string, limit int) ([]models.Place, error) {
	body := map[string]any{
		"size": limit,
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"term": map[string]any{"parent_dcids": parentDCID}},
				},
			},
		},
		"sort": catalogOrder,
	}

	docs, err := search[models.PlaceDocument](ctx, c, "child places", c.indices.Places, body)
	if err != nil {
		return nil, err
	}
	return toPlaces(docs), nil
}

// PlacesByDCID fetches places by identifier; unknown identifiers are absent
// from the returned map.
func (c *Client) PlacesByDCID(ctx context.Context, dcids []string) (map[string]models.Place, error) {
	if len(dcids) == 0 {
		return map[string]models.Place{}, nil
	}
	body := map[string]any{
		"size": len(dcids),
		"query": map[string]any{
			"bool": map[string]any{
				"filter": []map[string]any{
					{"terms": map[string]any{"dcid": dcids}},
				},
			},
		},
	}

	docs, err := search[models.PlaceDocument](ctx, c, "places by dcid", c.indices.Places, body)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Place, len(docs))
	for _, d := range docs {
		out[d.DCID] = d.Place()
	}
	return out, nil
}

// SearchVariables executes a relevance query over the variable catalog.
func (c *Client) SearchVariables(ctx context.Context, q catalog.VariableQuery) ([]models.Variable, error) {
	filters := make([]map[string]any, 0, 2)
	if q.PlaceDCID != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"place_dcids": q.PlaceDCID},
		})
	}
	if !q.IncludeBilateral {
		filters = append(filters, map[string]any{
			"term": map[string]any{"bilateral": false},
		})
	}

	boolQuery := map[string]any{
		"must": []map[string]any{
			{
				"multi_match": map[string]any{
					"query":  q.Query,
					"fields": []string{"name^3", "keywords^2", "description", "topics"},
				},
			},
		},
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}

	body := map[string]any{
		"size":  q.Limit,
		"query": map[string]any{"bool": boolQuery},
		"sort": []any{
			"_score",
			map[string]any{"dcid": map[string]any{"order": "asc"}},
		},
	}

	docs, err := search[models.VariableDocument](ctx, c, "search variables", c.indices.Variables, body)
	if err != nil {
		return nil, err
	}

	out := make([]models.Variable, 0, len(docs))
	for _, d := range docs {
		v := models.Variable{
			DCID:        d.DCID,
			Name:        d.Name,
			Description: d.Description,
			Topics:      d.Topics,
			Bilateral:   d.Bilateral,
		}
		if q.PlaceDCID != "" {
			v.PlacesWithData = []string{q.PlaceDCID}
		}
		out = append(out, v)
	}
	return out, nil
}

// SearchTopics executes a relevance query over the topic catalog.
func (c *Client) SearchTopics(ctx context.Context, q catalog.TopicQuery) ([]models.Topic, error) {
	body := map[string]any{
		"size": q.Limit,
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":  q.Query,
				"fields": []string{"name^2", "description"},
			},
		},
		"sort": []any{
			"_score",
			map[string]any{"dcid": map[string]any{"order": "asc"}},
		},
	}

	docs, err := search[models.TopicDocument](ctx, c, "search topics", c.indices.Topics, body)
	if err != nil {
		return nil, err
	}

	out := make([]models.Topic, 0, len(docs))
	for _, d := range docs {
		out = append(out, models.Topic{
			DCID:            d.DCID,
			Name:            d.Name,
			Description:     d.Description,
			MemberVariables: d.MemberVariables,
		})
	}
	return out, nil
}

// Series returns every stored point of the variable at the place, ascending.
// The series is read in pages with search_after on (date, id), so it is
// never cut at the result window.
func (c *Client) Series(ctx context.Context, variableDCID, placeDCID string) ([]models.Observation, error) {
	query := map[string]any{
		"bool": map[string]any{
			"filter": []map[string]any{
				{"term": map[string]any{"variable_dcid": variableDCID}},
				{"term": map[string]any{"place_dcid": placeDCID}},
			},
		},
	}
	sort := []map[string]any{
		{"date": map[string]any{"order": "asc"}},
		{"id": map[string]any{"order": "asc"}},
	}

	var out []models.Observation
	var after []any
	for {
		body := map[string]any{
			"size":  seriesPageSize,
			"query": query,
			"sort":  sort,
		}
		if after != nil {
			body["search_after"] = after
		}

		page, err := searchHits[models.ObservationDocument](ctx, c, "series", c.indices.Observations, body)
		if err != nil {
			return nil, err
		}
		for _, h := range page {
			out = append(out, models.Observation{Date: h.Source.Date, Value: h.Source.Value})
		}
		if len(page) < seriesPageSize {
			break
		}

		after = page[len(page)-1].Sort
		if len(after) == 0 {
			return nil, catalog.Unavailable("series", fmt.Errorf("page of %d hits without sort values", len(page)))
		}
	}

	if out == nil {
		out = []models.Observation{}
	}
	return out, nil
}

func toPlaces(docs []models.PlaceDocument) []models.Place {
	out := make([]models.Place, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Place())
	}
	return out
}
