package elasticsearch_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/config"
	"github.com/DeafMist/stat-radar/backend/internal/elasticsearch"
	"github.com/DeafMist/stat-radar/backend/internal/logger"
	"github.com/DeafMist/stat-radar/backend/internal/models"
	"github.com/DeafMist/stat-radar/backend/internal/observations"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeES struct {
	mu       sync.Mutex
	requests []recordedRequest
	respond  func(n int, r recordedRequest) (int, any)
}

func (f *fakeES) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	rec := recordedRequest{Method: r.Method, Path: r.URL.Path}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &rec.Body)
	}

	f.mu.Lock()
	f.requests = append(f.requests, rec)
	n := len(f.requests)
	f.mu.Unlock()

	status, payload := f.respond(n, rec)
	w.Header().Set("X-Elastic-Product", "Elasticsearch")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (f *fakeES) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newClient(t *testing.T, fake *fakeES) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	common := config.Common{ElasticsearchAddr: srv.URL, ElasticsearchIndexPrefix: "statcat"}
	c, err := elasticsearch.New(srv.URL, common.Indices(), logger.Discard())
	require.NoError(t, err)
	return c
}

func hits(sources ...any) map[string]any {
	list := make([]map[string]any, 0, len(sources))
	for _, s := range sources {
		list = append(list, map[string]any{"_source": s})
	}
	return map[string]any{"hits": map[string]any{"hits": list}}
}

func TestLookupPlacesSendsTermFilter(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		return http.StatusOK, hits(
			models.PlaceDocument{DCID: "geoId/06", Name: "California", Type: "State", ParentDCIDs: []string{"country/USA"}},
			models.PlaceDocument{DCID: "geoId/06-alt", Name: "California", Type: "City"},
		)
	}}
	c := newClient(t, fake)

	places, err := c.LookupPlaces(context.Background(), "california usa", 3)
	require.NoError(t, err)
	require.Len(t, places, 2)
	require.Equal(t, "geoId/06", places[0].DCID)
	require.True(t, places[0].Within("country/USA"))

	req := fake.last()
	require.Equal(t, "/statcat-places/_search", req.Path)
	require.EqualValues(t, 3, req.Body["size"])

	filter := req.Body["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	term := filter[0].(map[string]any)["term"].(map[string]any)
	require.Equal(t, "california usa", term["lookup_keys"])
}

func TestSearchVariablesScopesPlaceAndBilateral(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		return http.StatusOK, hits(models.VariableDocument{DCID: "Count_Person", Name: "Total population"})
	}}
	c := newClient(t, fake)

	vars, err := c.SearchVariables(context.Background(), catalog.VariableQuery{
		Query:     "population",
		PlaceDCID: "country/USA",
		Limit:     5,
	})
	require.NoError(t, err)
	require.Equal(t, []models.Variable{{
		DCID:           "Count_Person",
		Name:           "Total population",
		PlacesWithData: []string{"country/USA"},
	}}, vars)

	req := fake.last()
	require.Equal(t, "/statcat-variables/_search", req.Path)
	filter := req.Body["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	require.Len(t, filter, 2)
	encoded, err := json.Marshal(filter)
	require.NoError(t, err)
	require.Contains(t, string(encoded), `"place_dcids":"country/USA"`)
	require.Contains(t, string(encoded), `"bilateral":false`)
}

func TestSearchVariablesBilateralDropsFilter(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		return http.StatusOK, hits()
	}}
	c := newClient(t, fake)

	_, err := c.SearchVariables(context.Background(), catalog.VariableQuery{
		Query:            "trade",
		Limit:            5,
		IncludeBilateral: true,
	})
	require.NoError(t, err)

	boolQuery := fake.last().Body["query"].(map[string]any)["bool"].(map[string]any)
	_, hasFilter := boolQuery["filter"]
	require.False(t, hasFilter)
}

func TestSeriesMissingIndexIsEmpty(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		return http.StatusNotFound, map[string]any{"error": map[string]any{"type": "index_not_found_exception"}}
	}}
	c := newClient(t, fake)

	series, err := c.Series(context.Background(), "Count_Person", "country/USA")
	require.NoError(t, err)
	require.Empty(t, series)
}

func TestSeriesDecodesPoints(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		return http.StatusOK, hits(
			models.ObservationDocument{Date: "2020", Value: 331},
			models.ObservationDocument{Date: "2021", Value: 332},
		)
	}}
	c := newClient(t, fake)

	series, err := c.Series(context.Background(), "Count_Person", "country/USA")
	require.NoError(t, err)
	require.Equal(t, []models.Observation{{Date: "2020", Value: 331}, {Date: "2021", Value: 332}}, series)
	require.Equal(t, "/statcat-observations/_search", fake.last().Path)
}

// pagedSeries answers series searches from docs, which must be sorted by
// (date, id). It honours size and a (date, id) search_after cursor.
func pagedSeries(docs []models.ObservationDocument) func(int, recordedRequest) (int, any) {
	return func(_ int, r recordedRequest) (int, any) {
		size := len(docs)
		if v, ok := r.Body["size"].(float64); ok {
			size = int(v)
		}

		start := 0
		if after, ok := r.Body["search_after"].([]any); ok && len(after) == 2 {
			date, _ := after[0].(string)
			id, _ := after[1].(string)
			start = sort.Search(len(docs), func(i int) bool {
				d := docs[i]
				return d.Date > date || (d.Date == date && d.ID > id)
			})
		}

		end := min(start+size, len(docs))
		list := make([]map[string]any, 0, end-start)
		for _, d := range docs[start:end] {
			list = append(list, map[string]any{"_source": d, "sort": []any{d.Date, d.ID}})
		}
		return http.StatusOK, map[string]any{"hits": map[string]any{"hits": list}}
	}
}

func TestSeriesPagesPastResultWindow(t *testing.T) {
	// twelve thousand daily points, more than the default index.max_result_window
	const n = 12000
	first := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	docs := make([]models.ObservationDocument, 0, n)
	for i := range n {
		docs = append(docs, models.ObservationDocument{
			ID:    fmt.Sprintf("obs-%05d", i),
			Date:  first.AddDate(0, 0, i).Format("2006-01-02"),
			Value: float64(i),
		})
	}
	fake := &fakeES{respond: pagedSeries(docs)}
	c := newClient(t, fake)

	series, err := c.Series(context.Background(), "Count_Person", "country/USA")
	require.NoError(t, err)
	require.Len(t, series, n)
	require.Equal(t, docs[0].Date, series[0].Date)
	require.Equal(t, docs[n-1].Date, series[n-1].Date)
	require.EqualValues(t, n-1, series[n-1].Value)
	for i := 1; i < len(series); i++ {
		require.Less(t, series[i-1].Date, series[i].Date)
	}

	// 12 full pages and an empty one
	require.Len(t, fake.requests, 13)
	for i, req := range fake.requests {
		size, ok := req.Body["size"].(float64)
		require.True(t, ok)
		require.LessOrEqual(t, size, float64(10000))
		_, hasCursor := req.Body["search_after"]
		require.Equal(t, i > 0, hasCursor)
	}
}

func TestSeriesLatestOverLongSeries(t *testing.T) {
	first := time.Date(1990, time.January, 1, 0, 0, 0, 0, time.UTC)
	docs := make([]models.ObservationDocument, 0, 10500)
	for i := range 10500 {
		docs = append(docs, models.ObservationDocument{
			ID:    fmt.Sprintf("obs-%05d", i),
			Date:  first.AddDate(0, 0, i).Format("2006-01-02"),
			Value: float64(i),
		})
	}
	c := newClient(t, &fakeES{respond: pagedSeries(docs)})

	latest, err := observations.ParsePolicy("latest", "", "")
	require.NoError(t, err)
	got := latest.Apply(mustSeries(t, c))
	require.Equal(t, []models.Observation{{Date: docs[len(docs)-1].Date, Value: 10499}}, got)
}

func mustSeries(t *testing.T, c *elasticsearch.Client) []models.Observation {
	t.Helper()
	series, err := c.Series(context.Background(), "Count_Person", "country/USA")
	require.NoError(t, err)
	return series
}

func TestSeriesFullPageWithoutSortValuesFails(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		sources := make([]any, 0, 1000)
		for i := range 1000 {
			sources = append(sources, models.ObservationDocument{Date: fmt.Sprintf("%04d", 1000+i)})
		}
		return http.StatusOK, hits(sources...)
	}}
	c := newClient(t, fake)

	_, err := c.Series(context.Background(), "Count_Person", "country/USA")
	require.ErrorIs(t, err, catalog.ErrBackendUnavailable)
	require.Len(t, fake.requests, 1)
}

func TestSearchFailureIsBackendUnavailable(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		return http.StatusInternalServerError, map[string]any{"error": "boom"}
	}}
	c := newClient(t, fake)

	_, err := c.SearchTopics(context.Background(), catalog.TopicQuery{Query: "health", Limit: 5})
	require.ErrorIs(t, err, catalog.ErrBackendUnavailable)
}

func TestPlacesByDCIDSkipsEmptyInput(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		t.Error("no request expected")
		return http.StatusInternalServerError, nil
	}}
	c := newClient(t, fake)

	got, err := c.PlacesByDCID(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestIndexObservationUsesDocumentID(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		return http.StatusCreated, map[string]any{"result": "created"}
	}}
	c := newClient(t, fake)

	err := c.IndexObservation(context.Background(), models.ObservationDocument{
		ID:           "abc123",
		VariableDCID: "Count_Person",
		PlaceDCID:    "country/USA",
		Date:         "2020",
		Value:        331,
	})
	require.NoError(t, err)

	req := fake.last()
	require.Equal(t, http.MethodPut, req.Method)
	require.Equal(t, "/statcat-observations/_doc/abc123", req.Path)
	require.Equal(t, "Count_Person", req.Body["variable_dcid"])
}

func TestDeleteStaleObservationsLoopsUntilShortBatch(t *testing.T) {
	fake := &fakeES{respond: func(n int, r recordedRequest) (int, any) {
		if !strings.HasSuffix(r.Path, "/_delete_by_query") {
			return http.StatusBadRequest, map[string]any{}
		}
		deleted := 2
		if n > 1 {
			deleted = 1
		}
		return http.StatusOK, map[string]any{"deleted": deleted}
	}}
	c := newClient(t, fake)
	cutoff := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

	total, err := c.DeleteStaleObservations(context.Background(), "Count_Person", cutoff, 2)
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, fake.requests, 2)
	require.Equal(t, fmt.Sprintf("/%s/_delete_by_query", "statcat-observations"), fake.requests[0].Path)

	filter := fake.requests[0].Body["query"].(map[string]any)["bool"].(map[string]any)["filter"].([]any)
	require.Len(t, filter, 2)
	lte := filter[0].(map[string]any)["range"].(map[string]any)["ingested_at"].(map[string]any)["lte"]
	require.Equal(t, "2024-03-01T00:00:00Z", lte)
	require.Equal(t, "Count_Person", filter[1].(map[string]any)["term"].(map[string]any)["variable_dcid"])
}

func TestDeleteStaleObservationsNamesVariableOnFailure(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		return http.StatusInternalServerError, map[string]any{"error": "boom"}
	}}
	c := newClient(t, fake)

	_, err := c.DeleteStaleObservations(context.Background(), "Count_Person", time.Now(), 10)
	require.ErrorContains(t, err, "prune Count_Person in statcat-observations")
}

func TestStaleVariablesReadsTermsAggregation(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		return http.StatusOK, map[string]any{
			"hits": map[string]any{"hits": []any{}},
			"aggregations": map[string]any{"variables": map[string]any{"buckets": []any{
				map[string]any{"key": "Count_Person", "doc_count": 40},
				map[string]any{"key": "Median_Age_Person", "doc_count": 3},
			}}},
		}
	}}
	c := newClient(t, fake)

	stale, err := c.StaleVariables(context.Background(), time.Now(), 25)
	require.NoError(t, err)
	require.Equal(t, []elasticsearch.StaleVariable{
		{DCID: "Count_Person", Count: 40},
		{DCID: "Median_Age_Person", Count: 3},
	}, stale)

	req := fake.last()
	require.Equal(t, "/statcat-observations/_search", req.Path)
	require.EqualValues(t, 0, req.Body["size"])
	terms := req.Body["aggs"].(map[string]any)["variables"].(map[string]any)["terms"].(map[string]any)
	require.Equal(t, "variable_dcid", terms["field"])
	require.EqualValues(t, 25, terms["size"])
}

func TestStaleVariablesMissingIndexIsEmpty(t *testing.T) {
	fake := &fakeES{respond: func(int, recordedRequest) (int, any) {
		return http.StatusNotFound, map[string]any{"error": map[string]any{"type": "index_not_found_exception"}}
	}}
	c := newClient(t, fake)

	stale, err := c.StaleVariables(context.Background(), time.Now(), 25)
	require.NoError(t, err)
	require.Empty(t, stale)
}
