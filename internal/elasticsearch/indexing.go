package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/stat-radar/backend/internal/models"
	"github.com/DeafMist/stat-radar/backend/internal/processing"
)

var (
	keyword = map[string]any{"type": "keyword"}
	text    = map[string]any{"type": "text"}
	date    = map[string]any{"type": "date"}
)

func (c *Client) mappings() map[string]map[string]any {
	return map[string]map[string]any{
		c.indices.Places: {
			"dcid":         keyword,
			"name":         text,
			"type":         keyword,
			"parent_dcids": keyword,
			"lookup_keys":  keyword,
			"rank":         map[string]any{"type": "integer"},
			"ingested_at":  date,
		},
		c.indices.Variables: {
			"dcid":        keyword,
			"name":        text,
			"description": text,
			"topics":      keyword,
			"keywords":    text,
			"bilateral":   map[string]any{"type": "boolean"},
			"place_dcids": keyword,
			"ingested_at": date,
		},
		c.indices.Topics: {
			"dcid":             keyword,
			"name":             text,
			"description":      text,
			"member_variables": keyword,
			"ingested_at":      date,
		},
		c.indices.Observations: {
			"id":            keyword,
			"variable_dcid": keyword,
			"place_dcid":    keyword,
			"date":          keyword,
			"value":         map[string]any{"type": "double"},
			"source":        keyword,
			"ingested_at":   date,
		},
	}
}

// EnsureIndices creates the catalog indices that do not exist yet.
func (c *Client) EnsureIndices(ctx context.Context) error {
	for index, props := range c.mappings() {
		res, err := c.es.Indices.Exists([]string{index}, c.es.Indices.Exists.WithContext(ctx))
		if err != nil {
			return fmt.Errorf("check index %s: %w", index, err)
		}
		res.Body.Close()
		if res.StatusCode == http.StatusOK {
			continue
		}

		payload, err := json.Marshal(map[string]any{
			"mappings": map[string]any{"properties": props},
		})
		if err != nil {
			return fmt.Errorf("marshal mapping %s: %w", index, err)
		}

		res, err = c.es.Indices.Create(index,
			c.es.Indices.Create.WithContext(ctx),
			c.es.Indices.Create.WithBody(bytes.NewReader(payload)),
		)
		if err != nil {
			return fmt.Errorf("create index %s: %w", index, err)
		}
		if res.IsError() {
			data, _ := io.ReadAll(res.Body)
			res.Body.Close()
			// another worker may have won the race
			if strings.Contains(string(data), "resource_already_exists_exception") {
				continue
			}
			return fmt.Errorf("create index %s failed: %s", index, strings.TrimSpace(string(data)))
		}
		res.Body.Close()
		c.log.Info("created index", "index", index)
	}
	return nil
}

// IndexPlace writes a place document.
func (c *Client) IndexPlace(ctx context.Context, doc models.PlaceDocument) error {
	return c.index(ctx, c.indices.Places, processing.BuildDocumentID(string(models.KindPlace), doc.DCID), doc)
}

// IndexVariable writes a variable document.
func (c *Client) IndexVariable(ctx context.Context, doc models.VariableDocument) error {
	return c.index(ctx, c.indices.Variables, processing.BuildDocumentID(string(models.KindVariable), doc.DCID), doc)
}

// IndexTopic writes a topic document.
func (c *Client) IndexTopic(ctx context.Context, doc models.TopicDocument) error {
	return c.index(ctx, c.indices.Topics, processing.BuildDocumentID(string(models.KindTopic), doc.DCID), doc)
}

// IndexObservation writes one data point under its precomputed ID.
func (c *Client) IndexObservation(ctx context.Context, doc models.ObservationDocument) error {
	return c.index(ctx, c.indices.Observations, doc.ID, doc)
}

func (c *Client) index(ctx context.Context, index, id string, doc any) error {
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal doc: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      index,
		DocumentID: id,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index doc: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index doc failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// StaleVariable is a variable with observations ingested before a cutoff.
type StaleVariable struct {
	DCID  string
	Count int64
}

// StaleVariables lists up to limit variables that still hold observations
// ingested at or before cutoff, with how many such points each one holds.
func (c *Client) StaleVariables(ctx context.Context, cutoff time.Time, limit int) ([]StaleVariable, error) {
	start := time.Now()
	defer c.metrics.ObserveBackendCall("stale variables", start)

	body := map[string]any{
		"size":  0,
		"query": ingestedBefore(cutoff),
		"aggs": map[string]any{
			"variables": map[string]any{
				"terms": map[string]any{
					"field": "variable_dcid",
					"size":  limit,
					"order": map[string]any{"_key": "asc"},
				},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal stale variables body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.indices.Observations),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("stale variables: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("stale variables failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Aggregations struct {
			Variables struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"variables"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode stale variables: %w", err)
	}

	out := make([]StaleVariable, 0, len(parsed.Aggregations.Variables.Buckets))
	for _, b := range parsed.Aggregations.Variables.Buckets {
		out = append(out, StaleVariable{DCID: b.Key, Count: b.DocCount})
	}
	return out, nil
}

// DeleteStaleObservations removes the observations of one variable that
// were ingested at or before cutoff. Deletion runs in delete-by-query
// batches of batchSize until a batch comes back short.
func (c *Client) DeleteStaleObservations(ctx context.Context, variableDCID string, cutoff time.Time, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	query := ingestedBefore(cutoff, map[string]any{"term": map[string]any{"variable_dcid": variableDCID}})
	payload, err := json.Marshal(map[string]any{"query": query})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	var total int64
	for {
		deleted, err := c.deleteBatch(ctx, payload, batchSize)
		total += deleted
		if err != nil {
			return total, fmt.Errorf("prune %s in %s: %w", variableDCID, c.indices.Observations, err)
		}
		if deleted < int64(batchSize) {
			return total, nil
		}
	}
}

func (c *Client) deleteBatch(ctx context.Context, payload []byte, batchSize int) (int64, error) {
	start := time.Now()
	defer c.metrics.ObserveBackendCall("delete stale", start)

	res, err := c.es.DeleteByQuery(
		[]string{c.indices.Observations},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithScrollSize(batchSize),
		c.es.DeleteByQuery.WithMaxDocs(batchSize),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}

// ingestedBefore matches documents ingested at or before cutoff that also
// satisfy every extra filter.
func ingestedBefore(cutoff time.Time, extra ...map[string]any) map[string]any {
	filter := []map[string]any{{"range": map[string]any{
		"ingested_at": map[string]any{"lte": cutoff.UTC().Format(time.RFC3339)},
	}}}
	return map[string]any{"bool": map[string]any{"filter": append(filter, extra...)}}
}
