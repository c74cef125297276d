package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/config"
	"github.com/DeafMist/stat-radar/backend/internal/dedupe"
	"github.com/DeafMist/stat-radar/backend/internal/logger"
	"github.com/DeafMist/stat-radar/backend/internal/metrics"
	"github.com/DeafMist/stat-radar/backend/internal/models"
	"github.com/DeafMist/stat-radar/backend/internal/processing"
)

type stubIndexer struct {
	places       []models.PlaceDocument
	variables    []models.VariableDocument
	topics       []models.TopicDocument
	observations []models.ObservationDocument
	err          error
}

func (s *stubIndexer) IndexPlace(_ context.Context, doc models.PlaceDocument) error {
	if s.err != nil {
		return s.err
	}
	s.places = append(s.places, doc)
	return nil
}

func (s *stubIndexer) IndexVariable(_ context.Context, doc models.VariableDocument) error {
	if s.err != nil {
		return s.err
	}
	s.variables = append(s.variables, doc)
	return nil
}

func (s *stubIndexer) IndexTopic(_ context.Context, doc models.TopicDocument) error {
	if s.err != nil {
		return s.err
	}
	s.topics = append(s.topics, doc)
	return nil
}

func (s *stubIndexer) IndexObservation(_ context.Context, doc models.ObservationDocument) error {
	if s.err != nil {
		return s.err
	}
	s.observations = append(s.observations, doc)
	return nil
}

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newProcessor(idx *stubIndexer, m *metrics.Metrics) *processor {
	return &processor{
		log:     logger.Discard(),
		indexer: idx,
		cache:   dedupe.NewCache(100, time.Hour),
		cfg:     &config.Worker{KeywordLimit: 5, KeywordMinLength: 3},
		metrics: m,
		now:     func() time.Time { return fixedNow },
	}
}

func message(t *testing.T, record map[string]any) kafka.Message {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	return kafka.Message{Value: data}
}

func TestProcessPlace(t *testing.T) {
	idx := &stubIndexer{}
	p := newProcessor(idx, nil)

	msg := message(t, map[string]any{
		"kind":         "place",
		"dcid":         "geoId/06",
		"name":         "California",
		"type":         "State",
		"parent_dcids": []string{"country/USA"},
		"parent_names": []string{"USA", "United States"},
		"aliases":      []string{"CA"},
		"timestamp":    "2024-01-02T15:04:05Z",
	})
	require.NoError(t, p.processMessage(context.Background(), msg))
	require.Len(t, idx.places, 1)

	doc := idx.places[0]
	require.Equal(t, "geoId/06", doc.DCID)
	require.Equal(t, []string{"country/USA"}, doc.ParentDCIDs)
	require.Equal(t, []string{"california", "ca", "california usa", "california united states"}, doc.LookupKeys)
	require.Equal(t, time.Date(2024, 1, 2, 15, 4, 5, 0, time.UTC), doc.IngestedAt)
}

func TestProcessSkipsUnchangedRecords(t *testing.T) {
	idx := &stubIndexer{}
	m := metrics.New(prometheus.NewRegistry())
	p := newProcessor(idx, m)

	record := map[string]any{"kind": "topic", "dcid": "dc/topic/Health", "name": "Health"}
	require.NoError(t, p.processMessage(context.Background(), message(t, record)))

	// a newer timestamp alone does not change the content
	record["timestamp"] = "2024-05-01T00:00:00Z"
	require.NoError(t, p.processMessage(context.Background(), message(t, record)))
	require.Len(t, idx.topics, 1)

	record["description"] = "Health outcomes"
	require.NoError(t, p.processMessage(context.Background(), message(t, record)))
	require.Len(t, idx.topics, 2)
	require.Equal(t, "Health outcomes", idx.topics[1].Description)

	require.Equal(t, 2.0, testutil.ToFloat64(m.IngestedRecords.WithLabelValues("topic", "indexed")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.IngestedRecords.WithLabelValues("topic", "skipped")))
}

func TestProcessVariableDerivesNameAndKeywords(t *testing.T) {
	idx := &stubIndexer{}
	p := newProcessor(idx, nil)

	msg := message(t, map[string]any{
		"kind":        "variable",
		"dcid":        "Count_Person_Female",
		"description": "Population count of females, by <b>state</b>",
		"place_dcids": []string{"geoId/06"},
	})
	require.NoError(t, p.processMessage(context.Background(), msg))
	require.Len(t, idx.variables, 1)

	doc := idx.variables[0]
	require.Equal(t, "Count Person Female", doc.Name)
	require.Contains(t, doc.Keywords, "population")
	require.NotContains(t, doc.Keywords, "of")
	require.Equal(t, fixedNow, doc.IngestedAt)
}

func TestProcessObservation(t *testing.T) {
	idx := &stubIndexer{}
	p := newProcessor(idx, nil)

	msg := message(t, map[string]any{
		"kind":          "observation",
		"variable_dcid": "Count_Person",
		"place_dcid":    "country/USA",
		"date":          "2020",
		"value":         331577720,
		"source":        "census",
	})
	require.NoError(t, p.processMessage(context.Background(), msg))
	require.Len(t, idx.observations, 1)

	doc := idx.observations[0]
	require.Equal(t, processing.BuildDocumentID("observation", "Count_Person", "country/USA", "2020"), doc.ID)
	require.Equal(t, 331577720.0, doc.Value)
	require.Equal(t, "census", doc.Source)
}

func TestProcessRejectsBadRecords(t *testing.T) {
	tests := map[string]map[string]any{
		"no kind":          {"dcid": "country/USA"},
		"unknown kind":     {"kind": "city", "dcid": "x"},
		"bad dcid":         {"kind": "place", "dcid": "not a dcid"},
		"bad parent":       {"kind": "place", "dcid": "geoId/06", "parent_dcids": []string{""}},
		"no value":         {"kind": "observation", "variable_dcid": "Count_Person", "place_dcid": "country/USA", "date": "2020"},
		"bad date":         {"kind": "observation", "variable_dcid": "Count_Person", "place_dcid": "country/USA", "date": "last year", "value": 1},
		"bad member":       {"kind": "topic", "dcid": "dc/topic/Health", "member_variables": []string{"a b"}},
		"bad variable ref": {"kind": "observation", "variable_dcid": "", "place_dcid": "country/USA", "date": "2020", "value": 1},
	}
	for name, record := range tests {
		t.Run(name, func(t *testing.T) {
			idx := &stubIndexer{}
			err := newProcessor(idx, nil).processMessage(context.Background(), message(t, record))
			require.Error(t, err)
		})
	}

	err := newProcessor(&stubIndexer{}, nil).processMessage(context.Background(), kafka.Message{Value: []byte("{")})
	require.Error(t, err)
}

func TestProcessInvalidDCIDIsInvalidArgument(t *testing.T) {
	err := newProcessor(&stubIndexer{}, nil).processMessage(context.Background(),
		message(t, map[string]any{"kind": "variable", "dcid": "<script>"}))
	require.ErrorIs(t, err, catalog.ErrInvalidArgument)
}

func TestProcessIndexFailureIsRetriedNextTime(t *testing.T) {
	idx := &stubIndexer{err: errors.New("es down")}
	p := newProcessor(idx, nil)
	msg := message(t, map[string]any{"kind": "place", "dcid": "country/CAN", "name": "Canada"})

	require.Error(t, p.processMessage(context.Background(), msg))

	idx.err = nil
	require.NoError(t, p.processMessage(context.Background(), msg))
	require.Len(t, idx.places, 1)
}

func TestDLQMessage(t *testing.T) {
	msg := kafka.Message{
		Topic:     "catalog_raw",
		Partition: 2,
		Offset:    41,
		Value:     []byte(`{"kind":"x"}`),
		Headers:   []kafka.Header{{Key: "producer", Value: []byte("importer")}},
	}

	out := dlqMessage(msg, errors.New("unknown record kind"), fixedNow)
	require.Equal(t, msg.Value, out.Value)
	require.NotEmpty(t, out.Key)

	headers := map[string]string{}
	for _, h := range out.Headers {
		headers[h.Key] = string(h.Value)
	}
	require.Equal(t, map[string]string{
		"producer":           "importer",
		"original_topic":     "catalog_raw",
		"original_partition": "2",
		"original_offset":    "41",
		"error":              "unknown record kind",
		"timestamp":          "2024-03-01T12:00:00Z",
	}, headers)

	msg.Key = []byte("geoId/06")
	require.Equal(t, []byte("geoId/06"), dlqMessage(msg, errors.New("x"), fixedNow).Key)
}

type stubWriter struct {
	err   error
	calls int
}

func (w *stubWriter) WriteMessages(context.Context, ...kafka.Message) error {
	w.calls++
	return w.err
}

func TestSendToDLQ(t *testing.T) {
	w := &stubWriter{}
	sent, ok := sendToDLQ(context.Background(), logger.Discard(), w, kafka.Message{})
	require.True(t, sent)
	require.True(t, ok)
	require.Equal(t, 1, w.calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w = &stubWriter{err: errors.New("broker down")}
	sent, ok = sendToDLQ(ctx, logger.Discard(), w, kafka.Message{})
	require.False(t, sent)
	require.False(t, ok)
	require.Equal(t, 1, w.calls)
}

func TestParseTimestamp(t *testing.T) {
	ts := parseTimestamp("2024-02-03T04:05:06Z")
	require.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), ts)

	legacy := parseTimestamp("2024-02-03 04:05:06")
	require.Equal(t, time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC), legacy)

	require.True(t, parseTimestamp("invalid").IsZero())
}
