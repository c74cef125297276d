package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/DeafMist/stat-radar/backend/internal/catalog"
	"github.com/DeafMist/stat-radar/backend/internal/config"
	"github.com/DeafMist/stat-radar/backend/internal/dedupe"
	"github.com/DeafMist/stat-radar/backend/internal/metrics"
	"github.com/DeafMist/stat-radar/backend/internal/models"
	"github.com/DeafMist/stat-radar/backend/internal/observations"
	"github.com/DeafMist/stat-radar/backend/internal/processing"
)

// rawRecord is the union of all catalog record kinds on the topic.
type rawRecord struct {
	Kind      models.RecordKind `json:"kind"`
	DCID      string            `json:"dcid"`
	Name      string            `json:"name"`
	Timestamp string            `json:"timestamp"`

	// place
	Type        string   `json:"type"`
	ParentDCIDs []string `json:"parent_dcids"`
	ParentNames []string `json:"parent_names"`
	Aliases     []string `json:"aliases"`
	Rank        int      `json:"rank"`

	// variable, topic
	Description     string   `json:"description"`
	Topics          []string `json:"topics"`
	Bilateral       bool     `json:"bilateral"`
	PlaceDCIDs      []string `json:"place_dcids"`
	MemberVariables []string `json:"member_variables"`

	// observation
	VariableDCID string   `json:"variable_dcid"`
	PlaceDCID    string   `json:"place_dcid"`
	Date         string   `json:"date"`
	Value        *float64 `json:"value"`
	Source       string   `json:"source"`
}

type catalogIndexer interface {
	IndexPlace(ctx context.Context, doc models.PlaceDocument) error
	IndexVariable(ctx context.Context, doc models.VariableDocument) error
	IndexTopic(ctx context.Context, doc models.TopicDocument) error
	IndexObservation(ctx context.Context, doc models.ObservationDocument) error
}

type processor struct {
	log     *slog.Logger
	indexer catalogIndexer
	cache   *dedupe.Cache
	cfg     *config.Worker
	metrics *metrics.Metrics
	now     func() time.Time
}

// prepared is a validated record ready for indexing.
type prepared struct {
	kind  models.RecordKind
	id    string
	doc   any
	index func(ctx context.Context) error
}

func (p *processor) processMessage(ctx context.Context, msg kafka.Message) error {
	var payload rawRecord
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		p.metrics.IncrementIngested("unknown", "failed")
		return fmt.Errorf("decode record: %w", err)
	}

	rec, err := p.prepare(payload)
	if err != nil {
		p.metrics.IncrementIngested(kindLabel(payload.Kind), "failed")
		return err
	}

	// ingested_at is stamped after fingerprinting so re-sent records match
	sum, err := fingerprint(rec.doc)
	if err != nil {
		return err
	}
	if p.cache.Unchanged(rec.id, sum) {
		p.metrics.IncrementIngested(string(rec.kind), "skipped")
		p.log.Debug("unchanged record", slog.String("kind", string(rec.kind)), slog.String("id", rec.id))
		return nil
	}

	if err := rec.index(ctx); err != nil {
		p.metrics.IncrementIngested(string(rec.kind), "failed")
		return err
	}

	p.cache.Remember(rec.id, sum)
	p.metrics.IncrementIngested(string(rec.kind), "indexed")
	p.log.Info("indexed record", slog.String("kind", string(rec.kind)), slog.String("id", rec.id))
	return nil
}

func (p *processor) prepare(r rawRecord) (prepared, error) {
	ingestedAt := parseTimestamp(r.Timestamp)
	if ingestedAt.IsZero() {
		ingestedAt = p.now().UTC()
	}

	switch models.RecordKind(strings.ToLower(string(r.Kind))) {
	case models.KindPlace:
		return p.preparePlace(r, ingestedAt)
	case models.KindVariable:
		return p.prepareVariable(r, ingestedAt)
	case models.KindTopic:
		return p.prepareTopic(r, ingestedAt)
	case models.KindObservation:
		return p.prepareObservation(r, ingestedAt)
	case "":
		return prepared{}, errors.New("record kind is required")
	default:
		return prepared{}, fmt.Errorf("unknown record kind %q", r.Kind)
	}
}

func (p *processor) preparePlace(r rawRecord, ingestedAt time.Time) (prepared, error) {
	dcid := strings.TrimSpace(r.DCID)
	if err := catalog.ValidateDCID("dcid", dcid); err != nil {
		return prepared{}, err
	}
	if err := validateDCIDs("parent_dcids", r.ParentDCIDs); err != nil {
		return prepared{}, err
	}

	name := displayName(r.Name, dcid)
	doc := models.PlaceDocument{
		DCID:        dcid,
		Name:        name,
		Type:        strings.TrimSpace(r.Type),
		ParentDCIDs: r.ParentDCIDs,
		LookupKeys:  processing.PlaceLookupKeys(name, r.Aliases, r.ParentNames),
		Rank:        r.Rank,
	}
	return prepared{
		kind: models.KindPlace,
		id:   processing.BuildDocumentID(string(models.KindPlace), dcid),
		doc:  doc,
		index: func(ctx context.Context) error {
			doc.IngestedAt = ingestedAt
			return p.indexer.IndexPlace(ctx, doc)
		},
	}, nil
}

func (p *processor) prepareVariable(r rawRecord, ingestedAt time.Time) (prepared, error) {
	dcid := strings.TrimSpace(r.DCID)
	if err := catalog.ValidateDCID("dcid", dcid); err != nil {
		return prepared{}, err
	}
	if err := validateDCIDs("place_dcids", r.PlaceDCIDs); err != nil {
		return prepared{}, err
	}
	if err := validateDCIDs("topics", r.Topics); err != nil {
		return prepared{}, err
	}

	name := displayName(r.Name, dcid)
	description := processing.CleanText(r.Description)
	doc := models.VariableDocument{
		DCID:        dcid,
		Name:        name,
		Description: description,
		Topics:      r.Topics,
		Keywords:    processing.ExtractKeywords(name+" "+description, p.cfg.KeywordLimit, p.cfg.KeywordMinLength),
		Bilateral:   r.Bilateral,
		PlaceDCIDs:  r.PlaceDCIDs,
	}
	return prepared{
		kind: models.KindVariable,
		id:   processing.BuildDocumentID(string(models.KindVariable), dcid),
		doc:  doc,
		index: func(ctx context.Context) error {
			doc.IngestedAt = ingestedAt
			return p.indexer.IndexVariable(ctx, doc)
		},
	}, nil
}

func (p *processor) prepareTopic(r rawRecord, ingestedAt time.Time) (prepared, error) {
	dcid := strings.TrimSpace(r.DCID)
	if err := catalog.ValidateDCID("dcid", dcid); err != nil {
		return prepared{}, err
	}
	if err := validateDCIDs("member_variables", r.MemberVariables); err != nil {
		return prepared{}, err
	}

	doc := models.TopicDocument{
		DCID:            dcid,
		Name:            displayName(r.Name, dcid),
		Description:     processing.CleanText(r.Description),
		MemberVariables: r.MemberVariables,
	}
	return prepared{
		kind: models.KindTopic,
		id:   processing.BuildDocumentID(string(models.KindTopic), dcid),
		doc:  doc,
		index: func(ctx context.Context) error {
			doc.IngestedAt = ingestedAt
			return p.indexer.IndexTopic(ctx, doc)
		},
	}, nil
}

func (p *processor) prepareObservation(r rawRecord, ingestedAt time.Time) (prepared, error) {
	variable := strings.TrimSpace(r.VariableDCID)
	place := strings.TrimSpace(r.PlaceDCID)
	date := strings.TrimSpace(r.Date)
	if err := catalog.ValidateDCID("variable_dcid", variable); err != nil {
		return prepared{}, err
	}
	if err := catalog.ValidateDCID("place_dcid", place); err != nil {
		return prepared{}, err
	}
	if _, err := observations.PeriodStart(date); err != nil {
		return prepared{}, catalog.InvalidArgument("observation date %q: %v", date, err)
	}
	if r.Value == nil {
		return prepared{}, catalog.InvalidArgument("observation value is required")
	}

	doc := models.ObservationDocument{
		ID:           processing.BuildDocumentID(string(models.KindObservation), variable, place, date),
		VariableDCID: variable,
		PlaceDCID:    place,
		Date:         date,
		Value:        *r.Value,
		Source:       strings.TrimSpace(r.Source),
	}
	return prepared{
		kind: models.KindObservation,
		id:   doc.ID,
		doc:  doc,
		index: func(ctx context.Context) error {
			doc.IngestedAt = ingestedAt
			return p.indexer.IndexObservation(ctx, doc)
		},
	}, nil
}

func kindLabel(kind models.RecordKind) string {
	switch k := models.RecordKind(strings.ToLower(string(kind))); k {
	case models.KindPlace, models.KindVariable, models.KindTopic, models.KindObservation:
		return string(k)
	}
	return "unknown"
}

func displayName(name, dcid string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	return processing.HumanizeDCID(dcid)
}

func validateDCIDs(field string, dcids []string) error {
	for _, dcid := range dcids {
		if err := catalog.ValidateDCID(field, dcid); err != nil {
			return err
		}
	}
	return nil
}

func fingerprint(doc any) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("fingerprint record: %w", err)
	}
	return processing.BuildDocumentID(string(data)), nil
}

func parseTimestamp(raw string) time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}
	}

	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}

	for _, f := range formats {
		if ts, err := time.Parse(f, raw); err == nil {
			return ts
		}
	}

	return time.Time{}
}
