package models

import "time"

// RecordKind names the catalog entity carried by an ingestion record.
type RecordKind string

const (
	KindPlace       RecordKind = "place"
	KindVariable    RecordKind = "variable"
	KindTopic       RecordKind = "topic"
	KindObservation RecordKind = "observation"
)

// PlaceDocument is the place structure stored in Elasticsearch.
type PlaceDocument struct {
	DCID        string    `json:"dcid"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	ParentDCIDs []string  `json:"parent_dcids"`
	LookupKeys  []string  `json:"lookup_keys"`
	Rank        int       `json:"rank"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// Place converts the stored document into its query-side shape.
func (d PlaceDocument) Place() Place {
	return Place{DCID: d.DCID, Name: d.Name, Type: d.Type, ParentDCIDs: d.ParentDCIDs}
}

// VariableDocument is the variable structure stored in Elasticsearch.
type VariableDocument struct {
	DCID        string    `json:"dcid"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Topics      []string  `json:"topics"`
	Keywords    []string  `json:"keywords"`
	Bilateral   bool      `json:"bilateral"`
	PlaceDCIDs  []string  `json:"place_dcids"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// TopicDocument is the topic structure stored in Elasticsearch.
type TopicDocument struct {
	DCID            string    `json:"dcid"`
	Name            string    `json:"name"`
	Description     string    `json:"description"`
	MemberVariables []string  `json:"member_variables"`
	IngestedAt      time.Time `json:"ingested_at"`
}

// ObservationDocument is one stored data point.
type ObservationDocument struct {
	ID           string    `json:"id"`
	VariableDCID string    `json:"variable_dcid"`
	PlaceDCID    string    `json:"place_dcid"`
	Date         string    `json:"date"`
	Value        float64   `json:"value"`
	Source       string    `json:"source,omitempty"`
	IngestedAt   time.Time `json:"ingested_at"`
}
