package models

// Status is the recoverable outcome of an indicator search.
type Status string

const (
	StatusSuccess   Status = "SUCCESS"
	StatusNoResults Status = "NO_RESULTS"
	StatusError     Status = "ERROR"
)

// SearchResult is the response of an indicator search.
type SearchResult struct {
	Status              Status              `json:"status"`
	Message             string              `json:"message,omitempty"`
	Variables           []Variable          `json:"variables"`
	Topics              Optional[[]Topic]   `json:"topics,omitzero"`
	DCIDNameMappings    map[string]string   `json:"dcid_name_mappings"`
	ResolvedParentPlace Optional[Place]     `json:"resolved_parent_place,omitzero"`
	UnresolvedPlaces    []string            `json:"unresolved_places,omitempty"`
	AmbiguousPlaces     map[string][]string `json:"ambiguous_places,omitempty"`
}
