package models

import "slices"

// Place is a resolved geographic entity of the catalog.
type Place struct {
	DCID        string   `json:"dcid"`
	Name        string   `json:"name"`
	Type        string   `json:"type,omitempty"`
	ParentDCIDs []string `json:"parent_dcids,omitempty"`
}

// Within reports whether parentDCID is one of the place's ancestors.
func (p Place) Within(parentDCID string) bool {
	return slices.Contains(p.ParentDCIDs, parentDCID)
}
