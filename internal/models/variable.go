package models

// Variable is a statistical measure ("indicator") found by a catalog search.
type Variable struct {
	DCID           string   `json:"dcid"`
	Name           string   `json:"name"`
	Description    string   `json:"description,omitempty"`
	Topics         []string `json:"topics,omitempty"`
	Bilateral      bool     `json:"bilateral,omitempty"`
	PlacesWithData []string `json:"places_with_data,omitempty"`
}

// Topic groups related variables.
type Topic struct {
	DCID            string   `json:"dcid"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	MemberVariables []string `json:"member_variables,omitempty"`
}
