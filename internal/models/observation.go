package models

import (
	"encoding/json"
	"fmt"
)

// Observation is a single (date, value) point of a time series.
// It is encoded as a two-element JSON array.
type Observation struct {
	Date  string
	Value float64
}

func (o Observation) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{o.Date, o.Value})
}

func (o *Observation) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decode observation: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("decode observation: want 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &o.Date); err != nil {
		return fmt.Errorf("decode observation date: %w", err)
	}
	if err := json.Unmarshal(pair[1], &o.Value); err != nil {
		return fmt.Errorf("decode observation value: %w", err)
	}
	return nil
}

// PlaceObservations is the filtered series of one place, ascending by date.
type PlaceObservations struct {
	Place      Place         `json:"place"`
	TimeSeries []Observation `json:"time_series"`
}

// ObservationResult is the response of an observation fetch.
type ObservationResult struct {
	VariableDCID      string              `json:"variable_dcid"`
	PlaceObservations []PlaceObservations `json:"place_observations"`
}
