package models

import (
	"encoding/json"
	"time"
)

// Forecast holds the weather conditions fetched for a set of coordinates.
// Temperature fields are pointers because the upstream may omit the daily
// high/low series; a Forecast without a current temperature is not usable.
// Values are never mutated after construction, so the cache and the view
// layer can share read-only copies.
type Forecast struct {
	CurrentTempF *float64        `json:"currentTempF"`
	HighTempF    *float64        `json:"highTempF,omitempty"`
	LowTempF     *float64        `json:"lowTempF,omitempty"`
	Raw          json.RawMessage `json:"raw,omitempty"`
	FetchedAt    time.Time       `json:"fetchedAt"`
}

// Valid reports whether the forecast carries a current temperature.
// Validity is derived from the fields, not stored.
func (f Forecast) Valid() bool {
	return f.CurrentTempF != nil
}
