package models

// Location is the result of geocoding a free-form address: coordinates plus
// the postal code the forecast cache keys on. Immutable after construction.
type Location struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	PostalCode string  `json:"postalCode"`
}

// Valid reports whether the location is complete: coordinates in range and a
// non-empty postal code.
func (l Location) Valid() bool {
	return l.Latitude >= -90 && l.Latitude <= 90 &&
		l.Longitude >= -180 && l.Longitude <= 180 &&
		l.PostalCode != ""
}
