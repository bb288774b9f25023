package geocode

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kelvins/geocoder"

	"github.com/wvencel/forecaster/internal/models"
	"github.com/wvencel/forecaster/internal/observability"
)

// GoogleClient resolves addresses through the Google Geocoding API. The
// kelvins/geocoder library keeps its API key in a package-level variable, so
// one process supports a single Google key.
type GoogleClient struct{}

// NewGoogleClient creates a GoogleClient using the given API key.
func NewGoogleClient(apiKey string) *GoogleClient {
	geocoder.ApiKey = apiKey
	return &GoogleClient{}
}

func (c *GoogleClient) Geocode(ctx context.Context, address string) (models.Location, bool, error) {
	start := time.Now()

	loc, err := geocoder.Geocoding(geocoder.Address{Street: address})
	if err != nil {
		duration := time.Since(start).Seconds()
		if isAbsent(err) {
			observability.GeocodeCallsTotal.WithLabelValues("success").Inc()
			observability.GeocodeDuration.WithLabelValues("success").Observe(duration)
			return models.Location{}, false, nil
		}
		observability.GeocodeCallsTotal.WithLabelValues("error").Inc()
		observability.GeocodeDuration.WithLabelValues("error").Observe(duration)
		return models.Location{}, false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	// The forward call returns only coordinates; the postal code comes from a
	// reverse lookup on them.
	addresses, err := geocoder.GeocodingReverse(loc)
	duration := time.Since(start).Seconds()
	if err != nil {
		if isAbsent(err) {
			observability.GeocodeCallsTotal.WithLabelValues("success").Inc()
			observability.GeocodeDuration.WithLabelValues("success").Observe(duration)
			return models.Location{}, false, nil
		}
		observability.GeocodeCallsTotal.WithLabelValues("error").Inc()
		observability.GeocodeDuration.WithLabelValues("error").Observe(duration)
		return models.Location{}, false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	observability.GeocodeCallsTotal.WithLabelValues("success").Inc()
	observability.GeocodeDuration.WithLabelValues("success").Observe(duration)

	for _, a := range addresses {
		if a.PostalCode != "" {
			return models.Location{
				Latitude:   loc.Latitude,
				Longitude:  loc.Longitude,
				PostalCode: a.PostalCode,
			}, true, nil
		}
	}
	return models.Location{}, false, nil
}

// isAbsent reports whether the library error means "no results" rather than a
// transport or quota failure.
func isAbsent(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no results") || strings.Contains(msg, "zero_results")
}
