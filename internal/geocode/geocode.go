package geocode

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wvencel/forecaster/internal/models"
	"github.com/wvencel/forecaster/internal/observability"
)

// Geocoder resolves a free-form address to coordinates and a postal code.
// Returns (loc, true, nil) on success, (zero, false, nil) when the address
// yields no usable result, and (zero, false, err) on upstream failure. An
// address that resolves but has no postal code counts as no usable result.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (models.Location, bool, error)
}

var ErrUpstream = errors.New("geocoding upstream failure")

const (
	defaultNominatimURL = "https://nominatim.openstreetmap.org"
	defaultUserAgent    = "forecaster/1.0 (github.com/wvencel/forecaster)"
	defaultTimeout      = 5 * time.Second
)

// NominatimClient geocodes through the OpenStreetMap Nominatim API.
type NominatimClient struct {
	baseURL   string
	userAgent string
	timeout   time.Duration
	client    *http.Client
}

// NewNominatimClient creates a NominatimClient. Empty baseURL and userAgent
// and non-positive timeout fall back to package defaults. Nominatim's usage
// policy requires an identifying User-Agent on every request.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration) *NominatimClient {
	if baseURL == "" {
		baseURL = defaultNominatimURL
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &NominatimClient{
		baseURL:   baseURL,
		userAgent: userAgent,
		timeout:   timeout,
		client:    &http.Client{Timeout: timeout},
	}
}

type nominatimResult struct {
	Lat      string `json:"lat"`
	Lon      string `json:"lon"`
	Postcode string `json:"postcode"`
	Address  struct {
		Postcode string `json:"postcode"`
	} `json:"address"`
}

func (c *NominatimClient) Geocode(ctx context.Context, address string) (models.Location, bool, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, address)
	if err != nil {
		observability.GeocodeCallsTotal.WithLabelValues("error").Inc()
		return models.Location{}, false, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.GeocodeCallsTotal.WithLabelValues("error").Inc()
		observability.GeocodeDuration.WithLabelValues("error").Observe(duration)
		return models.Location{}, false, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.GeocodeCallsTotal.WithLabelValues(status).Inc()
	observability.GeocodeDuration.WithLabelValues(status).Observe(duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return models.Location{}, false, fmt.Errorf("%w: HTTP %d", ErrUpstream, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return models.Location{}, false, fmt.Errorf("%w: read response: %v", ErrUpstream, err)
	}

	var results []nominatimResult
	if err := json.Unmarshal(body, &results); err != nil {
		return models.Location{}, false, fmt.Errorf("%w: parse response: %v", ErrUpstream, err)
	}
	if len(results) == 0 {
		return models.Location{}, false, nil
	}

	return mapResult(results[0])
}

func (c *NominatimClient) buildRequest(ctx context.Context, address string) (*http.Request, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	base.Path = strings.TrimRight(base.Path, "/") + "/search"

	params := url.Values{}
	params.Set("q", address)
	params.Set("format", "json")
	params.Set("limit", "1")
	params.Set("addressdetails", "1")
	base.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", base.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// mapResult converts a raw result row. A hit without a postal code cannot key
// the forecast cache and maps to absent rather than an error.
func mapResult(r nominatimResult) (models.Location, bool, error) {
	lat, err := strconv.ParseFloat(r.Lat, 64)
	if err != nil {
		return models.Location{}, false, fmt.Errorf("%w: invalid latitude %q", ErrUpstream, r.Lat)
	}
	lon, err := strconv.ParseFloat(r.Lon, 64)
	if err != nil {
		return models.Location{}, false, fmt.Errorf("%w: invalid longitude %q", ErrUpstream, r.Lon)
	}

	postal := r.Postcode
	if postal == "" {
		postal = r.Address.Postcode
	}
	if postal == "" {
		return models.Location{}, false, nil
	}

	return models.Location{
		Latitude:   lat,
		Longitude:  lon,
		PostalCode: postal,
	}, true, nil
}

func extractCorrelationID(ctx context.Context) string {
	if corrIDVal := ctx.Value("correlation_id"); corrIDVal != nil {
		if corrID, ok := corrIDVal.(string); ok {
			return corrID
		}
	}
	return ""
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
