package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/wvencel/forecaster/internal/models"
	"github.com/wvencel/forecaster/internal/observability"
)

// Client fetches current conditions for a coordinate pair.
type Client interface {
	Fetch(ctx context.Context, lat, lon float64) (*models.Forecast, error)
}

var (
	ErrInvalidCoordinates = errors.New("invalid coordinates")
	ErrBadStatus          = errors.New("weather api non-success status")
	ErrTimeout            = errors.New("weather api request timed out")
	ErrInvalidResponse    = errors.New("weather api invalid response")
)

const (
	defaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"
	defaultTimeout      = 10 * time.Second
)

// OpenMeteoClient implements Client against the Open-Meteo forecast API,
// which needs no API key. Failures surface immediately; there are no retries.
type OpenMeteoClient struct {
	apiURL  string
	timeout time.Duration
	client  *http.Client
}

func NewOpenMeteoClient(apiURL string, timeout time.Duration) *OpenMeteoClient {
	if apiURL == "" {
		apiURL = defaultOpenMeteoURL
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &OpenMeteoClient{
		apiURL:  apiURL,
		timeout: timeout,
		client:  &http.Client{Timeout: timeout},
	}
}

type openMeteoResponse struct {
	CurrentWeather *struct {
		Temperature *float64 `json:"temperature"`
	} `json:"current_weather"`
	Daily struct {
		TemperatureMax []float64 `json:"temperature_2m_max"`
		TemperatureMin []float64 `json:"temperature_2m_min"`
	} `json:"daily"`
}

// Fetch validates the coordinate ranges before any network call, then queries
// for current conditions plus today's high and low in Fahrenheit.
func (c *OpenMeteoClient) Fetch(ctx context.Context, lat, lon float64) (*models.Forecast, error) {
	if lat < -90 || lat > 90 {
		return nil, fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinates, lat)
	}
	if lon < -180 || lon > 180 {
		return nil, fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinates, lon)
	}

	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, lat, lon)
	if err != nil {
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		duration := time.Since(start).Seconds()
		observability.WeatherAPICallsTotal.WithLabelValues("error").Inc()
		observability.WeatherAPIDuration.WithLabelValues("error").Observe(duration)

		if isTimeout(err) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start).Seconds()
	status := statusLabel(resp.StatusCode)
	observability.WeatherAPICallsTotal.WithLabelValues(status).Inc()
	observability.WeatherAPIDuration.WithLabelValues(status).Observe(duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: HTTP %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrInvalidResponse, err)
	}

	return mapResponse(body)
}

func (c *OpenMeteoClient) buildRequest(ctx context.Context, lat, lon float64) (*http.Request, error) {
	baseURL, err := url.Parse(c.apiURL)
	if err != nil {
		return nil, fmt.Errorf("invalid API URL: %w", err)
	}

	params := url.Values{}
	params.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	params.Set("current_weather", "true")
	params.Set("daily", "temperature_2m_max,temperature_2m_min")
	params.Set("temperature_unit", "fahrenheit")
	params.Set("timezone", "auto")
	baseURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", baseURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if corrID := extractCorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

// mapResponse parses the payload. current_weather.temperature is required;
// daily highs and lows are optional. The raw body rides along for diagnostics.
func mapResponse(body []byte) (*models.Forecast, error) {
	var apiResp openMeteoResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: parse: %v", ErrInvalidResponse, err)
	}
	if apiResp.CurrentWeather == nil || apiResp.CurrentWeather.Temperature == nil {
		return nil, fmt.Errorf("%w: missing current_weather.temperature", ErrInvalidResponse)
	}

	f := &models.Forecast{
		CurrentTempF: apiResp.CurrentWeather.Temperature,
		Raw:          json.RawMessage(body),
		FetchedAt:    time.Now().UTC(),
	}
	if len(apiResp.Daily.TemperatureMax) > 0 {
		f.HighTempF = &apiResp.Daily.TemperatureMax[0]
	}
	if len(apiResp.Daily.TemperatureMin) > 0 {
		f.LowTempF = &apiResp.Daily.TemperatureMin[0]
	}
	return f, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
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
