//go:build integration

package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/wvencel/forecaster/internal/cache"
	"github.com/wvencel/forecaster/internal/models"
	"github.com/wvencel/forecaster/internal/observability"
)

// Integration tests exercise the handler behind the same middleware chain and
// routes the server assembles at startup.

var integrationLogger *zap.Logger

func init() {
	integrationLogger, _ = zap.NewDevelopment()
}

func newIntegrationRouter(handler *Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(CorrelationIDMiddleware(integrationLogger))
	router.Use(MetricsMiddleware)

	router.HandleFunc("/", handler.GetIndex).Methods("GET")
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")

	lookup := router.PathPrefix("/").Subrouter()
	lookup.Use(TimeoutMiddleware(5 * time.Second))
	lookup.HandleFunc("/forecast", handler.PostForecast).Methods("POST")
	lookup.HandleFunc("/api/v1/forecast", handler.GetForecast).Methods("GET")

	return router
}

func newIntegrationHandler(t *testing.T) *Handler {
	t.Helper()
	geo := &mockGeocoder{locations: map[string]models.Location{
		"1600 Amphitheatre Parkway, Mountain View, CA": googleplex(),
	}}
	wx := &mockWeather{forecast: models.Forecast{
		CurrentTempF: ptr(68),
		HighTempF:    ptr(75),
		LowTempF:     ptr(52),
		FetchedAt:    time.Now().UTC(),
	}}
	return newTestHandler(t, geo, wx, cache.NewMemoryStore(), nil)
}

// TestIntegration_FormFlow submits the address form through the full router
// twice and checks the cache badge flips on the repeat.
func TestIntegration_FormFlow(t *testing.T) {
	router := newIntegrationRouter(newIntegrationHandler(t))

	form := url.Values{"address": {"1600 Amphitheatre Parkway, Mountain View, CA"}}.Encode()

	first := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/forecast", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(first, req)

	if first.Code != http.StatusOK {
		t.Fatalf("POST /forecast status = %d, want %d; body %s", first.Code, http.StatusOK, first.Body.String())
	}
	if first.Header().Get("X-Correlation-ID") == "" {
		t.Error("response missing X-Correlation-ID header")
	}
	if !strings.Contains(first.Body.String(), "94043") {
		t.Error("response should include the resolved postal code")
	}

	second := httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/forecast", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(second, req)

	if !strings.Contains(second.Body.String(), "served from cache") {
		t.Error("repeat submit should be served from cache")
	}
}

// TestIntegration_APIFlow fetches a forecast over the JSON API through the
// full router and verifies the correlation ID round trip.
func TestIntegration_APIFlow(t *testing.T) {
	router := newIntegrationRouter(newIntegrationHandler(t))

	target := "/api/v1/forecast?address=" + url.QueryEscape("1600 Amphitheatre Parkway, Mountain View, CA")
	req := httptest.NewRequest("GET", target, nil)
	req.Header.Set("X-Correlation-ID", "integration-trace-7")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("GET /api/v1/forecast status = %d, want %d; body %s", w.Code, http.StatusOK, w.Body.String())
	}
	if got := w.Header().Get("X-Correlation-ID"); got != "integration-trace-7" {
		t.Errorf("X-Correlation-ID = %q, want integration-trace-7", got)
	}
	var resp forecastResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.PostalCode != "94043" {
		t.Errorf("postalCode = %q, want 94043", resp.PostalCode)
	}
}

// TestIntegration_HealthAndMetrics verifies the operational endpoints behind
// the router.
func TestIntegration_HealthAndMetrics(t *testing.T) {
	router := newIntegrationRouter(newIntegrationHandler(t))

	health := httptest.NewRecorder()
	router.ServeHTTP(health, httptest.NewRequest("GET", "/health", nil))
	if health.Code != http.StatusOK {
		t.Errorf("GET /health status = %d, want %d", health.Code, http.StatusOK)
	}

	metrics := httptest.NewRecorder()
	router.ServeHTTP(metrics, httptest.NewRequest("GET", "/metrics", nil))
	if metrics.Code != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want %d", metrics.Code, http.StatusOK)
	}
	if !strings.Contains(metrics.Body.String(), "httpRequestsTotal") {
		t.Error("GET /metrics should expose httpRequestsTotal")
	}
}
