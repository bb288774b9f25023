package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/wvencel/forecaster/internal/geocode"
	"github.com/wvencel/forecaster/internal/lifecycle"
	"github.com/wvencel/forecaster/internal/service"
	"github.com/wvencel/forecaster/internal/traffic"
	"github.com/wvencel/forecaster/internal/version"
)

var validate = validator.New()

// forecastRequest is the bound address input from the form or query string.
type forecastRequest struct {
	Address string `validate:"required,max=512"`
}

// HealthConfig holds lifecycle thresholds for the health handler.
type HealthConfig struct {
	DegradedWindow         time.Duration
	DegradedErrorPct       int
	IdleWindow             time.Duration
	IdleThresholdReqPerMin int
	MinimumLifespan        time.Duration
	// CachePing, when set, is called to check cache reachability.
	CachePing func(ctx context.Context) error
}

// Handler holds dependencies for the HTTP handlers.
type Handler struct {
	service          *service.ForecastService
	healthConfig     *HealthConfig
	logger           *zap.Logger
	healthStatusMu   sync.Mutex
	healthStatusPrev string
}

// NewHandler returns a new Handler.
func NewHandler(svc *service.ForecastService, healthConfig *HealthConfig, logger *zap.Logger) *Handler {
	return &Handler{
		service:      svc,
		healthConfig: healthConfig,
		logger:       logger,
	}
}

// GetIndex handles GET /. Serves the address form.
func (h *Handler) GetIndex(w http.ResponseWriter, r *http.Request) {
	renderPage(w, r, http.StatusOK, pageData{})
}

// PostForecast handles the form submit and renders the result inline.
func (h *Handler) PostForecast(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderPage(w, r, http.StatusBadRequest, pageData{Error: "address is required"})
		return
	}
	address := strings.TrimSpace(r.PostForm.Get("address"))
	if err := validate.Struct(forecastRequest{Address: address}); err != nil {
		renderPage(w, r, http.StatusBadRequest, pageData{Address: address, Error: validationMessage(address)})
		return
	}

	result, err := h.service.Lookup(r.Context(), address)
	if err != nil {
		status, _, message := lookupErrorResponse(err)
		h.logLookupFailure(r, err)
		renderPage(w, r, status, pageData{Address: address, Error: message})
		return
	}
	renderPage(w, r, http.StatusOK, pageData{Address: address, Result: newForecastView(result)})
}

// forecastResponse is the JSON API payload for a forecast lookup.
type forecastResponse struct {
	Address      string    `json:"address"`
	PostalCode   string    `json:"postalCode"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	CurrentTempF *float64  `json:"currentTempF"`
	HighTempF    *float64  `json:"highTempF,omitempty"`
	LowTempF     *float64  `json:"lowTempF,omitempty"`
	Cached       bool      `json:"cached"`
	FetchedAt    time.Time `json:"fetchedAt"`
}

// GetForecast handles GET /api/v1/forecast?address=...
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimSpace(r.URL.Query().Get("address"))
	if err := validate.Struct(forecastRequest{Address: address}); err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_ADDRESS", validationMessage(address))
		return
	}

	result, err := h.service.Lookup(r.Context(), address)
	if err != nil {
		status, code, message := lookupErrorResponse(err)
		h.logLookupFailure(r, err)
		writeError(w, r, status, code, message)
		return
	}
	writeJSON(w, http.StatusOK, forecastResponse{
		Address:      address,
		PostalCode:   result.PostalCode,
		Latitude:     result.Location.Latitude,
		Longitude:    result.Location.Longitude,
		CurrentTempF: result.Forecast.CurrentTempF,
		HighTempF:    result.Forecast.HighTempF,
		LowTempF:     result.Forecast.LowTempF,
		Cached:       result.Cached,
		FetchedAt:    result.Forecast.FetchedAt.UTC(),
	})
}

// validationMessage says what is wrong with a rejected address input.
func validationMessage(address string) string {
	if address == "" {
		return "address is required"
	}
	return "address is too long"
}

// lookupErrorResponse maps a Lookup failure onto an HTTP status, error code,
// and user-facing message.
func lookupErrorResponse(err error) (int, string, string) {
	switch {
	case errors.Is(err, service.ErrAddressNotFound):
		return http.StatusNotFound, "ADDRESS_NOT_FOUND", "address not found"
	case errors.Is(err, geocode.ErrUpstream):
		return http.StatusBadGateway, "GEOCODING_UNAVAILABLE", "unable to process address"
	default:
		return http.StatusBadGateway, "WEATHER_UNAVAILABLE", "unable to retrieve weather data"
	}
}

// logLookupFailure records the underlying error without leaking it to users.
func (h *Handler) logLookupFailure(r *http.Request, err error) {
	logger := h.logger
	if l, ok := r.Context().Value("logger").(*zap.Logger); ok && l != nil {
		logger = l
	}
	if logger == nil {
		return
	}
	if errors.Is(err, service.ErrAddressNotFound) {
		logger.Debug("address not found")
		return
	}
	logger.Warn("forecast lookup failed", zap.Error(err))
}

// healthResult holds the computed health status and metadata for logging.
type healthResult struct {
	status     string
	statusCode int
	reason     string
}

// GetHealth handles GET /health.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	result := h.computeHealthStatus()

	h.healthStatusMu.Lock()
	prev := h.healthStatusPrev
	if prev != "" && prev != result.status && h.logger != nil {
		h.logger.Info("health status transition",
			zap.String("previous_status", prev),
			zap.String("current_status", result.status),
			zap.String("reason", result.reason))
	}
	h.healthStatusPrev = result.status
	h.healthStatusMu.Unlock()

	checks := make(map[string]string)
	if result.status == "degraded" {
		checks["upstreams"] = "unhealthy"
	} else {
		checks["upstreams"] = "healthy"
	}
	if h.healthConfig != nil && h.healthConfig.CachePing != nil {
		if h.healthConfig.CachePing(r.Context()) == nil {
			checks["cache"] = "healthy"
		} else {
			checks["cache"] = "unhealthy"
		}
	}
	resp := map[string]interface{}{
		"status":    result.status,
		"service":   "forecaster",
		"version":   version.String(),
		"uptime":    lifecycle.Uptime().Round(time.Second).String(),
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, result.statusCode, resp)
}

// computeHealthStatus evaluates health conditions in priority order:
// shutting-down > idle > degraded > healthy. Idle is reported only after the
// minimum lifespan so a fresh deploy is not immediately marked idle.
func (h *Handler) computeHealthStatus() healthResult {
	if lifecycle.IsShuttingDown() {
		return healthResult{"shutting-down", http.StatusServiceUnavailable, "signal"}
	}
	if h.healthConfig == nil {
		return healthResult{"healthy", http.StatusOK, ""}
	}
	if h.healthConfig.IdleWindow > 0 && h.healthConfig.MinimumLifespan > 0 && lifecycle.Uptime() >= h.healthConfig.MinimumLifespan {
		if traffic.RequestCount(h.healthConfig.IdleWindow) < h.healthConfig.IdleThresholdReqPerMin {
			return healthResult{"idle", http.StatusOK, "low_traffic"}
		}
	}
	if h.healthConfig.DegradedWindow > 0 && h.healthConfig.DegradedErrorPct > 0 {
		errCount, total := traffic.ErrorRate(h.healthConfig.DegradedWindow)
		if total > 0 {
			pct := float64(errCount) * 100 / float64(total)
			if pct >= float64(h.healthConfig.DegradedErrorPct) {
				return healthResult{"degraded", http.StatusServiceUnavailable, "error_rate_breach"}
			}
		}
	}
	return healthResult{"healthy", http.StatusOK, ""}
}

// writeJSON writes a JSON response with the given HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard envelope with code,
// message, and requestId (correlation ID) when the context carries one.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}
