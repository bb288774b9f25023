package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TestCorrelationIDMiddleware_GeneratesID verifies that a request without a
// correlation header gets a fresh UUID in both context and response header.
func TestCorrelationIDMiddleware_GeneratesID(t *testing.T) {
	// Arrange
	logger, _ := zap.NewDevelopment()
	var seenID string
	var seenLogger interface{}
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = r.Context().Value("correlation_id").(string)
		seenLogger = r.Context().Value("logger")
		w.WriteHeader(http.StatusOK)
	})
	handler := CorrelationIDMiddleware(logger)(inner)
	w := httptest.NewRecorder()

	// Act
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

	// Assert
	if seenID == "" {
		t.Fatal("context correlation_id is empty")
	}
	if _, err := uuid.Parse(seenID); err != nil {
		t.Errorf("correlation_id %q is not a UUID: %v", seenID, err)
	}
	if got := w.Header().Get("X-Correlation-ID"); got != seenID {
		t.Errorf("X-Correlation-ID header = %q, want %q", got, seenID)
	}
	if _, ok := seenLogger.(*zap.Logger); !ok {
		t.Error("context logger is missing or the wrong type")
	}
}

// TestCorrelationIDMiddleware_PropagatesProvidedID verifies that a caller
// supplied correlation ID is reused instead of replaced.
func TestCorrelationIDMiddleware_PropagatesProvidedID(t *testing.T) {
	// Arrange
	logger, _ := zap.NewDevelopment()
	var seenID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID, _ = r.Context().Value("correlation_id").(string)
	})
	handler := CorrelationIDMiddleware(logger)(inner)
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Correlation-ID", "upstream-trace-42")
	w := httptest.NewRecorder()

	// Act
	handler.ServeHTTP(w, req)

	// Assert
	if seenID != "upstream-trace-42" {
		t.Errorf("context correlation_id = %q, want upstream-trace-42", seenID)
	}
	if got := w.Header().Get("X-Correlation-ID"); got != "upstream-trace-42" {
		t.Errorf("X-Correlation-ID header = %q, want upstream-trace-42", got)
	}
}

// TestMetricsMiddleware_TracksInFlight verifies that the in-flight count rises
// during the request and returns to its prior value afterwards.
func TestMetricsMiddleware_TracksInFlight(t *testing.T) {
	// Arrange
	before := InFlightCount()
	var during int64
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = InFlightCount()
		w.WriteHeader(http.StatusNotFound)
	})
	handler := MetricsMiddleware(inner)
	w := httptest.NewRecorder()

	// Act
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))

	// Assert
	if during != before+1 {
		t.Errorf("in-flight during request = %d, want %d", during, before+1)
	}
	if after := InFlightCount(); after != before {
		t.Errorf("in-flight after request = %d, want %d", after, before)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d (recorder must pass WriteHeader through)", w.Code, http.StatusNotFound)
	}
}

// TestGetRoute verifies metric route bucketing keeps label cardinality fixed.
func TestGetRoute(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/", "/"},
		{"/forecast", "/forecast"},
		{"/health", "/health"},
		{"/metrics", "/metrics"},
		{"/api/v1/forecast", "/api/v1/forecast"},
		{"/api/v1/forecast?address=94043", "/api/v1/forecast"},
		{"/favicon.ico", "other"},
		{"/admin/debug", "other"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if got := getRoute(req); got != tt.want {
				t.Errorf("getRoute(%q) = %q, want %q", tt.path, got, tt.want)
			}
		})
	}
}

// TestStatusCodeString verifies status codes collapse into class buckets.
func TestStatusCodeString(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
	}

	for _, tt := range tests {
		if got := statusCodeString(tt.code); got != tt.want {
			t.Errorf("statusCodeString(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

// TestTimeoutMiddleware_SetsDeadline verifies downstream handlers observe the
// configured deadline on the request context.
func TestTimeoutMiddleware_SetsDeadline(t *testing.T) {
	// Arrange
	var deadline time.Time
	var hasDeadline bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, hasDeadline = r.Context().Deadline()
	})
	handler := TimeoutMiddleware(50 * time.Millisecond)(inner)

	// Act
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/forecast", nil))

	// Assert
	if !hasDeadline {
		t.Fatal("request context has no deadline")
	}
	if remaining := time.Until(deadline); remaining > 50*time.Millisecond {
		t.Errorf("deadline %v from now, want at most 50ms", remaining)
	}
}
