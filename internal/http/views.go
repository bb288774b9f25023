package http

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/wvencel/forecaster/internal/service"
)

//go:embed templates/index.html.tmpl
var templateFS embed.FS

var indexTemplate = template.Must(template.ParseFS(templateFS, "templates/index.html.tmpl"))

// pageData feeds the index template: the submitted address plus either an
// error line or a rendered result.
type pageData struct {
	Address string
	Error   string
	Result  *forecastView
}

// forecastView is a display-ready forecast.
type forecastView struct {
	PostalCode string
	Current    string
	High       string
	Low        string
	Badge      string
	Cached     bool
	FetchedAt  string
}

// FormatTemp renders an optional Fahrenheit temperature for display.
func FormatTemp(t *float64) string {
	if t == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.0f°F", *t)
}

// newForecastView converts a lookup result for the template.
func newForecastView(res service.Result) *forecastView {
	view := &forecastView{
		PostalCode: res.PostalCode,
		Current:    FormatTemp(res.Forecast.CurrentTempF),
		Cached:     res.Cached,
		Badge:      "fresh",
		FetchedAt:  res.Forecast.FetchedAt.UTC().Format(time.RFC1123),
	}
	if res.Cached {
		view.Badge = "served from cache"
	}
	if res.Forecast.HighTempF != nil && res.Forecast.LowTempF != nil {
		view.High = FormatTemp(res.Forecast.HighTempF)
		view.Low = FormatTemp(res.Forecast.LowTempF)
	}
	return view
}

// renderPage executes the index template with data. Render failures after the
// header is written can only be logged.
func renderPage(w http.ResponseWriter, r *http.Request, status int, data pageData) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := indexTemplate.Execute(w, data); err != nil {
		if logger, ok := r.Context().Value("logger").(*zap.Logger); ok && logger != nil {
			logger.Error("render page", zap.Error(err))
		}
	}
}
