package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wvencel/forecaster/internal/cache"
	"github.com/wvencel/forecaster/internal/config"
	"github.com/wvencel/forecaster/internal/geocode"
	httphandler "github.com/wvencel/forecaster/internal/http"
	"github.com/wvencel/forecaster/internal/lifecycle"
	"github.com/wvencel/forecaster/internal/observability"
	"github.com/wvencel/forecaster/internal/service"
	"github.com/wvencel/forecaster/internal/weather"
)

// serveCmd starts the HTTP server. Also the root command's default action.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the forecast server",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger, err := observability.NewLogger()
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("config", zap.Error(err))
		return err
	}

	var geocoder geocode.Geocoder
	switch cfg.GeocoderBackend {
	case "google":
		geocoder = geocode.NewGoogleClient(cfg.GoogleMapsAPIKey)
		logger.Info("geocoder backend: google")
	default:
		geocoder = geocode.NewNominatimClient(cfg.GeocoderURL, cfg.GeocoderUserAgent, cfg.GeocoderTimeout)
		logger.Info("geocoder backend: nominatim", zap.String("url", cfg.GeocoderURL))
	}

	var weatherClient weather.Client = weather.NewOpenMeteoClient(cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if cfg.BreakerEnabled {
		weatherClient = weather.NewBreakerClient(weatherClient, weather.BreakerConfig{
			MaxRequests: cfg.BreakerMaxRequests,
			Interval:    cfg.BreakerInterval,
			Timeout:     cfg.BreakerTimeout,
		}, logger)
		logger.Info("weather circuit breaker enabled",
			zap.Uint32("max_requests", cfg.BreakerMaxRequests),
			zap.Duration("timeout", cfg.BreakerTimeout))
	}

	var store cache.Store
	var memcacheCloser *cache.MemcachedStore
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedStore(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Error("memcached store", zap.Error(err))
			return err
		}
		memcacheCloser = mc
		store = mc
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		store = cache.NewMemoryStore()
		logger.Info("cache backend: in_memory")
	}

	forecastCache, err := cache.New(store, cache.WithTTL(cfg.CacheTTL), cache.WithLogger(logger))
	if err != nil {
		logger.Error("forecast cache", zap.Error(err))
		return err
	}

	svc := service.NewForecastService(geocoder, weatherClient, forecastCache, cfg.CoalesceEnabled, cfg.CoalesceTimeout)

	healthConfig := &httphandler.HealthConfig{
		DegradedWindow:         cfg.DegradedWindow,
		DegradedErrorPct:       cfg.DegradedErrorPct,
		IdleWindow:             cfg.IdleWindow,
		IdleThresholdReqPerMin: cfg.IdleThresholdReqPerMin,
		MinimumLifespan:        cfg.MinimumLifespan,
	}
	if memcacheCloser != nil {
		healthConfig.CachePing = svc.CachePing
	}
	handler := httphandler.NewHandler(svc, healthConfig, logger)

	var warmer *cache.Warmer
	if cfg.WarmingEnabled && len(cfg.WarmLocations) > 0 {
		locations := make([]cache.WarmLocation, 0, len(cfg.WarmLocations))
		for _, loc := range cfg.WarmLocations {
			locations = append(locations, cache.WarmLocation{
				Zip:       loc.Zip,
				Latitude:  loc.Latitude,
				Longitude: loc.Longitude,
			})
		}
		warmer = cache.NewWarmer(svc, locations, cfg.WarmingInterval, logger)
		if err := warmer.Start(); err != nil {
			logger.Warn("cache warming not started", zap.Error(err))
			warmer = nil
		}
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/", handler.GetIndex).Methods("GET")
	router.HandleFunc("/health", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler()).Methods("GET")
	lookupRouter := router.PathPrefix("/").Subrouter()
	lookupRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	lookupRouter.HandleFunc("/forecast", handler.PostForecast).Methods("POST")
	lookupRouter.HandleFunc("/api/v1/forecast", handler.GetForecast).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	lifecycle.SetShuttingDown(true)
	if warmer != nil {
		warmer.Stop()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.InFlightDrainTimeout)
	defer waitCancel()
	if err := httphandler.WaitForInFlight(waitCtx, cfg.InFlightCheckInterval); err != nil {
		logger.Warn("in-flight requests not completed", zap.Error(err),
			zap.Int64("remaining", httphandler.InFlightCount()))
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
	return nil
}
