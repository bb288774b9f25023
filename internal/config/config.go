package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML and env.
type Config struct {
	ServerPort string

	GeocoderBackend   string // "nominatim" or "google"
	GeocoderURL       string
	GeocoderUserAgent string
	GeocoderTimeout   time.Duration
	GoogleMapsAPIKey  string

	WeatherAPIURL     string
	WeatherAPITimeout time.Duration

	RequestTimeout time.Duration
	CacheTTL       time.Duration
	CacheBackend   string // "in_memory" or "memcached"

	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	CoalesceEnabled bool
	CoalesceTimeout time.Duration

	BreakerEnabled     bool
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration

	WarmingEnabled  bool
	WarmingInterval time.Duration
	WarmLocations   []WarmLocation

	ShutdownTimeout       time.Duration
	InFlightDrainTimeout  time.Duration
	InFlightCheckInterval time.Duration

	IdleThresholdReqPerMin int
	IdleWindow             time.Duration
	MinimumLifespan        time.Duration
	DegradedWindow         time.Duration
	DegradedErrorPct       int
}

// WarmLocation is a cache-warming target: the ZIP the forecast is cached
// under plus the coordinates to fetch with.
type WarmLocation struct {
	Zip       string
	Latitude  float64
	Longitude float64
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Geocoder struct {
		Backend   string `yaml:"backend"`
		URL       string `yaml:"url"`
		UserAgent string `yaml:"user_agent"`
		Timeout   string `yaml:"timeout"`
	} `yaml:"geocoder"`

	WeatherAPI struct {
		URL     string `yaml:"url"`
		Timeout string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Cache struct {
		Backend   string `yaml:"backend"`
		TTL       string `yaml:"ttl"`
		Memcached struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Reliability struct {
		CoalesceEnabled    *bool  `yaml:"coalesce_enabled"`
		CoalesceTimeout    string `yaml:"coalesce_timeout"`
		BreakerEnabled     *bool  `yaml:"breaker_enabled"`
		BreakerMaxRequests int    `yaml:"breaker_max_requests"`
		BreakerInterval    string `yaml:"breaker_interval"`
		BreakerTimeout     string `yaml:"breaker_timeout"`
	} `yaml:"reliability"`

	Warming struct {
		Enabled   *bool  `yaml:"enabled"`
		Interval  string `yaml:"interval"`
		Locations []struct {
			Zip       string  `yaml:"zip"`
			Latitude  float64 `yaml:"latitude"`
			Longitude float64 `yaml:"longitude"`
		} `yaml:"locations"`
	} `yaml:"warming"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightDrainTimeout  string `yaml:"inflight_drain_timeout"`
		InFlightCheckInterval string `yaml:"inflight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		IdleThresholdReqPerMin int    `yaml:"idle_threshold_req_per_min"`
		IdleWindow             string `yaml:"idle_window"`
		MinimumLifespan        string `yaml:"minimum_lifespan"`
		DegradedWindow         string `yaml:"degraded_window"`
		DegradedErrorPct       int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

type secretsFile struct {
	GoogleMapsAPIKey string `yaml:"google_maps_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), with a
// .env file and process env overriding selected keys. The Google Maps API key
// comes from GOOGLE_MAPS_API_KEY env or config/secrets.yaml and is required
// only for the google geocoder backend. Call from project root.
func Load() (*Config, error) {
	// .env is optional; missing file is the normal case outside dev.
	_ = godotenv.Load()

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}
	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.GeocoderBackend = strings.TrimSpace(strings.ToLower(os.Getenv("GEOCODER_BACKEND")))
	if cfg.GeocoderBackend == "" {
		cfg.GeocoderBackend = strings.TrimSpace(strings.ToLower(fc.Geocoder.Backend))
	}
	if cfg.GeocoderBackend == "" {
		cfg.GeocoderBackend = "nominatim"
	}
	cfg.GeocoderURL = fc.Geocoder.URL
	if cfg.GeocoderURL == "" {
		cfg.GeocoderURL = "https://nominatim.openstreetmap.org"
	}
	cfg.GeocoderUserAgent = fc.Geocoder.UserAgent
	if cfg.GeocoderUserAgent == "" {
		cfg.GeocoderUserAgent = "forecaster/1.0"
	}
	cfg.GeocoderTimeout = parseDurationOrZero(fc.Geocoder.Timeout, 3*time.Second)

	if cfg.GeocoderBackend == "google" {
		key, err := loadGoogleMapsAPIKey(cwd)
		if err != nil {
			return nil, err
		}
		cfg.GoogleMapsAPIKey = key
	}

	cfg.WeatherAPIURL = fc.WeatherAPI.URL
	if cfg.WeatherAPIURL == "" {
		cfg.WeatherAPIURL = "https://api.open-meteo.com/v1/forecast"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 2*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 5*time.Second)
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 30*time.Minute)
	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	if fc.Reliability.CoalesceEnabled != nil {
		cfg.CoalesceEnabled = *fc.Reliability.CoalesceEnabled
	}
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 5*time.Second)
	cfg.BreakerEnabled = true
	if fc.Reliability.BreakerEnabled != nil {
		cfg.BreakerEnabled = *fc.Reliability.BreakerEnabled
	}
	if fc.Reliability.BreakerMaxRequests > 0 {
		cfg.BreakerMaxRequests = uint32(fc.Reliability.BreakerMaxRequests)
	} else {
		cfg.BreakerMaxRequests = 3
	}
	cfg.BreakerInterval = parseDuration(fc.Reliability.BreakerInterval, time.Minute)
	cfg.BreakerTimeout = parseDuration(fc.Reliability.BreakerTimeout, 30*time.Second)

	if fc.Warming.Enabled != nil {
		cfg.WarmingEnabled = *fc.Warming.Enabled
	}
	cfg.WarmingInterval = parseDuration(fc.Warming.Interval, 25*time.Minute)
	for _, loc := range fc.Warming.Locations {
		cfg.WarmLocations = append(cfg.WarmLocations, WarmLocation{
			Zip:       loc.Zip,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		})
	}

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.InFlightDrainTimeout = parseDuration(fc.Shutdown.InFlightDrainTimeout, 20*time.Second)
	cfg.InFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.IdleThresholdReqPerMin = fc.Lifecycle.IdleThresholdReqPerMin
	if cfg.IdleThresholdReqPerMin <= 0 {
		cfg.IdleThresholdReqPerMin = 5
	}
	cfg.IdleWindow = parseDuration(fc.Lifecycle.IdleWindow, 5*time.Minute)
	cfg.MinimumLifespan = parseDuration(fc.Lifecycle.MinimumLifespan, 5*time.Minute)
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 5
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadGoogleMapsAPIKey resolves the key from env first, then config/secrets.yaml.
func loadGoogleMapsAPIKey(cwd string) (string, error) {
	if key := os.Getenv("GOOGLE_MAPS_API_KEY"); key != "" {
		return key, nil
	}
	secretsPath := filepath.Join(cwd, "config", "secrets.yaml")
	data, err := os.ReadFile(secretsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("GOOGLE_MAPS_API_KEY required for google geocoder (set env or config/secrets.yaml google_maps_api_key)")
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	if sec.GoogleMapsAPIKey == "" {
		return "", fmt.Errorf("GOOGLE_MAPS_API_KEY required for google geocoder (set env or config/secrets.yaml google_maps_api_key)")
	}
	return sec.GoogleMapsAPIKey, nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
// Used for parsing duration fields from YAML config with safe fallback to defaults.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values. Upstream
// timeouts must be positive and the request timeout must exceed them so a
// handler deadline never fires before its upstream call can finish.
func validate(cfg *Config) error {
	if cfg.WeatherAPITimeout <= 0 {
		return fmt.Errorf("weather_api.timeout must be positive")
	}
	if cfg.GeocoderTimeout <= 0 {
		return fmt.Errorf("geocoder.timeout must be positive")
	}
	upstreamMax := cfg.WeatherAPITimeout
	if cfg.GeocoderTimeout > upstreamMax {
		upstreamMax = cfg.GeocoderTimeout
	}
	if cfg.RequestTimeout <= upstreamMax {
		cfg.RequestTimeout = upstreamMax + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
		// valid
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	switch cfg.GeocoderBackend {
	case "nominatim", "google":
		// valid
	default:
		return fmt.Errorf("geocoder.backend must be nominatim or google, got %q", cfg.GeocoderBackend)
	}
	for _, loc := range cfg.WarmLocations {
		if loc.Zip == "" {
			return fmt.Errorf("warming.locations entries need a zip")
		}
	}
	return nil
}
