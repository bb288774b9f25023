package weather

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/wvencel/forecaster/internal/models"
	"github.com/wvencel/forecaster/internal/observability"
)

// ErrCircuitOpen is returned while the breaker rejects calls without touching
// the network.
var ErrCircuitOpen = errors.New("weather circuit breaker open")

// BreakerConfig tunes the circuit breaker wrapped around a weather client.
type BreakerConfig struct {
	MaxRequests uint32        // probes allowed while half-open
	Interval    time.Duration // closed-state count reset window
	Timeout     time.Duration // open to half-open delay
}

// BreakerClient decorates a Client with a sony/gobreaker circuit breaker so a
// failing upstream rejects fast instead of tying up request handlers until
// their timeout.
type BreakerClient struct {
	inner   Client
	breaker *gobreaker.CircuitBreaker
}

// NewBreakerClient wraps inner with a circuit breaker. Coordinate-validation
// errors are caller bugs, not upstream health, and do not count against the
// breaker. State transitions are logged and counted.
func NewBreakerClient(inner Client, cfg BreakerConfig, logger *zap.Logger) *BreakerClient {
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 3
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        "open-meteo",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidCoordinates)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			observability.BreakerTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
			if logger != nil {
				logger.Warn("weather breaker state change",
					zap.String("breaker", name),
					zap.String("from", from.String()),
					zap.String("to", to.String()))
			}
		},
	}

	return &BreakerClient{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Fetch runs the inner fetch through the breaker. An open circuit surfaces as
// ErrCircuitOpen immediately.
func (b *BreakerClient) Fetch(ctx context.Context, lat, lon float64) (*models.Forecast, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.inner.Fetch(ctx, lat, lon)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrCircuitOpen, err)
		}
		return nil, err
	}
	forecast, ok := result.(*models.Forecast)
	if !ok {
		return nil, fmt.Errorf("%w: unexpected breaker result type", ErrInvalidResponse)
	}
	return forecast, nil
}
