package quotes

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"github.com/sony/gobreaker"
)

// CircuitBreakerProvider wraps a Provider with circuit breaker functionality
// so a dead quote endpoint fails fast instead of stalling every row.
type CircuitBreakerProvider struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
}

// CircuitBreakerSettings configures circuit breaker behavior
type CircuitBreakerSettings struct {
	MaxRequests  uint32        // Max requests when half-open
	Interval     time.Duration // Reset counts interval
	Timeout      time.Duration // Open circuit duration
	MinRequests  uint32        // Min requests before tripping
	FailureRatio float64       // Failure ratio threshold
}

// NewCircuitBreakerProvider creates a wrapped provider with sensible defaults
func NewCircuitBreakerProvider(provider Provider, logger *log.Logger) *CircuitBreakerProvider {
	return NewCircuitBreakerProviderWithSettings(provider, logger, CircuitBreakerSettings{
		MaxRequests:  3,                // Allow 3 requests when half-open
		Interval:     60 * time.Second, // Reset counts every minute
		Timeout:      30 * time.Second, // Open circuit for 30 seconds
		MinRequests:  5,                // Minimum requests before tripping
		FailureRatio: 0.6,              // Trip if 60% failure rate
	})
}

// NewCircuitBreakerProviderWithSettings creates a wrapped provider with custom settings
func NewCircuitBreakerProviderWithSettings(provider Provider, logger *log.Logger, settings CircuitBreakerSettings) *CircuitBreakerProvider {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	gbSettings := gobreaker.Settings{
		Name:        "QuoteCircuitBreaker",
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests == 0 || counts.Requests < settings.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= settings.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Printf("Circuit breaker %s state changed from %s to %s", name, from, to)
		},
	}

	return &CircuitBreakerProvider{
		provider: provider,
		breaker:  gobreaker.NewCircuitBreaker(gbSettings),
	}
}

// GetPrice wraps the underlying provider call with the circuit breaker
func (c *CircuitBreakerProvider) GetPrice(ctx context.Context, ticker string) (PriceQuote, error) {
	res, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.GetPrice(ctx, ticker)
	})
	if err != nil {
		return PriceQuote{}, err
	}
	quote, ok := res.(PriceQuote)
	if !ok {
		return PriceQuote{}, errors.New("circuit breaker: type assertion failed")
	}
	return quote, nil
}
