// Package retry wraps flaky upstream calls with bounded retries and
// exponential backoff. Quote fetches are the main consumer, but anything
// shaped like func(ctx) (T, error) can be wrapped.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"math/big"
	"strings"
	"time"
)

type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration
}

var DefaultConfig = Config{
	MaxRetries:     3,
	InitialBackoff: 1 * time.Second,
	MaxBackoff:     30 * time.Second,
	Timeout:        2 * time.Minute,
}

type Client struct {
	logger *log.Logger
	config Config
}

func NewClient(logger *log.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = sanitize(config[0])
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &Client{
		logger: logger,
		config: cfg,
	}
}

// sanitize falls back to defaults for zero or negative values so a
// partially filled Config cannot disable the overall timeout.
func sanitize(cfg Config) Config {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = DefaultConfig.MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig.Timeout
	}
	return cfg
}

// Do runs op until it succeeds, the error is permanent, or the retry budget
// is spent. The op receives a context bounded by Config.Timeout; label names
// the operation in logs and errors.
func Do[T any](ctx context.Context, c *Client, label string, op func(context.Context) (T, error)) (T, error) {
	var zero T
	if op == nil {
		return zero, errors.New("retry: nil operation")
	}
	if label == "" {
		label = "operation"
	}

	opCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var lastErr error
	backoff := c.config.InitialBackoff
	attempts := 0

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s canceled: %w", label, ctx.Err())
		}

		select {
		case <-opCtx.Done():
			return zero, fmt.Errorf("%s timed out after %v: %w", label, c.config.Timeout, opCtx.Err())
		default:
		}

		attempts = attempt + 1
		c.logger.Printf("%s attempt %d/%d", label, attempt+1, c.config.MaxRetries+1)

		result, err := op(opCtx)
		if err == nil {
			if attempt > 0 {
				c.logger.Printf("%s succeeded on attempt %d", label, attempt+1)
			}
			return result, nil
		}

		lastErr = err
		c.logger.Printf("%s attempt %d failed: %v", label, attempt+1, err)

		if c.isTransientError(err) && attempt < c.config.MaxRetries {
			c.logger.Printf("Transient error detected, retrying in %v", backoff)
			select {
			case <-time.After(backoff):
				backoff = c.calculateNextBackoff(backoff)
			case <-opCtx.Done():
				return zero, fmt.Errorf("%s timed out during backoff: %w", label, opCtx.Err())
			case <-ctx.Done():
				return zero, fmt.Errorf("%s canceled during backoff: %w", label, ctx.Err())
			}
		} else {
			break
		}
	}

	return zero, fmt.Errorf("%s failed after %d attempts: %w", label, attempts, lastErr)
}

func (c *Client) calculateNextBackoff(currentBackoff time.Duration) time.Duration {
	backoff := time.Duration(float64(currentBackoff) * 1.5)
	if backoff > c.config.MaxBackoff {
		backoff = c.config.MaxBackoff
	}

	maxJitter := int64(backoff / 4)
	if maxJitter > 0 {
		jitterVal, err := rand.Int(rand.Reader, big.NewInt(maxJitter))
		if err != nil {
			log.Printf("Failed to generate jitter: %v", err)
		} else {
			jitter := time.Duration(jitterVal.Int64())
			backoff += jitter
		}
	}

	return backoff
}

func (c *Client) isTransientError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
