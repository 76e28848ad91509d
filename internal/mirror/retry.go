package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"

	"github.com/google/go-github/v82/github"
)

// RateLimitConfig contains settings for GitHub API rate limiting
type RateLimitConfig struct {
	MaxRetries        int           // Maximum retry attempts (default: 5)
	InitialBackoff    time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff        time.Duration // Maximum backoff duration (default: 2min)
	BackoffMultiplier float64       // Multiplier for exponential backoff (default: 2.0)
}

// DefaultRateLimitConfig returns sensible defaults
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxRetries:        5,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        2 * time.Minute,
		BackoffMultiplier: 2.0,
	}
}

// backoff computes exponential backoff with 10% jitter
func (c RateLimitConfig) backoff(attempt int) time.Duration {
	d := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt))

	if d > float64(c.MaxBackoff) {
		d = float64(c.MaxBackoff)
	}

	d += d * 0.1 * (rand.Float64()*2 - 1)

	return time.Duration(d)
}

// isTransientError checks if an error is transient and retryable
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var er *github.ErrorResponse
	if errors.As(err, &er) && er.Response != nil {
		switch er.Response.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}

	errStr := strings.ToLower(err.Error())
	transientIndicators := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"network is unreachable",
		"no such host",
	}

	for _, indicator := range transientIndicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}

// credentialError converts authentication failures into *CredentialError.
func credentialError(err error) error {
	var er *github.ErrorResponse
	if !errors.As(err, &er) || er.Response == nil {
		return err
	}

	switch er.Response.StatusCode {
	case http.StatusUnauthorized:
		return &CredentialError{Reason: "token is invalid or expired", err: err}
	case http.StatusForbidden:
		return &CredentialError{Reason: "token lacks the required scopes", err: err}
	}

	return err
}

// retrying runs call until it succeeds, waiting out rate limits and backing
// off on transient failures. Other errors are returned at once.
func (g *GitHub) retrying(ctx context.Context, what string, call func() (*github.Response, error)) (*github.Response, error) {
	var lastErr error

	for attempt := 0; attempt <= g.rateCfg.MaxRetries; attempt++ {
		resp, err := call()
		if err == nil {
			return resp, nil
		}

		var wait time.Duration

		var rateLimitErr *github.RateLimitError
		var abuseErr *github.AbuseRateLimitError

		switch {
		case errors.As(err, &rateLimitErr):
			resetTime := rateLimitErr.Rate.Reset.Time
			wait = time.Until(resetTime) + time.Second

			g.logger.Warn("rate limited by GitHub API",
				slog.String("call", what),
				slog.Int("attempt", attempt+1),
				slog.Duration("wait_duration", wait),
				slog.Time("reset_at", resetTime),
			)
		case errors.As(err, &abuseErr):
			wait = abuseErr.GetRetryAfter()

			g.logger.Warn("abuse rate limit hit",
				slog.String("call", what),
				slog.Int("attempt", attempt+1),
				slog.Duration("retry_after", wait),
			)
		case isTransientError(err):
			wait = g.rateCfg.backoff(attempt)

			g.logger.Warn("transient error, retrying",
				slog.String("call", what),
				slog.Int("attempt", attempt+1),
				slog.Duration("backoff", wait),
				slog.String("error", err.Error()),
			)
		default:
			return resp, fmt.Errorf("failed to %s: %w", what, credentialError(err))
		}

		lastErr = err

		if attempt == g.rateCfg.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.after(wait):
		}
	}

	return nil, fmt.Errorf("failed to %s: max retries exceeded: %w", what, lastErr)
}
