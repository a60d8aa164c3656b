package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter wraps a token-bucket limiter for one external collaborator.
type RateLimiter struct {
	limiter *rate.Limiter
	name    string
}

// NewRateLimiter allows rps requests per second, burst 1 to spread traffic
// evenly.
func NewRateLimiter(name string, rps int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(rps), 1), name: name}
}

// Wait blocks until a token is available or ctx is cancelled.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if err := rl.limiter.Wait(ctx); err != nil {
		slog.Warn("rate limiter wait cancelled", "name", rl.name, "error", err)
		return err
	}
	return nil
}

// ParseRetryAfter extracts a backoff duration from a Retry-After header,
// seconds or HTTP-date form.
func ParseRetryAfter(header http.Header) time.Duration {
	val := header.Get("Retry-After")
	if val == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(val); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(val); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// SuggestBackoff returns an exponential backoff duration for consecutive failures.
func SuggestBackoff(consecutiveFailures int, base, max time.Duration) time.Duration {
	if consecutiveFailures <= 0 {
		return 0
	}
	delay := base * time.Duration(1<<uint(consecutiveFailures-1))
	if delay > max {
		delay = max
	}
	return delay
}
