// Package ratelimit throttles requests to remote threat-intelligence
// services (TAXII servers, MISP, Elasticsearch).
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/ctitrans/internal/core/domain"
)

// Service identifies a remote service for rate limiting purposes.
type Service string

const (
	// ServiceTAXII is a TAXII 1.1 poll or inbox service.
	ServiceTAXII Service = "taxii"
	// ServiceMISP is the MISP REST API.
	ServiceMISP Service = "misp"
	// ServiceElasticsearch is the Elasticsearch bulk API.
	ServiceElasticsearch Service = "elasticsearch"
)

// HeaderRetryAfter is the retry-after header (seconds).
const HeaderRetryAfter = "Retry-After"

// DefaultBackoff is used when a 429 response carries no Retry-After.
const DefaultBackoff = 30 * time.Second

// Config holds rate limiting configuration for a service.
type Config struct {
	// RequestsPerSecond is the sustained rate limit.
	RequestsPerSecond float64
	// BurstSize is the maximum burst size.
	BurstSize int
}

// DefaultConfigs are conservative defaults per service.
var DefaultConfigs = map[Service]Config{
	ServiceTAXII:         {RequestsPerSecond: 2.0, BurstSize: 2},
	ServiceMISP:          {RequestsPerSecond: 5.0, BurstSize: 5},
	ServiceElasticsearch: {RequestsPerSecond: 10.0, BurstSize: 10},
}

// Error reports a request rejected by the remote rate limit.
type Error struct {
	Service Service
	RetryAt time.Time
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: rate limit exceeded, retry at %s", e.Service, e.RetryAt.Format(time.RFC3339))
}

// Unwrap allows errors.Is(err, domain.ErrRateLimited).
func (e *Error) Unwrap() error {
	return domain.ErrRateLimited
}

// Limiter combines a token bucket with the backoff requested by the server.
type Limiter struct {
	mu      sync.Mutex
	bucket  *rate.Limiter
	retryAt time.Time
	service Service
}

// New creates a limiter with the default configuration of service.
func New(service Service) *Limiter {
	cfg, ok := DefaultConfigs[service]
	if !ok {
		cfg = Config{RequestsPerSecond: 5.0, BurstSize: 5}
	}
	return NewWithConfig(service, cfg)
}

// NewWithConfig creates a limiter with a custom configuration.
// A non-positive rate disables the token bucket.
func NewWithConfig(service Service, cfg Config) *Limiter {
	limit := rate.Limit(cfg.RequestsPerSecond)
	if cfg.RequestsPerSecond <= 0 {
		limit = rate.Inf
	}
	burst := cfg.BurstSize
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		bucket:  rate.NewLimiter(limit, burst),
		service: service,
	}
}

// Wait blocks until a request may be sent.
func (l *Limiter) Wait(ctx context.Context) error {
	l.mu.Lock()
	retryAt := l.retryAt
	l.mu.Unlock()

	if wait := time.Until(retryAt); wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.bucket.Wait(ctx)
}

// Check inspects a response. A 429 records the server's backoff and
// returns an *Error; other responses return nil.
func (l *Limiter) Check(resp *http.Response) error {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return nil
	}

	backoff := DefaultBackoff
	if v := resp.Header.Get(HeaderRetryAfter); v != "" {
		if seconds, err := strconv.Atoi(v); err == nil && seconds >= 0 {
			backoff = time.Duration(seconds) * time.Second
		} else if at, err := http.ParseTime(v); err == nil {
			backoff = time.Until(at)
		}
	}

	l.mu.Lock()
	l.retryAt = time.Now().Add(backoff)
	retryAt := l.retryAt
	l.mu.Unlock()

	return &Error{Service: l.service, RetryAt: retryAt}
}

// RetryAt returns the end of the current backoff period.
func (l *Limiter) RetryAt() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.retryAt
}
