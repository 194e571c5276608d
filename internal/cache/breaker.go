package cache

import (
	"context"
	"errors"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// BreakerConfig tunes the circuit breaker around a remote cache.
type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// BreakerProvider guards a Provider with a circuit breaker. Cache misses count
// as successful calls; while the circuit is open reads report a miss and writes
// are dropped.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker[[]byte]
}

// NewBreakerProvider wraps inner.
func NewBreakerProvider(inner Provider, cfg BreakerConfig) *BreakerProvider {
	if cfg.Name == "" {
		cfg.Name = "cache"
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrCacheMiss)
		},
	}
	return &BreakerProvider{inner: inner, cb: gobreaker.NewCircuitBreaker[[]byte](settings)}
}

// State reports the breaker state for health output.
func (b *BreakerProvider) State() string {
	return b.cb.State().String()
}

// Get reads through the breaker.
func (b *BreakerProvider) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.cb.Execute(func() ([]byte, error) {
		return b.inner.Get(ctx, key)
	})
	if isBreakerOpen(err) {
		return nil, ErrCacheMiss
	}
	return value, err
}

// Set writes through the breaker.
func (b *BreakerProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.inner.Set(ctx, key, value, ttl)
	})
	if isBreakerOpen(err) {
		return nil
	}
	return err
}

// SetNX writes through the breaker; an open circuit reports the key as not set.
func (b *BreakerProvider) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	var stored bool
	_, err := b.cb.Execute(func() ([]byte, error) {
		ok, err := b.inner.SetNX(ctx, key, value, ttl)
		stored = ok
		return nil, err
	})
	if isBreakerOpen(err) {
		return false, nil
	}
	return stored, err
}

// Del deletes through the breaker.
func (b *BreakerProvider) Del(ctx context.Context, key string) error {
	_, err := b.cb.Execute(func() ([]byte, error) {
		return nil, b.inner.Del(ctx, key)
	})
	if isBreakerOpen(err) {
		return nil
	}
	return err
}

// Close closes the wrapped provider.
func (b *BreakerProvider) Close() error {
	return b.inner.Close()
}

func isBreakerOpen(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
