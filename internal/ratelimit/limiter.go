// Package ratelimit bounds the load the explorer puts on each endpoint.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// DefaultMaxInFlight is the number of concurrent calls allowed per endpoint.
const DefaultMaxInFlight = 4

// Limiter bounds in-flight calls per endpoint and optionally paces them.
type Limiter struct {
	mu           sync.RWMutex
	perEndpoint  map[string]*endpointLimiter
	maxInFlight  int64
	defaultRate  rate.Limit
	defaultBurst int
}

type endpointLimiter struct {
	slots *semaphore.Weighted
	rate  *rate.Limiter // nil when unpaced
}

// NewLimiter creates a limiter allowing maxInFlight concurrent calls per
// endpoint. A requestsPerSecond of 0 disables pacing.
func NewLimiter(maxInFlight int, requestsPerSecond float64, burst int) *Limiter {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		perEndpoint:  make(map[string]*endpointLimiter),
		maxInFlight:  int64(maxInFlight),
		defaultRate:  rate.Limit(requestsPerSecond),
		defaultBurst: burst,
	}
}

// NewDefault creates a limiter with DefaultMaxInFlight and no pacing.
func NewDefault() *Limiter {
	return NewLimiter(DefaultMaxInFlight, 0, 1)
}

func (l *Limiter) get(endpointID string) *endpointLimiter {
	l.mu.RLock()
	el, ok := l.perEndpoint[endpointID]
	l.mu.RUnlock()
	if ok {
		return el
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if el, ok = l.perEndpoint[endpointID]; ok {
		return el
	}
	el = &endpointLimiter{slots: semaphore.NewWeighted(l.maxInFlight)}
	if l.defaultRate > 0 {
		el.rate = rate.NewLimiter(l.defaultRate, l.defaultBurst)
	}
	l.perEndpoint[endpointID] = el
	return el
}

// Acquire blocks until the endpoint has a free slot and the pacer allows a
// call, or ctx is done. The returned release must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context, endpointID string) (func(), error) {
	el := l.get(endpointID)

	if err := el.slots.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	l.mu.RLock()
	pacer := el.rate
	l.mu.RUnlock()
	if pacer != nil {
		if err := pacer.Wait(ctx); err != nil {
			el.slots.Release(1)
			return nil, err
		}
	}

	var once sync.Once
	return func() { once.Do(func() { el.slots.Release(1) }) }, nil
}

// TryAcquire takes a slot without blocking.
func (l *Limiter) TryAcquire(endpointID string) (func(), bool) {
	el := l.get(endpointID)
	if !el.slots.TryAcquire(1) {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(func() { el.slots.Release(1) }) }, true
}

// SetEndpointRate sets a custom pace for one endpoint. A requestsPerSecond
// of 0 removes pacing.
func (l *Limiter) SetEndpointRate(endpointID string, requestsPerSecond float64, burst int) {
	el := l.get(endpointID)

	l.mu.Lock()
	defer l.mu.Unlock()
	if requestsPerSecond <= 0 {
		el.rate = nil
		return
	}
	if burst <= 0 {
		burst = 1
	}
	el.rate = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// Forget drops the state kept for an endpoint. Calls holding a slot keep it.
func (l *Limiter) Forget(endpointID string) {
	l.mu.Lock()
	delete(l.perEndpoint, endpointID)
	l.mu.Unlock()
}

// Stats returns rate limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return LimiterStats{
		EndpointCount: len(l.perEndpoint),
		MaxInFlight:   int(l.maxInFlight),
		DefaultRate:   float64(l.defaultRate),
		DefaultBurst:  l.defaultBurst,
	}
}

// LimiterStats contains rate limiter statistics.
type LimiterStats struct {
	EndpointCount int     `json:"endpoint_count"`
	MaxInFlight   int     `json:"max_in_flight"`
	DefaultRate   float64 `json:"default_rate"`
	DefaultBurst  int     `json:"default_burst"`
}
