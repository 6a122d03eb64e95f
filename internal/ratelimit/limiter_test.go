package ratelimit

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Limiter Tests
// =============================================================================

func TestNewLimiter(t *testing.T) {
	tests := []struct {
		name        string
		maxInFlight int
		rps         float64
		burst       int
		wantMax     int
		wantBurst   int
	}{
		{"explicit", 2, 10, 5, 2, 5},
		{"zero max uses default", 0, 0, 0, DefaultMaxInFlight, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLimiter(tt.maxInFlight, tt.rps, tt.burst)
			if l == nil {
				t.Fatal("NewLimiter() returned nil")
			}
			stats := l.Stats()
			if stats.MaxInFlight != tt.wantMax {
				t.Errorf("MaxInFlight = %d, want %d", stats.MaxInFlight, tt.wantMax)
			}
			if stats.DefaultBurst != tt.wantBurst {
				t.Errorf("DefaultBurst = %d, want %d", stats.DefaultBurst, tt.wantBurst)
			}
		})
	}
}

func TestLimiter_AcquireRelease(t *testing.T) {
	l := NewLimiter(1, 0, 1)

	release, err := l.Acquire(context.Background(), "ep_1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	if _, ok := l.TryAcquire("ep_1"); ok {
		t.Error("TryAcquire() should fail while the only slot is held")
	}

	// Other endpoints are independent.
	other, ok := l.TryAcquire("ep_2")
	if !ok {
		t.Fatal("TryAcquire() on another endpoint should succeed")
	}
	other()

	release()
	release() // second call is a no-op

	again, ok := l.TryAcquire("ep_1")
	if !ok {
		t.Fatal("TryAcquire() should succeed after release")
	}
	again()
}

func TestLimiter_Acquire_DeadlineWhileWaiting(t *testing.T) {
	l := NewLimiter(1, 0, 1)

	release, _ := l.Acquire(context.Background(), "ep_1")
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := l.Acquire(ctx, "ep_1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Acquire() error = %v, want deadline exceeded", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Acquire() should give up at the context deadline")
	}
}

func TestLimiter_BoundsConcurrency(t *testing.T) {
	l := NewLimiter(3, 0, 1)

	var (
		inFlight int32
		peak     int32
		wg       sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "ep_1")
			if err != nil {
				t.Errorf("Acquire() error = %v", err)
				return
			}
			defer release()

			n := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}()
	}
	wg.Wait()

	if peak > 3 {
		t.Errorf("peak in-flight = %d, want <= 3", peak)
	}
}

func TestLimiter_SetEndpointRate(t *testing.T) {
	l := NewDefault()
	l.SetEndpointRate("ep_1", 1, 1)

	ctx := context.Background()
	release, err := l.Acquire(ctx, "ep_1")
	if err != nil {
		t.Fatalf("first Acquire() error = %v", err)
	}
	release()

	// The burst is spent: the next call must wait about a second.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if _, err := l.Acquire(short, "ep_1"); err == nil {
		t.Error("Acquire() should fail while paced")
	}

	// The failed wait must not leak the slot.
	for i := 0; i < DefaultMaxInFlight; i++ {
		if _, ok := l.TryAcquire("ep_1"); !ok {
			t.Fatalf("slot %d leaked after a failed pace wait", i)
		}
	}
}

func TestLimiter_SetEndpointRate_Remove(t *testing.T) {
	l := NewLimiter(4, 1, 1)
	l.SetEndpointRate("ep_1", 0, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	for i := 0; i < 3; i++ {
		release, err := l.Acquire(ctx, "ep_1")
		if err != nil {
			t.Fatalf("Acquire() %d error = %v", i, err)
		}
		release()
	}
}

func TestLimiter_Forget(t *testing.T) {
	l := NewDefault()
	release, _ := l.Acquire(context.Background(), "ep_1")
	release()

	if l.Stats().EndpointCount != 1 {
		t.Errorf("EndpointCount = %d, want 1", l.Stats().EndpointCount)
	}
	l.Forget("ep_1")
	if l.Stats().EndpointCount != 0 {
		t.Errorf("EndpointCount after Forget = %d, want 0", l.Stats().EndpointCount)
	}
}
