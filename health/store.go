package health

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/jonwraymond/proccache/digest"
	"github.com/jonwraymond/proccache/guard"
	"github.com/jonwraymond/proccache/store"
)

// probeValue is written under its own digest, which no fingerprint can equal
// in practice.
var probeValue = []byte("proccache health probe v1")

// StoreChecker probes a store with a write followed by a read-back.
type StoreChecker struct {
	name string
	st   store.Store
	slow time.Duration
}

// NewStoreChecker creates a StoreChecker. A probe slower than slow reports
// Degraded; zero means one second.
func NewStoreChecker(name string, st store.Store, slow time.Duration) *StoreChecker {
	if slow <= 0 {
		slow = time.Second
	}
	return &StoreChecker{name: name, st: st, slow: slow}
}

// Name returns the checker name.
func (c *StoreChecker) Name() string {
	return c.name
}

// Check writes the probe and reads it back.
func (c *StoreChecker) Check(ctx context.Context) Result {
	if c.st == nil {
		return Unhealthy("store not configured", store.ErrNilStore)
	}

	start := time.Now()
	key := digest.Of(probeValue)

	if err := c.st.Put(ctx, key, probeValue); err != nil {
		return Unhealthy("store write failed", err)
	}
	got, ok, err := c.st.Get(ctx, key)
	switch {
	case err != nil:
		return Unhealthy("store read failed", err)
	case !ok:
		return Unhealthy("store lost probe", ErrProbeMissing)
	case !bytes.Equal(got, probeValue):
		return Unhealthy("store returned corrupt probe", ErrProbeMismatch)
	}

	elapsed := time.Since(start)
	details := map[string]any{"latency": elapsed.String()}
	if elapsed > c.slow {
		return Degraded(fmt.Sprintf("store round trip took %s", elapsed)).WithDetails(details)
	}
	return Healthy("store round trip ok").WithDetails(details)
}

// BreakerChecker reports the state of a guard breaker. An open breaker
// means requests run without the cache.
type BreakerChecker struct {
	name    string
	breaker *guard.Breaker
}

// NewBreakerChecker creates a BreakerChecker.
func NewBreakerChecker(name string, b *guard.Breaker) *BreakerChecker {
	return &BreakerChecker{name: name, breaker: b}
}

// Name returns the checker name.
func (c *BreakerChecker) Name() string {
	return c.name
}

// Check maps breaker state to a status.
func (c *BreakerChecker) Check(context.Context) Result {
	if c.breaker == nil {
		return Healthy("no breaker configured")
	}

	m := c.breaker.Metrics()
	details := map[string]any{
		"state":    m.State.String(),
		"failures": m.Failures,
		"rejected": m.Rejected,
	}
	if !m.LastFailure.IsZero() {
		details["last_failure"] = m.LastFailure.UTC().Format(time.RFC3339)
	}

	switch m.State {
	case guard.StateOpen:
		return Degraded("store circuit open; executing without cache").WithDetails(details)
	case guard.StateHalfOpen:
		return Degraded("store circuit probing").WithDetails(details)
	default:
		return Healthy("store circuit closed").WithDetails(details)
	}
}

// Ensure checkers implement Checker
var (
	_ Checker = (*StoreChecker)(nil)
	_ Checker = (*BreakerChecker)(nil)
)
