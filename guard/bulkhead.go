package guard

import (
	"context"
	"sync/atomic"
	"time"
)

// Bulkhead caps concurrent store calls.
type Bulkhead struct {
	sem      chan struct{}
	maxWait  time.Duration
	rejected atomic.Int64
}

// NewBulkhead allows up to limit concurrent calls. Callers wait up to
// maxWait for a slot; zero fails immediately when full.
func NewBulkhead(limit int, maxWait time.Duration) *Bulkhead {
	if limit <= 0 {
		limit = 10
	}
	return &Bulkhead{sem: make(chan struct{}, limit), maxWait: maxWait}
}

// Execute runs op while holding a slot.
func (b *Bulkhead) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer func() { <-b.sem }()
	return op(ctx)
}

func (b *Bulkhead) acquire(ctx context.Context) error {
	select {
	case b.sem <- struct{}{}:
		return nil
	default:
	}

	if b.maxWait <= 0 {
		b.rejected.Add(1)
		return unavailable(ErrBulkheadFull)
	}

	timer := time.NewTimer(b.maxWait)
	defer timer.Stop()

	select {
	case b.sem <- struct{}{}:
		return nil
	case <-timer.C:
		b.rejected.Add(1)
		return unavailable(ErrBulkheadFull)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of calls holding a slot.
func (b *Bulkhead) Active() int {
	return len(b.sem)
}

// Rejected returns the number of calls turned away.
func (b *Bulkhead) Rejected() int64 {
	return b.rejected.Load()
}
