package guard

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/proccache/digest"
	"github.com/jonwraymond/proccache/store"
)

// Store is a store.Store decorated with failure isolation.
type Store struct {
	next     store.Store
	bulkhead *Bulkhead
	breaker  *Breaker
	retry    *Retry
	timeout  time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithBulkhead caps concurrent calls.
func WithBulkhead(b *Bulkhead) Option {
	return func(s *Store) {
		s.bulkhead = b
	}
}

// WithBreaker stops calling the store after repeated failures.
func WithBreaker(b *Breaker) Option {
	return func(s *Store) {
		s.breaker = b
	}
}

// WithRetry retries transient failures.
func WithRetry(r *Retry) Option {
	return func(s *Store) {
		s.retry = r
	}
}

// WithTimeout bounds each individual attempt.
func WithTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New wraps next. With no options the wrapper is a pass-through.
func New(next store.Store, opts ...Option) (*Store, error) {
	if next == nil {
		return nil, store.ErrNilStore
	}
	s := &Store{next: next}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Breaker returns the configured breaker, or nil.
func (s *Store) Breaker() *Breaker {
	return s.breaker
}

// Get loads key through the guard layers.
func (s *Store) Get(ctx context.Context, key digest.Digest) ([]byte, bool, error) {
	var (
		value []byte
		ok    bool
	)
	err := s.execute(ctx, func(ctx context.Context) error {
		var err error
		value, ok, err = s.next.Get(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return value, ok, nil
}

// Put stores value through the guard layers.
func (s *Store) Put(ctx context.Context, key digest.Digest, value []byte) error {
	return s.execute(ctx, func(ctx context.Context) error {
		return s.next.Put(ctx, key, value)
	})
}

func (s *Store) execute(ctx context.Context, op func(context.Context) error) error {
	call := op

	if s.timeout > 0 {
		inner := call
		call = func(ctx context.Context) error {
			return withTimeout(ctx, s.timeout, inner)
		}
	}
	if s.retry != nil {
		inner := call
		call = func(ctx context.Context) error {
			return s.retry.Execute(ctx, inner)
		}
	}
	if s.breaker != nil {
		inner := call
		call = func(ctx context.Context) error {
			return s.breaker.Execute(ctx, inner)
		}
	}
	if s.bulkhead != nil {
		inner := call
		call = func(ctx context.Context) error {
			return s.bulkhead.Execute(ctx, inner)
		}
	}
	return call(ctx)
}

// withTimeout runs op with a deadline. Stores honor cancellation, so op
// runs on the calling goroutine.
func withTimeout(ctx context.Context, d time.Duration, op func(context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	err := op(tctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return unavailable(ErrTimeout)
	}
	return err
}

// Ensure Store implements store.Store
var _ store.Store = (*Store)(nil)
