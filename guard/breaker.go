package guard

import (
	"context"
	"sync"
	"time"
)

// State is the breaker state.
type State int

const (
	// StateClosed passes calls through.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	// Default: 5
	Threshold int

	// Cooldown is how long the circuit stays open before probing.
	// Default: 30 seconds
	Cooldown time.Duration

	// HalfOpenProbes is the number of calls allowed while half-open.
	// Default: 1
	HalfOpenProbes int

	// OnStateChange is called, with the breaker lock held, on every transition.
	OnStateChange func(from, to State)

	// IsFailure decides whether an error counts against the store.
	// Default: IsTransient
	IsFailure func(err error) bool

	now func() time.Time
}

// Breaker stops calling a store that keeps failing.
type Breaker struct {
	config BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	probes      int
	openedAt    time.Time
	lastFailure time.Time
	rejected    int64
}

// NewBreaker creates a closed Breaker.
func NewBreaker(config BreakerConfig) *Breaker {
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.HalfOpenProbes <= 0 {
		config.HalfOpenProbes = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = IsTransient
	}
	if config.now == nil {
		config.now = time.Now
	}
	return &Breaker{config: config}
}

// Execute runs op unless the circuit is open.
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := op(ctx)
	b.record(err)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

// Reset closes the circuit and clears failure counts.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.probes = 0
	b.transition(StateClosed)
}

func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.stateLocked() {
	case StateOpen:
		b.rejected++
		return unavailable(ErrCircuitOpen)
	case StateHalfOpen:
		if b.probes >= b.config.HalfOpenProbes {
			b.rejected++
			return unavailable(ErrCircuitOpen)
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := b.config.IsFailure(err)
	if failed {
		b.lastFailure = b.config.now()
	}

	switch b.state {
	case StateClosed:
		if !failed {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.config.Threshold {
			b.open()
		}
	case StateHalfOpen:
		if failed {
			b.open()
			return
		}
		b.failures = 0
		b.transition(StateClosed)
	}
}

func (b *Breaker) open() {
	b.openedAt = b.config.now()
	b.transition(StateOpen)
}

func (b *Breaker) stateLocked() State {
	if b.state == StateOpen && b.config.now().Sub(b.openedAt) >= b.config.Cooldown {
		b.probes = 0
		b.transition(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if from != to && b.config.OnStateChange != nil {
		b.config.OnStateChange(from, to)
	}
}

// Metrics returns a snapshot of breaker statistics.
func (b *Breaker) Metrics() BreakerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BreakerMetrics{
		State:       b.stateLocked(),
		Failures:    b.failures,
		Rejected:    b.rejected,
		LastFailure: b.lastFailure,
	}
}

// BreakerMetrics contains breaker statistics.
type BreakerMetrics struct {
	State       State
	Failures    int
	Rejected    int64
	LastFailure time.Time
}
