package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jonwraymond/proccache/codec"
	"github.com/jonwraymond/proccache/config"
	"github.com/jonwraymond/proccache/fingerprint"
	"github.com/jonwraymond/proccache/guard"
	"github.com/jonwraymond/proccache/health"
	"github.com/jonwraymond/proccache/observe"
	"github.com/jonwraymond/proccache/process"
	"github.com/jonwraymond/proccache/runner"
	"github.com/jonwraymond/proccache/store"
)

// Store namespaces under the store root.
const (
	entriesNamespace = "ac"
	blobsNamespace   = "cas"
)

// stack is the fully wired cache: observer, stores, executor and runner.
type stack struct {
	obs     observe.Observer
	blobs   *store.FileStore
	entries *guard.Store
	runner  *runner.Runner
}

func newStack(ctx context.Context, cfg config.Config, logW io.Writer) (*stack, error) {
	cfg.Observe.Logging.Output = logW
	obs, err := observe.NewObserver(ctx, cfg.Observe)
	if err != nil {
		return nil, err
	}
	s := &stack{obs: obs}

	if err := s.wire(cfg); err != nil {
		_ = obs.Shutdown(ctx)
		return nil, err
	}
	return s, nil
}

func (s *stack) wire(cfg config.Config) error {
	blobs, err := store.NewFileStore(cfg.Store.Root, blobsNamespace)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	files, err := store.NewFileStore(cfg.Store.Root, entriesNamespace)
	if err != nil {
		return fmt.Errorf("opening entry store: %w", err)
	}
	entries, err := guard.New(files, cfg.GuardOptions()...)
	if err != nil {
		return err
	}

	metrics, err := observe.NewMetrics(s.obs.Meter())
	if err != nil {
		return err
	}
	tracer := observe.NewTracer(s.obs.Tracer())
	logger := s.obs.Logger()

	exec, err := observe.NewMiddleware(tracer, metrics, logger).
		Wrap("local", process.NewLocalExecutor(cfg.Executor.Root, blobs))
	if err != nil {
		return err
	}

	r, err := runner.New(exec, entries,
		runner.WithFingerprinter(fingerprint.New(cfg.Fingerprint())),
		runner.WithCodec(codec.New(cfg.Codec(), blobs)),
		runner.WithPolicy(cfg.Policy()),
		runner.WithSingleFlight(cfg.Cache.SingleFlight),
		runner.WithLogger(logger),
		runner.WithMetrics(metrics),
		runner.WithTracer(tracer),
	)
	if err != nil {
		return err
	}

	s.blobs = blobs
	s.entries = entries
	s.runner = r
	return nil
}

// aggregator checks both stores and, when present, the entry store breaker.
func (s *stack) aggregator() *health.Aggregator {
	agg := health.NewAggregator()
	agg.Register(entriesNamespace, health.NewStoreChecker(entriesNamespace, s.entries, 0))
	agg.Register(blobsNamespace, health.NewStoreChecker(blobsNamespace, s.blobs, 0))
	if b := s.entries.Breaker(); b != nil {
		agg.Register("breaker", health.NewBreakerChecker("breaker", b))
	}
	return agg
}

func (s *stack) close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.obs.Shutdown(ctx)
}
