package runner

import (
	"github.com/jonwraymond/proccache/codec"
	"github.com/jonwraymond/proccache/fingerprint"
	"github.com/jonwraymond/proccache/observe"
)

// Option configures a Runner.
type Option func(*Runner)

// WithFingerprinter sets how requests are keyed. Default: fingerprint.Default().
func WithFingerprinter(f *fingerprint.Fingerprinter) Option {
	return func(r *Runner) {
		if f != nil {
			r.fingerprinter = f
		}
	}
}

// WithCodec sets how results are persisted. Default: codec.Default().
func WithCodec(c *codec.Codec) Option {
	return func(r *Runner) {
		if c != nil {
			r.codec = c
		}
	}
}

// WithPolicy sets the read/write policy. Default: DefaultPolicy().
func WithPolicy(p Policy) Option {
	return func(r *Runner) {
		r.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l observe.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m observe.Metrics) Option {
	return func(r *Runner) {
		if m != nil {
			r.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t observe.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithSingleFlight makes concurrent misses for the same fingerprint share
// one execution.
func WithSingleFlight(enabled bool) Option {
	return func(r *Runner) {
		r.singleFlight = enabled
	}
}
