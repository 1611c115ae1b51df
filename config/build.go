package config

import (
	"path/filepath"

	"github.com/jonwraymond/proccache/codec"
	"github.com/jonwraymond/proccache/fingerprint"
	"github.com/jonwraymond/proccache/guard"
	"github.com/jonwraymond/proccache/runner"
)

// Fingerprint returns the fingerprinter settings. With BindRoot the
// absolute executor root is folded into the salt.
func (c *Config) Fingerprint() fingerprint.Config {
	salt := c.Cache.Salt
	if c.Cache.BindRoot {
		salt += "\x00root=" + absRoot(c.Executor.Root)
	}
	return fingerprint.Config{
		Platform: c.Cache.Platform,
		Salt:     salt,
	}
}

func absRoot(root string) string {
	if abs, err := filepath.Abs(root); err == nil {
		return abs
	}
	return filepath.Clean(root)
}

// Codec returns the entry codec settings.
func (c *Config) Codec() codec.Config {
	return codec.Config{InlineLimit: c.Cache.InlineLimit}
}

// Policy returns the runner read/write policy.
func (c *Config) Policy() runner.Policy {
	return runner.Policy{Read: c.Cache.Read, Write: c.Cache.Write}
}

// GuardOptions returns the store guard layers. Zero values leave a layer out.
func (c *Config) GuardOptions() []guard.Option {
	g := c.Guard
	if !g.Enabled {
		return nil
	}

	var opts []guard.Option
	if g.MaxConcurrent > 0 {
		opts = append(opts, guard.WithBulkhead(guard.NewBulkhead(g.MaxConcurrent, g.Timeout)))
	}
	if g.BreakerThreshold > 0 {
		opts = append(opts, guard.WithBreaker(guard.NewBreaker(guard.BreakerConfig{
			Threshold: g.BreakerThreshold,
			Cooldown:  g.BreakerCooldown,
		})))
	}
	if g.RetryAttempts > 1 {
		opts = append(opts, guard.WithRetry(guard.NewRetry(guard.RetryConfig{
			MaxAttempts:  g.RetryAttempts,
			InitialDelay: g.RetryDelay,
			Jitter:       true,
		})))
	}
	if g.Timeout > 0 {
		opts = append(opts, guard.WithTimeout(g.Timeout))
	}
	return opts
}

// InheritedEnv picks the InheritEnv variables out of env. Unset names are
// skipped.
func (c *Config) InheritedEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(c.Executor.InheritEnv))
	for _, name := range c.Executor.InheritEnv {
		if v, ok := env[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Environ returns the current process environment as a map.
func Environ() map[string]string {
	return environ()
}
