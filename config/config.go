package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/jonwraymond/proccache/observe"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Config is the complete proccache configuration.
type Config struct {
	Cache    CacheConfig
	Store    StoreConfig
	Guard    GuardConfig
	Executor ExecutorConfig
	Observe  observe.Config
}

// CacheConfig controls keying and the runner policy.
type CacheConfig struct {
	Read         bool
	Write        bool
	SingleFlight bool

	// InlineLimit is the largest stdout/stderr kept inside an entry.
	// Negative inlines everything.
	InlineLimit int

	// Salt and Platform participate in every fingerprint.
	Salt     string
	Platform map[string]string

	// BindRoot makes the absolute executor root part of every fingerprint,
	// so files read from the workspace without being declared as inputs
	// cannot leak results between workspaces.
	BindRoot bool
}

// StoreConfig locates the on-disk store.
type StoreConfig struct {
	Root string
}

// GuardConfig controls failure isolation around the store.
type GuardConfig struct {
	Enabled          bool
	Timeout          time.Duration
	RetryAttempts    int
	RetryDelay       time.Duration
	BreakerThreshold int
	BreakerCooldown  time.Duration
	MaxConcurrent    int
}

// ExecutorConfig controls the local executor.
type ExecutorConfig struct {
	// Root is the directory input paths and working directories resolve against.
	Root string

	// InheritEnv names variables copied from the caller's environment into
	// each request. Nothing else is inherited.
	InheritEnv []string
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			Read:         true,
			Write:        true,
			SingleFlight: true,
			InlineLimit:  1024,
			BindRoot:     true,
			Platform: map[string]string{
				"OSFamily": runtime.GOOS,
				"ISA":      runtime.GOARCH,
			},
		},
		Store: StoreConfig{
			Root: defaultStoreRoot(),
		},
		Guard: GuardConfig{
			Enabled:          true,
			Timeout:          2 * time.Second,
			RetryAttempts:    3,
			RetryDelay:       50 * time.Millisecond,
			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
			MaxConcurrent:    32,
		},
		Executor: ExecutorConfig{
			Root:       ".",
			InheritEnv: []string{"PATH"},
		},
		Observe: observe.Config{
			ServiceName: "proccache",
			Logging: observe.LoggingConfig{
				Enabled: true,
				Level:   "warn",
			},
		},
	}
}

func defaultStoreRoot() string {
	if dir, err := os.UserCacheDir(); err == nil {
		return filepath.Join(dir, "proccache")
	}
	return ".proccache"
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	var errs []error

	if c.Store.Root == "" {
		errs = append(errs, errors.New("store.root is empty"))
	}
	for name := range c.Cache.Platform {
		if name == "" {
			errs = append(errs, errors.New("cache.platform has an empty property name"))
		}
	}
	if c.Executor.Root == "" {
		errs = append(errs, errors.New("executor.root is empty"))
	}
	for _, name := range c.Executor.InheritEnv {
		if name == "" {
			errs = append(errs, errors.New("executor.inherit_env has an empty name"))
		}
	}

	g := c.Guard
	if g.Timeout < 0 || g.RetryDelay < 0 || g.BreakerCooldown < 0 {
		errs = append(errs, errors.New("guard durations must not be negative"))
	}
	if g.RetryAttempts < 0 || g.BreakerThreshold < 0 || g.MaxConcurrent < 0 {
		errs = append(errs, errors.New("guard counts must not be negative"))
	}

	if err := c.Observe.Validate(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
