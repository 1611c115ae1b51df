package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

// hclFile mirrors the file layout. Pointers distinguish "unset" from zero.
type hclFile struct {
	Cache    *hclCache    `hcl:"cache,block"`
	Store    *hclStore    `hcl:"store,block"`
	Guard    *hclGuard    `hcl:"guard,block"`
	Executor *hclExecutor `hcl:"executor,block"`
	Observe  *hclObserve  `hcl:"observe,block"`
}

type hclCache struct {
	Read         *bool             `hcl:"read,optional"`
	Write        *bool             `hcl:"write,optional"`
	SingleFlight *bool             `hcl:"single_flight,optional"`
	InlineLimit  *int              `hcl:"inline_limit,optional"`
	Salt         *string           `hcl:"salt,optional"`
	Platform     map[string]string `hcl:"platform,optional"`
	BindRoot     *bool             `hcl:"bind_root,optional"`
}

type hclStore struct {
	Root *string `hcl:"root,optional"`
}

type hclGuard struct {
	Enabled          *bool   `hcl:"enabled,optional"`
	Timeout          *string `hcl:"timeout,optional"`
	RetryAttempts    *int    `hcl:"retry_attempts,optional"`
	RetryDelay       *string `hcl:"retry_delay,optional"`
	BreakerThreshold *int    `hcl:"breaker_threshold,optional"`
	BreakerCooldown  *string `hcl:"breaker_cooldown,optional"`
	MaxConcurrent    *int    `hcl:"max_concurrent,optional"`
}

type hclExecutor struct {
	Root       *string  `hcl:"root,optional"`
	InheritEnv []string `hcl:"inherit_env,optional"`
}

type hclObserve struct {
	ServiceName *string     `hcl:"service_name,optional"`
	Tracing     *hclTracing `hcl:"tracing,block"`
	Metrics     *hclMetrics `hcl:"metrics,block"`
	Logging     *hclLogging `hcl:"logging,block"`
}

type hclTracing struct {
	Enabled   *bool    `hcl:"enabled,optional"`
	Exporter  *string  `hcl:"exporter,optional"`
	SamplePct *float64 `hcl:"sample_pct,optional"`
}

type hclMetrics struct {
	Enabled  *bool   `hcl:"enabled,optional"`
	Exporter *string `hcl:"exporter,optional"`
}

type hclLogging struct {
	Enabled *bool   `hcl:"enabled,optional"`
	Level   *string `hcl:"level,optional"`
}

// Load reads path, overlays it on Default and validates the result.
// The process environment is available to expressions as env.
func Load(path string) (Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}
	return Parse(src, path, environ())
}

// Parse decodes HCL source. filename is used in diagnostics only.
func Parse(src []byte, filename string, env map[string]string) (Config, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return Config{}, fmt.Errorf("config: parsing %s: %w", filename, diags)
	}

	var raw hclFile
	if diags := gohcl.DecodeBody(file.Body, evalContext(env), &raw); diags.HasErrors() {
		return Config{}, fmt.Errorf("config: decoding %s: %w", filename, diags)
	}

	cfg := Default()
	if err := raw.apply(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func evalContext(env map[string]string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(env))
	for k, v := range env {
		vars[k] = cty.StringVal(v)
	}
	envVal := cty.EmptyObjectVal
	if len(vars) > 0 {
		envVal = cty.ObjectVal(vars)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{"env": envVal},
	}
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	return env
}

func (f *hclFile) apply(cfg *Config) error {
	if c := f.Cache; c != nil {
		set(&cfg.Cache.Read, c.Read)
		set(&cfg.Cache.Write, c.Write)
		set(&cfg.Cache.SingleFlight, c.SingleFlight)
		set(&cfg.Cache.InlineLimit, c.InlineLimit)
		set(&cfg.Cache.Salt, c.Salt)
		set(&cfg.Cache.BindRoot, c.BindRoot)
		if c.Platform != nil {
			cfg.Cache.Platform = c.Platform
		}
	}

	if s := f.Store; s != nil {
		set(&cfg.Store.Root, s.Root)
	}

	if g := f.Guard; g != nil {
		set(&cfg.Guard.Enabled, g.Enabled)
		set(&cfg.Guard.RetryAttempts, g.RetryAttempts)
		set(&cfg.Guard.BreakerThreshold, g.BreakerThreshold)
		set(&cfg.Guard.MaxConcurrent, g.MaxConcurrent)
		for _, d := range []struct {
			name string
			src  *string
			dst  *time.Duration
		}{
			{"guard.timeout", g.Timeout, &cfg.Guard.Timeout},
			{"guard.retry_delay", g.RetryDelay, &cfg.Guard.RetryDelay},
			{"guard.breaker_cooldown", g.BreakerCooldown, &cfg.Guard.BreakerCooldown},
		} {
			if err := setDuration(d.dst, d.src, d.name); err != nil {
				return err
			}
		}
	}

	if e := f.Executor; e != nil {
		set(&cfg.Executor.Root, e.Root)
		if e.InheritEnv != nil {
			cfg.Executor.InheritEnv = e.InheritEnv
		}
	}

	if o := f.Observe; o != nil {
		set(&cfg.Observe.ServiceName, o.ServiceName)
		if t := o.Tracing; t != nil {
			set(&cfg.Observe.Tracing.Enabled, t.Enabled)
			set(&cfg.Observe.Tracing.Exporter, t.Exporter)
			set(&cfg.Observe.Tracing.SamplePct, t.SamplePct)
		}
		if m := o.Metrics; m != nil {
			set(&cfg.Observe.Metrics.Enabled, m.Enabled)
			set(&cfg.Observe.Metrics.Exporter, m.Exporter)
		}
		if l := o.Logging; l != nil {
			set(&cfg.Observe.Logging.Enabled, l.Enabled)
			set(&cfg.Observe.Logging.Level, l.Level)
		}
	}
	return nil
}

func set[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

func setDuration(dst *time.Duration, src *string, name string) error {
	if src == nil {
		return nil
	}
	d, err := time.ParseDuration(*src)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = d
	return nil
}
