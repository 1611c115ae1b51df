package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jonwraymond/proccache/observe"
	"github.com/jonwraymond/proccache/runner"
)

func TestDefault_Valid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if got := cfg.Cache.Platform["OSFamily"]; got != runtime.GOOS {
		t.Errorf("default OSFamily = %q, want %q", got, runtime.GOOS)
	}
	if cfg.Policy() != runner.DefaultPolicy() {
		t.Errorf("default Policy() = %+v, want %+v", cfg.Policy(), runner.DefaultPolicy())
	}
}

func TestParse_Overlay(t *testing.T) {
	src := `
cache {
  write         = false
  single_flight = false
  inline_limit  = -1
  salt          = "v2"
  platform      = { OSFamily = "plan9" }
}

store {
  root = "${env.CACHE_HOME}/pc"
}

guard {
  timeout           = "500ms"
  breaker_cooldown  = "1m"
  breaker_threshold = 2
}

executor {
  inherit_env = ["PATH", "LANG"]
}

observe {
  service_name = "ci"
  logging {
    level = "debug"
  }
}
`
	cfg, err := Parse([]byte(src), "test.hcl", map[string]string{"CACHE_HOME": "/var/cache"})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	want := Default()
	want.Cache.Write = false
	want.Cache.SingleFlight = false
	want.Cache.InlineLimit = -1
	want.Cache.Salt = "v2"
	want.Cache.Platform = map[string]string{"OSFamily": "plan9"}
	want.Store.Root = "/var/cache/pc"
	want.Guard.Timeout = 500 * time.Millisecond
	want.Guard.BreakerCooldown = time.Minute
	want.Guard.BreakerThreshold = 2
	want.Executor.InheritEnv = []string{"PATH", "LANG"}
	want.Observe.ServiceName = "ci"
	want.Observe.Logging.Level = "debug"

	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil, "empty.hcl", nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("Parse(empty) mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
		wantMsg string
	}{
		{
			name:    "syntax",
			src:     `cache {`,
			wantMsg: "parsing",
		},
		{
			name:    "unknown block",
			src:     `remote {}`,
			wantMsg: "decoding",
		},
		{
			name:    "wrong type",
			src:     "cache {\n  read = \"maybe\"\n}",
			wantMsg: "decoding",
		},
		{
			name:    "unknown env variable",
			src:     "store {\n  root = env.NOPE\n}",
			wantMsg: "decoding",
		},
		{
			name:    "bad duration",
			src:     "guard {\n  timeout = \"soon\"\n}",
			wantMsg: "guard.timeout",
		},
		{
			name:    "negative duration",
			src:     "guard {\n  timeout = \"-1s\"\n}",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "empty root",
			src:     "store {\n  root = \"\"\n}",
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "bad log level",
			src:     "observe {\n  logging {\n    level = \"loud\"\n  }\n}",
			wantErr: observe.ErrInvalidLogLevel,
		},
		{
			name:    "bad exporter",
			src:     "observe {\n  metrics {\n    enabled  = true\n    exporter = \"carrier-pigeon\"\n  }\n}",
			wantErr: observe.ErrInvalidMetricsExporter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "bad.hcl", nil)
			if err == nil {
				t.Fatal("Parse() error = nil, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Parse() error = %q, want it to contain %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "proccache.hcl")
	if err := os.WriteFile(path, []byte("cache {\n  salt = \"file\"\n}\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Cache.Salt != "file" {
		t.Errorf("Salt = %q, want %q", cfg.Cache.Salt, "file")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.hcl")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want os.ErrNotExist", err)
	}
}

func TestGuardOptions(t *testing.T) {
	cfg := Default()
	if got := len(cfg.GuardOptions()); got != 4 {
		t.Errorf("len(GuardOptions()) = %d, want 4", got)
	}

	cfg.Guard.RetryAttempts = 1
	cfg.Guard.MaxConcurrent = 0
	if got := len(cfg.GuardOptions()); got != 2 {
		t.Errorf("len(GuardOptions()) without retry/bulkhead = %d, want 2", got)
	}

	cfg.Guard.Enabled = false
	if got := cfg.GuardOptions(); got != nil {
		t.Errorf("GuardOptions() disabled = %d options, want nil", len(got))
	}
}

func TestInheritedEnv(t *testing.T) {
	cfg := Default()
	cfg.Executor.InheritEnv = []string{"PATH", "UNSET"}

	got := cfg.InheritedEnv(map[string]string{"PATH": "/bin", "SECRET": "x"})
	want := map[string]string{"PATH": "/bin"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("InheritedEnv() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuilders(t *testing.T) {
	cfg := Default()
	cfg.Cache.Salt = "s"
	cfg.Cache.InlineLimit = 10
	cfg.Cache.Read = false
	cfg.Cache.BindRoot = false

	if got := cfg.Fingerprint(); got.Salt != "s" || got.Platform["ISA"] != runtime.GOARCH {
		t.Errorf("Fingerprint() = %+v", got)
	}
	if got := cfg.Codec().InlineLimit; got != 10 {
		t.Errorf("Codec().InlineLimit = %d, want 10", got)
	}
	if got := cfg.Policy(); got != (runner.Policy{Read: false, Write: true}) {
		t.Errorf("Policy() = %+v", got)
	}
}

func TestFingerprint_BindRoot(t *testing.T) {
	a := Default()
	a.Executor.Root = t.TempDir()
	b := Default()
	b.Executor.Root = t.TempDir()

	if a.Fingerprint().Salt == b.Fingerprint().Salt {
		t.Error("different executor roots produced the same salt")
	}

	a.Cache.BindRoot = false
	b.Cache.BindRoot = false
	if a.Fingerprint().Salt != b.Fingerprint().Salt {
		t.Error("salt depends on the executor root with bind_root disabled")
	}

	rel := Default()
	rel.Executor.Root = "."
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	abs := Default()
	abs.Executor.Root = wd
	if rel.Fingerprint().Salt != abs.Fingerprint().Salt {
		t.Error("relative and absolute spellings of one root differ")
	}
}

func TestParse_BindRoot(t *testing.T) {
	cfg, err := Parse([]byte("cache {\n  bind_root = false\n}\n"), "test.hcl", nil)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Cache.BindRoot {
		t.Error("bind_root = false was not applied")
	}
}
