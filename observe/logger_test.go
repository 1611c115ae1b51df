package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLogger_WritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "cache hit", Field{Key: "outcome", Value: "hit"})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e["msg"] != "cache hit" || e["level"] != "info" || e["outcome"] != "hit" {
		t.Errorf("unexpected entry: %v", e)
	}
	if _, ok := e["timestamp"]; !ok {
		t.Error("missing timestamp")
	}
}

func TestLogger_LevelFilter(t *testing.T) {
	tests := []struct {
		level string
		want  int
	}{
		{"debug", 4},
		{"info", 3},
		{"warn", 2},
		{"error", 1},
		{"bogus", 3},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(tt.level, &buf)
			ctx := context.Background()

			logger.Debug(ctx, "d")
			logger.Info(ctx, "i")
			logger.Warn(ctx, "w")
			logger.Error(ctx, "e")

			if got := len(decodeLines(t, &buf)); got != tt.want {
				t.Errorf("got %d lines, want %d", got, tt.want)
			}
		})
	}
}

func TestLogger_WithRun(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerWithWriter("info", &buf)
	logger := base.WithRun(RunMeta{
		Fingerprint: "abc/3",
		Command:     "echo hi",
		Description: "greeting",
	})

	logger.Info(context.Background(), "cache miss")
	base.Info(context.Background(), "unscoped")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	scoped := entries[0]
	if scoped["run.fingerprint"] != "abc/3" || scoped["run.command"] != "echo hi" || scoped["run.description"] != "greeting" {
		t.Errorf("scoped entry missing run fields: %v", scoped)
	}
	if _, ok := scoped["run.executor"]; ok {
		t.Error("empty executor should be omitted")
	}
	if _, ok := entries[1]["run.command"]; ok {
		t.Error("WithRun leaked fields into the parent logger")
	}
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)

	logger.Info(context.Background(), "run",
		Field{Key: "env", Value: map[string]string{"AWS_SECRET": "x"}},
		Field{Key: "token", Value: "t0ken"},
		Field{Key: "exit_code", Value: 0},
	)

	e := decodeLines(t, &buf)[0]
	if e["env"] != "[REDACTED]" || e["token"] != "[REDACTED]" {
		t.Errorf("sensitive fields not redacted: %v", e)
	}
	if e["exit_code"] != float64(0) {
		t.Errorf("exit_code = %v, want 0", e["exit_code"])
	}
}

func TestLogger_ConcurrentLinesDoNotInterleave(t *testing.T) {
	var buf bytes.Buffer
	base := NewLoggerWithWriter("info", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			base.WithRun(RunMeta{Command: "job"}).Info(context.Background(), "line", Field{Key: "i", Value: i})
		}(i)
	}
	wg.Wait()

	if got := len(decodeLines(t, &buf)); got != 20 {
		t.Errorf("got %d lines, want 20", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	for _, s := range []string{"debug", "info", "warn", "error"} {
		if got := ParseLogLevel(s).String(); got != s {
			t.Errorf("ParseLogLevel(%q).String() = %q", s, got)
		}
	}
}
