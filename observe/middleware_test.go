package observe

import (
	"bytes"
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/proccache/process"
)

type testHarness struct {
	mw     *Middleware
	spans  *tracetest.InMemoryExporter
	reader *sdkmetric.ManualReader
	logs   *bytes.Buffer
}

func newHarness(t *testing.T) testHarness {
	t.Helper()
	spans := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(spans))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	metrics, err := NewMetrics(mp.Meter("test"))
	if err != nil {
		t.Fatal(err)
	}
	logs := &bytes.Buffer{}
	return testHarness{
		mw:     NewMiddleware(NewTracer(tp.Tracer("test")), metrics, NewLoggerWithWriter("debug", logs)),
		spans:  spans,
		reader: reader,
		logs:   logs,
	}
}

func TestMiddleware_Success(t *testing.T) {
	h := newHarness(t)
	want := process.Result{Stdout: []byte("hi\n")}
	next := process.ExecutorFunc(func(context.Context, process.Request) (process.Result, error) {
		return want, nil
	})

	exec, err := h.mw.Wrap("local", next)
	if err != nil {
		t.Fatal(err)
	}
	got, err := exec.Run(context.Background(), process.Request{Argv: []string{"echo", "hi"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !got.Equal(want) {
		t.Error("result was modified")
	}

	spans := h.spans.GetSpans()
	if len(spans) != 1 || spans[0].Name != SpanExec {
		t.Fatalf("spans = %v", spans)
	}
	rm := collect(t, h.reader)
	if got := counterByAttr(t, rm, MetricExecTotal, "run.executor", "local"); got != 1 {
		t.Errorf("exec total = %d, want 1", got)
	}
	entries := decodeLines(t, h.logs)
	if len(entries) != 1 || entries[0]["msg"] != "process execution completed" || entries[0]["run.command"] != "echo hi" {
		t.Errorf("log entries = %v", entries)
	}
}

func TestMiddleware_ErrorPassesThrough(t *testing.T) {
	h := newHarness(t)
	runErr := errors.New("spawn failed")
	next := process.ExecutorFunc(func(context.Context, process.Request) (process.Result, error) {
		return process.Result{}, runErr
	})

	exec, _ := h.mw.Wrap("local", next)
	if _, err := exec.Run(context.Background(), process.Request{Argv: []string{"x"}}); !errors.Is(err, runErr) {
		t.Fatalf("Run() error = %v, want %v", err, runErr)
	}

	rm := collect(t, h.reader)
	if got := counterByAttr(t, rm, MetricExecErrors, "run.executor", "local"); got != 1 {
		t.Errorf("exec errors = %d, want 1", got)
	}
	entries := decodeLines(t, h.logs)
	if len(entries) != 1 || entries[0]["level"] != "error" || entries[0]["error"] != "spawn failed" {
		t.Errorf("log entries = %v", entries)
	}
}

func TestMiddleware_NilExecutor(t *testing.T) {
	if _, err := NewMiddleware(nil, nil, nil).Wrap("x", nil); !errors.Is(err, ErrNilExecutor) {
		t.Errorf("Wrap(nil) error = %v, want ErrNilExecutor", err)
	}
}

func TestMiddlewareFromObserver(t *testing.T) {
	if _, err := MiddlewareFromObserver(nil); !errors.Is(err, ErrNilObserver) {
		t.Errorf("error = %v, want ErrNilObserver", err)
	}

	obs, err := NewObserver(context.Background(), Config{ServiceName: "test"})
	if err != nil {
		t.Fatal(err)
	}
	if mw, err := MiddlewareFromObserver(obs); err != nil || mw == nil {
		t.Errorf("MiddlewareFromObserver() = (%v, %v)", mw, err)
	}
}
