package observe

import (
	"go.opentelemetry.io/otel/attribute"

	"github.com/jonwraymond/proccache/process"
)

// Span names.
const (
	SpanRun  = "proccache.run"
	SpanExec = "proccache.exec"
)

// RunMeta describes one request for telemetry purposes.
type RunMeta struct {
	Fingerprint string // digest string, empty until computed
	Command     string
	Description string
	Executor    string
}

// MetaFor builds RunMeta from a request.
func MetaFor(req process.Request) RunMeta {
	return RunMeta{
		Command:     req.Command(),
		Description: req.Description,
	}
}

func (m RunMeta) fields() []Field {
	fields := []Field{{Key: "run.command", Value: m.Command}}
	if m.Fingerprint != "" {
		fields = append(fields, Field{Key: "run.fingerprint", Value: m.Fingerprint})
	}
	if m.Description != "" {
		fields = append(fields, Field{Key: "run.description", Value: m.Description})
	}
	if m.Executor != "" {
		fields = append(fields, Field{Key: "run.executor", Value: m.Executor})
	}
	return fields
}

func (m RunMeta) attributes() []attribute.KeyValue {
	fields := m.fields()
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, attribute.String(f.Key, f.Value.(string)))
	}
	return attrs
}
