package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jonwraymond/proccache/digest"
)

// Request describes a process to run.
type Request struct {
	// Argv is the command line. Argv[0] is the program.
	Argv []string

	// Env is the complete environment of the process. Nothing is inherited.
	Env map[string]string

	// InputRoot references the input file tree the process may read.
	// The zero Digest means "no inputs" and is treated as the empty tree.
	InputRoot digest.Digest

	// OutputFiles and OutputDirectories are paths, relative to the working
	// directory, that the process is expected to produce.
	OutputFiles       []string
	OutputDirectories []string

	// WorkingDirectory is relative to the input root. Empty means the root.
	WorkingDirectory string

	// Timeout bounds execution. Zero means no limit.
	Timeout time.Duration

	// Platform carries properties that select where the process may run,
	// for example OSFamily or ISA.
	Platform map[string]string

	// Description is a human-readable label. It never affects identity.
	Description string
}

// Command returns Argv joined for display.
func (r Request) Command() string {
	return strings.Join(r.Argv, " ")
}

// Attempt records one attempt at running a process.
type Attempt struct {
	ID          string
	Executor    string
	Host        string
	StartedAt   time.Time
	CompletedAt time.Time
}

// Duration returns how long the attempt ran.
func (a Attempt) Duration() time.Duration {
	if a.StartedAt.IsZero() || a.CompletedAt.IsZero() {
		return 0
	}
	return a.CompletedAt.Sub(a.StartedAt)
}

// Result is the outcome of a completed execution. A non-zero ExitCode is a
// valid outcome, not an error.
type Result struct {
	Stdout     []byte
	Stderr     []byte
	ExitCode   int
	OutputRoot digest.Digest
	Attempts   []Attempt
}

// Equal reports whether r and other describe the same outcome. Nil and
// empty byte slices are equal; attempt times are compared with time.Equal.
func (r Result) Equal(other Result) bool {
	if r.ExitCode != other.ExitCode || r.OutputRoot != other.OutputRoot {
		return false
	}
	if !bytes.Equal(r.Stdout, other.Stdout) || !bytes.Equal(r.Stderr, other.Stderr) {
		return false
	}
	return slices.EqualFunc(r.Attempts, other.Attempts, func(a, b Attempt) bool {
		return a.ID == b.ID &&
			a.Executor == b.Executor &&
			a.Host == b.Host &&
			a.StartedAt.Equal(b.StartedAt) &&
			a.CompletedAt.Equal(b.CompletedAt)
	})
}

// Clone returns a deep copy of r.
func (r Result) Clone() Result {
	out := r
	out.Stdout = bytes.Clone(r.Stdout)
	out.Stderr = bytes.Clone(r.Stderr)
	out.Attempts = slices.Clone(r.Attempts)
	return out
}

// CloneRequest returns a deep copy of req.
func CloneRequest(req Request) Request {
	out := req
	out.Argv = slices.Clone(req.Argv)
	out.Env = maps.Clone(req.Env)
	out.OutputFiles = slices.Clone(req.OutputFiles)
	out.OutputDirectories = slices.Clone(req.OutputDirectories)
	out.Platform = maps.Clone(req.Platform)
	return out
}

// Executor runs processes.
//
// Contract:
//   - Concurrency: implementations must be safe for concurrent use.
//   - Context: Run must honor cancellation and return promptly once ctx is done.
//   - Errors: an error means the process could not be run to completion;
//     a process that ran and exited non-zero is reported through Result.ExitCode.
type Executor interface {
	Run(ctx context.Context, req Request) (Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, req Request) (Result, error)

// Run calls f(ctx, req).
func (f ExecutorFunc) Run(ctx context.Context, req Request) (Result, error) {
	return f(ctx, req)
}

// Sentinel errors for process execution.
var (
	ErrEmptyCommand = errors.New("process: command is empty")
	ErrTimeout      = errors.New("process: execution timed out")
)

// ExecutorError reports an infrastructure failure to run a process.
type ExecutorError struct {
	Executor string
	Op       string
	Err      error
}

func (e *ExecutorError) Error() string {
	return fmt.Sprintf("process: %s executor: %s: %v", e.Executor, e.Op, e.Err)
}

func (e *ExecutorError) Unwrap() error {
	return e.Err
}
