package process

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
)

// waitDelay bounds how long Run waits for output pipes after the process
// is killed, in case a grandchild still holds them open.
const waitDelay = 2 * time.Second

// LocalExecutor runs processes on the local machine.
//
// The process environment is built only from Request.Env; variables of the
// calling process are not inherited. Declared outputs are hashed into an
// output tree after the process exits, and their contents are written to
// Blobs when it is set.
type LocalExecutor struct {
	// Root is the directory Request.WorkingDirectory is resolved against.
	Root string

	// Blobs receives output file contents and the encoded output tree.
	// May be nil.
	Blobs BlobWriter

	// Name identifies this executor in Attempt records. Default: "local".
	Name string

	host string
}

// NewLocalExecutor creates a LocalExecutor rooted at root.
func NewLocalExecutor(root string, blobs BlobWriter) *LocalExecutor {
	host, _ := os.Hostname()
	return &LocalExecutor{
		Root:  root,
		Blobs: blobs,
		Name:  "local",
		host:  host,
	}
}

// Run executes req and waits for it to exit.
func (e *LocalExecutor) Run(ctx context.Context, req Request) (Result, error) {
	if len(req.Argv) == 0 || req.Argv[0] == "" {
		return Result{}, e.fail("start", ErrEmptyCommand)
	}

	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	dir := filepath.Join(e.Root, filepath.FromSlash(req.WorkingDirectory))

	cmd := exec.CommandContext(runCtx, req.Argv[0], req.Argv[1:]...)
	cmd.Dir = dir
	cmd.Env = allowlistEnv(req.Env)
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	attempt := Attempt{
		ID:        uuid.NewString(),
		Executor:  e.name(),
		Host:      e.host,
		StartedAt: time.Now().UTC(),
	}
	runErr := cmd.Run()
	attempt.CompletedAt = time.Now().UTC()

	// Cancellation wins over whatever exit status the killed process reported.
	if ctx.Err() != nil {
		return Result{}, e.fail("wait", ctx.Err())
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return Result{}, e.fail("wait", ErrTimeout)
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return Result{}, e.fail("start", runErr)
		}
		exitCode = exitErr.ExitCode()
		if exitCode < 0 {
			return Result{}, e.fail("wait", runErr)
		}
	}

	tree, err := collectOutputs(ctx, dir, req, e.Blobs)
	if err != nil {
		return Result{}, e.fail("collect outputs", err)
	}

	return Result{
		Stdout:     stdout.Bytes(),
		Stderr:     stderr.Bytes(),
		ExitCode:   exitCode,
		OutputRoot: tree.Digest(),
		Attempts:   []Attempt{attempt},
	}, nil
}

func (e *LocalExecutor) name() string {
	if e.Name == "" {
		return "local"
	}
	return e.Name
}

func (e *LocalExecutor) fail(op string, err error) error {
	return &ExecutorError{Executor: e.name(), Op: op, Err: err}
}

// allowlistEnv renders env as a sorted KEY=VALUE list. The result is never
// nil, so exec.Cmd does not fall back to the parent environment.
func allowlistEnv(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// Ensure LocalExecutor implements Executor
var _ Executor = (*LocalExecutor)(nil)
