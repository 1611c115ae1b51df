package process

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
}

func TestLocalExecutor_EchoHi(t *testing.T) {
	requireShell(t)
	exec := NewLocalExecutor(t.TempDir(), nil)

	res, err := exec.Run(context.Background(), Request{Argv: []string{"/bin/sh", "-c", "echo hi"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(res.Stdout) != "hi\n" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "hi\n")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if len(res.Attempts) != 1 || res.Attempts[0].Executor != "local" || res.Attempts[0].ID == "" {
		t.Errorf("Attempts = %+v", res.Attempts)
	}
}

func TestLocalExecutor_NonZeroExitIsResult(t *testing.T) {
	requireShell(t)
	exec := NewLocalExecutor(t.TempDir(), nil)

	res, err := exec.Run(context.Background(), Request{Argv: []string{"/bin/sh", "-c", "echo oops >&2; exit 3"}})
	if err != nil {
		t.Fatalf("Run() error = %v, non-zero exit should not be an error", err)
	}
	if res.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", res.ExitCode)
	}
	if string(res.Stderr) != "oops\n" {
		t.Errorf("Stderr = %q", res.Stderr)
	}
}

func TestLocalExecutor_EnvAllowlist(t *testing.T) {
	requireShell(t)
	t.Setenv("PROCCACHE_LEAK", "visible")
	exec := NewLocalExecutor(t.TempDir(), nil)

	res, err := exec.Run(context.Background(), Request{
		Argv: []string{"/bin/sh", "-c", `echo "[$PROCCACHE_LEAK][$GREETING]"`},
		Env:  map[string]string{"GREETING": "hello"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if string(res.Stdout) != "[][hello]\n" {
		t.Errorf("Stdout = %q, want only declared env", res.Stdout)
	}
}

func TestLocalExecutor_CollectsOutputs(t *testing.T) {
	requireShell(t)
	root := t.TempDir()
	blobs := newBlobMap()
	exec := NewLocalExecutor(root, blobs)

	res, err := exec.Run(context.Background(), Request{
		Argv:              []string{"/bin/sh", "-c", "printf one > a.txt; mkdir -p gen; printf two > gen/b.txt"},
		Env:               map[string]string{"PATH": os.Getenv("PATH")},
		OutputFiles:       []string{"a.txt", "missing.txt"},
		OutputDirectories: []string{"gen"},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	encoded, ok, _ := blobs.Get(context.Background(), res.OutputRoot)
	if !ok {
		t.Fatal("output tree blob was not stored")
	}
	tree, err := UnmarshalTree(encoded)
	if err != nil {
		t.Fatalf("UnmarshalTree() error = %v", err)
	}
	if len(tree.Files) != 2 || tree.Files[0].Path != "a.txt" || tree.Files[1].Path != "gen/b.txt" {
		t.Fatalf("tree files = %+v", tree.Files)
	}

	dest := t.TempDir()
	if err := Materialize(context.Background(), blobs, res.OutputRoot, dest); err != nil {
		t.Fatalf("Materialize() error = %v", err)
	}
	got, _ := os.ReadFile(filepath.Join(dest, "gen", "b.txt"))
	if string(got) != "two" {
		t.Errorf("materialized gen/b.txt = %q", got)
	}
}

func TestLocalExecutor_NoOutputsHasEmptyTree(t *testing.T) {
	requireShell(t)
	exec := NewLocalExecutor(t.TempDir(), nil)

	res, err := exec.Run(context.Background(), Request{Argv: []string{"/bin/sh", "-c", "true"}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.OutputRoot != (Tree{}).Digest() {
		t.Errorf("OutputRoot = %v, want empty tree", res.OutputRoot)
	}
}

func TestLocalExecutor_EmptyCommand(t *testing.T) {
	exec := NewLocalExecutor(t.TempDir(), nil)

	_, err := exec.Run(context.Background(), Request{})
	var execErr *ExecutorError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run() error = %v, want *ExecutorError", err)
	}
	if !errors.Is(err, ErrEmptyCommand) {
		t.Errorf("Run() error = %v, want ErrEmptyCommand", err)
	}
}

func TestLocalExecutor_MissingBinary(t *testing.T) {
	exec := NewLocalExecutor(t.TempDir(), nil)

	_, err := exec.Run(context.Background(), Request{Argv: []string{"/definitely/not/a/binary"}})
	var execErr *ExecutorError
	if !errors.As(err, &execErr) {
		t.Fatalf("Run() error = %v, want *ExecutorError", err)
	}
	if execErr.Op != "start" {
		t.Errorf("Op = %q, want start", execErr.Op)
	}
}

func TestLocalExecutor_Timeout(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	ex := NewLocalExecutor(t.TempDir(), nil)

	start := time.Now()
	_, err = ex.Run(context.Background(), Request{
		Argv:    []string{sleep, "5"},
		Timeout: 50 * time.Millisecond,
	})
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Run() error = %v, want ErrTimeout", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Error("timeout did not stop the process promptly")
	}
}

func TestLocalExecutor_Cancelled(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}
	ex := NewLocalExecutor(t.TempDir(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err = ex.Run(ctx, Request{Argv: []string{sleep, "5"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}
