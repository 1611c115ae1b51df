// Command proccache runs processes through a local result cache.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// ExitError carries a specific exit code. An empty Message prints nothing.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Message
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:])
	stop()

	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			if exitErr.Message != "" {
				fmt.Fprintln(os.Stderr, exitErr.Message)
			}
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run parses global flags and dispatches to a subcommand.
func run(ctx context.Context, outW, errW io.Writer, args []string) error {
	opts, rest, err := parseGlobal(args, errW)
	if err != nil {
		return err
	}
	if len(rest) == 0 {
		printUsage(errW)
		return &ExitError{Code: 2}
	}

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "run":
		return runCommand(ctx, opts, outW, errW, cmdArgs)
	case "fingerprint":
		return fingerprintCommand(ctx, opts, outW, errW, cmdArgs)
	case "health":
		return healthCommand(ctx, opts, outW, errW, cmdArgs)
	case "help":
		printUsage(outW)
		return nil
	default:
		return &ExitError{Code: 2, Message: fmt.Sprintf("unknown command %q", cmd)}
	}
}
