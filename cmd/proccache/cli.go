package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonwraymond/proccache/config"
	"github.com/jonwraymond/proccache/digest"
	"github.com/jonwraymond/proccache/fingerprint"
	"github.com/jonwraymond/proccache/health"
	"github.com/jonwraymond/proccache/process"
)

const usage = `
proccache - run processes through a local result cache.

Usage:
  proccache [options] run [request flags] [-desc text] [-refresh] -- argv...
  proccache [options] fingerprint [request flags] -- argv...
  request flags: [-timeout d] [-input path]... [-output path]... [-output-dir path]...
  proccache [options] health [-serve addr]

Options:
`

type globalOptions struct {
	configPath string
	storeRoot  string
	logLevel   string
}

func printUsage(w io.Writer) {
	fs := globalFlags(w, &globalOptions{})
	fmt.Fprint(w, usage)
	fs.PrintDefaults()
}

func globalFlags(w io.Writer, opts *globalOptions) *flag.FlagSet {
	fs := flag.NewFlagSet("proccache", flag.ContinueOnError)
	fs.SetOutput(w)
	fs.StringVar(&opts.configPath, "config", "", "Path to an HCL configuration file.")
	fs.StringVar(&opts.storeRoot, "store", "", "Store root directory. Overrides store.root.")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error. Overrides observe.logging.level.")
	return fs
}

func parseGlobal(args []string, errW io.Writer) (globalOptions, []string, error) {
	var opts globalOptions
	fs := globalFlags(errW, &opts)
	fs.Usage = func() { printUsage(errW) }
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, nil, &ExitError{Code: 0}
		}
		return opts, nil, &ExitError{Code: 2, Message: err.Error()}
	}
	return opts, fs.Args(), nil
}

// loadConfig reads the configuration file, if any, and applies flag overrides.
func (o globalOptions) loadConfig() (config.Config, error) {
	cfg := config.Default()
	if o.configPath != "" {
		var err error
		if cfg, err = config.Load(o.configPath); err != nil {
			return config.Config{}, err
		}
	}
	if o.storeRoot != "" {
		cfg.Store.Root = o.storeRoot
	}
	if o.logLevel != "" {
		cfg.Observe.Logging.Enabled = true
		cfg.Observe.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

type requestFlags struct {
	desc       string
	timeout    time.Duration
	refresh    bool
	inputs     stringList
	outputs    stringList
	outputDirs stringList
}

// stringList is a repeatable string flag.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func parseRequest(name string, args []string, errW io.Writer, withRun bool) (requestFlags, []string, error) {
	var rf requestFlags
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(errW)
	fs.DurationVar(&rf.timeout, "timeout", 0, "Kill the process after this long. Part of the cache key.")
	fs.Var(&rf.inputs, "input", "File or directory the process reads, relative to the executor root. Its contents are part of the cache key. Repeatable.")
	fs.Var(&rf.outputs, "output", "File the process produces, restored on a cache hit. Repeatable.")
	fs.Var(&rf.outputDirs, "output-dir", "Directory the process produces, restored on a cache hit. Repeatable.")
	if withRun {
		fs.StringVar(&rf.desc, "desc", "", "Human-readable label for logs. Not part of the cache key.")
		fs.BoolVar(&rf.refresh, "refresh", false, "Skip the cache lookup but store the fresh result.")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return rf, nil, &ExitError{Code: 0}
		}
		return rf, nil, &ExitError{Code: 2, Message: err.Error()}
	}
	if fs.NArg() == 0 {
		return rf, nil, &ExitError{Code: 2, Message: name + ": missing command after --"}
	}
	for _, p := range rf.inputs {
		if !filepath.IsLocal(p) {
			return rf, nil, &ExitError{Code: 2, Message: fmt.Sprintf("%s: input %q is not inside the executor root", name, p)}
		}
	}
	return rf, fs.Args(), nil
}

// buildRequest hashes the declared inputs into the request's input root.
// When blobs is non-nil the input tree is stored there as well.
func buildRequest(ctx context.Context, cfg config.Config, rf requestFlags, argv []string, blobs process.BlobWriter) (process.Request, error) {
	inputRoot, err := captureInputs(ctx, cfg.Executor.Root, rf.inputs, blobs)
	if err != nil {
		return process.Request{}, err
	}
	return process.Request{
		Argv:              argv,
		Env:               cfg.InheritedEnv(config.Environ()),
		InputRoot:         inputRoot,
		OutputFiles:       rf.outputs,
		OutputDirectories: rf.outputDirs,
		Timeout:           rf.timeout,
		Description:       rf.desc,
	}, nil
}

// captureInputs fails on a missing input; an input that silently vanished
// would otherwise key the run as if it never existed.
func captureInputs(ctx context.Context, root string, inputs []string, blobs process.BlobWriter) (digest.Digest, error) {
	var files, dirs []string
	for _, p := range inputs {
		info, err := os.Stat(filepath.Join(root, p))
		if err != nil {
			return digest.Digest{}, fmt.Errorf("input %s: %w", p, err)
		}
		if info.IsDir() {
			dirs = append(dirs, p)
		} else {
			files = append(files, p)
		}
	}
	tree, err := process.CaptureTree(ctx, root, files, dirs, blobs)
	if err != nil {
		return digest.Digest{}, fmt.Errorf("capturing inputs: %w", err)
	}
	return tree.Digest(), nil
}

func runCommand(ctx context.Context, opts globalOptions, outW, errW io.Writer, args []string) (err error) {
	rf, argv, err := parseRequest("run", args, errW, true)
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	if rf.refresh {
		cfg.Cache.Read = false
	}

	s, err := newStack(ctx, cfg, errW)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	req, err := buildRequest(ctx, cfg, rf, argv, s.blobs)
	if err != nil {
		return err
	}
	result, err := s.runner.Run(ctx, req)
	if err != nil {
		return err
	}
	// A hit carries only the output tree; write its files back.
	if err := process.Materialize(ctx, s.blobs, result.OutputRoot, cfg.Executor.Root); err != nil {
		return fmt.Errorf("restoring outputs: %w", err)
	}

	if _, err := outW.Write(result.Stdout); err != nil {
		return err
	}
	if _, err := errW.Write(result.Stderr); err != nil {
		return err
	}
	if result.ExitCode != 0 {
		return &ExitError{Code: result.ExitCode}
	}
	return nil
}

func fingerprintCommand(ctx context.Context, opts globalOptions, outW, errW io.Writer, args []string) error {
	rf, argv, err := parseRequest("fingerprint", args, errW, false)
	if err != nil {
		return err
	}
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	req, err := buildRequest(ctx, cfg, rf, argv, nil)
	if err != nil {
		return err
	}
	d, err := fingerprint.New(cfg.Fingerprint()).Fingerprint(req)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(outW, d)
	return err
}

func healthCommand(ctx context.Context, opts globalOptions, outW, errW io.Writer, args []string) (err error) {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(errW)
	addr := fs.String("serve", "", "Serve /healthz, /readyz and /health on this address instead of printing a report.")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return &ExitError{Code: 0}
		}
		return &ExitError{Code: 2, Message: err.Error()}
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	s, err := newStack(ctx, cfg, errW)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, s.close()) }()

	agg := s.aggregator()
	if *addr != "" {
		return serveHealth(ctx, *addr, agg)
	}

	report := agg.Report(ctx)
	enc := json.NewEncoder(outW)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return err
	}
	if report.Status == health.StatusUnhealthy.String() {
		return &ExitError{Code: 1}
	}
	return nil
}

func serveHealth(ctx context.Context, addr string, agg *health.Aggregator) error {
	mux := http.NewServeMux()
	health.RegisterHandlers(mux, agg)

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
