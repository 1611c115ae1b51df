package fingerprint

import (
	"maps"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/jonwraymond/proccache/digest"
	"github.com/jonwraymond/proccache/process"
)

// Config configures a Fingerprinter.
type Config struct {
	// Platform holds default platform properties. Properties set on a
	// request override these by name.
	Platform map[string]string

	// Salt separates otherwise identical actions. Changing it invalidates
	// every cache entry keyed by this Fingerprinter.
	Salt string
}

// Fingerprinter computes deterministic digests of execution requests.
//
// Contract:
//   - Determinism: structurally equal requests produce equal digests
//     regardless of map iteration or output ordering.
//   - Concurrency: safe for concurrent use; it holds no mutable state.
//   - Errors: only *MalformedRequestError is returned.
type Fingerprinter struct {
	platform map[string]string
	salt     string
}

// New creates a Fingerprinter.
func New(cfg Config) *Fingerprinter {
	return &Fingerprinter{
		platform: maps.Clone(cfg.Platform),
		salt:     cfg.Salt,
	}
}

// Default returns a Fingerprinter with no default platform and no salt.
func Default() *Fingerprinter {
	return New(Config{})
}

// Fingerprint returns the digest of the canonical Action for req.
func (f *Fingerprinter) Fingerprint(req process.Request) (digest.Digest, error) {
	action, err := f.Action(req)
	if err != nil {
		return digest.Digest{}, err
	}
	return digest.Of(action.Marshal()), nil
}

// Action canonicalizes req.
func (f *Fingerprinter) Action(req process.Request) (Action, error) {
	cmd, err := f.command(req)
	if err != nil {
		return Action{}, err
	}

	inputRoot := req.InputRoot
	if inputRoot.IsZero() {
		inputRoot = digest.Empty
	} else if err := inputRoot.Validate(); err != nil {
		return Action{}, &MalformedRequestError{Field: "input_root", Reason: "cannot resolve input tree", Err: err}
	}

	if req.Timeout < 0 {
		return Action{}, malformed("timeout", "negative timeout %s", req.Timeout)
	}

	return Action{
		Command:       cmd,
		CommandDigest: digest.Of(cmd.Marshal()),
		InputRoot:     inputRoot,
		Timeout:       req.Timeout,
		Salt:          f.salt,
	}, nil
}

func (f *Fingerprinter) command(req process.Request) (Command, error) {
	if len(req.Argv) == 0 {
		return Command{}, malformed("argv", "command is empty")
	}
	if req.Argv[0] == "" {
		return Command{}, malformed("argv", "program is empty")
	}

	env := make([]Property, 0, len(req.Env))
	for name, value := range req.Env {
		if name == "" || strings.ContainsAny(name, "=\x00") {
			return Command{}, malformed("env", "invalid variable name %q", name)
		}
		env = append(env, Property{Name: name, Value: value})
	}
	sortProperties(env)

	merged := maps.Clone(f.platform)
	if merged == nil {
		merged = make(map[string]string, len(req.Platform))
	}
	maps.Copy(merged, req.Platform)
	platform := make([]Property, 0, len(merged))
	for name, value := range merged {
		if name == "" {
			return Command{}, malformed("platform", "empty property name")
		}
		platform = append(platform, Property{Name: name, Value: value})
	}
	sortProperties(platform)

	seen := make(map[string]string)
	files, err := cleanOutputs("output_files", req.OutputFiles, seen)
	if err != nil {
		return Command{}, err
	}
	dirs, err := cleanOutputs("output_directories", req.OutputDirectories, seen)
	if err != nil {
		return Command{}, err
	}

	wd := ""
	if req.WorkingDirectory != "" {
		wd, err = cleanRelative(req.WorkingDirectory)
		if err != nil {
			return Command{}, malformed("working_directory", "%v", err)
		}
		if wd == "." {
			wd = ""
		}
	}

	return Command{
		Arguments:         slices.Clone(req.Argv),
		Env:               env,
		OutputFiles:       files,
		OutputDirectories: dirs,
		Platform:          platform,
		WorkingDirectory:  wd,
	}, nil
}

func cleanOutputs(field string, paths []string, seen map[string]string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		clean, err := cleanRelative(p)
		if err != nil {
			return nil, malformed(field, "%v", err)
		}
		if clean == "." {
			return nil, malformed(field, "output path %q names the working directory", p)
		}
		if prev, dup := seen[clean]; dup {
			return nil, malformed(field, "duplicate output path %q (also declared in %s)", p, prev)
		}
		seen[clean] = field
		out = append(out, clean)
	}
	slices.Sort(out)
	return out, nil
}

type pathError string

func (e pathError) Error() string { return string(e) }

func cleanRelative(p string) (string, error) {
	if p == "" {
		return "", pathError("empty path")
	}
	if strings.ContainsRune(p, '\x00') {
		return "", pathError("path contains NUL")
	}
	slashed := strings.ReplaceAll(p, `\`, "/")
	if path.IsAbs(slashed) || (len(slashed) > 1 && slashed[1] == ':') {
		return "", pathError("path " + p + " is absolute")
	}
	clean := path.Clean(slashed)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", pathError("path " + p + " escapes the working directory")
	}
	return clean, nil
}

func sortProperties(props []Property) {
	slices.SortFunc(props, func(a, b Property) int {
		if c := strings.Compare(a.Name, b.Name); c != 0 {
			return c
		}
		return strings.Compare(a.Value, b.Value)
	})
}

// timeoutParts splits d into the seconds and nanos of a protobuf Duration.
func timeoutParts(d time.Duration) (int64, int32) {
	return int64(d / time.Second), int32(d % time.Second)
}
