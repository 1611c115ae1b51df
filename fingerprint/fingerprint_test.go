package fingerprint

import (
	"errors"
	"testing"
	"time"

	"github.com/jonwraymond/proccache/digest"
	"github.com/jonwraymond/proccache/process"
)

func mustFingerprint(t *testing.T, f *Fingerprinter, req process.Request) digest.Digest {
	t.Helper()
	d, err := f.Fingerprint(req)
	if err != nil {
		t.Fatalf("Fingerprint() error = %v", err)
	}
	return d
}

func TestFingerprint_DeterministicAcrossFieldOrder(t *testing.T) {
	f := Default()

	r1 := process.Request{
		Argv:              []string{"cc", "-c", "a.c"},
		Env:               map[string]string{"B": "2", "A": "1", "C": "3"},
		OutputFiles:       []string{"z.o", "a.o"},
		OutputDirectories: []string{"gen", "aux"},
		Platform:          map[string]string{"OSFamily": "linux", "ISA": "x86-64"},
	}
	r2 := process.Request{
		Argv:              []string{"cc", "-c", "a.c"},
		Env:               map[string]string{"C": "3", "A": "1", "B": "2"},
		OutputFiles:       []string{"a.o", "z.o"},
		OutputDirectories: []string{"aux", "gen"},
		Platform:          map[string]string{"ISA": "x86-64", "OSFamily": "linux"},
	}

	if mustFingerprint(t, f, r1) != mustFingerprint(t, f, r2) {
		t.Error("structurally equal requests produced different fingerprints")
	}
}

func TestFingerprint_RepeatedCallsStable(t *testing.T) {
	f := Default()
	req := process.Request{Argv: []string{"echo", "hi"}, Env: map[string]string{"X": "1", "Y": "2"}}

	first := mustFingerprint(t, f, req)
	for i := 0; i < 20; i++ {
		if got := mustFingerprint(t, f, req); got != first {
			t.Fatalf("iteration %d: %v != %v", i, got, first)
		}
	}
}

func TestFingerprint_DescriptionIgnored(t *testing.T) {
	f := Default()
	a := process.Request{Argv: []string{"echo", "hi"}, Description: "first"}
	b := process.Request{Argv: []string{"echo", "hi"}, Description: "second"}

	if mustFingerprint(t, f, a) != mustFingerprint(t, f, b) {
		t.Error("description changed the fingerprint")
	}
}

func TestFingerprint_EquivalentPaths(t *testing.T) {
	f := Default()
	a := process.Request{Argv: []string{"x"}, OutputFiles: []string{"./out/a.txt"}, WorkingDirectory: "src/"}
	b := process.Request{Argv: []string{"x"}, OutputFiles: []string{"out/a.txt"}, WorkingDirectory: "src"}

	if mustFingerprint(t, f, a) != mustFingerprint(t, f, b) {
		t.Error("equivalent relative paths produced different fingerprints")
	}
}

func TestFingerprint_ZeroInputRootIsEmptyTree(t *testing.T) {
	f := Default()
	a := process.Request{Argv: []string{"x"}}
	b := process.Request{Argv: []string{"x"}, InputRoot: digest.Empty}

	if mustFingerprint(t, f, a) != mustFingerprint(t, f, b) {
		t.Error("zero input root should be treated as the empty tree")
	}
}

func TestFingerprint_SensitiveToSemanticChanges(t *testing.T) {
	f := Default()
	base := process.Request{
		Argv:        []string{"echo", "hi"},
		Env:         map[string]string{"A": "1"},
		OutputFiles: []string{"out"},
		Platform:    map[string]string{"OSFamily": "linux"},
	}
	baseDigest := mustFingerprint(t, f, base)

	tests := []struct {
		name   string
		mutate func(*process.Request)
	}{
		{"argv value", func(r *process.Request) { r.Argv = []string{"echo", "ho"} }},
		{"argv order", func(r *process.Request) { r.Argv = []string{"hi", "echo"} }},
		{"env value", func(r *process.Request) { r.Env = map[string]string{"A": "2"} }},
		{"env added", func(r *process.Request) { r.Env = map[string]string{"A": "1", "B": ""} }},
		{"output file", func(r *process.Request) { r.OutputFiles = []string{"other"} }},
		{"output kind", func(r *process.Request) {
			r.OutputFiles = nil
			r.OutputDirectories = []string{"out"}
		}},
		{"platform", func(r *process.Request) { r.Platform = map[string]string{"OSFamily": "darwin"} }},
		{"input root", func(r *process.Request) { r.InputRoot = digest.Of([]byte("tree")) }},
		{"timeout", func(r *process.Request) { r.Timeout = time.Minute }},
		{"working directory", func(r *process.Request) { r.WorkingDirectory = "sub" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := process.CloneRequest(base)
			tt.mutate(&req)
			if mustFingerprint(t, f, req) == baseDigest {
				t.Errorf("changing %s did not change the fingerprint", tt.name)
			}
		})
	}
}

func TestFingerprint_PlatformDefaults(t *testing.T) {
	linux := New(Config{Platform: map[string]string{"OSFamily": "linux"}})
	darwin := New(Config{Platform: map[string]string{"OSFamily": "darwin"}})
	req := process.Request{Argv: []string{"uname"}}

	if mustFingerprint(t, linux, req) == mustFingerprint(t, darwin, req) {
		t.Error("different default platforms must not share fingerprints")
	}

	// Request properties override defaults by name.
	override := process.Request{Argv: []string{"uname"}, Platform: map[string]string{"OSFamily": "darwin"}}
	if mustFingerprint(t, linux, override) != mustFingerprint(t, darwin, req) {
		t.Error("request platform should override the default property")
	}
}

func TestFingerprint_Salt(t *testing.T) {
	req := process.Request{Argv: []string{"echo"}}
	a := mustFingerprint(t, New(Config{Salt: "v1"}), req)
	b := mustFingerprint(t, New(Config{Salt: "v2"}), req)
	c := mustFingerprint(t, Default(), req)

	if a == b || a == c {
		t.Error("salt should separate fingerprints")
	}
}

func TestFingerprint_DoesNotMutateRequest(t *testing.T) {
	req := process.Request{
		Argv:        []string{"x"},
		OutputFiles: []string{"b", "a"},
		Platform:    map[string]string{"k": "v"},
	}
	f := New(Config{Platform: map[string]string{"d": "1"}})
	_ = mustFingerprint(t, f, req)

	if req.OutputFiles[0] != "b" {
		t.Error("Fingerprint sorted the caller's output slice")
	}
	if len(req.Platform) != 1 {
		t.Error("Fingerprint merged defaults into the caller's platform map")
	}
}

func TestFingerprint_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		req   process.Request
		field string
	}{
		{"empty argv", process.Request{}, "argv"},
		{"empty program", process.Request{Argv: []string{""}}, "argv"},
		{"env empty name", process.Request{Argv: []string{"x"}, Env: map[string]string{"": "v"}}, "env"},
		{"env name with equals", process.Request{Argv: []string{"x"}, Env: map[string]string{"A=B": "v"}}, "env"},
		{"bad input root", process.Request{Argv: []string{"x"}, InputRoot: digest.Digest{Hash: "sha256:abc", SizeBytes: 1}}, "input_root"},
		{"absolute output", process.Request{Argv: []string{"x"}, OutputFiles: []string{"/etc/passwd"}}, "output_files"},
		{"escaping output", process.Request{Argv: []string{"x"}, OutputDirectories: []string{"../up"}}, "output_directories"},
		{"duplicate output", process.Request{Argv: []string{"x"}, OutputFiles: []string{"a", "./a"}}, "output_files"},
		{"file and dir clash", process.Request{Argv: []string{"x"}, OutputFiles: []string{"a"}, OutputDirectories: []string{"a"}}, "output_directories"},
		{"negative timeout", process.Request{Argv: []string{"x"}, Timeout: -time.Second}, "timeout"},
		{"absolute working dir", process.Request{Argv: []string{"x"}, WorkingDirectory: "/tmp"}, "working_directory"},
		{"empty platform name", process.Request{Argv: []string{"x"}, Platform: map[string]string{"": "v"}}, "platform"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Default().Fingerprint(tt.req)
			if !errors.Is(err, ErrMalformedRequest) {
				t.Fatalf("Fingerprint() error = %v, want ErrMalformedRequest", err)
			}
			var mre *MalformedRequestError
			if !errors.As(err, &mre) {
				t.Fatalf("error %T is not *MalformedRequestError", err)
			}
			if mre.Field != tt.field {
				t.Errorf("Field = %q, want %q", mre.Field, tt.field)
			}
		})
	}
}

func TestAction_CanonicalForm(t *testing.T) {
	f := New(Config{Platform: map[string]string{"OSFamily": "linux"}, Salt: "s"})
	action, err := f.Action(process.Request{
		Argv:        []string{"cc"},
		Env:         map[string]string{"B": "2", "A": "1"},
		OutputFiles: []string{"z", "a"},
		Timeout:     1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Action() error = %v", err)
	}

	if action.Command.Env[0].Name != "A" || action.Command.Env[1].Name != "B" {
		t.Errorf("env not sorted: %+v", action.Command.Env)
	}
	if action.Command.OutputFiles[0] != "a" {
		t.Errorf("outputs not sorted: %v", action.Command.OutputFiles)
	}
	if len(action.Command.Platform) != 1 || action.Command.Platform[0].Value != "linux" {
		t.Errorf("platform = %+v", action.Command.Platform)
	}
	if action.CommandDigest != digest.Of(action.Command.Marshal()) {
		t.Error("CommandDigest does not match the marshaled command")
	}
	if action.InputRoot != digest.Empty {
		t.Errorf("InputRoot = %v, want empty", action.InputRoot)
	}
	if action.Salt != "s" {
		t.Errorf("Salt = %q", action.Salt)
	}
}

func TestTimeoutParts(t *testing.T) {
	secs, nanos := timeoutParts(1500 * time.Millisecond)
	if secs != 1 || nanos != 500_000_000 {
		t.Errorf("timeoutParts = %d, %d", secs, nanos)
	}
}
