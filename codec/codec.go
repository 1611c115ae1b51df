package codec

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jonwraymond/proccache/digest"
	"github.com/jonwraymond/proccache/process"
)

// FormatVersion identifies the envelope layout. Entries written with any
// other version decode as a *DecodeError.
const FormatVersion = 1

// DefaultInlineLimit is the largest stream stored inside the entry itself.
const DefaultInlineLimit = 1024

// Blobs is the content-addressed store holding large streams and output trees.
type Blobs interface {
	process.BlobReader
	process.BlobWriter
}

// Config configures a Codec.
type Config struct {
	// InlineLimit is the largest stream, in bytes, kept inline.
	// Zero means DefaultInlineLimit; negative inlines everything.
	InlineLimit int
}

// Codec encodes and decodes cache entries.
type Codec struct {
	inlineLimit int
	blobs       Blobs
}

// New creates a Codec. blobs may be nil, in which case every stream is
// inlined and entries with referenced streams fail to decode.
func New(cfg Config, blobs Blobs) *Codec {
	limit := cfg.InlineLimit
	if limit == 0 {
		limit = DefaultInlineLimit
	}
	return &Codec{inlineLimit: limit, blobs: blobs}
}

// Default returns a Codec that inlines everything.
func Default() *Codec {
	return New(Config{}, nil)
}

// Envelope field numbers.
const (
	fieldVersion    protowire.Number = 1
	fieldExitCode   protowire.Number = 2
	fieldOutputRoot protowire.Number = 3
	fieldStdout     protowire.Number = 4
	fieldStderr     protowire.Number = 5
	fieldAttempt    protowire.Number = 6

	fieldStreamRaw    protowire.Number = 1
	fieldStreamDigest protowire.Number = 2

	fieldAttemptID        protowire.Number = 1
	fieldAttemptExecutor  protowire.Number = 2
	fieldAttemptHost      protowire.Number = 3
	fieldAttemptStarted   protowire.Number = 4
	fieldAttemptCompleted protowire.Number = 5
)

// Encode serializes r. Streams above the inline limit are written to the
// blob store first; a failed blob write wraps ErrEncode.
func (c *Codec) Encode(ctx context.Context, r process.Result) ([]byte, error) {
	stdout, err := c.encodeStream(ctx, r.Stdout)
	if err != nil {
		return nil, err
	}
	stderr, err := c.encodeStream(ctx, r.Stderr)
	if err != nil {
		return nil, err
	}

	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, FormatVersion)
	b = protowire.AppendTag(b, fieldExitCode, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(r.ExitCode)))

	// A zero output root is written as an empty message so that presence
	// is still recorded.
	var root []byte
	if !r.OutputRoot.IsZero() {
		root = digest.Marshal(r.OutputRoot)
	}
	b = protowire.AppendTag(b, fieldOutputRoot, protowire.BytesType)
	b = protowire.AppendBytes(b, root)

	b = protowire.AppendTag(b, fieldStdout, protowire.BytesType)
	b = protowire.AppendBytes(b, stdout)
	b = protowire.AppendTag(b, fieldStderr, protowire.BytesType)
	b = protowire.AppendBytes(b, stderr)

	for _, a := range r.Attempts {
		b = protowire.AppendTag(b, fieldAttempt, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalAttempt(a))
	}
	return b, nil
}

func (c *Codec) encodeStream(ctx context.Context, data []byte) ([]byte, error) {
	var b []byte
	if c.blobs == nil || c.inlineLimit < 0 || len(data) <= c.inlineLimit {
		b = protowire.AppendTag(b, fieldStreamRaw, protowire.BytesType)
		return protowire.AppendBytes(b, data), nil
	}
	d := digest.Of(data)
	if err := c.blobs.Put(ctx, d, data); err != nil {
		return nil, fmt.Errorf("%w: storing stream %s: %w", ErrEncode, d, err)
	}
	return digest.AppendField(b, fieldStreamDigest, d), nil
}

func marshalAttempt(a process.Attempt) []byte {
	var b []byte
	if a.ID != "" {
		b = protowire.AppendTag(b, fieldAttemptID, protowire.BytesType)
		b = protowire.AppendString(b, a.ID)
	}
	if a.Executor != "" {
		b = protowire.AppendTag(b, fieldAttemptExecutor, protowire.BytesType)
		b = protowire.AppendString(b, a.Executor)
	}
	if a.Host != "" {
		b = protowire.AppendTag(b, fieldAttemptHost, protowire.BytesType)
		b = protowire.AppendString(b, a.Host)
	}
	if !a.StartedAt.IsZero() {
		b = protowire.AppendTag(b, fieldAttemptStarted, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(a.StartedAt.UnixNano()))
	}
	if !a.CompletedAt.IsZero() {
		b = protowire.AppendTag(b, fieldAttemptCompleted, protowire.VarintType)
		b = protowire.AppendVarint(b, protowire.EncodeZigZag(a.CompletedAt.UnixNano()))
	}
	return b
}

// Decode parses an entry produced by Encode. Any failure is a *DecodeError.
// With a blob store, the output tree and every file it lists must be
// present and intact; without one the output root is not checked.
func (c *Codec) Decode(ctx context.Context, b []byte) (process.Result, error) {
	var (
		r                            process.Result
		hasVersion, hasExit, hasRoot bool
		stdout, stderr               []byte
		hasStdout, hasStderr         bool
	)

	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return process.Result{}, decodeErr("", protowire.ParseError(n), "malformed tag")
		}
		b = b[n:]

		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return process.Result{}, decodeErr("version", protowire.ParseError(n), "malformed")
			}
			if v != FormatVersion {
				return process.Result{}, decodeErr("version", nil, "unsupported format version %d", v)
			}
			hasVersion = true
			b = b[n:]

		case num == fieldExitCode && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return process.Result{}, decodeErr("exit_code", protowire.ParseError(n), "malformed")
			}
			r.ExitCode = int(protowire.DecodeZigZag(v))
			hasExit = true
			b = b[n:]

		case num == fieldOutputRoot && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return process.Result{}, decodeErr("output_root", protowire.ParseError(n), "malformed")
			}
			if len(v) > 0 {
				d, err := digest.Unmarshal(v)
				if err != nil {
					return process.Result{}, decodeErr("output_root", err, "invalid digest")
				}
				r.OutputRoot = d
			}
			hasRoot = true
			b = b[n:]

		case (num == fieldStdout || num == fieldStderr) && typ == protowire.BytesType:
			field := "stdout"
			if num == fieldStderr {
				field = "stderr"
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return process.Result{}, decodeErr(field, protowire.ParseError(n), "malformed")
			}
			data, err := c.decodeStream(ctx, field, v)
			if err != nil {
				return process.Result{}, err
			}
			if num == fieldStdout {
				stdout, hasStdout = data, true
			} else {
				stderr, hasStderr = data, true
			}
			b = b[n:]

		case num == fieldAttempt && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return process.Result{}, decodeErr("attempt", protowire.ParseError(n), "malformed")
			}
			a, err := unmarshalAttempt(v)
			if err != nil {
				return process.Result{}, err
			}
			r.Attempts = append(r.Attempts, a)
			b = b[n:]

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return process.Result{}, decodeErr("", protowire.ParseError(n), "malformed field %d", num)
			}
			b = b[n:]
		}
	}

	switch {
	case !hasVersion:
		return process.Result{}, decodeErr("version", nil, "missing")
	case !hasExit:
		return process.Result{}, decodeErr("exit_code", nil, "missing")
	case !hasRoot:
		return process.Result{}, decodeErr("output_root", nil, "missing")
	case !hasStdout:
		return process.Result{}, decodeErr("stdout", nil, "missing")
	case !hasStderr:
		return process.Result{}, decodeErr("stderr", nil, "missing")
	}
	if c.blobs != nil {
		if _, err := process.VerifyTree(ctx, c.blobs, r.OutputRoot); err != nil {
			return process.Result{}, decodeErr("output_root", err, "output tree unavailable")
		}
	}
	r.Stdout = stdout
	r.Stderr = stderr
	return r, nil
}

func (c *Codec) decodeStream(ctx context.Context, field string, b []byte) ([]byte, error) {
	var (
		raw    []byte
		ref    digest.Digest
		hasRaw bool
		hasRef bool
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, decodeErr(field, protowire.ParseError(n), "malformed stream")
		}
		b = b[n:]
		switch {
		case num == fieldStreamRaw && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeErr(field, protowire.ParseError(n), "malformed stream")
			}
			raw, hasRaw = append([]byte{}, v...), true
			b = b[n:]
		case num == fieldStreamDigest && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, decodeErr(field, protowire.ParseError(n), "malformed stream")
			}
			d, err := digest.Unmarshal(v)
			if err != nil {
				return nil, decodeErr(field, err, "invalid stream digest")
			}
			ref, hasRef = d, true
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, decodeErr(field, protowire.ParseError(n), "malformed stream")
			}
			b = b[n:]
		}
	}

	switch {
	case hasRaw && hasRef:
		return nil, decodeErr(field, nil, "stream is both inline and referenced")
	case hasRaw:
		return raw, nil
	case !hasRef:
		return nil, decodeErr(field, nil, "stream has no content")
	}

	if c.blobs == nil {
		return nil, decodeErr(field, nil, "referenced stream %s but no blob store is configured", ref)
	}
	data, ok, err := c.blobs.Get(ctx, ref)
	if err != nil {
		return nil, decodeErr(field, err, "loading stream %s", ref)
	}
	if !ok {
		return nil, decodeErr(field, nil, "stream %s not found", ref)
	}
	if !ref.Matches(data) {
		return nil, decodeErr(field, nil, "stream %s does not match its digest", ref)
	}
	return data, nil
}

func unmarshalAttempt(b []byte) (process.Attempt, error) {
	var a process.Attempt
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return process.Attempt{}, decodeErr("attempt", protowire.ParseError(n), "malformed")
		}
		b = b[n:]
		switch {
		case typ == protowire.BytesType && (num == fieldAttemptID || num == fieldAttemptExecutor || num == fieldAttemptHost):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return process.Attempt{}, decodeErr("attempt", protowire.ParseError(n), "malformed")
			}
			switch num {
			case fieldAttemptID:
				a.ID = v
			case fieldAttemptExecutor:
				a.Executor = v
			default:
				a.Host = v
			}
			b = b[n:]
		case typ == protowire.VarintType && (num == fieldAttemptStarted || num == fieldAttemptCompleted):
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return process.Attempt{}, decodeErr("attempt", protowire.ParseError(n), "malformed")
			}
			t := time.Unix(0, protowire.DecodeZigZag(v)).UTC()
			if num == fieldAttemptStarted {
				a.StartedAt = t
			} else {
				a.CompletedAt = t
			}
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return process.Attempt{}, decodeErr("attempt", protowire.ParseError(n), "malformed")
			}
			b = b[n:]
		}
	}
	return a, nil
}
