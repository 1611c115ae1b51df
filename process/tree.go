package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/jonwraymond/proccache/digest"
)

// BlobWriter stores content-addressed blobs.
type BlobWriter interface {
	Put(ctx context.Context, d digest.Digest, b []byte) error
}

// BlobReader loads content-addressed blobs.
type BlobReader interface {
	Get(ctx context.Context, d digest.Digest) ([]byte, bool, error)
}

// ErrInvalidTree is returned when an output tree cannot be decoded.
var ErrInvalidTree = errors.New("process: output tree is invalid")

// TreeFile is one file in an output tree.
type TreeFile struct {
	Path       string // slash-separated, relative to the working directory
	Digest     digest.Digest
	Executable bool
}

// Tree is a flat, path-sorted listing of produced output files.
type Tree struct {
	Files []TreeFile
}

const (
	fieldTreeFiles protowire.Number = 1

	fieldFilePath       protowire.Number = 1
	fieldFileDigest     protowire.Number = 2
	fieldFileExecutable protowire.Number = 4
)

// Marshal encodes the tree with files sorted by path.
func (t Tree) Marshal() []byte {
	files := slices.Clone(t.Files)
	slices.SortFunc(files, func(a, b TreeFile) int { return strings.Compare(a.Path, b.Path) })

	var out []byte
	for _, f := range files {
		var fb []byte
		fb = protowire.AppendTag(fb, fieldFilePath, protowire.BytesType)
		fb = protowire.AppendString(fb, f.Path)
		fb = digest.AppendField(fb, fieldFileDigest, f.Digest)
		if f.Executable {
			fb = protowire.AppendTag(fb, fieldFileExecutable, protowire.VarintType)
			fb = protowire.AppendVarint(fb, protowire.EncodeBool(true))
		}
		out = protowire.AppendTag(out, fieldTreeFiles, protowire.BytesType)
		out = protowire.AppendBytes(out, fb)
	}
	return out
}

// Digest returns the digest of the marshaled tree.
func (t Tree) Digest() digest.Digest {
	return digest.Of(t.Marshal())
}

// UnmarshalTree decodes a tree produced by Tree.Marshal.
func UnmarshalTree(b []byte) (Tree, error) {
	var t Tree
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Tree{}, fmt.Errorf("%w: %v", ErrInvalidTree, protowire.ParseError(n))
		}
		b = b[n:]
		if num != fieldTreeFiles || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return Tree{}, fmt.Errorf("%w: %v", ErrInvalidTree, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		fb, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return Tree{}, fmt.Errorf("%w: %v", ErrInvalidTree, protowire.ParseError(n))
		}
		b = b[n:]
		f, err := unmarshalTreeFile(fb)
		if err != nil {
			return Tree{}, err
		}
		t.Files = append(t.Files, f)
	}
	return t, nil
}

func unmarshalTreeFile(b []byte) (TreeFile, error) {
	var f TreeFile
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return TreeFile{}, fmt.Errorf("%w: %v", ErrInvalidTree, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldFilePath && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return TreeFile{}, fmt.Errorf("%w: %v", ErrInvalidTree, protowire.ParseError(n))
			}
			f.Path = v
			b = b[n:]
		case num == fieldFileDigest && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return TreeFile{}, fmt.Errorf("%w: %v", ErrInvalidTree, protowire.ParseError(n))
			}
			d, err := digest.Unmarshal(v)
			if err != nil {
				return TreeFile{}, fmt.Errorf("%w: file digest: %v", ErrInvalidTree, err)
			}
			f.Digest = d
			b = b[n:]
		case num == fieldFileExecutable && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return TreeFile{}, fmt.Errorf("%w: %v", ErrInvalidTree, protowire.ParseError(n))
			}
			f.Executable = protowire.DecodeBool(v)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return TreeFile{}, fmt.Errorf("%w: %v", ErrInvalidTree, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if f.Path == "" || f.Digest.IsZero() {
		return TreeFile{}, fmt.Errorf("%w: file entry missing path or digest", ErrInvalidTree)
	}
	return f, nil
}

// collectOutputs hashes the declared outputs of req under dir. Missing
// outputs are skipped.
func collectOutputs(ctx context.Context, dir string, req Request, blobs BlobWriter) (Tree, error) {
	return CaptureTree(ctx, dir, req.OutputFiles, req.OutputDirectories, blobs)
}

// CaptureTree hashes files and every regular file below dirs, all relative
// to dir, into a Tree. Paths that do not exist are skipped; files that are
// not regular are ignored. When blobs is non-nil the file contents and the
// encoded tree are written to it.
func CaptureTree(ctx context.Context, dir string, files, dirs []string, blobs BlobWriter) (Tree, error) {
	seen := make(map[string]bool)
	var tree Tree

	addFile := func(rel string, info fs.FileInfo) error {
		rel = path.Clean(filepath.ToSlash(rel))
		if seen[rel] {
			return nil
		}
		seen[rel] = true

		content, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
		if err != nil {
			return fmt.Errorf("reading %s: %w", rel, err)
		}
		d := digest.Of(content)
		if blobs != nil {
			if err := blobs.Put(ctx, d, content); err != nil {
				return fmt.Errorf("storing %s: %w", rel, err)
			}
		}
		tree.Files = append(tree.Files, TreeFile{
			Path:       rel,
			Digest:     d,
			Executable: info.Mode()&0o111 != 0,
		})
		return nil
	}

	for _, p := range files {
		info, err := os.Stat(filepath.Join(dir, filepath.FromSlash(p)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Tree{}, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if err := addFile(p, info); err != nil {
			return Tree{}, err
		}
	}

	for _, p := range dirs {
		root := filepath.Join(dir, filepath.FromSlash(p))
		err := filepath.WalkDir(root, func(full string, entry fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && full == root {
					return fs.SkipDir
				}
				return err
			}
			if !entry.Type().IsRegular() {
				return nil
			}
			info, err := entry.Info()
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(dir, full)
			if err != nil {
				return err
			}
			return addFile(rel, info)
		})
		if err != nil {
			return Tree{}, err
		}
	}

	slices.SortFunc(tree.Files, func(a, b TreeFile) int { return strings.Compare(a.Path, b.Path) })
	if blobs != nil {
		encoded := tree.Marshal()
		if err := blobs.Put(ctx, digest.Of(encoded), encoded); err != nil {
			return Tree{}, fmt.Errorf("storing tree: %w", err)
		}
	}
	return tree, nil
}

// VerifyTree loads the tree identified by root and checks that every file
// blob it lists is present and matches its digest. The zero digest and the
// empty tree need no blobs.
func VerifyTree(ctx context.Context, blobs BlobReader, root digest.Digest) (Tree, error) {
	return readTree(ctx, blobs, root, nil)
}

// Materialize writes the files of the output tree identified by root into
// dir, loading contents from blobs. It is how a cached result reproduces the
// files a real execution would have left behind.
func Materialize(ctx context.Context, blobs BlobReader, root digest.Digest, dir string) error {
	_, err := readTree(ctx, blobs, root, func(f TreeFile, content []byte) error {
		target := filepath.Join(dir, filepath.FromSlash(f.Path))
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		mode := os.FileMode(0o644)
		if f.Executable {
			mode = 0o755
		}
		return os.WriteFile(target, content, mode)
	})
	return err
}

// readTree loads and checks the tree and each file blob, calling visit, when
// non-nil, for every file in path order.
func readTree(ctx context.Context, blobs BlobReader, root digest.Digest, visit func(TreeFile, []byte) error) (Tree, error) {
	if root.IsZero() || root == (Tree{}).Digest() {
		return Tree{}, nil
	}
	if blobs == nil {
		return Tree{}, fmt.Errorf("%w: no blob store for tree %s", ErrInvalidTree, root)
	}
	encoded, ok, err := blobs.Get(ctx, root)
	if err != nil {
		return Tree{}, fmt.Errorf("loading tree %s: %w", root, err)
	}
	if !ok || !root.Matches(encoded) {
		return Tree{}, fmt.Errorf("%w: tree blob %s missing or corrupt", ErrInvalidTree, root)
	}
	tree, err := UnmarshalTree(encoded)
	if err != nil {
		return Tree{}, err
	}
	for _, f := range tree.Files {
		if !filepath.IsLocal(filepath.FromSlash(f.Path)) {
			return Tree{}, fmt.Errorf("%w: path %q escapes tree root", ErrInvalidTree, f.Path)
		}
		content, ok, err := blobs.Get(ctx, f.Digest)
		if err != nil {
			return Tree{}, fmt.Errorf("loading %s: %w", f.Path, err)
		}
		if !ok || !f.Digest.Matches(content) {
			return Tree{}, fmt.Errorf("%w: blob for %s missing or corrupt", ErrInvalidTree, f.Path)
		}
		if visit != nil {
			if err := visit(f, content); err != nil {
				return Tree{}, err
			}
		}
	}
	return tree, nil
}
