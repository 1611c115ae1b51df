package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonwraymond/proccache/digest"
)

// FileStore persists values on the local filesystem.
//
// Layout:
//
//	<Root>/<Namespace>/<hash[0:2]>/<hash[2:]>
//
// Values are written to a temporary file in the destination directory and
// renamed into place, so readers see either the old value, the new value,
// or nothing.
type FileStore struct {
	Root      string
	Namespace string
}

// NewFileStore creates a FileStore. namespace partitions values stored under
// the same root, for example "ac" for cache entries and "cas" for blobs.
func NewFileStore(root, namespace string) (*FileStore, error) {
	if root == "" {
		return nil, errors.New("store: file store root is empty")
	}
	if namespace == "" || strings.ContainsAny(namespace, `/\`) || namespace == "." || namespace == ".." {
		return nil, fmt.Errorf("store: invalid namespace %q", namespace)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("store: resolving root: %w", err)
	}
	return &FileStore{Root: abs, Namespace: namespace}, nil
}

// Get reads the value stored under key. Returns (nil, false, nil) on miss.
func (s *FileStore) Get(ctx context.Context, key digest.Digest) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if err := ValidateKey(key); err != nil {
		return nil, false, err
	}

	b, err := os.ReadFile(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return b, true, nil
}

// Put writes value under key. Writing identical bytes is a no-op.
func (s *FileStore) Put(ctx context.Context, key digest.Digest, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	finalPath := s.path(key)
	if existing, err := os.ReadFile(finalPath); err == nil && bytes.Equal(existing, value) {
		return nil
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	dir := filepath.Dir(finalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if _, err := tmp.Write(value); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Last chance to abandon the write without side effects.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Ping checks that the namespace directory exists or can be created.
func (s *FileStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Join(s.Root, s.Namespace)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

func (s *FileStore) path(key digest.Digest) string {
	hex := key.Key()
	return filepath.Join(s.Root, s.Namespace, hex[:2], hex[2:])
}

// Ensure FileStore implements Store
var _ Store = (*FileStore)(nil)
