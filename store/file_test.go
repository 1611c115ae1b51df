package store

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jonwraymond/proccache/digest"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), "ac")
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	return s
}

func TestFileStore_GetPut(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	key := digest.Of([]byte("request"))

	if _, ok, err := s.Get(ctx, key); ok || err != nil {
		t.Fatalf("Get on empty store = (%v, %v), want miss", ok, err)
	}

	if err := s.Put(ctx, key, []byte("entry")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	got, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Get after Put = (%v, %v)", ok, err)
	}
	if !bytes.Equal(got, []byte("entry")) {
		t.Errorf("Get returned %q", got)
	}
}

func TestFileStore_Layout(t *testing.T) {
	s := newTestFileStore(t)
	key := digest.Of([]byte("layout"))

	if err := s.Put(context.Background(), key, []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	hex := key.Key()
	want := filepath.Join(s.Root, "ac", hex[:2], hex[2:])
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected value at %s: %v", want, err)
	}
}

func TestFileStore_OverwriteAndIdempotent(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	key := digest.Of([]byte("k"))

	_ = s.Put(ctx, key, []byte("first"))
	if err := s.Put(ctx, key, []byte("first")); err != nil {
		t.Fatalf("idempotent Put failed: %v", err)
	}
	if err := s.Put(ctx, key, []byte("second")); err != nil {
		t.Fatalf("overwrite failed: %v", err)
	}
	got, _, _ := s.Get(ctx, key)
	if string(got) != "second" {
		t.Errorf("Get = %q, want second", got)
	}

	// No temp files left behind.
	hex := key.Key()
	entries, err := os.ReadDir(filepath.Join(s.Root, "ac", hex[:2]))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("shard dir has %d entries, want 1", len(entries))
	}
}

func TestFileStore_NamespacesAreIsolated(t *testing.T) {
	root := t.TempDir()
	ac, _ := NewFileStore(root, "ac")
	cas, _ := NewFileStore(root, "cas")
	ctx := context.Background()
	key := digest.Of([]byte("k"))

	_ = ac.Put(ctx, key, []byte("entry"))
	if _, ok, _ := cas.Get(ctx, key); ok {
		t.Error("value leaked across namespaces")
	}
}

func TestFileStore_CancelledPutWritesNothing(t *testing.T) {
	s := newTestFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	key := digest.Of([]byte("k"))

	if err := s.Put(ctx, key, []byte("v")); !errors.Is(err, context.Canceled) {
		t.Errorf("Put error = %v, want context.Canceled", err)
	}
	if _, ok, _ := s.Get(context.Background(), key); ok {
		t.Error("cancelled Put left a value behind")
	}
}

func TestNewFileStore_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		root      string
		namespace string
	}{
		{"empty root", "", "ac"},
		{"empty namespace", "/tmp", ""},
		{"separator", "/tmp", "a/b"},
		{"dotdot", "/tmp", ".."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewFileStore(tt.root, tt.namespace); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFileStore_Ping(t *testing.T) {
	s := newTestFileStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}
