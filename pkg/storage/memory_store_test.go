package storage

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestMemoryStorePutDownload(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.Put(ctx, "attachments/a/b/key", strings.NewReader("hello"), 5, "text/plain"); err != nil {
		t.Fatalf("put: %v", err)
	}
	var buf bytes.Buffer
	n, err := s.Download(ctx, "attachments/a/b/key", &buf)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if n != 5 || buf.String() != "hello" {
		t.Fatalf("unexpected download: n=%d body=%q", n, buf.String())
	}
	ok, _ := s.Exists(ctx, "attachments/a/b/key")
	if !ok {
		t.Fatalf("expected key to exist")
	}
}

func TestMemoryStoreMissingKey(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.Download(context.Background(), "missing", &bytes.Buffer{})
	if !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
}

func TestMemoryStoreSizeMismatch(t *testing.T) {
	s := NewMemoryStore()
	if err := s.Put(context.Background(), "k", strings.NewReader("abc"), 10, ""); err == nil {
		t.Fatalf("expected size mismatch error")
	}
}

func TestMemoryStoreOverwriteAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Put(ctx, "k", strings.NewReader("one"), 3, "")
	_ = s.Put(ctx, "k", strings.NewReader("two"), 3, "")
	obj, ok := s.Object("k")
	if !ok || string(obj.Data) != "two" {
		t.Fatalf("expected overwritten object, got %q", obj.Data)
	}
	if s.Puts() != 2 || len(s.Keys()) != 1 {
		t.Fatalf("unexpected puts=%d keys=%v", s.Puts(), s.Keys())
	}
	_ = s.Delete(ctx, "k")
	if ok, _ := s.Exists(ctx, "k"); ok {
		t.Fatalf("expected key deleted")
	}
}
