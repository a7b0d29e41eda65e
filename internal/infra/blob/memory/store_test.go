package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"sampletrack/internal/blob/core"
)

func TestStoreMissingKeys(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Head(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if ok, err := store.Delete(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected delete false, got %v %v", ok, err)
	}
	if _, err := store.Put(ctx, "", bytes.NewReader(nil), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey, got %v", err)
	}
}

func TestStoreWriteOnceAndIsolation(t *testing.T) {
	ctx := context.Background()
	store := New()
	md := map[string]string{"entries": "2"}
	if _, err := store.Put(ctx, "history/a", bytes.NewReader([]byte("v")), core.PutOptions{Metadata: md}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	md["entries"] = "mutated"
	if _, err := store.Put(ctx, "history/a", bytes.NewReader([]byte("v2")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	info, rc, err := store.Get(ctx, "history/a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	data, _ := io.ReadAll(rc)
	if string(data) != "v" || info.Metadata["entries"] != "2" {
		t.Fatalf("unexpected blob %q %+v", data, info)
	}
	info.Metadata["entries"] = "changed"
	head, _ := store.Head(ctx, "history/a")
	if head.Metadata["entries"] != "2" {
		t.Fatalf("metadata leaked through copy")
	}

	if _, err := store.Put(ctx, "other/b", bytes.NewReader([]byte("x")), core.PutOptions{}); err != nil {
		t.Fatalf("Put other: %v", err)
	}
	list, err := store.List(ctx, "history/")
	if err != nil || len(list) != 1 {
		t.Fatalf("unexpected list %+v (%v)", list, err)
	}
	if ok, _ := store.Delete(ctx, "history/a"); !ok {
		t.Fatalf("expected delete true")
	}
}
