package storage

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStorePutGetDelete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, "bundles/a/doc", []byte("payload"), "application/xml"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}

	got, err := store.Get(ctx, "bundles/a/doc")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if string(got) != "payload" {
		t.Fatalf("unexpected payload %q", got)
	}

	if err := store.Delete(ctx, "bundles/a/doc"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if _, err := store.Get(ctx, "bundles/a/doc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreWriteOnce(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, "ref", []byte("first"), "application/json"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Put(ctx, "ref", []byte("second"), "application/json"); err == nil {
		t.Fatal("expected overwrite to be rejected")
	}

	got, err := store.Get(ctx, "ref")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(got) != "first" {
		t.Fatalf("first write must win, got %q", got)
	}
}

func TestMemoryStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Put(ctx, "ref", []byte("immutable"), "application/xml"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	first, _ := store.Get(ctx, "ref")
	first[0] = 'X'
	second, _ := store.Get(ctx, "ref")
	if string(second) != "immutable" {
		t.Fatalf("stored bytes were mutated: %q", second)
	}
}

func TestMemoryStoreDeleteMissingIsNoop(t *testing.T) {
	if err := NewMemoryStore().Delete(context.Background(), "missing"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
