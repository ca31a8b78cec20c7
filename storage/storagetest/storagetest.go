// Package storagetest holds a conformance suite shared by every
// storage.Storage implementation.
package storagetest

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ggoodman/passwordgrant-go/storage"
)

// Factory returns a fresh, empty store. The suite closes it.
type Factory func(t *testing.T) storage.Storage

// RunStorageTests runs the complete storage test suite against the provided factory.
func RunStorageTests(t *testing.T, factory Factory) {
	t.Run("SetAndGet", func(t *testing.T) { testSetAndGet(t, factory(t)) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, factory(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory(t)) })
	t.Run("TTL", func(t *testing.T) { testTTL(t, factory(t)) })
	t.Run("InvalidTTL", func(t *testing.T) { testInvalidTTL(t, factory(t)) })
	t.Run("Namespaces", func(t *testing.T) { testNamespaces(t, factory(t)) })
	t.Run("DeleteKey", func(t *testing.T) { testDeleteKey(t, factory(t)) })
	t.Run("DeleteNamespace", func(t *testing.T) { testDeleteNamespace(t, factory(t)) })
	t.Run("DeleteNamespaceLiteral", func(t *testing.T) { testDeleteNamespaceLiteral(t, factory(t)) })
}

func testSetAndGet(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	item, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item == nil || !bytes.Equal(item.Data, []byte("v")) {
		t.Fatalf("Get = %+v, want data %q", item, "v")
	}
	if item.ExpiresAt != nil {
		t.Errorf("ExpiresAt = %v, want nil", item.ExpiresAt)
	}
	if item.CreatedAt.IsZero() {
		t.Errorf("CreatedAt not set")
	}
}

func testGetMissing(t *testing.T, s storage.Storage) {
	defer s.Close()

	item, err := s.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item != nil {
		t.Fatalf("Get = %+v, want nil", item)
	}
}

func testOverwrite(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("one"))
	_ = s.Set(ctx, "k", []byte("two"))
	item, err := s.Get(ctx, "k")
	if err != nil || item == nil {
		t.Fatalf("Get = %v, %v", item, err)
	}
	if string(item.Data) != "two" {
		t.Fatalf("data = %q, want %q", item.Data, "two")
	}
}

func testTTL(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	if err := s.Set(ctx, "short", []byte("v"), storage.WithTTL(50*time.Millisecond)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	item, err := s.Get(ctx, "short")
	if err != nil || item == nil {
		t.Fatalf("Get before expiry = %v, %v", item, err)
	}
	if item.ExpiresAt == nil {
		t.Fatalf("ExpiresAt not set")
	}

	time.Sleep(150 * time.Millisecond)

	item, err = s.Get(ctx, "short")
	if err != nil {
		t.Fatalf("Get after expiry: %v", err)
	}
	if item != nil {
		t.Fatalf("Get after expiry = %+v, want nil", item)
	}
}

func testInvalidTTL(t *testing.T, s storage.Storage) {
	defer s.Close()

	err := s.Set(context.Background(), "k", []byte("v"), storage.WithTTL(0))
	if !errors.Is(err, storage.ErrInvalidTTL) {
		t.Fatalf("Set with zero ttl = %v, want ErrInvalidTTL", err)
	}
}

func testNamespaces(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("a"), storage.WithNamespace("client-a"))
	_ = s.Set(ctx, "k", []byte("b"), storage.WithNamespace("client-b"))

	a, _ := s.Get(ctx, "k", storage.WithNamespace("client-a"))
	b, _ := s.Get(ctx, "k", storage.WithNamespace("client-b"))
	if a == nil || string(a.Data) != "a" {
		t.Errorf("client-a = %+v", a)
	}
	if b == nil || string(b.Data) != "b" {
		t.Errorf("client-b = %+v", b)
	}
	if def, _ := s.Get(ctx, "k"); def != nil {
		t.Errorf("default namespace leaked: %+v", def)
	}
}

func testDeleteKey(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k1", []byte("1"))
	_ = s.Set(ctx, "k2", []byte("2"))
	if err := s.Delete(ctx, "k1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if item, _ := s.Get(ctx, "k1"); item != nil {
		t.Errorf("k1 still present")
	}
	if item, _ := s.Get(ctx, "k2"); item == nil {
		t.Errorf("k2 removed")
	}
}

func testDeleteNamespace(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	ns := storage.WithNamespace("gone")
	_ = s.Set(ctx, "k1", []byte("1"), ns)
	_ = s.Set(ctx, "k2", []byte("2"), ns)
	_ = s.Set(ctx, "k1", []byte("kept"), storage.WithNamespace("kept"))

	if err := s.Delete(ctx, "", ns); err != nil {
		t.Fatalf("Delete namespace: %v", err)
	}
	for _, k := range []string{"k1", "k2"} {
		if item, _ := s.Get(ctx, k, ns); item != nil {
			t.Errorf("%s still present in deleted namespace", k)
		}
	}
	if item, _ := s.Get(ctx, "k1", storage.WithNamespace("kept")); item == nil {
		t.Errorf("other namespace affected")
	}
}

func testDeleteNamespaceLiteral(t *testing.T, s storage.Storage) {
	defer s.Close()
	ctx := context.Background()

	_ = s.Set(ctx, "k", []byte("wild"), storage.WithNamespace("a*"))
	for _, ns := range []string{"abc", "a?", "[a]*"} {
		_ = s.Set(ctx, "k", []byte(ns), storage.WithNamespace(ns))
	}

	if err := s.Delete(ctx, "", storage.WithNamespace("a*")); err != nil {
		t.Fatalf("Delete namespace: %v", err)
	}
	if item, _ := s.Get(ctx, "k", storage.WithNamespace("a*")); item != nil {
		t.Errorf("a* still present")
	}
	for _, ns := range []string{"abc", "a?", "[a]*"} {
		if item, _ := s.Get(ctx, "k", storage.WithNamespace(ns)); item == nil {
			t.Errorf("namespace %q removed by deleting a*", ns)
		}
	}
}
