package keystore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestTiered(t *testing.T) (*TieredStore, *MemoryStore, *FileStore) {
	t.Helper()
	l1 := NewMemoryStore()
	l2 := NewFileStore(filepath.Join(t.TempDir(), "offline_data"))
	return NewTieredStore(l1, l2), l1, l2
}

func TestTieredStore_L1Hit(t *testing.T) {
	ts, l1, _ := newTestTiered(t)
	ctx := context.Background()

	if err := ts.Put(ctx, "key1", "value1"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, ok, _ := l1.Get(ctx, "key1"); !ok {
		t.Fatal("Put should populate L1")
	}

	val, ok, err := ts.Get(ctx, "key1")
	if err != nil || !ok {
		t.Fatalf("Get failed: %v, ok=%v", err, ok)
	}
	if val != "value1" {
		t.Fatalf("expected 'value1', got '%s'", val)
	}
}

func TestTieredStore_L2Fallthrough(t *testing.T) {
	ts, l1, l2 := newTestTiered(t)
	ctx := context.Background()

	// value only on disk, e.g. written by a previous run
	if err := l2.Put(ctx, "key2", "value2"); err != nil {
		t.Fatalf("L2 Put failed: %v", err)
	}

	val, ok, err := ts.Get(ctx, "key2")
	if err != nil || !ok {
		t.Fatalf("Get failed: %v, ok=%v", err, ok)
	}
	if val != "value2" {
		t.Fatalf("expected 'value2', got '%s'", val)
	}

	val, ok, _ = l1.Get(ctx, "key2")
	if !ok || val != "value2" {
		t.Fatalf("expected 'value2' in L1, got %q (ok=%v)", val, ok)
	}
}

func TestTieredStore_BothMiss(t *testing.T) {
	ts, _, _ := newTestTiered(t)

	_, ok, err := ts.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestTieredStore_DeleteAndClear(t *testing.T) {
	ts, l1, l2 := newTestTiered(t)
	ctx := context.Background()

	_ = ts.Put(ctx, "del-key", "value")
	if err := ts.Delete(ctx, "del-key"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := l1.Get(ctx, "del-key"); ok {
		t.Fatal("expected L1 miss after delete")
	}
	if _, ok, _ := l2.Get(ctx, "del-key"); ok {
		t.Fatal("expected L2 miss after delete")
	}

	_ = ts.Put(ctx, "a", "1")
	_ = ts.Put(ctx, "b", "2")
	if err := ts.Clear(ctx); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	keys, err := ts.ListKeys(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 0 || l1.Len() != 0 {
		t.Fatalf("expected both layers empty, got keys=%v l1=%d", keys, l1.Len())
	}
}

type failingStore struct {
	*MemoryStore
	err error
}

func (f *failingStore) Put(context.Context, string, string) error { return f.err }

func TestTieredStore_PutFailureEvictsL1(t *testing.T) {
	ctx := context.Background()
	l1 := NewMemoryStore()
	_ = l1.Put(ctx, "k", "old")
	boom := &StorageIOError{Op: "put", Key: "k", Err: errors.New("disk full")}
	ts := NewTieredStore(l1, &failingStore{MemoryStore: NewMemoryStore(), err: boom})

	if err := ts.Put(ctx, "k", "new"); !errors.Is(err, boom) {
		t.Fatalf("expected L2 error, got %v", err)
	}
	if _, ok, _ := l1.Get(ctx, "k"); ok {
		t.Fatal("L1 must not keep a value the durable layer did not accept")
	}
}
