package keystore

import (
	"context"

	"github.com/oriys/nimbus/internal/logging"
)

// TieredStore puts a fast L1 (in-memory) store in front of a durable L2
// (typically the FileStore). Reads check L1 first, fall through to L2 on a
// miss and populate L1 on an L2 hit. Writes go to L2 first so L1 never holds
// a value the durable layer rejected.
type TieredStore struct {
	l1 KeyStore
	l2 KeyStore
}

// NewTieredStore creates a two-level store.
func NewTieredStore(l1, l2 KeyStore) *TieredStore {
	return &TieredStore{l1: l1, l2: l2}
}

func (t *TieredStore) Get(ctx context.Context, key string) (string, bool, error) {
	if v, ok, err := t.l1.Get(ctx, key); err == nil && ok {
		return v, true, nil
	}

	v, ok, err := t.l2.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	if err := t.l1.Put(ctx, key, v); err != nil {
		logging.Op().Debug("populate L1 failed", "key", key, "error", err)
	}
	return v, true, nil
}

func (t *TieredStore) Put(ctx context.Context, key, value string) error {
	if err := t.l2.Put(ctx, key, value); err != nil {
		// drop a possibly older L1 copy so reads fall through to L2
		_ = t.l1.Delete(ctx, key)
		return err
	}
	return t.l1.Put(ctx, key, value)
}

func (t *TieredStore) Delete(ctx context.Context, key string) error {
	_ = t.l1.Delete(ctx, key)
	return t.l2.Delete(ctx, key)
}

func (t *TieredStore) ListKeys(ctx context.Context) ([]string, error) {
	return t.l2.ListKeys(ctx)
}

func (t *TieredStore) Clear(ctx context.Context) error {
	_ = t.l1.Clear(ctx)
	return t.l2.Clear(ctx)
}
