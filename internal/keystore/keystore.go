// Package keystore persists cached backend responses under caller-chosen
// keys. The file-backed store is the durable default; memory, Redis and
// tiered variants satisfy the same interface. Values are opaque text and are
// stored unmodified.
package keystore

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is returned for empty keys and keys that cannot be used as a
// file name stem.
var ErrInvalidKey = errors.New("keystore: invalid key")

// KeyStore is a durable mapping from key to text payload.
// Writing a key replaces its previous value entirely. Implementations are
// safe for concurrent use; they do not order operations on the same key.
type KeyStore interface {
	// Put stores value under key, replacing any existing entry.
	Put(ctx context.Context, key, value string) error

	// Get returns the stored value and true, or "" and false when the key
	// has no entry. Absence is not an error.
	Get(ctx context.Context, key string) (string, bool, error)

	// Delete removes the entry for key. Deleting a missing key succeeds.
	Delete(ctx context.Context, key string) error

	// ListKeys returns every stored key in unspecified order.
	ListKeys(ctx context.Context) ([]string, error)

	// Clear removes every entry and leaves the store empty and usable.
	Clear(ctx context.Context) error
}

// StorageIOError reports a storage failure on an existing or expected path.
type StorageIOError struct {
	Op   string
	Key  string
	Path string
	Err  error
}

func (e *StorageIOError) Error() string {
	var b strings.Builder
	b.WriteString("keystore: ")
	b.WriteString(e.Op)
	if e.Key != "" {
		fmt.Fprintf(&b, " %q", e.Key)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " (%s)", e.Path)
	}
	b.WriteString(": ")
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("unknown error")
	}
	return b.String()
}

func (e *StorageIOError) Unwrap() error { return e.Err }

// ValidateKey checks that key is usable by every store implementation.
func ValidateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidKey)
	}
	if strings.ContainsAny(key, "/\\\x00") {
		return fmt.Errorf("%w: %q contains a path separator or NUL", ErrInvalidKey, key)
	}
	if key == "." || key == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
