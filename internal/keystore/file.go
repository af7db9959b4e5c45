package keystore

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Extension is the file extension of every cache entry.
const Extension = "json"

const tempSuffix = ".tmp"

// FileStore keeps one file per key, named <key>.json, under a single root
// directory. File contents are the raw value.
type FileStore struct {
	root string
}

// NewFileStore returns a store rooted at root. The directory is created
// lazily by the first write.
func NewFileStore(root string) *FileStore {
	return &FileStore{root: filepath.Clean(root)}
}

// Root returns the storage root directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) path(key string) string {
	return filepath.Join(s.root, key+"."+Extension)
}

func (s *FileStore) Put(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return &StorageIOError{Op: "put", Key: key, Path: s.root, Err: err}
	}

	target := s.path(key)
	if err := writeFileAtomic(s.root, target, []byte(value)); err != nil {
		return &StorageIOError{Op: "put", Key: key, Path: target, Err: err}
	}
	return nil
}

// writeFileAtomic writes data to a temp file in dir and renames it over
// target, so readers see either the old or the new contents.
func writeFileAtomic(dir, target string, data []byte) error {
	// The temp name stays short so any key whose final name fits the
	// filesystem limit can be written.
	tmp, err := os.CreateTemp(dir, ".put-*"+tempSuffix)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		cleanup()
		return err
	}
	return nil
}

func (s *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	if err := ValidateKey(key); err != nil {
		return "", false, err
	}

	path := s.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, &StorageIOError{Op: "get", Key: key, Path: path, Err: err}
	}
	return string(data), true, nil
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateKey(key); err != nil {
		return err
	}

	path := s.path(key)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &StorageIOError{Op: "delete", Key: key, Path: path, Err: err}
	}
	return nil
}

func (s *FileStore) ListKeys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, &StorageIOError{Op: "list", Path: s.root, Err: err}
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if key, ok := keyFromFileName(e.Name()); ok {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// keyFromFileName maps "<key>.json" back to key. Temp files, other
// extensions and names that are not valid UTF-8 are rejected.
func keyFromFileName(name string) (string, bool) {
	if strings.HasSuffix(name, tempSuffix) {
		return "", false
	}
	ext := filepath.Ext(name)
	if ext != "."+Extension {
		return "", false
	}
	key := strings.TrimSuffix(name, ext)
	if key == "" || !utf8.ValidString(key) {
		return "", false
	}
	return key, true
}

func (s *FileStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.RemoveAll(s.root); err != nil {
		return &StorageIOError{Op: "clear", Path: s.root, Err: err}
	}
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return &StorageIOError{Op: "clear", Path: s.root, Err: err}
	}
	return nil
}
