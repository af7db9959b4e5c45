package keystore

import (
	"fmt"
	"io"

	"github.com/oriys/nimbus/internal/config"
)

// Open builds the KeyStore selected by cfg.Store.Driver. The returned closer
// releases driver resources and is never nil.
func Open(cfg *config.Config) (KeyStore, io.Closer, error) {
	switch cfg.Store.Driver {
	case config.DriverMemory:
		return NewMemoryStore(), nopCloser{}, nil
	case config.DriverRedis:
		s := NewRedisStore(RedisStoreConfig{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		return s, s, nil
	case config.DriverFile, config.DriverTiered, "":
		root, err := cfg.StorageRoot()
		if err != nil {
			return nil, nil, err
		}
		fs := NewFileStore(root)
		if cfg.Store.Driver == config.DriverTiered {
			return NewTieredStore(NewMemoryStore(), fs), nopCloser{}, nil
		}
		return fs, nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("keystore: unsupported driver %q", cfg.Store.Driver)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
