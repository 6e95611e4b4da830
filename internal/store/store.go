// Package store persists small string values, such as the tracked job id,
// behind a key-value interface with memory, file and Redis backends.
package store

import (
	"context"
	"fmt"
	"io"

	"sales-coach-go/internal/config"
)

// KeyValueStore is the persistence the session needs. A missing key is
// reported with ok == false, not an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Open builds the backend selected by cfg.StateBackend. The returned closer
// releases backend resources and is never nil.
func Open(ctx context.Context, cfg config.Config) (KeyValueStore, io.Closer, error) {
	switch cfg.StateBackend {
	case config.BackendMemory:
		return NewMemoryStore(), nopCloser{}, nil
	case config.BackendFile, "":
		return NewFileStore(cfg.StateFile), nopCloser{}, nil
	case config.BackendRedis:
		s, err := NewRedisStore(ctx, RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			KeyPrefix: cfg.RedisKeyPrefix,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
