package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/kv"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = kv.ErrNotFound

// DefaultCacheSize is the number of decoded entries kept in memory.
const DefaultCacheSize = 4096

// Store provides typed access to govbot records over a kv.Store.
type Store struct {
	kv     kv.Store
	cache  *lru.Cache[string, *ir.Entry]
	logger *slog.Logger

	// mu serializes read-modify-write sequences (entry upserts, index
	// replacement, compaction). Single-key reads and writes do not take it.
	mu sync.Mutex
}

// Option configures a Store.
type Option func(*options)

type options struct {
	cacheSize int
	logger    *slog.Logger
}

// WithCacheSize sets the decoded-entry cache size.
func WithCacheSize(n int) Option {
	return func(o *options) { o.cacheSize = n }
}

// WithLogger sets the store logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// New wraps a kv.Store. The Store takes ownership: Close closes kvs.
func New(kvs kv.Store, opts ...Option) (*Store, error) {
	o := options{cacheSize: DefaultCacheSize, logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.cacheSize <= 0 {
		o.cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, *ir.Entry](o.cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create entry cache: %w", err)
	}
	return &Store{kv: kvs, cache: cache, logger: o.logger}, nil
}

// Open opens the named kv backend at path and wraps it.
func Open(backend kv.Backend, path string, opts ...Option) (*Store, error) {
	kvs, err := kv.Open(backend, path)
	if err != nil {
		return nil, err
	}
	s, err := New(kvs, opts...)
	if err != nil {
		kvs.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying kv store.
func (s *Store) Close() error {
	s.cache.Purge()
	return s.kv.Close()
}

// KV returns the underlying key-value store.
func (s *Store) KV() kv.Store {
	return s.kv
}

// put encodes rec and stores it under its key.
func put(ctx context.Context, s *Store, rec ir.Record) (ir.Key, error) {
	key, err := rec.Key()
	if err != nil {
		return nil, err
	}
	data, err := ir.Encode(rec)
	if err != nil {
		return nil, err
	}
	if err := s.kv.Put(ctx, key, data); err != nil {
		return nil, err
	}
	return key, nil
}

// get loads and decodes the record stored under key.
func get[T ir.Record](ctx context.Context, s *Store, key ir.Key) (T, error) {
	var zero T
	data, err := s.kv.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	rec, err := ir.DecodeAs[T](data)
	if err != nil {
		return zero, fmt.Errorf("record %s: %w", key, err)
	}
	return rec, nil
}

// scan decodes every record in a key partition in key order. Keys that
// share the prefix bytes but not the key layout are skipped.
func scan[T ir.Record](ctx context.Context, s *Store, prefix string, fn func(ir.Key, T) error) error {
	return s.kv.Scan(ctx, []byte(prefix), func(k, v []byte) error {
		key := ir.Key(k)
		if !key.HasPrefix(prefix) {
			return nil
		}
		rec, err := ir.DecodeAs[T](v)
		if err != nil {
			return fmt.Errorf("record %s: %w", key, err)
		}
		return fn(key, rec)
	})
}

// collect returns every record of a partition in key order.
func collect[T ir.Record](ctx context.Context, s *Store, prefix string) ([]T, error) {
	var out []T
	err := scan(ctx, s, prefix, func(_ ir.Key, rec T) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// IsNotFound reports whether err means a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
