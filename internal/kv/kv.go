// Package kv defines the ordered key-value capability the record store is
// built on, with pebble, SQLite and in-memory backends.
//
// Callers see one flat byte-keyed namespace. Every single-key operation is
// atomic; Apply commits a batch of mutations atomically. No backend type
// leaks through the Store interface.
package kv

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("kv: key not found")

// Store is an ordered byte-keyed namespace.
type Store interface {
	// Get returns a copy of the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key []byte) ([]byte, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key []byte) error

	// Scan calls fn for every key starting with prefix in ascending key
	// order. fn receives copies and may call back into the store. Returning
	// an error from fn stops the scan and is returned by Scan.
	Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error

	// Apply commits all mutations atomically, in order.
	Apply(ctx context.Context, muts []Mutation) error

	Close() error
}

// Op is a mutation operation.
type Op uint8

// Mutation operations.
const (
	OpPut Op = iota + 1
	OpDelete
)

// Mutation is one element of an atomic batch.
type Mutation struct {
	Op    Op
	Key   []byte
	Value []byte // OpPut only
}

// PutMutation returns a Put mutation.
func PutMutation(key, value []byte) Mutation {
	return Mutation{Op: OpPut, Key: key, Value: value}
}

// DeleteMutation returns a Delete mutation.
func DeleteMutation(key []byte) Mutation {
	return Mutation{Op: OpDelete, Key: key}
}

// Backend names a Store implementation.
type Backend string

// Backends.
const (
	BackendPebble Backend = "pebble"
	BackendSQLite Backend = "sqlite"
	BackendMemory Backend = "memory"
)

// Open opens the named backend at path. The memory backend ignores path.
func Open(backend Backend, path string) (Store, error) {
	switch backend {
	case BackendPebble, "":
		return OpenPebble(path)
	case BackendSQLite:
		return OpenSQLite(path)
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", backend)
	}
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix, or nil when no such key exists (empty or all-0xff prefix).
func prefixUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func unknownOp(op Op) error {
	return fmt.Errorf("kv: unknown mutation op %d", op)
}
