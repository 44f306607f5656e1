package kv

import (
	"bytes"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Memory is an in-process Store. Single-key operations go straight to a
// concurrent map; Apply excludes them for the duration of the batch.
type Memory struct {
	mu   sync.RWMutex // held exclusively by Apply
	data *xsync.MapOf[string, []byte]
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: xsync.NewMapOf[string, []byte]()}
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data.Load(string(key))
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, key, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.data.Store(string(key), cloneValue(value))
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	m.data.Delete(string(key))
	return nil
}

// Scan implements Store over a snapshot of the matching keys.
func (m *Memory) Scan(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	type pair struct {
		key   string
		value []byte
	}
	var pairs []pair
	p := string(prefix)

	m.mu.RLock()
	m.data.Range(func(k string, v []byte) bool {
		if strings.HasPrefix(k, p) {
			pairs = append(pairs, pair{key: k, value: v})
		}
		return true
	})
	m.mu.RUnlock()

	slices.SortFunc(pairs, func(a, b pair) int { return strings.Compare(a.key, b.key) })
	for _, kv := range pairs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn([]byte(kv.key), bytes.Clone(kv.value)); err != nil {
			return err
		}
	}
	return nil
}

// Apply implements Store.
func (m *Memory) Apply(ctx context.Context, muts []Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, mut := range muts {
		if mut.Op != OpPut && mut.Op != OpDelete {
			return unknownOp(mut.Op)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mut := range muts {
		switch mut.Op {
		case OpPut:
			m.data.Store(string(mut.Key), cloneValue(mut.Value))
		case OpDelete:
			m.data.Delete(string(mut.Key))
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	return m.data.Size()
}

// Close implements Store. The contents are kept.
func (m *Memory) Close() error {
	return nil
}

func cloneValue(v []byte) []byte {
	if v == nil {
		return []byte{}
	}
	return bytes.Clone(v)
}
