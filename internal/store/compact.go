package store

import (
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/kv"
)

// CompactStats reports what a Compact pass removed.
type CompactStats struct {
	DanglingRefs      int // keys dropped from index lists
	EmptyIndices      int // indices deleted because no live member remained
	SupersededIndices int // duplicate same-name indices deleted
	TrimmedResults    int // keys dropped from subscription result caches
}

// Total returns the number of removed items of every kind.
func (c CompactStats) Total() int {
	return c.DanglingRefs + c.EmptyIndices + c.SupersededIndices + c.TrimmedResults
}

// Compact removes dangling references from every index and subscription
// result cache. An index left empty is deleted. When several indices share
// a name, only the one with the most live members survives (ties go to the
// lowest key). All changes are committed in one batch.
func (s *Store) Compact(ctx context.Context) (CompactStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stats CompactStats
	live := make(map[string]bool)
	err := s.kv.Scan(ctx, []byte(ir.PrefixEntry), func(k, _ []byte) error {
		if ir.Key(k).HasPrefix(ir.PrefixEntry) {
			live[string(k)] = true
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("compact: %w", err)
	}

	exists := func(key ir.Key) (bool, error) {
		if key.HasPrefix(ir.PrefixEntry) {
			return live[string(key)], nil
		}
		_, err := s.kv.Get(ctx, key)
		if IsNotFound(err) {
			return false, nil
		}
		return err == nil, err
	}
	prune := func(keys []ir.Key) ([]ir.Key, int, error) {
		out := make([]ir.Key, 0, len(keys))
		for _, key := range keys {
			ok, err := exists(key)
			if err != nil {
				return nil, 0, err
			}
			if ok {
				out = append(out, key)
			}
		}
		return out, len(keys) - len(out), nil
	}

	type candidate struct {
		key ir.Key
		ix  *ir.Index
	}
	byName := make(map[string][]candidate)
	var muts []kv.Mutation

	err = scan(ctx, s, ir.PrefixIndex, func(key ir.Key, ix *ir.Index) error {
		pruned, dropped, err := prune(ix.List)
		if err != nil {
			return err
		}
		stats.DanglingRefs += dropped
		if len(pruned) == 0 {
			stats.EmptyIndices++
			muts = append(muts, kv.DeleteMutation(key))
			return nil
		}
		byName[ix.Name] = append(byName[ix.Name], candidate{key: key, ix: &ir.Index{Name: ix.Name, List: pruned}})
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("compact: %w", err)
	}

	names := make([]string, 0, len(byName))
	for name := range byName {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		cands := byName[name]
		slices.SortStableFunc(cands, func(a, b candidate) int {
			if n := len(b.ix.List) - len(a.ix.List); n != 0 {
				return n
			}
			return bytes.Compare(a.key, b.key)
		})
		for _, c := range cands[1:] {
			stats.SupersededIndices++
			muts = append(muts, kv.DeleteMutation(c.key))
		}

		winner := cands[0]
		newKey, err := winner.ix.Key()
		if err != nil {
			return stats, fmt.Errorf("compact: %w", err)
		}
		if bytes.Equal(newKey, winner.key) {
			continue
		}
		data, err := ir.Encode(winner.ix)
		if err != nil {
			return stats, fmt.Errorf("compact: %w", err)
		}
		muts = append(muts, kv.DeleteMutation(winner.key), kv.PutMutation(newKey, data))
	}

	err = scan(ctx, s, ir.PrefixSubscription, func(key ir.Key, sub *ir.Subscription) error {
		pruned, dropped, err := prune(sub.Results)
		if err != nil {
			return err
		}
		if dropped == 0 {
			return nil
		}
		stats.TrimmedResults += dropped
		sub.Results = pruned
		data, err := ir.Encode(sub)
		if err != nil {
			return err
		}
		muts = append(muts, kv.PutMutation(key, data))
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("compact: %w", err)
	}

	if len(muts) == 0 {
		return stats, nil
	}
	if err := s.kv.Apply(ctx, muts); err != nil {
		return CompactStats{}, fmt.Errorf("compact: %w", err)
	}
	s.logger.Info("compaction finished",
		"dangling_refs", stats.DanglingRefs,
		"empty_indices", stats.EmptyIndices,
		"superseded_indices", stats.SupersededIndices,
		"trimmed_results", stats.TrimmedResults,
	)
	return stats, nil
}
