package store

import (
	"context"
	"fmt"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/kv"
)

// PutEntry upserts an entry. Re-inserting the same origin and payload
// overwrites the record in place: the stored timestamp is the later of the
// two, the imperative follows the newest write.
func (s *Store) PutEntry(ctx context.Context, e *ir.Entry) (ir.Key, error) {
	key, err := e.Key()
	if err != nil {
		return nil, fmt.Errorf("put entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *e
	existing, err := s.getEntry(ctx, key)
	switch {
	case err == nil:
		stored.Timestamp = max(existing.Timestamp, e.Timestamp)
	case !IsNotFound(err):
		return nil, fmt.Errorf("put entry: %w", err)
	}

	data, err := ir.Encode(&stored)
	if err != nil {
		return nil, fmt.Errorf("put entry: %w", err)
	}
	if err := s.kv.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("put entry: %w", err)
	}
	s.cache.Add(string(key), &stored)
	return key, nil
}

// DeleteEntry removes an entry. Indices and subscriptions referring to it
// keep a dangling key until the next rebuild or Compact.
func (s *Store) DeleteEntry(ctx context.Context, key ir.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache.Remove(string(key))
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	return nil
}

// ReplaceIndices makes indices the complete stored index set: it writes
// them and deletes every other stored index in one atomic batch. Indices
// for values no entry carries any more, and indices a plan no longer
// names, go with them.
func (s *Store) ReplaceIndices(ctx context.Context, indices []*ir.Index) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	keep := make(map[string]bool, len(indices))
	muts := make([]kv.Mutation, 0, len(indices))

	for _, ix := range indices {
		key, err := ix.Key()
		if err != nil {
			return fmt.Errorf("replace indices: %w", err)
		}
		data, err := ir.Encode(ix)
		if err != nil {
			return fmt.Errorf("replace indices: %w", err)
		}
		keep[string(key)] = true
		muts = append(muts, kv.PutMutation(key, data))
	}

	err := s.kv.Scan(ctx, []byte(ir.PrefixIndex), func(k, _ []byte) error {
		if ir.Key(k).HasPrefix(ir.PrefixIndex) && !keep[string(k)] {
			muts = append(muts, kv.DeleteMutation(k))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("replace indices: %w", err)
	}

	if len(muts) == 0 {
		return nil
	}
	if err := s.kv.Apply(ctx, muts); err != nil {
		return fmt.Errorf("replace indices: %w", err)
	}
	s.logger.Debug("indices replaced", "count", len(indices), "deleted", len(muts)-len(indices))
	return nil
}

// PutSubscription stores a subscription under its query key.
func (s *Store) PutSubscription(ctx context.Context, sub *ir.Subscription) (ir.Key, error) {
	key, err := put(ctx, s, sub)
	if err != nil {
		return nil, fmt.Errorf("put subscription: %w", err)
	}
	return key, nil
}

// DeleteSubscription removes a subscription.
func (s *Store) DeleteSubscription(ctx context.Context, key ir.Key) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// PutRegistration upserts the registration of a user.
func (s *Store) PutRegistration(ctx context.Context, r *ir.Registration) (ir.Key, error) {
	key, err := put(ctx, s, r)
	if err != nil {
		return nil, fmt.Errorf("put registration: %w", err)
	}
	return key, nil
}

// PutNotify writes an outbound notify.
func (s *Store) PutNotify(ctx context.Context, n *ir.Notify) (ir.Key, error) {
	key, err := put(ctx, s, n)
	if err != nil {
		return nil, fmt.Errorf("put notify: %w", err)
	}
	return key, nil
}

// DeleteNotify removes a delivered notify.
func (s *Store) DeleteNotify(ctx context.Context, key ir.Key) error {
	if err := s.kv.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete notify: %w", err)
	}
	return nil
}

// PutUserMetaData stores the latest snapshot of a user.
func (s *Store) PutUserMetaData(ctx context.Context, u *ir.UserMetaData) (ir.Key, error) {
	key, err := put(ctx, s, u)
	if err != nil {
		return nil, fmt.Errorf("put user metadata: %w", err)
	}
	return key, nil
}
