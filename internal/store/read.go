package store

import (
	"context"
	"fmt"

	"github.com/roach88/govbot/internal/ir"
)

// GetEntry returns the entry stored under key.
func (s *Store) GetEntry(ctx context.Context, key ir.Key) (*ir.Entry, error) {
	e, err := s.getEntry(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get entry %s: %w", key, err)
	}
	return e, nil
}

func (s *Store) getEntry(ctx context.Context, key ir.Key) (*ir.Entry, error) {
	if e, ok := s.cache.Get(string(key)); ok {
		return e, nil
	}
	e, err := get[*ir.Entry](ctx, s, key)
	if err != nil {
		return nil, err
	}
	s.cache.Add(string(key), e)
	return e, nil
}

// Entries returns every entry in key order.
func (s *Store) Entries(ctx context.Context) ([]*ir.Entry, error) {
	out, err := collect[*ir.Entry](ctx, s, ir.PrefixEntry)
	if err != nil {
		return nil, fmt.Errorf("list entries: %w", err)
	}
	return out, nil
}

// EntriesByKeys returns the entries for keys in the given order. Keys whose
// entry no longer exists are skipped.
func (s *Store) EntriesByKeys(ctx context.Context, keys []ir.Key) ([]*ir.Entry, error) {
	out := make([]*ir.Entry, 0, len(keys))
	for _, key := range keys {
		e, err := s.getEntry(ctx, key)
		if IsNotFound(err) {
			s.logger.Debug("skipping dangling key", "key", key.String())
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("entries by keys: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Indices returns every index in key order.
func (s *Store) Indices(ctx context.Context) ([]*ir.Index, error) {
	out, err := collect[*ir.Index](ctx, s, ir.PrefixIndex)
	if err != nil {
		return nil, fmt.Errorf("list indices: %w", err)
	}
	return out, nil
}

// IndexByName returns the index with the given name.
func (s *Store) IndexByName(ctx context.Context, name string) (*ir.Index, error) {
	var found *ir.Index
	err := scan(ctx, s, ir.PrefixIndex, func(_ ir.Key, ix *ir.Index) error {
		if ix.Name == name && found == nil {
			found = ix
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("index %q: %w", name, err)
	}
	if found == nil {
		return nil, fmt.Errorf("index %q: %w", name, ErrNotFound)
	}
	return found, nil
}

// GetSubscription returns the subscription stored under key.
func (s *Store) GetSubscription(ctx context.Context, key ir.Key) (*ir.Subscription, error) {
	sub, err := get[*ir.Subscription](ctx, s, key)
	if err != nil {
		return nil, fmt.Errorf("get subscription %s: %w", key, err)
	}
	return sub, nil
}

// SubscriptionFor returns the subscription for a query part.
func (s *Store) SubscriptionFor(ctx context.Context, part ir.QueryPart) (*ir.Subscription, error) {
	key, err := ir.SubscriptionKey(part)
	if err != nil {
		return nil, err
	}
	return s.GetSubscription(ctx, key)
}

// Subscriptions returns every subscription in key order.
func (s *Store) Subscriptions(ctx context.Context) ([]*ir.Subscription, error) {
	out, err := collect[*ir.Subscription](ctx, s, ir.PrefixSubscription)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return out, nil
}

// SubscriptionsForUser returns the subscriptions user belongs to.
func (s *Store) SubscriptionsForUser(ctx context.Context, user uint64) ([]*ir.Subscription, error) {
	var out []*ir.Subscription
	err := scan(ctx, s, ir.PrefixSubscription, func(_ ir.Key, sub *ir.Subscription) error {
		if sub.HasUser(user) {
			out = append(out, sub)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscriptions for user: %w", err)
	}
	return out, nil
}

// GetRegistration returns the registration of a user.
func (s *Store) GetRegistration(ctx context.Context, userHash uint64) (*ir.Registration, error) {
	r, err := get[*ir.Registration](ctx, s, ir.RegistrationKey(userHash))
	if err != nil {
		return nil, fmt.Errorf("get registration: %w", err)
	}
	return r, nil
}

// Registrations returns every registration in key order.
func (s *Store) Registrations(ctx context.Context) ([]*ir.Registration, error) {
	out, err := collect[*ir.Registration](ctx, s, ir.PrefixRegistration)
	if err != nil {
		return nil, fmt.Errorf("list registrations: %w", err)
	}
	return out, nil
}

// KeyedNotify is a pending notify together with its key.
type KeyedNotify struct {
	Key    ir.Key
	Notify *ir.Notify
}

// Notifies returns every pending notify in key order.
func (s *Store) Notifies(ctx context.Context) ([]KeyedNotify, error) {
	var out []KeyedNotify
	err := scan(ctx, s, ir.PrefixNotify, func(key ir.Key, n *ir.Notify) error {
		out = append(out, KeyedNotify{Key: key, Notify: n})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list notifies: %w", err)
	}
	return out, nil
}

// GetUserMetaData returns the stored snapshot of a user.
func (s *Store) GetUserMetaData(ctx context.Context, userID uint64) (*ir.UserMetaData, error) {
	u, err := get[*ir.UserMetaData](ctx, s, ir.UserMetaDataKey(userID))
	if err != nil {
		return nil, fmt.Errorf("get user metadata: %w", err)
	}
	return u, nil
}
