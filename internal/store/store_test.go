package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/kv"
)

// createTestStore returns a Store over the in-memory backend.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(kv.NewMemory())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(id int64, status string, rank int64, ts int64) *ir.Entry {
	return &ir.Entry{
		Timestamp: ts,
		Origin:    "osmosis_proposals",
		Data: &ir.ProposalData{
			Facets: ir.Facets{
				Where:   ir.IRObject{"status": ir.IRString(status)},
				OrderBy: ir.IRObject{"rank": ir.IRInt(rank)},
			},
			Blockchain: "osmosis",
			ProposalID: id,
			Title:      "Proposal",
			Status:     status,
		},
		Imperative: ir.ImperativeNotify,
	}
}

func TestOpenBackends(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []kv.Backend{kv.BackendPebble, kv.BackendSQLite, kv.BackendMemory} {
		t.Run(string(backend), func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "govbot")
			s, err := Open(backend, path, WithCacheSize(2))
			require.NoError(t, err)
			defer s.Close()

			key, err := s.PutEntry(ctx, testEntry(1, "passed", 1, 100))
			require.NoError(t, err)

			got, err := s.GetEntry(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, int64(100), got.Timestamp)
		})
	}
}

func TestPutEntryIdempotentUpsert(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	k1, err := s.PutEntry(ctx, testEntry(1, "passed", 1, 100))
	require.NoError(t, err)
	k2, err := s.PutEntry(ctx, testEntry(1, "passed", 1, 200))
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(200), entries[0].Timestamp)

	// An older observation does not move the timestamp backwards.
	older := testEntry(1, "passed", 1, 50)
	older.Imperative = ir.ImperativeUpdate
	_, err = s.PutEntry(ctx, older)
	require.NoError(t, err)

	got, err := s.GetEntry(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, int64(200), got.Timestamp)
	assert.Equal(t, ir.ImperativeUpdate, got.Imperative, "imperative follows the newest write")
}

func TestGetEntryAfterCacheEviction(t *testing.T) {
	ctx := context.Background()
	s, err := New(kv.NewMemory(), WithCacheSize(1))
	require.NoError(t, err)
	defer s.Close()

	k1, err := s.PutEntry(ctx, testEntry(1, "passed", 1, 100))
	require.NoError(t, err)
	_, err = s.PutEntry(ctx, testEntry(2, "passed", 1, 100)) // evicts k1
	require.NoError(t, err)

	got, err := s.GetEntry(ctx, k1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Data.(*ir.ProposalData).ProposalID)
}

func TestEntriesSkipsForeignKeys(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.PutEntry(ctx, testEntry(1, "passed", 1, 100))
	require.NoError(t, err)
	// A key sharing the prefix bytes but not the key layout.
	require.NoError(t, s.KV().Put(ctx, []byte("entry\x01"), []byte("junk")))

	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEntriesByKeysSkipsDangling(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	k1, err := s.PutEntry(ctx, testEntry(1, "passed", 1, 100))
	require.NoError(t, err)
	k2, err := s.PutEntry(ctx, testEntry(2, "passed", 2, 100))
	require.NoError(t, err)
	k3, err := s.PutEntry(ctx, testEntry(3, "passed", 3, 100))
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntry(ctx, k2))

	got, err := s.EntriesByKeys(ctx, []ir.Key{k3, k2, k1})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].Data.(*ir.ProposalData).ProposalID)
	assert.Equal(t, int64(1), got[1].Data.(*ir.ProposalData).ProposalID)

	_, err = s.GetEntry(ctx, k2)
	assert.True(t, IsNotFound(err))
}

func TestReplaceIndices(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	k1, err := s.PutEntry(ctx, testEntry(1, "passed", 1, 100))
	require.NoError(t, err)
	k2, err := s.PutEntry(ctx, testEntry(2, "rejected", 2, 100))
	require.NoError(t, err)

	require.NoError(t, s.ReplaceIndices(ctx, []*ir.Index{
		{Name: "status_passed", List: []ir.Key{k1}},
		{Name: "status_rejected", List: []ir.Key{k2}},
		{Name: "rank", List: []ir.Key{k2, k1}},
	}))

	// A rebuild is the complete set: the old passed index and every
	// index missing from the new set go.
	require.NoError(t, s.ReplaceIndices(ctx, []*ir.Index{
		{Name: "status_passed", List: []ir.Key{k1, k2}},
		{Name: "rank", List: []ir.Key{k2, k1}},
	}))

	indices, err := s.Indices(ctx)
	require.NoError(t, err)
	require.Len(t, indices, 2)

	passed, err := s.IndexByName(ctx, "status_passed")
	require.NoError(t, err)
	assert.Equal(t, []ir.Key{k1, k2}, passed.List)

	_, err = s.IndexByName(ctx, "status_rejected")
	assert.True(t, IsNotFound(err))

	// Replacing with identical content is a no-op.
	rank, err := s.IndexByName(ctx, "rank")
	require.NoError(t, err)
	require.NoError(t, s.ReplaceIndices(ctx, []*ir.Index{passed, rank}))
	indices, err = s.Indices(ctx)
	require.NoError(t, err)
	assert.Len(t, indices, 2)

	// An empty rebuild clears every index.
	require.NoError(t, s.ReplaceIndices(ctx, nil))
	indices, err = s.Indices(ctx)
	require.NoError(t, err)
	assert.Empty(t, indices)
}

func TestReplaceIndicesDuringCompact(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	keys := make([]ir.Key, 0, 20)
	for i := int64(1); i <= 20; i++ {
		k, err := s.PutEntry(ctx, testEntry(i, "passed", i, 100))
		require.NoError(t, err)
		keys = append(keys, k)
	}
	require.NoError(t, s.ReplaceIndices(ctx, []*ir.Index{{Name: "status_passed", List: keys[:10]}}))
	// Dangling members make every Compact pass rewrite the index.
	for _, k := range keys[:5] {
		require.NoError(t, s.DeleteEntry(ctx, k))
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Compact(ctx)
			assert.NoError(t, err)
		}()
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, s.ReplaceIndices(ctx, []*ir.Index{{Name: "status_passed", List: keys[:10+n]}}))
		}(i)
	}
	wg.Wait()

	indices, err := s.Indices(ctx)
	require.NoError(t, err)
	require.Len(t, indices, 1, "one index per name after interleaved rebuilds and compactions")
	assert.Equal(t, "status_passed", indices[0].Name)
}

func TestSubscriptions(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	q1 := ir.EntriesQueryPart{Message: "/gov_proposals", OrderBy: "rank"}
	q2 := ir.EntriesQueryPart{Message: "/gov_proposals_passed", Filter: map[string]string{"status": "passed"}}

	sub1 := &ir.Subscription{Action: ir.ActionCreated, Query: q1, Users: []uint64{1, 2}}
	sub2 := &ir.Subscription{Action: ir.ActionCreated, Query: q2, Users: []uint64{2}}
	k1, err := s.PutSubscription(ctx, sub1)
	require.NoError(t, err)
	_, err = s.PutSubscription(ctx, sub2)
	require.NoError(t, err)

	got, err := s.SubscriptionFor(ctx, q1)
	require.NoError(t, err)
	assert.Equal(t, sub1, got)

	forOne, err := s.SubscriptionsForUser(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, forOne, 1)

	forTwo, err := s.SubscriptionsForUser(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, forTwo, 2)

	require.NoError(t, s.DeleteSubscription(ctx, k1))
	all, err := s.Subscriptions(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, ir.QueryPart(q2), all[0].Query)
}

func TestRegistrationsAndUsers(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	user := &ir.UserMetaData{UserID: 1001, Username: "alice"}
	_, err := s.PutUserMetaData(ctx, user)
	require.NoError(t, err)

	got, err := s.GetUserMetaData(ctx, 1001)
	require.NoError(t, err)
	assert.Equal(t, user, got)

	_, err = s.PutRegistration(ctx, &ir.Registration{Token: 1, UserHash: user.UserHash()})
	require.NoError(t, err)
	_, err = s.PutRegistration(ctx, &ir.Registration{Token: 2, UserHash: user.UserHash()})
	require.NoError(t, err)

	reg, err := s.GetRegistration(ctx, user.UserHash())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reg.Token, "one registration per user")

	regs, err := s.Registrations(ctx)
	require.NoError(t, err)
	assert.Len(t, regs, 1)

	_, err = s.GetRegistration(ctx, 12345)
	assert.True(t, IsNotFound(err))

	// User metadata lives outside every prefixed partition.
	entries, err := s.Entries(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestNotifiesDrain(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	n1 := &ir.Notify{Timestamp: 1, Message: []string{"a"}, UserHash: 1}
	n2 := &ir.Notify{Timestamp: 1, Message: []string{"b"}, UserHash: 1}
	_, err := s.PutNotify(ctx, n1)
	require.NoError(t, err)
	_, err = s.PutNotify(ctx, n2)
	require.NoError(t, err)
	_, err = s.PutNotify(ctx, n1)
	require.NoError(t, err)

	pending, err := s.Notifies(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2, "identical notifies share a key")

	for _, p := range pending {
		require.NoError(t, s.DeleteNotify(ctx, p.Key))
	}
	pending, err = s.Notifies(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestCompact(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	k1, err := s.PutEntry(ctx, testEntry(1, "passed", 1, 100))
	require.NoError(t, err)
	k2, err := s.PutEntry(ctx, testEntry(2, "passed", 2, 100))
	require.NoError(t, err)
	k3, err := s.PutEntry(ctx, testEntry(3, "rejected", 3, 100))
	require.NoError(t, err)

	require.NoError(t, s.ReplaceIndices(ctx, []*ir.Index{
		{Name: "status_passed", List: []ir.Key{k1, k2}},
		{Name: "status_rejected", List: []ir.Key{k3}},
	}))
	q := ir.EntriesQueryPart{Message: "/gov_proposals"}
	_, err = s.PutSubscription(ctx, &ir.Subscription{Action: ir.ActionCreated, Query: q, Users: []uint64{1}, Results: []ir.Key{k3, k2, k1}})
	require.NoError(t, err)

	require.NoError(t, s.DeleteEntry(ctx, k2))
	require.NoError(t, s.DeleteEntry(ctx, k3))

	stats, err := s.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, CompactStats{DanglingRefs: 2, EmptyIndices: 1, TrimmedResults: 2}, stats)
	assert.Equal(t, 5, stats.Total())

	indices, err := s.Indices(ctx)
	require.NoError(t, err)
	require.Len(t, indices, 1)
	assert.Equal(t, "status_passed", indices[0].Name)
	assert.Equal(t, []ir.Key{k1}, indices[0].List)

	sub, err := s.SubscriptionFor(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, []ir.Key{k1}, sub.Results)

	// A second pass finds nothing.
	stats, err = s.Compact(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Total())
}

func TestCompactDropsSupersededIndices(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	k1, err := s.PutEntry(ctx, testEntry(1, "passed", 1, 100))
	require.NoError(t, err)
	k2, err := s.PutEntry(ctx, testEntry(2, "passed", 2, 100))
	require.NoError(t, err)

	// Write two same-name indices directly, bypassing ReplaceIndices.
	for _, ix := range []*ir.Index{
		{Name: "status_passed", List: []ir.Key{k1}},
		{Name: "status_passed", List: []ir.Key{k1, k2}},
	} {
		key, err := ix.Key()
		require.NoError(t, err)
		data, err := ir.Encode(ix)
		require.NoError(t, err)
		require.NoError(t, s.KV().Put(ctx, key, data))
	}

	stats, err := s.Compact(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SupersededIndices)

	ix, err := s.IndexByName(ctx, "status_passed")
	require.NoError(t, err)
	assert.Equal(t, []ir.Key{k1, k2}, ix.List)
}
