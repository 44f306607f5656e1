package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/kv"
	"github.com/roach88/govbot/internal/store"
)

const fixtureYAML = `
users:
  - { user_id: 99, username: alice }
registrations:
  - { token: 5, user_hash: 8 }
entries:
  - timestamp: 1700000000
    origin: osmosis_proposals
    imperative: notify
    custom_data:
      kind: proposal_data
      data:
        blockchain: osmosis
        proposal_id: 1
        title: "Upgrade to v25"
        status: voting_period
        where: { status: voting_period }
        order_by: { rank: 1 }
  - timestamp: 1700000100
    origin: osmosis_proposals
    imperative: notify
    custom_data:
      kind: proposal_data
      data:
        blockchain: osmosis
        proposal_id: 2
        title: "Spend community pool"
        status: voting_period
        where: { status: voting_period }
        order_by: { rank: 2 }
`

func writeFixtures(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixtures.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0644))
	return path
}

// withStore opens the store env points at, runs fn and closes it again so
// a command can open it next.
func withStore(t *testing.T, env map[string]string, fn func(ctx context.Context, s *store.Store)) {
	t.Helper()
	s, err := store.Open(kv.Backend(env["GOVBOT_STORAGE_BACKEND"]), env["GOVBOT_STORAGE_PATH"])
	require.NoError(t, err)
	fn(context.Background(), s)
	require.NoError(t, s.Close())
}

// decodeData unmarshals the data member of a JSON CLIResponse into v.
func decodeData(t *testing.T, raw []byte, v any) {
	t.Helper()
	var resp struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.Equal(t, "ok", resp.Status, "response: %s", raw)
	require.NoError(t, json.Unmarshal(resp.Data, v))
}

func TestSeedOffline_ThenReindex(t *testing.T) {
	env := pebbleEnv(t)

	cmd, buf := testRoot(env, "seed", "--offline", writeFixtures(t))
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Seeded 2 entries, 1 registrations, 1 users")

	cmd, buf = testRoot(env, "--format", "json", "reindex")
	require.NoError(t, cmd.Execute())

	var infos []IndexInfo
	decodeData(t, buf.Bytes(), &infos)
	assert.Contains(t, infos, IndexInfo{Name: "timeline", Members: 2})
	assert.Contains(t, infos, IndexInfo{Name: "origin_osmosis_proposals", Members: 2})

	withStore(t, env, func(ctx context.Context, s *store.Store) {
		u, err := s.GetUserMetaData(ctx, 99)
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Username)
	})
}

func TestSeed_MissingFixtureFile(t *testing.T) {
	cmd, _ := testRoot(pebbleEnv(t), "seed", "--offline", filepath.Join(t.TempDir(), "missing.yaml"))
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load fixtures")
}

func TestCompact_RemovesDanglingRefs(t *testing.T) {
	env := pebbleEnv(t)

	cmd, _ := testRoot(env, "seed", "--offline", writeFixtures(t))
	require.NoError(t, cmd.Execute())
	cmd, _ = testRoot(env, "reindex")
	require.NoError(t, cmd.Execute())

	withStore(t, env, func(ctx context.Context, s *store.Store) {
		entries, err := s.Entries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		key, err := entries[0].Key()
		require.NoError(t, err)
		require.NoError(t, s.DeleteEntry(ctx, key))
	})

	cmd, buf := testRoot(env, "--format", "json", "compact")
	require.NoError(t, cmd.Execute())

	var report map[string]int
	decodeData(t, buf.Bytes(), &report)
	assert.Greater(t, report["dangling_refs"], 0)
	assert.Equal(t, 0, report["superseded_indices"])

	cmd, buf = testRoot(env, "compact")
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Removed 0 dangling refs")
}

func TestDrain_ListThenDelete(t *testing.T) {
	env := pebbleEnv(t)
	withStore(t, env, func(ctx context.Context, s *store.Store) {
		_, err := s.PutNotify(ctx, &ir.Notify{Timestamp: 10, Message: []string{"Subscribed\n/gov"}, UserHash: 42})
		require.NoError(t, err)
		_, err = s.PutNotify(ctx, &ir.Notify{
			Timestamp: 11,
			Message:   []string{"osmosis #2"},
			Buttons:   [][]ir.Button{{{Label: "Open in Browser", Action: "https://example.org/2"}}},
			UserHash:  7,
		})
		require.NoError(t, err)
	})

	cmd, buf := testRoot(env, "drain")
	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "user=42 ts=10")
	assert.Contains(t, out, "  Subscribed\n  /gov\n")
	assert.Contains(t, out, "  [Open in Browser] https://example.org/2\n")

	cmd, buf = testRoot(env, "--format", "json", "drain", "--user", "7", "--delete")
	require.NoError(t, cmd.Execute())
	var result DrainResult
	decodeData(t, buf.Bytes(), &result)
	require.Len(t, result.Notifies, 1)
	assert.Equal(t, uint64(7), result.Notifies[0].Notify.UserHash)
	assert.Equal(t, 1, result.Deleted)

	cmd, buf = testRoot(env, "--format", "json", "drain", "--delete")
	require.NoError(t, cmd.Execute())
	result = DrainResult{}
	decodeData(t, buf.Bytes(), &result)
	require.Len(t, result.Notifies, 1)
	assert.Equal(t, uint64(42), result.Notifies[0].Notify.UserHash)

	cmd, buf = testRoot(env, "drain")
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "No pending notifies.")
}

func TestDrain_RawShowsStoredCBOR(t *testing.T) {
	env := pebbleEnv(t)
	withStore(t, env, func(ctx context.Context, s *store.Store) {
		_, err := s.PutNotify(ctx, &ir.Notify{Timestamp: 12, Message: []string{"osmosis #5"}, UserHash: 9})
		require.NoError(t, err)
	})

	cmd, buf := testRoot(env, "drain", "--raw")
	require.NoError(t, cmd.Execute())
	out := buf.String()
	assert.Contains(t, out, "  cbor: [")
	assert.Contains(t, out, `"osmosis #5"`)
	assert.Contains(t, out, `"user_hash"`)

	cmd, buf = testRoot(env, "--format", "json", "drain", "--raw")
	require.NoError(t, cmd.Execute())
	var result DrainResult
	decodeData(t, buf.Bytes(), &result)
	require.Len(t, result.Notifies, 1)
	assert.Contains(t, result.Notifies[0].Raw, `"osmosis #5"`)

	cmd, buf = testRoot(env, "--format", "json", "drain")
	require.NoError(t, cmd.Execute())
	result = DrainResult{}
	decodeData(t, buf.Bytes(), &result)
	require.Len(t, result.Notifies, 1)
	assert.Empty(t, result.Notifies[0].Raw)
}

func TestSubscriptions_ListAndRemove(t *testing.T) {
	env := pebbleEnv(t)
	part := ir.EntriesQueryPart{Message: "/gov_proposals", OrderBy: "rank"}
	var key ir.Key
	withStore(t, env, func(ctx context.Context, s *store.Store) {
		var err error
		key, err = s.PutSubscription(ctx, &ir.Subscription{
			Action: ir.ActionCreated,
			Query:  part,
			Users:  []uint64{7, 42},
		})
		require.NoError(t, err)
		_, err = s.PutSubscription(ctx, &ir.Subscription{
			Action: ir.ActionCreated,
			Query:  ir.EntriesQueryPart{Message: "/latest"},
			Users:  []uint64{7},
		})
		require.NoError(t, err)
	})

	cmd, buf := testRoot(env, "--format", "json", "subscriptions", "list", "--user", "42")
	require.NoError(t, cmd.Execute())
	var infos []SubscriptionInfo
	decodeData(t, buf.Bytes(), &infos)
	require.Len(t, infos, 1)
	assert.Equal(t, "gov_proposals", infos[0].Command)
	assert.Equal(t, []uint64{7, 42}, infos[0].Users)
	assert.Equal(t, key, infos[0].Key)

	cmd, buf = testRoot(env, "subscriptions", "remove", key.String())
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "Removed /gov_proposals (2 users)")

	cmd, _ = testRoot(env, "subscriptions", "remove", key.String())
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	cmd, buf = testRoot(env, "subscriptions", "list")
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "/latest  users=[7] results=0")
	assert.NotContains(t, buf.String(), "gov_proposals")
}

func TestSubscriptionsRemove_RejectsBadKeys(t *testing.T) {
	cmd, _ := testRoot(pebbleEnv(t), "subscriptions", "remove", "not-hex")
	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	key, kerr := ir.NotifyKey(&ir.Notify{UserHash: 1})
	require.NoError(t, kerr)
	cmd, _ = testRoot(pebbleEnv(t), "subscriptions", "remove", key.String())
	err = cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is not a subscription key")
}
