package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govbot/internal/dispatch"
	"github.com/roach88/govbot/internal/engine"
	"github.com/roach88/govbot/internal/index"
	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/kv"
	"github.com/roach88/govbot/internal/store"
	"github.com/roach88/govbot/internal/testutil"
)

type fixture struct {
	store      *store.Store
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
}

func setupFixture(t *testing.T, opts ...engine.Option) *fixture {
	t.Helper()
	s, err := store.New(kv.NewMemory())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e, err := engine.New(s, index.DefaultPlan(), opts...)
	require.NoError(t, err)

	clock := testutil.NewClock(time.Unix(1700000000, 0), 0)
	return &fixture{store: s, engine: e, dispatcher: dispatch.New(s, dispatch.WithClock(clock.Now))}
}

func rankedProposal(id int64, status string) *ir.Entry {
	return &ir.Entry{
		Timestamp: 1700000000 + id,
		Origin:    "osmosis_proposals",
		Data: &ir.ProposalData{
			Facets: ir.Facets{
				Where:   ir.IRObject{"status": ir.IRString(status)},
				OrderBy: ir.IRObject{"rank": ir.IRInt(id)},
			},
			Blockchain: "osmosis",
			ProposalID: id,
			Title:      "Proposal",
			Status:     status,
		},
		Imperative: ir.ImperativeNotify,
	}
}

func (f *fixture) insert(t *testing.T, entries ...*ir.Entry) {
	t.Helper()
	for _, e := range entries {
		_, err := f.store.PutEntry(context.Background(), e)
		require.NoError(t, err)
	}
}

func uh(v uint64) *uint64 { return &v }

func serveQuery(t *testing.T, qs *QueryService, q ir.UserQuery) []Row {
	t.Helper()
	req, err := json.Marshal(q)
	require.NoError(t, err)
	resp, err := qs.ServeRequest(context.Background(), req)
	require.NoError(t, err)

	var rows []Row
	require.NoError(t, json.Unmarshal(resp, &rows))
	return rows
}

func TestQueryServiceProjectsFields(t *testing.T) {
	f := setupFixture(t)
	f.insert(t, rankedProposal(1, "passed"), rankedProposal(2, "rejected"), rankedProposal(3, "passed"))
	qs := NewQueryService(f.engine, nil, nil)

	rows := serveQuery(t, qs, ir.UserQuery{
		Part: ir.EntriesQueryPart{
			Message: "/gov_proposals",
			Filter:  map[string]string{"status": "any"},
			OrderBy: "rank",
			Limit:   2,
		},
		Fields: []string{"timestamp", "custom_data.data.proposal_id", "missing"},
	})

	require.Len(t, rows, 2)
	assert.Equal(t, Row{"timestamp": float64(1700000003), "custom_data.data.proposal_id": float64(3)}, rows[0])
	assert.Equal(t, Row{"timestamp": float64(1700000002), "custom_data.data.proposal_id": float64(2)}, rows[1])
}

func TestQueryServiceWithoutFieldsReturnsWholeValues(t *testing.T) {
	f := setupFixture(t)
	f.insert(t, rankedProposal(1, "passed"))
	qs := NewQueryService(f.engine, nil, nil)

	rows := serveQuery(t, qs, ir.UserQuery{Part: ir.EntriesQueryPart{Message: "/latest"}})
	require.Len(t, rows, 1)
	assert.ElementsMatch(t, []string{"timestamp", "origin", "custom_data", "imperative"}, keysOf(rows[0]))
}

func keysOf(r Row) []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	return out
}

func TestQueryServiceForwardsToDispatcher(t *testing.T) {
	f := setupFixture(t)
	qs := NewQueryService(f.engine, f.dispatcher, nil)

	rows := serveQuery(t, qs, ir.UserQuery{
		Part:     ir.EntriesQueryPart{Message: "/gov_proposals"},
		Settings: ir.Settings{UserHash: uh(77)},
	})
	assert.Empty(t, rows)

	pending, err := f.store.Notifies(context.Background())
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, uint64(77), pending[0].Notify.UserHash)
	assert.Equal(t, []string{"Empty result set\n/gov_proposals"}, pending[0].Notify.Message)
}

func TestQueryServiceSubscriptionsAndRegister(t *testing.T) {
	f := setupFixture(t, engine.WithTokenGenerator(engine.NewFixedTokens(555)))
	qs := NewQueryService(f.engine, f.dispatcher, nil)

	serveQuery(t, qs, ir.UserQuery{
		Part:     ir.EntriesQueryPart{Message: "/gov_proposals"},
		Settings: ir.Settings{Subscribe: true, UserHash: uh(9)},
	})

	rows := serveQuery(t, qs, ir.UserQuery{
		Part:     ir.SubscriptionsQueryPart{Message: "/subscriptions"},
		Settings: ir.Settings{UserHash: uh(9)},
		Fields:   []string{"users"},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, []any{float64(9)}, rows[0]["users"])

	rows = serveQuery(t, qs, ir.UserQuery{
		Part:     ir.RegisterQueryPart{Message: "/register"},
		Settings: ir.Settings{Register: true, UserHash: uh(9)},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, Row{"token": float64(555), "user_hash": float64(9)}, rows[0])
}

func TestQueryServiceRejectedQueryAnswersEmpty(t *testing.T) {
	f := setupFixture(t)
	qs := NewQueryService(f.engine, f.dispatcher, nil)

	rows := serveQuery(t, qs, ir.UserQuery{
		Part:     ir.EntriesQueryPart{Message: "/gov_proposals"},
		Settings: ir.Settings{Subscribe: true},
	})
	assert.Empty(t, rows)

	pending, err := f.store.Notifies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending, "rejected queries are not forwarded")
}

func TestQueryServiceMalformedRequestAborts(t *testing.T) {
	f := setupFixture(t)
	qs := NewQueryService(f.engine, nil, nil)

	for _, req := range []string{`not json`, `{}`, `{"query_part":{"kind":"bogus"}}`} {
		_, err := qs.ServeRequest(context.Background(), []byte(req))
		assert.Error(t, err, req)
	}
}

func TestQueryOverSocket(t *testing.T) {
	f := setupFixture(t)
	f.insert(t, rankedProposal(1, "passed"), rankedProposal(2, "passed"))

	srv := NewSocketServer("query", socketPath(t), NewQueryService(f.engine, nil, nil))
	startServer(t, srv)

	rows, err := Query(context.Background(), srv.Path(), ir.UserQuery{
		Part:   ir.EntriesQueryPart{Message: "/gov_proposals", OrderBy: "rank"},
		Fields: []string{"custom_data.data.proposal_id"},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, json.Number("2"), rows[0]["custom_data.data.proposal_id"])
	assert.Equal(t, json.Number("1"), rows[1]["custom_data.data.proposal_id"])

	_, err = Call(context.Background(), srv.Path(), []byte("{"))
	assert.ErrorIs(t, err, ErrAborted)
}

func TestProject(t *testing.T) {
	values := []any{map[string]any{"a": 1, "b": map[string]any{"c": "x"}}}

	rows, err := Project(values, []string{"b.c", "b.missing", "a.deeper"})
	require.NoError(t, err)
	assert.Equal(t, []Row{{"b.c": "x"}}, rows)

	rows, err = Project(nil, nil)
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}
