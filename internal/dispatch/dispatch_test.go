package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/kv"
	"github.com/roach88/govbot/internal/store"
	"github.com/roach88/govbot/internal/testutil"
)

const testEpoch = 1700000000

func setupDispatcher(t *testing.T) (*Dispatcher, *store.Store) {
	t.Helper()
	s, err := store.New(kv.NewMemory())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewClock(time.Unix(testEpoch, 0), 0)
	return New(s, WithClock(clock.Now)), s
}

func assertGolden(t *testing.T, name string, notifies []*ir.Notify) {
	t.Helper()
	data, err := ir.CanonicalJSON(notifies)
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
}

func userHash(v uint64) *uint64 { return &v }

func proposal(id int64, title, status, link string) *ir.Entry {
	return &ir.Entry{
		Timestamp: testEpoch,
		Origin:    "osmosis_proposals",
		Data: &ir.ProposalData{
			Blockchain: "osmosis",
			ProposalID: id,
			Title:      title,
			Status:     status,
			Link:       link,
		},
		Imperative: ir.ImperativeNotify,
	}
}

func entriesQuery(message string, settings ir.Settings) ir.UserQuery {
	return ir.UserQuery{Part: ir.EntriesQueryPart{Message: message}, Settings: settings}
}

func TestDispatch_EmptyResults(t *testing.T) {
	d, s := setupDispatcher(t)
	ctx := context.Background()

	got, err := d.Dispatch(ctx, &ir.Notification{
		Query: entriesQuery("/gov_proposals", ir.Settings{UserHash: userHash(77)}),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(77), got[0].UserHash)
	assert.Equal(t, []string{"Empty result set\n/gov_proposals"}, got[0].Message)
	assert.Empty(t, got[0].Buttons)
	assert.Equal(t, int64(testEpoch), got[0].Timestamp)

	pending, err := s.Notifies(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, got[0], pending[0].Notify)
}

func TestDispatch_SubscribeAndUnsubscribe(t *testing.T) {
	d, _ := setupDispatcher(t)
	ctx := context.Background()
	entries := []*ir.Entry{proposal(1, "A", "passed", "")}

	got, err := d.Dispatch(ctx, &ir.Notification{
		Query:   entriesQuery("/gov_proposals", ir.Settings{Subscribe: true, UserHash: userHash(5)}),
		Entries: entries,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Subscribed\n/gov_proposals"}, got[0].Message)
	assert.Equal(t, uint64(5), got[0].UserHash)

	got, err = d.Dispatch(ctx, &ir.Notification{
		Query: entriesQuery("gov_proposals", ir.Settings{Unsubscribe: true, UserHash: userHash(5)}),
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"Unsubscribed\n/gov_proposals"}, got[0].Message)
}

func TestDispatch_GovernanceEntries(t *testing.T) {
	d, _ := setupDispatcher(t)

	got, err := d.Dispatch(context.Background(), &ir.Notification{
		Query: entriesQuery("/gov_proposals", ir.Settings{UserHash: userHash(42)}),
		Entries: []*ir.Entry{
			proposal(812, "Upgrade to v25", "voting_period", "https://www.mintscan.io/osmosis/proposals/812"),
			proposal(813, "Spend community pool", "passed", ""),
		},
	})
	require.NoError(t, err)
	assertGolden(t, "entries_governance", got)
}

func TestDispatch_NonGovernanceEntriesGetEmptyRows(t *testing.T) {
	d, _ := setupDispatcher(t)
	linked := proposal(812, "Upgrade", "passed", "https://example.org/812")

	for _, q := range []ir.UserQuery{
		entriesQuery("/latest", ir.Settings{UserHash: userHash(1)}),
		{Part: ir.EntriesQueryPart{Message: "/gov_proposals", Display: "status"}, Settings: ir.Settings{UserHash: userHash(1)}},
	} {
		got, err := d.Dispatch(context.Background(), &ir.Notification{Query: q, Entries: []*ir.Entry{linked}})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, [][]ir.Button{{}}, got[0].Buttons)
	}

	got, err := d.Dispatch(context.Background(), &ir.Notification{
		Query:   ir.UserQuery{Part: ir.EntriesQueryPart{Message: "/gov_proposals", Display: "status"}, Settings: ir.Settings{UserHash: userHash(1)}},
		Entries: []*ir.Entry{linked},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"osmosis #812: passed"}, got[0].Message)
}

func TestDispatch_BroadcastToSubscribers(t *testing.T) {
	d, s := setupDispatcher(t)
	ctx := context.Background()

	part := ir.EntriesQueryPart{Message: "/gov_proposals"}
	_, err := s.PutSubscription(ctx, &ir.Subscription{Action: ir.ActionCreated, Query: part, Users: []uint64{3, 9}})
	require.NoError(t, err)

	got, err := d.Dispatch(ctx, &ir.Notification{
		Query:   ir.UserQuery{Part: part},
		Entries: []*ir.Entry{proposal(1, "A", "passed", "")},
	})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(3), got[0].UserHash)
	assert.Equal(t, uint64(9), got[1].UserHash)
	assert.Equal(t, got[0].Message, got[1].Message)
	assert.Equal(t, got[0].Buttons, got[1].Buttons)

	// Empty broadcast also reaches every subscriber.
	got, err = d.Dispatch(ctx, &ir.Notification{Query: ir.UserQuery{Part: part}})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	// No requester and no subscription: nobody to tell.
	got, err = d.Dispatch(ctx, &ir.Notification{Query: entriesQuery("/other", ir.Settings{})})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDispatch_Subscriptions(t *testing.T) {
	d, s := setupDispatcher(t)
	ctx := context.Background()
	q := ir.UserQuery{Part: ir.SubscriptionsQueryPart{Message: "/subscriptions"}, Settings: ir.Settings{UserHash: userHash(7)}}

	got, err := d.Dispatch(ctx, &ir.Notification{Query: q})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"You have no subscriptions."}, got[0].Message)
	assert.Empty(t, got[0].Buttons)

	for _, msg := range []string{"/gov_proposals", "/unsubscribe_alerts"} {
		_, err := s.PutSubscription(ctx, &ir.Subscription{
			Action: ir.ActionCreated,
			Query:  ir.EntriesQueryPart{Message: msg},
			Users:  []uint64{7},
		})
		require.NoError(t, err)
	}

	got, err = d.Dispatch(ctx, &ir.Notification{Query: q})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Your subscriptions:", got[0].Message[0])
	assert.ElementsMatch(t, []string{"/gov_proposals", "/unsubscribe_alerts"}, got[0].Message[1:])
	assert.ElementsMatch(t, [][]ir.Button{
		{{Label: "Unsubscribe", Action: "unsubscribe /gov_proposals"}},
		{{Label: "Subscribe", Action: "subscribe /unsubscribe_alerts"}},
	}, got[0].Buttons)
}

func TestDispatch_Register(t *testing.T) {
	d, _ := setupDispatcher(t)
	ctx := context.Background()
	reg := &ir.Registration{Token: 555, UserHash: 8}

	created, err := d.Dispatch(ctx, &ir.Notification{
		Query:         ir.UserQuery{Part: ir.RegisterQueryPart{Message: "/register"}, Settings: ir.Settings{Register: true, UserHash: userHash(8)}},
		Registrations: []*ir.Registration{reg},
	})
	require.NoError(t, err)

	existing, err := d.Dispatch(ctx, &ir.Notification{
		Query:         ir.UserQuery{Part: ir.RegisterQueryPart{Message: "/register"}, Settings: ir.Settings{UserHash: userHash(8)}},
		Registrations: []*ir.Registration{reg},
	})
	require.NoError(t, err)

	assertGolden(t, "register", append(created, existing...))
}

func TestDispatch_RegisterWithoutRegistrations(t *testing.T) {
	d, _ := setupDispatcher(t)
	got, err := d.Dispatch(context.Background(), &ir.Notification{
		Query: ir.UserQuery{Part: ir.RegisterQueryPart{Message: "/register"}, Settings: ir.Settings{UserHash: userHash(8)}},
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDispatch_LoginURL(t *testing.T) {
	s, err := store.New(kv.NewMemory())
	require.NoError(t, err)
	defer s.Close()
	d := New(s, WithLoginURL("https://bot.example.org/auth"), WithClock(func() time.Time { return time.Unix(1, 0) }))

	got, err := d.Dispatch(context.Background(), &ir.Notification{
		Query:         ir.UserQuery{Part: ir.RegisterQueryPart{Message: "/register"}, Settings: ir.Settings{Register: true}},
		Registrations: []*ir.Registration{{Token: 1, UserHash: 2}},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, [][]ir.Button{{{Label: "Log in", Action: "https://bot.example.org/auth?token=1&user=2"}}}, got[0].Buttons)
}

func TestDispatch_MalformedIsSilent(t *testing.T) {
	d, s := setupDispatcher(t)
	ctx := context.Background()

	cases := []*ir.Notification{
		nil,
		{},
		{Query: entriesQuery("/gov", ir.Settings{Subscribe: true})},
		{Query: ir.UserQuery{Part: ir.SubscriptionsQueryPart{Message: "/subscriptions"}}},
		{Query: ir.UserQuery{Part: ir.RegisterQueryPart{}}, Registrations: []*ir.Registration{nil}},
	}
	for _, n := range cases {
		got, err := d.Dispatch(ctx, n)
		assert.NoError(t, err)
		assert.Empty(t, got)
	}

	pending, err := s.Notifies(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatch_Forward(t *testing.T) {
	d, s := setupDispatcher(t)
	ctx := context.Background()

	require.NoError(t, d.Forward(ctx, &ir.Notification{
		Query: entriesQuery("/gov_proposals", ir.Settings{UserHash: userHash(1)}),
	}))
	pending, err := s.Notifies(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestIsGovernanceCommand(t *testing.T) {
	tests := []struct {
		command  string
		expected bool
	}{
		{"/gov_proposals", true},
		{"gov_proposals", true},
		{"/governance proposal", true},
		{"/GOV-PRPSL", true},
		{"/govproposals", true},
		{"/gov_proposals_passed", true},
		{"/gov", false},
		{"/gov_proposalsx", false},
		{"/latest_gov_proposals", false},
		{"/governor_proposals", false},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsGovernanceCommand(tt.command))
		})
	}
}
