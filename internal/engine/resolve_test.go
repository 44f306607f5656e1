package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/queryir"
)

func rankedEntry(id int64, status string, rank ir.IRValue) *ir.Entry {
	orderBy := ir.IRObject{}
	if rank != nil {
		orderBy["rank"] = rank
	}
	return &ir.Entry{
		Timestamp: 1700000000,
		Origin:    "osmosis_proposals",
		Data: &ir.ProposalData{
			Facets: ir.Facets{
				Where:   ir.IRObject{"status": ir.IRString(status)},
				OrderBy: orderBy,
			},
			Blockchain: "osmosis",
			ProposalID: id,
			Title:      "Proposal",
			Status:     status,
		},
		Imperative: ir.ImperativeNotify,
	}
}

func proposalIDs(entries []*ir.Entry) []int64 {
	ids := make([]int64, len(entries))
	for i, e := range entries {
		ids[i] = e.Data.(*ir.ProposalData).ProposalID
	}
	return ids
}

func TestResolve_WildcardLimit(t *testing.T) {
	statuses := []string{"passed", "rejected", "passed", "voting", "rejected"}
	ranks := []int64{5, 3, 1, 4, 2}

	var entries []*ir.Entry
	for i, r := range ranks {
		entries = append(entries, rankedEntry(r, statuses[i], ir.IRInt(r)))
	}

	got := Resolve(entries, map[string]string{"status": "any"}, "rank", 2)
	assert.Equal(t, []int64{5, 4}, proposalIDs(got))
}

func TestResolve_Filter(t *testing.T) {
	entries := []*ir.Entry{
		rankedEntry(1, "passed", ir.IRInt(1)),
		rankedEntry(2, "rejected", ir.IRInt(2)),
		rankedEntry(3, "passed", ir.IRInt(3)),
	}

	got := Resolve(entries, map[string]string{"status": "passed"}, "rank", 0)
	assert.Equal(t, []int64{3, 1}, proposalIDs(got))

	got = Resolve(entries, map[string]string{"status": "open"}, "rank", 0)
	assert.Empty(t, got)

	got = Resolve(entries, map[string]string{"chain": "osmosis"}, "rank", 0)
	assert.Empty(t, got, "absent field never matches a concrete value")
}

func TestResolve_StableTiesReversed(t *testing.T) {
	entries := []*ir.Entry{
		rankedEntry(1, "passed", ir.IRInt(7)),
		rankedEntry(2, "passed", ir.IRInt(7)),
		rankedEntry(3, "passed", ir.IRInt(9)),
	}

	// Ascending stable sort keeps 1 before 2; the final reverse flips them.
	got := Resolve(entries, nil, "rank", 0)
	assert.Equal(t, []int64{3, 2, 1}, proposalIDs(got))
}

func TestResolve_MalformedPayloads(t *testing.T) {
	entries := []*ir.Entry{
		rankedEntry(1, "passed", ir.IRString("high")),
		rankedEntry(2, "passed", nil),
		rankedEntry(3, "passed", ir.IRString("4")),
		{Origin: "logs", Data: &ir.Log{Message: "no facets"}},
		{Origin: "empty"},
		nil,
	}

	var got []*ir.Entry
	require.NotPanics(t, func() {
		got = Resolve(entries, map[string]string{"status": "any"}, "rank", 0)
	})
	require.Len(t, got, 5)
	assert.Equal(t, int64(3), got[0].Data.(*ir.ProposalData).ProposalID, "numeric string ranks parse")

	got = Resolve(entries, map[string]string{"status": "passed"}, "rank", 0)
	assert.Len(t, got, 3, "entries without a where object are filtered out")
}

func TestResolve_LimitBeyondLength(t *testing.T) {
	entries := []*ir.Entry{rankedEntry(1, "passed", ir.IRInt(1))}
	assert.Len(t, Resolve(entries, nil, "rank", 10), 1)
	assert.Len(t, Resolve(entries, nil, "rank", -1), 1)
	assert.Empty(t, Resolve(nil, nil, "rank", 3))
}

func TestMatches(t *testing.T) {
	where := ir.IRObject{
		"status": ir.IRString("passed"),
		"height": ir.IRInt(10),
		"none":   ir.IRNull{},
	}

	tests := []struct {
		name     string
		pred     queryir.Predicate
		expected bool
	}{
		{"nil predicate", nil, true},
		{"equal string", queryir.Equals{Field: "status", Value: ir.IRString("passed")}, true},
		{"equal by text form", queryir.Equals{Field: "height", Value: ir.IRString("10")}, true},
		{"different", queryir.Equals{Field: "status", Value: ir.IRString("rejected")}, false},
		{"absent", queryir.Equals{Field: "chain", Value: ir.IRString("")}, false},
		{"null", queryir.Equals{Field: "none", Value: ir.IRString("")}, false},
		{"wildcard absent", queryir.Wildcard{Field: "chain"}, true},
		{"empty and", queryir.And{}, true},
		{"and", queryir.And{Predicates: []queryir.Predicate{
			queryir.Equals{Field: "status", Value: ir.IRString("passed")},
			queryir.Equals{Field: "height", Value: ir.IRInt(11)},
		}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Matches(tt.pred, where))
		})
	}
}
