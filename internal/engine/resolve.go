package engine

import (
	"slices"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/queryir"
)

// Resolve filters, ranks and limits entries.
//
//  1. Keep entries whose where object satisfies every filter pair; the value
//     "any" matches regardless of the field.
//  2. Read each survivor's rank from order_by[orderBy]; absent or
//     non-numeric ranks read as 0.
//  3. Sort ascending by rank (stable), reverse, and keep the first limit
//     entries. limit <= 0 keeps all.
//
// Resolve never fails: malformed payloads simply fail to match or rank 0.
func Resolve(entries []*ir.Entry, filter map[string]string, orderBy string, limit int) []*ir.Entry {
	return Execute(entries, queryir.Select{
		Filter:  queryir.CompileFilter(filter),
		OrderBy: orderBy,
		Limit:   limit,
	})
}

// Execute runs a compiled plan over candidate entries. sel.From is ignored;
// the caller has already resolved it into entries.
func Execute(entries []*ir.Entry, sel queryir.Select) []*ir.Entry {
	type ranked struct {
		entry *ir.Entry
		rank  ir.IRValue
	}

	kept := make([]ranked, 0, len(entries))
	for _, e := range entries {
		if e == nil || !Matches(sel.Filter, e.Where()) {
			continue
		}
		kept = append(kept, ranked{entry: e, rank: rankOf(e, sel.OrderBy)})
	}

	slices.SortStableFunc(kept, func(a, b ranked) int {
		return ir.CompareRank(a.rank, b.rank)
	})
	slices.Reverse(kept)

	if sel.Limit > 0 && len(kept) > sel.Limit {
		kept = kept[:sel.Limit]
	}
	out := make([]*ir.Entry, len(kept))
	for i, r := range kept {
		out[i] = r.entry
	}
	return out
}

func rankOf(e *ir.Entry, orderBy string) ir.IRValue {
	if orderBy == "" {
		return ir.IRInt(0)
	}
	return ir.NumericRank(e.OrderBy().Lookup(orderBy))
}

// Matches evaluates a predicate against a where object. A nil predicate
// always holds; Equals fails when the field is absent or null.
func Matches(p queryir.Predicate, where ir.IRObject) bool {
	switch pred := p.(type) {
	case nil:
		return true
	case queryir.Equals:
		v := where.Lookup(pred.Field)
		if ir.IsNull(v) {
			return false
		}
		return ir.Text(v) == ir.Text(pred.Value)
	case queryir.Wildcard:
		return true
	case queryir.And:
		for _, child := range pred.Predicates {
			if !Matches(child, where) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
