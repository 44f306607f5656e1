// Package index builds the derived Index records that queries read their
// candidates from.
//
// Two shapes exist. A membership index lists the keys of every candidate
// sharing one value of a field and is named "<field>_<value>". A sorted
// index lists every candidate carrying a field, highest rank first.
// Builders are pure: they never touch storage and never fail on missing
// fields.
package index

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/govbot/internal/ir"
)

// Candidate is a keyed value exposing named fields. *ir.Entry implements it.
type Candidate interface {
	Key() (ir.Key, error)
	Get(field string) ir.IRValue
}

type keyed struct {
	key   ir.Key
	value ir.IRValue
}

// collectField resolves field on every candidate, skipping nulls.
func collectField[C Candidate](cands []C, field string) ([]keyed, error) {
	out := make([]keyed, 0, len(cands))
	for _, c := range cands {
		v := c.Get(field)
		if ir.IsNull(v) {
			continue
		}
		key, err := c.Key()
		if err != nil {
			return nil, fmt.Errorf("index %q: %w", field, err)
		}
		out = append(out, keyed{key: key, value: v})
	}
	return out, nil
}

// MembershipName returns the name of the membership index holding the
// candidates whose field reads as value. Names are unique only across
// fields where none is another's "_"-delimited prefix; Plan.Validate
// enforces that.
func MembershipName(field string, value ir.IRValue) string {
	return field + "_" + ir.Text(value)
}

// BuildMembership partitions cands by the distinct values of field. One
// Index per value is returned, ordered by name; member keys keep candidate
// order. Candidates where field is null are left out.
func BuildMembership[C Candidate](cands []C, field string) ([]*ir.Index, error) {
	members, err := collectField(cands, field)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]*ir.Index)
	for _, m := range members {
		name := MembershipName(field, m.value)
		ix, ok := byName[name]
		if !ok {
			ix = &ir.Index{Name: name}
			byName[name] = ix
		}
		if !slices.ContainsFunc(ix.List, m.key.Equal) {
			ix.List = append(ix.List, m.key)
		}
	}

	out := make([]*ir.Index, 0, len(byName))
	for _, ix := range byName {
		out = append(out, ix)
	}
	slices.SortFunc(out, func(a, b *ir.Index) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out, nil
}

// BuildSorted returns one Index named name listing every candidate that
// carries field, in descending ir.CompareRank order. Equal ranks are
// ordered by key. No candidate carrying field yields an empty Index.
func BuildSorted[C Candidate](cands []C, field, name string) (*ir.Index, error) {
	members, err := collectField(cands, field)
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(members, func(a, b keyed) int {
		if c := ir.CompareRank(b.value, a.value); c != 0 {
			return c
		}
		return bytes.Compare(a.key, b.key)
	})

	ix := &ir.Index{Name: name, List: make([]ir.Key, 0, len(members))}
	for _, m := range members {
		if len(ix.List) > 0 && ix.List[len(ix.List)-1].Equal(m.key) {
			continue
		}
		ix.List = append(ix.List, m.key)
	}
	return ix, nil
}
