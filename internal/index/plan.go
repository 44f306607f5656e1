package index

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/govbot/internal/ir"
)

// SortedSpec names one sorted index and the field it ranks by.
type SortedSpec struct {
	Name  string `json:"name" yaml:"name"`
	Field string `json:"field" yaml:"field"`
}

// Plan lists the indices maintained over the entry partition.
type Plan struct {
	Membership []string     `json:"membership" yaml:"membership"`
	Sorted     []SortedSpec `json:"sorted" yaml:"sorted"`
}

// DefaultPlan indexes entries by producer and payload kind, plus a
// newest-first timeline.
func DefaultPlan() Plan {
	return Plan{
		Membership: []string{"origin", "kind"},
		Sorted:     []SortedSpec{{Name: "timeline", Field: "timestamp"}},
	}
}

// Validate reports empty field names, duplicate sorted index names and
// membership fields whose index names could collide. Membership names are
// field + "_" + value, so fields "a" and "a_b" are rejected together: value
// "b_c" of the first and value "c" of the second both name "a_b_c".
func (p Plan) Validate() error {
	var errs []error
	for i, field := range p.Membership {
		if field == "" {
			errs = append(errs, fmt.Errorf("membership[%d]: empty field", i))
			continue
		}
		for _, earlier := range p.Membership[:i] {
			switch {
			case earlier == field:
				errs = append(errs, fmt.Errorf("membership[%d]: duplicate field %q", i, field))
			case earlier != "" && (strings.HasPrefix(field, earlier+"_") || strings.HasPrefix(earlier, field+"_")):
				errs = append(errs, fmt.Errorf("membership[%d]: field %q shares index names with %q", i, field, earlier))
			}
		}
	}
	seen := make(map[string]bool, len(p.Sorted))
	for i, s := range p.Sorted {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sorted[%d]: empty name", i))
		}
		if s.Field == "" {
			errs = append(errs, fmt.Errorf("sorted[%d]: empty field", i))
		}
		if seen[s.Name] {
			errs = append(errs, fmt.Errorf("sorted[%d]: duplicate name %q", i, s.Name))
		}
		seen[s.Name] = true
	}
	return errors.Join(errs...)
}

// Build returns every index the plan names over cands. Membership indices
// come first, in plan order, then sorted indices.
func (p Plan) Build(cands []*ir.Entry) ([]*ir.Index, error) {
	var out []*ir.Index
	for _, field := range p.Membership {
		ixs, err := BuildMembership(cands, field)
		if err != nil {
			return nil, err
		}
		out = append(out, ixs...)
	}
	for _, s := range p.Sorted {
		ix, err := BuildSorted(cands, s.Field, s.Name)
		if err != nil {
			return nil, err
		}
		out = append(out, ix)
	}
	return out, nil
}
