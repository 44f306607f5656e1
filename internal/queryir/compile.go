package queryir

import (
	"slices"

	"github.com/roach88/govbot/internal/ir"
)

// Compile builds the Select for an entries query and validates it. Filter
// pairs become predicates ordered by field name, so equal filters compile to
// equal plans.
func Compile(q ir.EntriesQueryPart) (Select, error) {
	sel := Select{
		From:    slices.Clone(q.Indices),
		Filter:  CompileFilter(q.Filter),
		OrderBy: q.OrderBy,
		Limit:   q.Limit,
	}
	if err := Validate(sel); err != nil {
		return Select{}, err
	}
	return sel, nil
}

// CompileFilter turns filter pairs into a predicate: nil for no pairs, the
// single predicate for one pair, otherwise an And ordered by field name.
func CompileFilter(filter map[string]string) Predicate {
	if len(filter) == 0 {
		return nil
	}
	fields := make([]string, 0, len(filter))
	for field := range filter {
		fields = append(fields, field)
	}
	slices.Sort(fields)

	preds := make([]Predicate, 0, len(fields))
	for _, field := range fields {
		value := filter[field]
		if value == WildcardValue {
			preds = append(preds, Wildcard{Field: field})
			continue
		}
		preds = append(preds, Equals{Field: field, Value: ir.IRString(value)})
	}
	if len(preds) == 1 {
		return preds[0]
	}
	return And{Predicates: preds}
}
