package queryir

import "github.com/roach88/govbot/internal/ir"

// WildcardValue is the filter value that matches every candidate.
const WildcardValue = "any"

// Predicate represents a filter condition over a candidate's where object.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Select is a compiled entries query.
//
// Semantics:
//
//	FROM <union of From indices, or every entry when empty>
//	WHERE <Filter>
//	ORDER BY order_by.<OrderBy> DESC
//	LIMIT <Limit>
//
// Example:
//
//	Select{
//	  From:    []string{"origin_osmosis_proposals"},
//	  Filter:  Equals{Field: "status", Value: ir.IRString("passed")},
//	  OrderBy: "rank",
//	  Limit:   5,
//	}
type Select struct {
	From    []string  // index names, unioned in order
	Filter  Predicate // nil = no filter
	OrderBy string    // order_by field; "" ranks every candidate equally
	Limit   int       // <= 0 = no cap
}

// Equals holds when where[Field] is present and reads as Value.
type Equals struct {
	Field string
	Value ir.IRValue
}

func (Equals) predicateNode() {}

// Wildcard always holds. It records that a filter named Field with the
// wildcard value, so plans round-trip back to the user's filter.
type Wildcard struct {
	Field string
}

func (Wildcard) predicateNode() {}

// And holds when every predicate holds. Empty Predicates is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Fields returns the field names a predicate constrains, in order.
func Fields(p Predicate) []string {
	switch pred := p.(type) {
	case Equals:
		return []string{pred.Field}
	case Wildcard:
		return []string{pred.Field}
	case And:
		var out []string
		for _, child := range pred.Predicates {
			out = append(out, Fields(child)...)
		}
		return out
	default:
		return nil
	}
}
