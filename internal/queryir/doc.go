// Package queryir provides the query plan for entries queries.
//
// A user's EntriesQueryPart is compiled into a Select: the index names to
// draw candidates from, a filter predicate over each candidate's "where"
// object, the order_by field that ranks survivors, and a result limit.
// The engine package executes plans; this package only builds and checks
// them.
//
// SEALED INTERFACES:
//
// Predicate is sealed with the marker method pattern. Only Equals, Wildcard
// and And implement it, so executors can switch over predicates
// exhaustively:
//
//	switch p := pred.(type) {
//	case Equals:
//	    // where[field] reads as value
//	case Wildcard:
//	    // always true
//	case And:
//	    // every child holds
//	}
//
// FILTER SEMANTICS:
//
// Filters are flat conjunctions of (field, value) pairs. The value "any" is
// a wildcard and matches every candidate, whether or not it carries the
// field. Any other value matches when the candidate's where object holds
// the field and its textual form equals the value.
package queryir
