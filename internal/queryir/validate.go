package queryir

import (
	"fmt"
	"strings"

	"github.com/roach88/govbot/internal/ir"
)

// ValidationError lists every problem found in a plan.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid query: " + strings.Join(e.Problems, "; ")
}

// Validate checks that a plan can be executed:
//  1. Limit is not negative
//  2. Index names and field names are not empty
//  3. Equals never compares against null
//  4. And is flat (no nested And)
//
// Validate is a pure function with no side effects.
func Validate(sel Select) error {
	v := &validator{}
	v.validateSelect(sel)
	if len(v.problems) == 0 {
		return nil
	}
	return &ValidationError{Problems: v.problems}
}

// validator accumulates problems during traversal.
type validator struct {
	problems []string
}

func (v *validator) addProblem(format string, args ...any) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *validator) validateSelect(sel Select) {
	if sel.Limit < 0 {
		v.addProblem("negative limit %d", sel.Limit)
	}
	for i, name := range sel.From {
		if name == "" {
			v.addProblem("from[%d]: empty index name", i)
		}
	}
	if sel.Filter != nil {
		v.validatePredicate(sel.Filter, false)
	}
}

func (v *validator) validatePredicate(p Predicate, nested bool) {
	switch pred := p.(type) {
	case Equals:
		if pred.Field == "" {
			v.addProblem("equals: empty field name")
		}
		if ir.IsNull(pred.Value) {
			v.addProblem("field '%s' compared to null", pred.Field)
		}
	case Wildcard:
		if pred.Field == "" {
			v.addProblem("wildcard: empty field name")
		}
	case And:
		if nested {
			v.addProblem("nested And - filters are flat conjunctions")
			return
		}
		for _, child := range pred.Predicates {
			v.validatePredicate(child, true)
		}
	default:
		v.addProblem("unknown predicate type: %T", p)
	}
}
