package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/store"
)

// AssertionContext gives assertions access to the final store state.
type AssertionContext struct {
	Store *store.Store
	Ctx   context.Context
}

// AssertionError is returned when an assertion fails.
// It includes the rendered notifies to help debug the failure.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
	Notifies []*ir.Notify
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Notifies) > 0 {
		fmt.Fprintf(&buf, "\nRendered notifies:\n")
		for i, n := range e.Notifies {
			fmt.Fprintf(&buf, "  [%d] user=%d %q\n", i+1, n.UserHash, n.Message)
		}
	}
	return buf.String()
}

// EvaluateAssertions checks every assertion and returns the failure
// messages, in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var failures []string
	for i, a := range assertions {
		if err := evaluate(result, a, actx); err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return failures
}

func evaluate(result *Result, a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertNotifyCount:
		return assertNotifyCount(result, a)
	case AssertNotifyContains:
		return assertNotifyContains(result, a)
	case AssertResultCount:
		return assertResultCount(result, a)
	case AssertQueryError:
		return assertQueryError(result, a)
	case AssertSubscribers:
		return assertSubscribers(result, a, actx)
	case AssertPendingNotifies:
		return assertPendingNotifies(a, actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// notifiesFor returns the rendered notifies for a.User, or all of them.
func notifiesFor(result *Result, a Assertion) []*ir.Notify {
	all := result.Notifies()
	if a.User == nil {
		return all
	}
	var out []*ir.Notify
	for _, n := range all {
		if n.UserHash == *a.User {
			out = append(out, n)
		}
	}
	return out
}

func describeUser(a Assertion) string {
	if a.User == nil {
		return "all users"
	}
	return fmt.Sprintf("user %d", *a.User)
}

func assertNotifyCount(result *Result, a Assertion) error {
	got := notifiesFor(result, a)
	if len(got) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d notifies for %s", *a.Count, describeUser(a)),
		Actual:   fmt.Sprintf("%d notifies", len(got)),
		Notifies: result.Notifies(),
	}
}

func assertNotifyContains(result *Result, a Assertion) error {
	got := notifiesFor(result, a)
	for _, n := range got {
		for _, line := range n.Message {
			if strings.Contains(line, a.Text) {
				return nil
			}
		}
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("a message containing %q for %s", a.Text, describeUser(a)),
		Actual:   "not found",
		Notifies: result.Notifies(),
	}
}

func assertResultCount(result *Result, a Assertion) error {
	step, ok := result.Step(a.Step)
	if !ok {
		return fmt.Errorf("step %q did not run", a.Step)
	}
	if step.Results == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("step %q resolved %d records", a.Step, *a.Count),
		Actual:   fmt.Sprintf("%d records", step.Results),
	}
}

func assertQueryError(result *Result, a Assertion) error {
	step, ok := result.Step(a.Step)
	if !ok {
		return fmt.Errorf("step %q did not run", a.Step)
	}
	if step.Error == a.Code {
		return nil
	}
	actual := step.Error
	if actual == "" {
		actual = "query accepted"
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("step %q rejected with %s", a.Step, a.Code),
		Actual:   actual,
	}
}

func assertSubscribers(result *Result, a Assertion, actx *AssertionContext) error {
	step, ok := result.Step(a.Step)
	if !ok {
		return fmt.Errorf("step %q did not run", a.Step)
	}

	var users []uint64
	sub, err := actx.Store.SubscriptionFor(actx.Ctx, step.part)
	switch {
	case store.IsNotFound(err):
	case err != nil:
		return fmt.Errorf("load subscription: %w", err)
	default:
		users = sub.Users
	}

	want := slices.Clone(a.Users)
	slices.Sort(want)
	if slices.Equal(users, want) {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("subscribers %v", want),
		Actual:   fmt.Sprintf("subscribers %v", users),
	}
}

func assertPendingNotifies(a Assertion, actx *AssertionContext) error {
	pending, err := actx.Store.Notifies(actx.Ctx)
	if err != nil {
		return fmt.Errorf("load notifies: %w", err)
	}
	if len(pending) == *a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d pending notifies", *a.Count),
		Actual:   fmt.Sprintf("%d pending notifies", len(pending)),
	}
}
