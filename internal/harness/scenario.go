package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/govbot/internal/index"
	"github.com/roach88/govbot/internal/ir"
)

// Scenario defines a deterministic bot session.
// Scenarios seed the store, replay a sequence of user queries, producer
// inserts and refresh passes, then assert on the rendered Notify records
// and the final subscription state.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Epoch is the unix second the scenario clock starts at.
	// Zero uses testutil.DefaultEpoch.
	Epoch int64 `yaml:"epoch,omitempty"`

	// Tokens are handed out in order to new registrations.
	// Empty uses 1, 2, 3, ...
	Tokens []uint64 `yaml:"tokens,omitempty"`

	// LoginURL overrides the base of rendered login links.
	LoginURL string `yaml:"login_url,omitempty"`

	// Index overrides the default index plan.
	Index *index.Plan `yaml:"index,omitempty"`

	// Fixtures are written to the store before the first step.
	Fixtures Fixtures `yaml:"fixtures,omitempty"`

	// Steps run in order. Each step does exactly one thing.
	Steps []Step `yaml:"steps"`

	// Assertions validate the rendered notifies and final state.
	// Supported types: notify_count, notify_contains, result_count,
	// query_error, subscribers, pending_notifies
	Assertions []Assertion `yaml:"assertions"`
}

// Fixtures are records written directly to the store. They are read from
// YAML in the same shape the records take on the JSON wire.
type Fixtures struct {
	Entries       []*ir.Entry        `json:"entries,omitempty"`
	Registrations []*ir.Registration `json:"registrations,omitempty"`
	Users         []*ir.UserMetaData `json:"users,omitempty"`
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (f *Fixtures) UnmarshalYAML(node *yaml.Node) error {
	type plain Fixtures
	var p plain
	if err := decodeWire(node, &p); err != nil {
		return fmt.Errorf("fixtures: %w", err)
	}
	*f = Fixtures(p)
	return nil
}

// Len returns the number of fixture records.
func (f Fixtures) Len() int {
	return len(f.Entries) + len(f.Registrations) + len(f.Users)
}

// Values returns the fixtures as notification socket values, users first
// so queries issued later resolve them.
func (f Fixtures) Values() []ir.Value {
	out := make([]ir.Value, 0, f.Len())
	for _, u := range f.Users {
		out = append(out, u)
	}
	for _, r := range f.Registrations {
		out = append(out, r)
	}
	for _, e := range f.Entries {
		out = append(out, e)
	}
	return out
}

// Step is a single action in a scenario.
type Step struct {
	// Name lets assertions refer to this step.
	Name string `yaml:"name,omitempty"`

	// Query is a user query in its query socket wire shape.
	Query *Query `yaml:"query,omitempty"`

	// Insert writes entries as a producer would.
	Insert Entries `yaml:"insert,omitempty"`

	// Refresh re-evaluates all subscriptions and dispatches broadcasts.
	Refresh bool `yaml:"refresh,omitempty"`

	// Advance moves the scenario clock forward (e.g. "1h").
	Advance string `yaml:"advance,omitempty"`
}

// Kind names what the step does.
func (s Step) Kind() string {
	switch {
	case s.Query != nil:
		return StepQuery
	case len(s.Insert) > 0:
		return StepInsert
	case s.Refresh:
		return StepRefresh
	case s.Advance != "":
		return StepAdvance
	default:
		return ""
	}
}

// Step kinds.
const (
	StepQuery   = "query"
	StepInsert  = "insert"
	StepRefresh = "refresh"
	StepAdvance = "advance"
)

// Query is a UserQuery read from YAML through its JSON wire form.
type Query struct {
	ir.UserQuery
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (q *Query) UnmarshalYAML(node *yaml.Node) error {
	if err := decodeWire(node, &q.UserQuery); err != nil {
		return fmt.Errorf("query: %w", err)
	}
	return nil
}

// Entries is a list of entries read from YAML through their JSON wire form.
type Entries []*ir.Entry

// UnmarshalYAML implements yaml.Unmarshaler.
func (es *Entries) UnmarshalYAML(node *yaml.Node) error {
	var list []*ir.Entry
	if err := decodeWire(node, &list); err != nil {
		return fmt.Errorf("entries: %w", err)
	}
	*es = list
	return nil
}

// Assertion validates the outcome of a scenario.
type Assertion struct {
	// Type specifies the assertion type:
	// - "notify_count": number of notifies rendered, for User if set
	// - "notify_contains": some notify for User has a message containing Text
	// - "result_count": number of records Step resolved to
	// - "query_error": Step was rejected with Code
	// - "subscribers": the subscription of Step's query has exactly Users
	// - "pending_notifies": number of Notify records left in the store
	Type string `yaml:"type"`

	// Step names the step the assertion inspects.
	Step string `yaml:"step,omitempty"`

	// User restricts notify assertions to one user hash.
	User *uint64 `yaml:"user,omitempty"`

	// Users is the expected subscriber set.
	Users []uint64 `yaml:"users,omitempty"`

	// Text is the expected message fragment.
	Text string `yaml:"text,omitempty"`

	// Code is the expected query error code.
	Code string `yaml:"code,omitempty"`

	// Count is the expected number.
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertNotifyCount     = "notify_count"
	AssertNotifyContains  = "notify_contains"
	AssertResultCount     = "result_count"
	AssertQueryError      = "query_error"
	AssertSubscribers     = "subscribers"
	AssertPendingNotifies = "pending_notifies"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields, or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadFixtures reads a YAML fixture file holding entries, registrations
// and users.
func LoadFixtures(path string) (Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Fixtures{}, fmt.Errorf("failed to read fixture file: %w", err)
	}
	var f Fixtures
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Fixtures{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	for i, e := range f.Entries {
		if e == nil || e.Data == nil {
			return Fixtures{}, fmt.Errorf("entries[%d]: custom_data is required", i)
		}
	}
	return f, nil
}

// decodeWire decodes a YAML node into dst via its JSON representation, so
// records use their wire field names and tagged unions. Unknown fields of
// plain structs are rejected.
func decodeWire(node *yaml.Node, dst any) error {
	var raw any
	if err := node.Decode(&raw); err != nil {
		return err
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	if s.Index != nil {
		if err := s.Index.Validate(); err != nil {
			return fmt.Errorf("index: %w", err)
		}
	}

	for i, e := range s.Fixtures.Entries {
		if e == nil || e.Data == nil {
			return fmt.Errorf("fixtures.entries[%d]: custom_data is required", i)
		}
	}

	steps := make(map[string]*Step, len(s.Steps))
	for i := range s.Steps {
		step := &s.Steps[i]
		if err := validateStep(i, step); err != nil {
			return err
		}
		if step.Name == "" {
			continue
		}
		if _, dup := steps[step.Name]; dup {
			return fmt.Errorf("steps[%d]: duplicate step name %q", i, step.Name)
		}
		steps[step.Name] = step
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion, steps); err != nil {
			return err
		}
	}

	return nil
}

// validateStep checks that a step does exactly one thing.
func validateStep(index int, s *Step) error {
	actions := 0
	if s.Query != nil {
		actions++
		if s.Query.Part == nil {
			return fmt.Errorf("steps[%d]: query.query_part is required", index)
		}
	}
	if len(s.Insert) > 0 {
		actions++
		for j, e := range s.Insert {
			if e == nil || e.Data == nil {
				return fmt.Errorf("steps[%d].insert[%d]: custom_data is required", index, j)
			}
		}
	}
	if s.Refresh {
		actions++
	}
	if s.Advance != "" {
		actions++
		if d, err := time.ParseDuration(s.Advance); err != nil || d < 0 {
			return fmt.Errorf("steps[%d]: advance must be a non-negative duration, got %q", index, s.Advance)
		}
	}
	if actions != 1 {
		return fmt.Errorf("steps[%d]: exactly one of query, insert, refresh or advance is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion, steps map[string]*Step) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needStep := func() (*Step, error) {
		if a.Step == "" {
			return nil, fmt.Errorf("assertions[%d]: step is required for %s", index, a.Type)
		}
		step, ok := steps[a.Step]
		if !ok {
			return nil, fmt.Errorf("assertions[%d]: unknown step %q", index, a.Step)
		}
		return step, nil
	}
	needCount := func() error {
		if a.Count == nil {
			return fmt.Errorf("assertions[%d]: count is required for %s", index, a.Type)
		}
		if *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for %s", index, a.Type)
		}
		return nil
	}

	switch a.Type {
	case AssertNotifyCount, AssertPendingNotifies:
		return needCount()
	case AssertNotifyContains:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for notify_contains", index)
		}
	case AssertResultCount:
		if _, err := needStep(); err != nil {
			return err
		}
		return needCount()
	case AssertQueryError:
		if _, err := needStep(); err != nil {
			return err
		}
		if a.Code == "" {
			return fmt.Errorf("assertions[%d]: code is required for query_error", index)
		}
	case AssertSubscribers:
		step, err := needStep()
		if err != nil {
			return err
		}
		if step.Query == nil {
			return fmt.Errorf("assertions[%d]: step %q is not a query", index, a.Step)
		}
		if _, ok := step.Query.Part.(ir.EntriesQueryPart); !ok {
			return fmt.Errorf("assertions[%d]: step %q is not an entries query", index, a.Step)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
