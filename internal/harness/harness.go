package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/govbot/internal/dispatch"
	"github.com/roach88/govbot/internal/engine"
	"github.com/roach88/govbot/internal/index"
	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/kv"
	"github.com/roach88/govbot/internal/store"
	"github.com/roach88/govbot/internal/testutil"
)

// Harness is the scenario execution engine.
// It wires a real engine and dispatcher over an in-memory store, with a
// frozen clock and predetermined registration tokens.
type Harness struct {
	store      *store.Store
	engine     *engine.Engine
	dispatcher *dispatch.Dispatcher
	clock      *testutil.Clock
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory store for isolation.
// Execution flow:
// 1. Seed fixtures
// 2. Execute steps in order, collecting rendered notifies
// 3. Evaluate assertions against the result and final store state
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	st, err := store.New(kv.NewMemory())
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := newHarness(st, scenario)
	if err != nil {
		return nil, err
	}

	if _, err := Seed(ctx, st, scenario.Fixtures); err != nil {
		return nil, fmt.Errorf("failed to seed fixtures: %w", err)
	}

	result := NewResult()
	for i, step := range scenario.Steps {
		sr, err := h.execute(ctx, step)
		if err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, step.Kind(), err)
		}
		result.Steps = append(result.Steps, sr)
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func newHarness(st *store.Store, scenario *Scenario) (*Harness, error) {
	start := testutil.DefaultEpoch
	if scenario.Epoch != 0 {
		start = time.Unix(scenario.Epoch, 0).UTC()
	}
	clock := testutil.NewClock(start, 0)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	plan := index.DefaultPlan()
	if scenario.Index != nil {
		plan = *scenario.Index
	}

	var tokens engine.TokenGenerator = &sequenceTokens{}
	if len(scenario.Tokens) > 0 {
		tokens = engine.NewFixedTokens(scenario.Tokens...)
	}

	eng, err := engine.New(st, plan,
		engine.WithTokenGenerator(tokens),
		engine.WithClock(engine.NewClock(clock.Now)),
		engine.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	opts := []dispatch.Option{dispatch.WithClock(clock.Now), dispatch.WithLogger(logger)}
	if scenario.LoginURL != "" {
		opts = append(opts, dispatch.WithLoginURL(scenario.LoginURL))
	}

	return &Harness{
		store:      st,
		engine:     eng,
		dispatcher: dispatch.New(st, opts...),
		clock:      clock,
	}, nil
}

func (h *Harness) execute(ctx context.Context, step Step) (StepResult, error) {
	sr := StepResult{Name: step.Name, Kind: step.Kind(), Notifies: []*ir.Notify{}}

	switch sr.Kind {
	case StepQuery:
		sr.part = step.Query.Part
		n, err := h.engine.Handle(ctx, step.Query.UserQuery)
		if qe, ok := engine.IsQueryError(err); ok {
			sr.Error = string(qe.Code)
			return sr, nil
		}
		if err != nil {
			return sr, err
		}
		sr.Results = len(n.Entries) + len(n.Registrations)
		notifies, err := h.dispatcher.Dispatch(ctx, n)
		if err != nil {
			return sr, err
		}
		sr.Notifies = append(sr.Notifies, notifies...)

	case StepInsert:
		for _, e := range step.Insert {
			if _, err := h.store.PutEntry(ctx, e); err != nil {
				return sr, err
			}
		}

	case StepRefresh:
		notes, err := h.engine.RefreshSubscriptions(ctx)
		if err != nil {
			return sr, err
		}
		for _, n := range notes {
			notifies, err := h.dispatcher.Dispatch(ctx, n)
			if err != nil {
				return sr, err
			}
			sr.Notifies = append(sr.Notifies, notifies...)
		}

	case StepAdvance:
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return sr, err
		}
		h.clock.Advance(d)

	default:
		return sr, errors.New("step does nothing")
	}
	return sr, nil
}

// SeedStats counts the records Seed wrote.
type SeedStats struct {
	Entries       int `json:"entries"`
	Registrations int `json:"registrations"`
	Users         int `json:"users"`
}

// Seed writes fixtures straight to a store.
func Seed(ctx context.Context, s *store.Store, f Fixtures) (SeedStats, error) {
	var stats SeedStats
	for _, u := range f.Users {
		if _, err := s.PutUserMetaData(ctx, u); err != nil {
			return stats, fmt.Errorf("user %d: %w", u.UserID, err)
		}
		stats.Users++
	}
	for _, r := range f.Registrations {
		if _, err := s.PutRegistration(ctx, r); err != nil {
			return stats, fmt.Errorf("registration %d: %w", r.UserHash, err)
		}
		stats.Registrations++
	}
	for i, e := range f.Entries {
		if _, err := s.PutEntry(ctx, e); err != nil {
			return stats, fmt.Errorf("entry %d: %w", i, err)
		}
		stats.Entries++
	}
	return stats, nil
}

// sequenceTokens hands out 1, 2, 3, ... when a scenario fixes no tokens.
type sequenceTokens struct {
	n uint64
}

func (g *sequenceTokens) Generate() uint64 {
	g.n++
	return g.n
}
