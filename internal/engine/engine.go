package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/govbot/internal/index"
	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/queryir"
	"github.com/roach88/govbot/internal/store"
)

// Sink receives the broadcast Notifications produced by the refresh loop.
// dispatch.Dispatcher and service.NotifyClient implement it.
type Sink interface {
	Forward(ctx context.Context, n *ir.Notification) error
}

// Observer is told about every index rebuild. metrics.Metrics
// implements it.
type Observer interface {
	ObserveReindex(indices int, took time.Duration)
}

// Engine resolves queries and maintains subscriptions over a store.
//
// Thread-safety model:
//   - Handle, RefreshSubscriptions, Reindex: safe from any goroutine,
//     serialized internally
//   - Enqueue: safe from any goroutine
//   - Run: must be called from exactly one goroutine
type Engine struct {
	store    *store.Store
	plan     index.Plan
	tokens   TokenGenerator
	clock    *Clock
	sink     Sink
	observer Observer
	logger   *slog.Logger
	queue    *eventQueue

	mu sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithTokenGenerator sets the registration token source.
// Default: RandomTokens.
func WithTokenGenerator(g TokenGenerator) Option {
	return func(e *Engine) { e.tokens = g }
}

// WithClock sets the refresh pass clock.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithSink sets where the refresh loop sends broadcast Notifications.
// Without a sink, Run only reindexes and updates result caches.
func WithSink(s Sink) Option {
	return func(e *Engine) { e.sink = s }
}

// WithObserver sets the index rebuild observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine over s maintaining the indices plan names.
func New(s *store.Store, plan index.Plan, opts ...Option) (*Engine, error) {
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("index plan: %w", err)
	}
	e := &Engine{
		store:  s,
		plan:   plan,
		tokens: RandomTokens{},
		clock:  NewClock(nil),
		logger: slog.Default(),
		queue:  newEventQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Store returns the engine's store.
func (e *Engine) Store() *store.Store {
	return e.store
}

// LastPass returns the most recent refresh pass.
func (e *Engine) LastPass() Pass {
	return e.clock.Last()
}

// Handle resolves one user query. The returned Notification carries the
// query with the requester's hash filled in when known.
func (e *Engine) Handle(ctx context.Context, q ir.UserQuery) (*ir.Notification, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if q.Part == nil {
		return nil, fmt.Errorf("handle query: %w", &QueryError{
			Code:    ErrCodeUnsupportedQuery,
			Message: "query has no query_part",
		})
	}

	if u := q.Settings.User; u != nil {
		if _, err := e.store.PutUserMetaData(ctx, u); err != nil {
			return nil, fmt.Errorf("handle query: %w", err)
		}
		if q.Settings.UserHash == nil {
			hash := u.UserHash()
			q.Settings.UserHash = &hash
		}
	}

	var (
		n   *ir.Notification
		err error
	)
	switch part := q.Part.(type) {
	case ir.EntriesQueryPart:
		n, err = e.handleEntries(ctx, q, part)
	case ir.SubscriptionsQueryPart:
		n = &ir.Notification{Query: q}
	case ir.RegisterQueryPart:
		n, err = e.handleRegister(ctx, q, part)
	default:
		err = &QueryError{
			Code:    ErrCodeUnsupportedQuery,
			Message: fmt.Sprintf("unsupported query part %T", q.Part),
		}
	}
	if err != nil {
		return nil, fmt.Errorf("handle query: %w", err)
	}
	return n, nil
}

func (e *Engine) handleEntries(ctx context.Context, q ir.UserQuery, part ir.EntriesQueryPart) (*ir.Notification, error) {
	sel, err := queryir.Compile(part)
	if err != nil {
		return nil, &QueryError{Code: ErrCodeInvalidQuery, Message: err.Error(), Command: part.Command()}
	}

	all, err := e.reindexLocked(ctx)
	if err != nil {
		return nil, err
	}
	results, err := e.evaluate(ctx, sel, all)
	if err != nil {
		return nil, err
	}

	user, hasUser := q.Settings.Requester()
	switch {
	case q.Settings.Subscribe:
		if !hasUser {
			return nil, newMissingUserError(part.Command(), "subscribe")
		}
		if err := e.subscribe(ctx, part, user, results); err != nil {
			return nil, err
		}
	case q.Settings.Unsubscribe:
		if !hasUser {
			return nil, newMissingUserError(part.Command(), "unsubscribe")
		}
		if err := e.unsubscribe(ctx, part, user); err != nil {
			return nil, err
		}
	}

	e.logger.Debug("entries query resolved",
		"command", part.Command(),
		"candidates", len(all),
		"results", len(results),
	)
	return &ir.Notification{Query: q, Entries: results}, nil
}

// subscribe adds user to the query's subscription, creating it on first
// use, and caches the current result keys.
func (e *Engine) subscribe(ctx context.Context, part ir.EntriesQueryPart, user uint64, results []*ir.Entry) error {
	keys, err := entryKeys(results)
	if err != nil {
		return err
	}

	sub, err := e.store.SubscriptionFor(ctx, part)
	switch {
	case store.IsNotFound(err):
		sub = &ir.Subscription{Action: ir.ActionCreated, Query: part}
		sub.AddUser(user)
	case err != nil:
		return err
	default:
		if sub.AddUser(user) {
			sub.Action = ir.ActionAddUser
		}
	}
	sub.Results = keys

	if _, err := e.store.PutSubscription(ctx, sub); err != nil {
		return err
	}
	e.logger.Info("subscribed", "command", part.Command(), "users", len(sub.Users))
	return nil
}

// unsubscribe removes user from the query's subscription. A subscription
// left without users is deleted.
func (e *Engine) unsubscribe(ctx context.Context, part ir.EntriesQueryPart, user uint64) error {
	sub, err := e.store.SubscriptionFor(ctx, part)
	if store.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !sub.RemoveUser(user) {
		return nil
	}

	key, err := sub.Key()
	if err != nil {
		return err
	}
	if len(sub.Users) == 0 {
		e.logger.Info("subscription removed", "command", part.Command())
		return e.store.DeleteSubscription(ctx, key)
	}
	sub.Action = ir.ActionRemoveUser
	_, err = e.store.PutSubscription(ctx, sub)
	return err
}

func (e *Engine) handleRegister(ctx context.Context, q ir.UserQuery, part ir.RegisterQueryPart) (*ir.Notification, error) {
	user, ok := q.Settings.Requester()
	if !ok {
		return nil, newMissingUserError(part.Command(), "register")
	}

	reg, err := e.store.GetRegistration(ctx, user)
	switch {
	case store.IsNotFound(err):
		if !q.Settings.Register {
			return &ir.Notification{Query: q}, nil
		}
		reg = &ir.Registration{Token: e.tokens.Generate(), UserHash: user}
		if _, err := e.store.PutRegistration(ctx, reg); err != nil {
			return nil, err
		}
		e.logger.Info("registration created", "user_hash", user)
	case err != nil:
		return nil, err
	}
	return &ir.Notification{Query: q, Registrations: []*ir.Registration{reg}}, nil
}

// Reindex rebuilds every index the plan names.
func (e *Engine) Reindex(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, err := e.reindexLocked(ctx); err != nil {
		return fmt.Errorf("reindex: %w", err)
	}
	return nil
}

// reindexLocked rebuilds the plan's indices and returns every entry.
func (e *Engine) reindexLocked(ctx context.Context) ([]*ir.Entry, error) {
	start := time.Now()
	all, err := e.store.Entries(ctx)
	if err != nil {
		return nil, err
	}
	indices, err := e.plan.Build(all)
	if err != nil {
		return nil, err
	}
	if err := e.store.ReplaceIndices(ctx, indices); err != nil {
		return nil, err
	}
	if e.observer != nil {
		e.observer.ObserveReindex(len(indices), time.Since(start))
	}
	return all, nil
}

// evaluate collects candidates for sel and executes it. Without index
// names, every entry is a candidate. Named indices are unioned in order;
// unknown names contribute nothing.
func (e *Engine) evaluate(ctx context.Context, sel queryir.Select, all []*ir.Entry) ([]*ir.Entry, error) {
	if len(sel.From) == 0 {
		return Execute(all, sel), nil
	}

	seen := make(map[string]bool)
	var keys []ir.Key
	for _, name := range sel.From {
		ix, err := e.store.IndexByName(ctx, name)
		if store.IsNotFound(err) {
			e.logger.Debug("unknown index", "index", name)
			continue
		}
		if err != nil {
			return nil, err
		}
		for _, k := range ix.List {
			if !seen[string(k)] {
				seen[string(k)] = true
				keys = append(keys, k)
			}
		}
	}

	cands, err := e.store.EntriesByKeys(ctx, keys)
	if err != nil {
		return nil, err
	}
	return Execute(cands, sel), nil
}

// RefreshSubscriptions re-evaluates every subscription that has users.
// When a result list changed, the new list is cached with Action=Update;
// if any newly appearing entry has the notify imperative, a broadcast
// Notification (no requester) is returned for it.
func (e *Engine) RefreshSubscriptions(ctx context.Context) ([]*ir.Notification, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	pass := e.clock.Next()
	all, err := e.reindexLocked(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh subscriptions: %w", err)
	}
	subs, err := e.store.Subscriptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("refresh subscriptions: %w", err)
	}

	var out []*ir.Notification
	updated := 0
	for _, sub := range subs {
		part, ok := sub.Query.(ir.EntriesQueryPart)
		if !ok || len(sub.Users) == 0 {
			continue
		}
		sel, err := queryir.Compile(part)
		if err != nil {
			e.logger.Warn("skipping invalid subscription", "command", part.Command(), "error", err)
			continue
		}
		results, err := e.evaluate(ctx, sel, all)
		if err != nil {
			return nil, fmt.Errorf("refresh subscriptions: %w", err)
		}
		keys, err := entryKeys(results)
		if err != nil {
			return nil, fmt.Errorf("refresh subscriptions: %w", err)
		}
		if slices.EqualFunc(keys, sub.Results, ir.Key.Equal) {
			continue
		}

		push := hasNewNotify(results, keys, sub.Results)
		sub.Results = keys
		sub.Action = ir.ActionUpdate
		if _, err := e.store.PutSubscription(ctx, sub); err != nil {
			return nil, fmt.Errorf("refresh subscriptions: %w", err)
		}
		updated++
		if push {
			out = append(out, &ir.Notification{
				Query:   ir.UserQuery{Part: part},
				Entries: results,
			})
		}
	}

	e.logger.Info("subscriptions refreshed",
		"pass", pass.Seq,
		"subscriptions", len(subs),
		"updated", updated,
		"notifications", len(out),
	)
	return out, nil
}

// hasNewNotify reports whether an entry whose key is absent from previous
// carries the notify imperative.
func hasNewNotify(results []*ir.Entry, keys, previous []ir.Key) bool {
	old := make(map[string]bool, len(previous))
	for _, k := range previous {
		old[string(k)] = true
	}
	for i, e := range results {
		if !old[string(keys[i])] && e.Imperative == ir.ImperativeNotify {
			return true
		}
	}
	return false
}

func entryKeys(entries []*ir.Entry) ([]ir.Key, error) {
	keys := make([]ir.Key, len(entries))
	for i, e := range entries {
		k, err := e.Key()
		if err != nil {
			return nil, err
		}
		keys[i] = k
	}
	return keys, nil
}

// Enqueue submits a refresh trigger to the Run loop.
// Returns false once the engine has stopped.
func (e *Engine) Enqueue(ev Event) bool {
	return e.queue.Enqueue(ev)
}

// QueueLen returns the number of pending refresh triggers.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Stop closes the event queue. Run returns after its current pass.
func (e *Engine) Stop() {
	e.queue.Close()
}

// Run drains refresh triggers until ctx is cancelled or Stop is called.
// Each wake-up processes everything pending as one batch. A failed pass is
// logged and the loop continues.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("refresh loop starting")
	for {
		if events := e.queue.DrainAll(); len(events) > 0 {
			if err := e.process(ctx, events); err != nil {
				e.logger.Error("refresh pass failed", "events", len(events), "error", err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			e.logger.Info("refresh loop stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()
		case _, open := <-e.queue.Wait():
			if !open {
				e.logger.Info("refresh loop stopping: stopped")
				return nil
			}
		}
	}
}

func (e *Engine) process(ctx context.Context, events []Event) error {
	refresh, keys := summarize(events)
	if !refresh {
		return e.Reindex(ctx)
	}

	start := time.Now()
	notes, err := e.RefreshSubscriptions(ctx)
	if err != nil {
		return err
	}
	e.logger.Debug("refresh batch", "events", len(events), "keys", keys, "took", time.Since(start))

	if e.sink == nil {
		return nil
	}
	var errs []error
	for _, n := range notes {
		if err := e.sink.Forward(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
