// Package dispatch turns resolved queries into per-user Notify records.
//
// The dispatcher is a state machine keyed by the query part of the
// Notification it receives. It renders messages and button grids, persists
// one Notify per target user and returns them. Combinations it does not
// understand produce nothing; they are never errors.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/govbot/internal/ir"
	"github.com/roach88/govbot/internal/store"
)

// governanceCommand matches commands asking for governance proposals.
var governanceCommand = regexp.MustCompile(`(?i)^/?\s*(gov|governance)[\s_-]*(proposals?|prpsl)(?:\b|_)`)

// IsGovernanceCommand reports whether a command asks for governance
// proposals, which get an "Open in Browser" button per entry.
func IsGovernanceCommand(command string) bool {
	return governanceCommand.MatchString(command)
}

// Dispatcher renders Notifications into Notify records.
type Dispatcher struct {
	store    *store.Store
	now      func() time.Time
	loginURL string
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the time source for Notify timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLoginURL sets the base of login links.
func WithLoginURL(u string) Option {
	return func(d *Dispatcher) { d.loginURL = u }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// New creates a Dispatcher persisting into s.
func New(s *store.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    s,
		now:      time.Now,
		loginURL: DefaultLoginURL,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Forward dispatches n and drops the rendered records. It lets the
// dispatcher serve as the engine's refresh sink.
func (d *Dispatcher) Forward(ctx context.Context, n *ir.Notification) error {
	_, err := d.Dispatch(ctx, n)
	return err
}

// Dispatch renders n, persists every resulting Notify and returns them.
// A persistence failure stops the fan-out; records already written stay.
func (d *Dispatcher) Dispatch(ctx context.Context, n *ir.Notification) ([]*ir.Notify, error) {
	if n == nil || n.Query.Part == nil {
		return nil, nil
	}

	notifies, err := d.render(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	for i, nt := range notifies {
		if _, err := d.store.PutNotify(ctx, nt); err != nil {
			return notifies[:i], fmt.Errorf("dispatch: %w", err)
		}
	}
	if len(notifies) > 0 {
		d.logger.Debug("notifies written", "command", n.Query.Part.Command(), "count", len(notifies))
	}
	return notifies, nil
}

func (d *Dispatcher) render(ctx context.Context, n *ir.Notification) ([]*ir.Notify, error) {
	switch part := n.Query.Part.(type) {
	case ir.SubscriptionsQueryPart:
		return d.renderSubscriptions(ctx, n.Query.Settings)
	case ir.EntriesQueryPart:
		return d.renderEntries(ctx, n, part)
	case ir.RegisterQueryPart:
		return d.renderRegistrations(n), nil
	default:
		return nil, nil
	}
}

func (d *Dispatcher) renderSubscriptions(ctx context.Context, settings ir.Settings) ([]*ir.Notify, error) {
	user, ok := settings.Requester()
	if !ok {
		return nil, nil
	}
	subs, err := d.store.SubscriptionsForUser(ctx, user)
	if err != nil {
		return nil, err
	}
	if len(subs) == 0 {
		return []*ir.Notify{d.notify(user, []string{msgNoSubscriptions}, nil)}, nil
	}

	message := []string{msgSubscriptionsHead}
	buttons := make([][]ir.Button, 0, len(subs))
	for _, sub := range subs {
		if sub.Query == nil {
			continue
		}
		command := "/" + sub.Query.Command()
		message = append(message, command)
		buttons = append(buttons, []ir.Button{toggleButton(sub.Query)})
	}
	return []*ir.Notify{d.notify(user, message, buttons)}, nil
}

// toggleButton offers the opposite of what a subscription's message asks
// for: a message mentioning unsubscription gets "Subscribe".
func toggleButton(part ir.QueryPart) ir.Button {
	command := "/" + part.Command()
	if strings.Contains(strings.ToLower(messageOf(part)), "unsubscri") {
		return ir.Button{Label: labelSubscribe, Action: "subscribe " + command}
	}
	return ir.Button{Label: labelUnsubscribe, Action: "unsubscribe " + command}
}

func messageOf(part ir.QueryPart) string {
	switch p := part.(type) {
	case ir.EntriesQueryPart:
		return p.Message
	case ir.SubscriptionsQueryPart:
		return p.Message
	case ir.RegisterQueryPart:
		return p.Message
	}
	return ""
}

func (d *Dispatcher) renderEntries(ctx context.Context, n *ir.Notification, part ir.EntriesQueryPart) ([]*ir.Notify, error) {
	command := "/" + part.Command()
	settings := n.Query.Settings

	switch {
	case settings.Subscribe, settings.Unsubscribe:
		user, ok := settings.Requester()
		if !ok {
			return nil, nil
		}
		text := msgSubscribed
		if settings.Unsubscribe {
			text = msgUnsubscribed
		}
		return []*ir.Notify{d.notify(user, []string{text + "\n" + command}, nil)}, nil
	}

	targets, err := d.targets(ctx, settings, part)
	if err != nil || len(targets) == 0 {
		return nil, err
	}

	if len(n.Entries) == 0 {
		out := make([]*ir.Notify, len(targets))
		for i, user := range targets {
			out[i] = d.notify(user, []string{msgEmptyResultSet + "\n" + command}, nil)
		}
		return out, nil
	}

	mode := ir.ParseDisplayMode(part.Display)
	browse := mode.Kind == ir.DisplayDefault && IsGovernanceCommand(part.Command())

	message := make([]string, len(n.Entries))
	buttons := make([][]ir.Button, len(n.Entries))
	for i, e := range n.Entries {
		message[i] = e.Display(part.Display)
		buttons[i] = []ir.Button{}
		if browse {
			if btn, ok := viewInBrowser(e); ok {
				buttons[i] = []ir.Button{btn}
			}
		}
	}

	out := make([]*ir.Notify, len(targets))
	for i, user := range targets {
		out[i] = d.notify(user, message, buttons)
	}
	return out, nil
}

// targets returns the requester, or every subscriber of part when the
// query carries no requester.
func (d *Dispatcher) targets(ctx context.Context, settings ir.Settings, part ir.EntriesQueryPart) ([]uint64, error) {
	if user, ok := settings.Requester(); ok {
		return []uint64{user}, nil
	}
	sub, err := d.store.SubscriptionFor(ctx, part)
	if store.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub.Users, nil
}

func viewInBrowser(e *ir.Entry) (ir.Button, bool) {
	if b, ok := e.Data.(ir.BrowserViewer); ok {
		return b.ViewInBrowser()
	}
	return ir.Button{}, false
}

func (d *Dispatcher) renderRegistrations(n *ir.Notification) []*ir.Notify {
	text := msgRegisterExisting
	if n.Query.Settings.Register {
		text = msgRegisterSuccessful
	}

	out := make([]*ir.Notify, 0, len(n.Registrations))
	for _, reg := range n.Registrations {
		if reg == nil {
			continue
		}
		link := d.loginLink(reg)
		out = append(out, d.notify(reg.UserHash,
			[]string{text + "\n" + link},
			[][]ir.Button{{{Label: labelLogin, Action: link}}},
		))
	}
	return out
}

func (d *Dispatcher) loginLink(reg *ir.Registration) string {
	q := url.Values{}
	q.Set("user", strconv.FormatUint(reg.UserHash, 10))
	q.Set("token", strconv.FormatUint(reg.Token, 10))
	return d.loginURL + "?" + q.Encode()
}

func (d *Dispatcher) notify(user uint64, message []string, buttons [][]ir.Button) *ir.Notify {
	return &ir.Notify{
		Timestamp: d.now().Unix(),
		Message:   message,
		Buttons:   buttons,
		UserHash:  user,
	}
}
