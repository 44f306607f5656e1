package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/govbot/internal/engine"
	"github.com/roach88/govbot/internal/ir"
)

// Forwarder hands a resolved query to the dispatcher. NotifyClient does
// it over the notification socket; dispatch.Dispatcher does it in process.
type Forwarder interface {
	Forward(ctx context.Context, n *ir.Notification) error
}

// Row is one projected result value.
type Row = map[string]any

// QueryService answers JSON UserQuery requests with a JSON list of rows.
type QueryService struct {
	engine    *engine.Engine
	forwarder Forwarder
	logger    *slog.Logger
}

// NewQueryService creates the query handler. A nil forwarder resolves
// queries without notifying anyone.
func NewQueryService(e *engine.Engine, fwd Forwarder, logger *slog.Logger) *QueryService {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryService{engine: e, forwarder: fwd, logger: logger}
}

// ServeRequest implements Handler.
//
// An undecodable request aborts the connection. A rejected query (see
// engine.QueryError) answers an empty list. A failed forward is logged;
// the caller still gets its rows.
func (qs *QueryService) ServeRequest(ctx context.Context, req []byte) ([]byte, error) {
	var q ir.UserQuery
	if err := json.Unmarshal(req, &q); err != nil {
		return nil, fmt.Errorf("decode query: %w", err)
	}
	if q.Part == nil {
		return nil, fmt.Errorf("decode query: missing query_part")
	}

	n, err := qs.engine.Handle(ctx, q)
	if err != nil {
		if qe, ok := engine.IsQueryError(err); ok {
			qs.logger.Warn("query rejected", "code", qe.Code, "command", qe.Command, "error", qe.Message)
			return json.Marshal([]Row{})
		}
		return nil, err
	}

	if qs.forwarder != nil {
		if err := qs.forwarder.Forward(ctx, n); err != nil {
			qs.logger.Error("forwarding notification", "command", q.Part.Command(), "error", err)
		}
	}

	values, err := qs.results(ctx, q, n)
	if err != nil {
		return nil, err
	}
	rows, err := Project(values, q.Fields)
	if err != nil {
		return nil, err
	}
	return json.Marshal(rows)
}

// results picks the values a query answers with: matched entries,
// registrations, or the requester's subscriptions.
func (qs *QueryService) results(ctx context.Context, q ir.UserQuery, n *ir.Notification) ([]any, error) {
	var out []any
	switch q.Part.(type) {
	case ir.EntriesQueryPart:
		for _, e := range n.Entries {
			out = append(out, e)
		}
	case ir.RegisterQueryPart:
		for _, r := range n.Registrations {
			out = append(out, r)
		}
	case ir.SubscriptionsQueryPart:
		user, ok := n.Query.Settings.Requester()
		if !ok {
			return nil, nil
		}
		subs, err := qs.engine.Store().SubscriptionsForUser(ctx, user)
		if err != nil {
			return nil, err
		}
		for _, s := range subs {
			out = append(out, s)
		}
	}
	return out, nil
}

// Project converts values to their JSON maps and keeps only the named
// fields. Dotted names reach into nested objects ("custom_data.data.title")
// and keep the dotted name as the row key. No fields keeps everything.
// Missing fields are left out of the row.
func Project(values []any, fields []string) ([]Row, error) {
	rows := make([]Row, 0, len(values))
	for i, v := range values {
		full, err := toRow(v)
		if err != nil {
			return nil, fmt.Errorf("project [%d]: %w", i, err)
		}
		if len(fields) == 0 {
			rows = append(rows, full)
			continue
		}
		row := make(Row, len(fields))
		for _, f := range fields {
			if val, ok := lookup(full, f); ok {
				row[f] = val
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func toRow(v any) (Row, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var row Row
	if err := dec.Decode(&row); err != nil {
		return nil, err
	}
	return row, nil
}

func lookup(row Row, path string) (any, bool) {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := row[head]
	if !ok || !nested {
		return v, ok
	}
	child, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return lookup(child, rest)
}

// Query sends q to the query service on path and decodes the rows.
func Query(ctx context.Context, path string, q ir.UserQuery) ([]Row, error) {
	req, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}
	resp, err := Call(ctx, path, req)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(resp))
	dec.UseNumber()
	var rows []Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}
