package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/govbot/internal/codec"
)

// QueryKind tags a QueryPart variant.
type QueryKind string

// Query part kinds.
const (
	QueryEntries       QueryKind = "entries"
	QuerySubscriptions QueryKind = "subscriptions"
	QueryRegister      QueryKind = "register"
)

// ErrUnknownQueryKind is returned when a query part tag names no variant.
var ErrUnknownQueryKind = errors.New("unknown query kind")

// QueryPart is the sealed definition of what a user asks for.
type QueryPart interface {
	QueryKind() QueryKind

	// Command returns the chat command the query was issued with, without
	// the leading slash.
	Command() string

	queryPart()
}

// EntriesQueryPart selects entries from named indices, filters them on the
// payload's where object and orders them by a rank in its order_by object.
type EntriesQueryPart struct {
	Message string            `json:"message"`
	Display string            `json:"display,omitempty"`
	Indices []string          `json:"indices,omitempty"`
	Filter  map[string]string `json:"filter,omitempty"`
	OrderBy string            `json:"order_by,omitempty"`
	Limit   int               `json:"limit,omitempty"`
}

// SubscriptionsQueryPart lists the requester's subscriptions.
type SubscriptionsQueryPart struct {
	Message string `json:"message"`
}

// RegisterQueryPart requests a login link.
type RegisterQueryPart struct {
	Message string `json:"message"`
}

func (EntriesQueryPart) queryPart()       {}
func (SubscriptionsQueryPart) queryPart() {}
func (RegisterQueryPart) queryPart()      {}

// QueryKind implements QueryPart.
func (EntriesQueryPart) QueryKind() QueryKind { return QueryEntries }

// QueryKind implements QueryPart.
func (SubscriptionsQueryPart) QueryKind() QueryKind { return QuerySubscriptions }

// QueryKind implements QueryPart.
func (RegisterQueryPart) QueryKind() QueryKind { return QueryRegister }

// Command implements QueryPart.
func (q EntriesQueryPart) Command() string { return command(q.Message) }

// Command implements QueryPart.
func (q SubscriptionsQueryPart) Command() string { return command(q.Message) }

// Command implements QueryPart.
func (q RegisterQueryPart) Command() string { return command(q.Message) }

func command(message string) string {
	return strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(message), "/"))
}

// MarshalQueryPart encodes p as a flat JSON object with a "kind" member.
func MarshalQueryPart(p QueryPart) ([]byte, error) {
	if p == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal query part: %w", err)
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(body, &members); err != nil {
		return nil, fmt.Errorf("marshal query part: %w", err)
	}
	kind, err := json.Marshal(p.QueryKind())
	if err != nil {
		return nil, err
	}
	members["kind"] = kind
	return json.Marshal(members)
}

// UnmarshalQueryPart decodes the form produced by MarshalQueryPart.
// JSON null decodes to a nil QueryPart.
func UnmarshalQueryPart(data []byte) (QueryPart, error) {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil, nil
	}
	var head struct {
		Kind QueryKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("unmarshal query part: %w", err)
	}
	switch head.Kind {
	case QueryEntries:
		var q EntriesQueryPart
		err := json.Unmarshal(data, &q)
		return q, err
	case QuerySubscriptions:
		var q SubscriptionsQueryPart
		err := json.Unmarshal(data, &q)
		return q, err
	case QueryRegister:
		var q RegisterQueryPart
		err := json.Unmarshal(data, &q)
		return q, err
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueryKind, head.Kind)
	}
}

// taggedQuery carries a QueryPart through struct codecs.
type taggedQuery struct {
	Part QueryPart
}

type taggedQueryCBOR struct {
	_    struct{} `cbor:",toarray"`
	Kind QueryKind
	Body codec.RawMessage
}

// MarshalJSON implements json.Marshaler.
func (t taggedQuery) MarshalJSON() ([]byte, error) { return MarshalQueryPart(t.Part) }

// UnmarshalJSON implements json.Unmarshaler.
func (t *taggedQuery) UnmarshalJSON(data []byte) error {
	p, err := UnmarshalQueryPart(data)
	if err != nil {
		return err
	}
	t.Part = p
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (t taggedQuery) MarshalCBOR() ([]byte, error) {
	if t.Part == nil {
		return []byte{0xf6}, nil
	}
	body, err := codec.Marshal(t.Part)
	if err != nil {
		return nil, fmt.Errorf("marshal query part: %w", err)
	}
	return codec.Marshal(taggedQueryCBOR{Kind: t.Part.QueryKind(), Body: body})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (t *taggedQuery) UnmarshalCBOR(data []byte) error {
	if isCBORNull(data) {
		t.Part = nil
		return nil
	}
	var wire taggedQueryCBOR
	if err := codec.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("unmarshal query part: %w", err)
	}
	switch wire.Kind {
	case QueryEntries:
		var q EntriesQueryPart
		if err := codec.Unmarshal(wire.Body, &q); err != nil {
			return fmt.Errorf("unmarshal query part: %w", err)
		}
		t.Part = q
	case QuerySubscriptions:
		var q SubscriptionsQueryPart
		if err := codec.Unmarshal(wire.Body, &q); err != nil {
			return fmt.Errorf("unmarshal query part: %w", err)
		}
		t.Part = q
	case QueryRegister:
		var q RegisterQueryPart
		if err := codec.Unmarshal(wire.Body, &q); err != nil {
			return fmt.Errorf("unmarshal query part: %w", err)
		}
		t.Part = q
	default:
		return fmt.Errorf("%w: %q", ErrUnknownQueryKind, wire.Kind)
	}
	return nil
}

// Settings carry the per-request flags of a UserQuery.
type Settings struct {
	Subscribe   bool          `json:"subscribe,omitempty"`
	Unsubscribe bool          `json:"unsubscribe,omitempty"`
	Register    bool          `json:"register,omitempty"`
	UserHash    *uint64       `json:"user_hash,omitempty"`
	User        *UserMetaData `json:"user,omitempty"`
}

// Requester returns the requesting user's hash: the explicit UserHash, or
// the hash derived from User, or false when neither is set.
func (s Settings) Requester() (uint64, bool) {
	if s.UserHash != nil {
		return *s.UserHash, true
	}
	if s.User != nil {
		return s.User.UserHash(), true
	}
	return 0, false
}

// UserQuery is a request received on the query socket.
type UserQuery struct {
	Part     QueryPart
	Settings Settings
	Fields   []string // response projection; empty means all attributes
}

type userQueryWire struct {
	Part     taggedQuery `json:"query_part"`
	Settings Settings    `json:"settings"`
	Fields   []string    `json:"fields,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (q UserQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(userQueryWire{Part: taggedQuery{Part: q.Part}, Settings: q.Settings, Fields: q.Fields})
}

// UnmarshalJSON implements json.Unmarshaler.
func (q *UserQuery) UnmarshalJSON(data []byte) error {
	var w userQueryWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*q = UserQuery{Part: w.Part.Part, Settings: w.Settings, Fields: w.Fields}
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (q UserQuery) MarshalCBOR() ([]byte, error) {
	return codec.Marshal(userQueryWire{Part: taggedQuery{Part: q.Part}, Settings: q.Settings, Fields: q.Fields})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (q *UserQuery) UnmarshalCBOR(data []byte) error {
	var w userQueryWire
	if err := codec.Unmarshal(data, &w); err != nil {
		return err
	}
	*q = UserQuery{Part: w.Part.Part, Settings: w.Settings, Fields: w.Fields}
	return nil
}
