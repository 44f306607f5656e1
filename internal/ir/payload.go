package ir

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/govbot/internal/codec"
)

// DataKind tags the payload variant carried by an Entry.
type DataKind string

// Payload variants.
const (
	KindMetaData     DataKind = "meta_data"
	KindProposalData DataKind = "proposal_data"
	KindDebug        DataKind = "debug"
	KindError        DataKind = "error"
	KindLog          DataKind = "log"
)

// ErrUnknownDataKind is returned when a payload tag names no known variant.
var ErrUnknownDataKind = errors.New("unknown data kind")

// CustomData is the sealed polymorphic payload of an Entry. Only the
// variants in this package implement it.
type CustomData interface {
	DataKind() DataKind

	// Get returns the value of a named field, or nil when the variant has no
	// such field. Dotted paths descend into object fields ("where.status").
	Get(field string) IRValue

	// Display renders the payload for a display mode. It never fails:
	// unsupported modes return DisplayNotSupported.
	Display(mode string) string

	customData()
}

// BrowserViewer is implemented by payloads that can be opened in a browser.
type BrowserViewer interface {
	ViewInBrowser() (Button, bool)
}

// Facets are the query-facing objects every payload carries: Where holds
// the attributes matched by filters, OrderBy holds the rank per order-by
// field.
type Facets struct {
	Where   IRObject `json:"where,omitempty"`
	OrderBy IRObject `json:"order_by,omitempty"`
}

// MetaData describes a tracked chain or data source.
type MetaData struct {
	Facets
	Category string `json:"category"`
	State    string `json:"state,omitempty"`
	Value    string `json:"value,omitempty"`
	Summary  string `json:"summary,omitempty"`
}

// ProposalData is a governance proposal observed on a chain.
type ProposalData struct {
	Facets
	Blockchain   string `json:"blockchain"`
	ProposalID   int64  `json:"proposal_id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Status       string `json:"status"`
	ProposalType string `json:"proposal_type,omitempty"`
	SubmitTime   int64  `json:"submit_time,omitempty"`
	VotingStart  int64  `json:"voting_start,omitempty"`
	VotingEnd    int64  `json:"voting_end,omitempty"`
	Link         string `json:"link,omitempty"`
	ContentHash  string `json:"content_hash,omitempty"`
}

// Debug is a producer debug record.
type Debug struct {
	Facets
	Message string `json:"message"`
}

// ErrorData is a producer error report.
type ErrorData struct {
	Facets
	Message string `json:"message"`
}

// Log is a producer log line.
type Log struct {
	Facets
	Message string `json:"message"`
}

func (*MetaData) customData()     {}
func (*ProposalData) customData() {}
func (*Debug) customData()        {}
func (*ErrorData) customData()    {}
func (*Log) customData()          {}

// DataKind implements CustomData.
func (*MetaData) DataKind() DataKind { return KindMetaData }

// DataKind implements CustomData.
func (*ProposalData) DataKind() DataKind { return KindProposalData }

// DataKind implements CustomData.
func (*Debug) DataKind() DataKind { return KindDebug }

// DataKind implements CustomData.
func (*ErrorData) DataKind() DataKind { return KindError }

// DataKind implements CustomData.
func (*Log) DataKind() DataKind { return KindLog }

// ViewInBrowser returns a button opening the proposal's link.
func (p *ProposalData) ViewInBrowser() (Button, bool) {
	if p == nil || p.Link == "" {
		return Button{}, false
	}
	return Button{Label: "Open in Browser", Action: p.Link}, true
}

// newCustomData returns an empty payload for kind.
func newCustomData(kind DataKind) (CustomData, error) {
	switch kind {
	case KindMetaData:
		return &MetaData{}, nil
	case KindProposalData:
		return &ProposalData{}, nil
	case KindDebug:
		return &Debug{}, nil
	case KindError:
		return &ErrorData{}, nil
	case KindLog:
		return &Log{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDataKind, kind)
	}
}

// taggedData carries a CustomData together with its kind tag.
//
// JSON form: {"kind": "<kind>", "data": {...}}.
// CBOR form: [kind, body].
type taggedData struct {
	Data CustomData
}

type taggedDataJSON struct {
	Kind DataKind        `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type taggedDataCBOR struct {
	_    struct{} `cbor:",toarray"`
	Kind DataKind
	Body codec.RawMessage
}

// MarshalJSON implements json.Marshaler.
func (t taggedData) MarshalJSON() ([]byte, error) {
	if t.Data == nil {
		return []byte("null"), nil
	}
	body, err := json.Marshal(t.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", t.Data.DataKind(), err)
	}
	return json.Marshal(taggedDataJSON{Kind: t.Data.DataKind(), Data: body})
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *taggedData) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		t.Data = nil
		return nil
	}
	var wire taggedDataJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("custom data: %w", err)
	}
	cd, err := newCustomData(wire.Kind)
	if err != nil {
		return err
	}
	if len(wire.Data) > 0 {
		if err := json.Unmarshal(wire.Data, cd); err != nil {
			return fmt.Errorf("custom data %s: %w", wire.Kind, err)
		}
	}
	t.Data = cd
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (t taggedData) MarshalCBOR() ([]byte, error) {
	if t.Data == nil {
		return []byte{0xf6}, nil
	}
	body, err := codec.Marshal(t.Data)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", t.Data.DataKind(), err)
	}
	return codec.Marshal(taggedDataCBOR{Kind: t.Data.DataKind(), Body: body})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (t *taggedData) UnmarshalCBOR(data []byte) error {
	if isCBORNull(data) {
		t.Data = nil
		return nil
	}
	var wire taggedDataCBOR
	if err := codec.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("custom data: %w", err)
	}
	cd, err := newCustomData(wire.Kind)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(wire.Body, cd); err != nil {
		return fmt.Errorf("custom data %s: %w", wire.Kind, err)
	}
	t.Data = cd
	return nil
}
