package ir

import (
	"errors"
	"fmt"

	"github.com/roach88/govbot/internal/codec"
)

// ErrUnknownKind is returned by Decode for an envelope with an unknown tag.
var ErrUnknownKind = errors.New("unknown record kind")

// envelope is the binary form of every Value: a two-element CBOR array of
// the kind tag and the variant body.
type envelope struct {
	_    struct{} `cbor:",toarray"`
	Kind RecordKind
	Body codec.RawMessage
}

// Encode serializes v into its tagged binary form.
func Encode(v Value) ([]byte, error) {
	if v == nil {
		return nil, errors.New("encode: nil value")
	}
	body, err := codec.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", v.Kind(), err)
	}
	out, err := codec.Marshal(envelope{Kind: v.Kind(), Body: body})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", v.Kind(), err)
	}
	return out, nil
}

// Decode parses the tagged binary form produced by Encode.
func Decode(data []byte) (Value, error) {
	var env envelope
	if err := codec.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	v, err := newValue(env.Kind)
	if err != nil {
		return nil, err
	}
	if err := codec.Unmarshal(env.Body, v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", env.Kind, err)
	}
	return v, nil
}

// DecodeAs decodes data and asserts the result is a T.
func DecodeAs[T Value](data []byte) (T, error) {
	var zero T
	v, err := Decode(data)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("decode: expected %T, got %s", zero, v.Kind())
	}
	return t, nil
}

func newValue(kind RecordKind) (Value, error) {
	switch kind {
	case KindEntry:
		return &Entry{}, nil
	case KindIndex:
		return &Index{}, nil
	case KindSubscription:
		return &Subscription{}, nil
	case KindRegistration:
		return &Registration{}, nil
	case KindNotify:
		return &Notify{}, nil
	case KindUserMetaData:
		return &UserMetaData{}, nil
	case KindNotification:
		return &Notification{}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, uint8(kind))
	}
}
