package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/roach88/govbot/internal/codec"
)

// IRValue is a sealed interface representing the generic values carried in
// payload facets (where / order_by objects) and returned by field accessors.
// Only IRNull, IRString, IRInt, IRFloat, IRBool, IRArray and IRObject
// implement it. A nil IRValue reads as null.
type IRValue interface {
	irValue()
}

// IRNull represents an explicit null.
type IRNull struct{}

func (IRNull) irValue() {}

// MarshalJSON implements json.Marshaler for IRNull.
func (IRNull) MarshalJSON() ([]byte, error) {
	return []byte("null"), nil
}

// MarshalCBOR encodes IRNull as CBOR null instead of an empty map.
func (IRNull) MarshalCBOR() ([]byte, error) {
	return []byte{0xf6}, nil
}

// IRString represents a string value.
type IRString string

func (IRString) irValue() {}

// IRInt represents an integer value.
type IRInt int64

func (IRInt) irValue() {}

// IRFloat represents a floating point value. Ranks and model scores are
// fractional, so floats are admitted; canonical encoding rejects NaN and
// infinities.
type IRFloat float64

func (IRFloat) irValue() {}

// IRBool represents a boolean value.
type IRBool bool

func (IRBool) irValue() {}

// IRArray represents an array of IRValue elements.
type IRArray []IRValue

func (IRArray) irValue() {}

// IRObject represents a map of string keys to IRValue elements.
// Use SortedKeys() for deterministic iteration.
type IRObject map[string]IRValue

func (IRObject) irValue() {}

// IsNull reports whether v reads as null.
func IsNull(v IRValue) bool {
	if v == nil {
		return true
	}
	_, ok := v.(IRNull)
	return ok
}

// Text returns the stable textual form of v. It names membership indices
// and is the left-hand side of filter equality.
func Text(v IRValue) string {
	switch val := v.(type) {
	case nil, IRNull:
		return ""
	case IRString:
		return string(val)
	case IRInt:
		return strconv.FormatInt(int64(val), 10)
	case IRFloat:
		return strconv.FormatFloat(float64(val), 'g', -1, 64)
	case IRBool:
		return strconv.FormatBool(bool(val))
	default:
		b, err := MarshalIRValue(v)
		if err != nil {
			return ""
		}
		return string(b)
	}
}

// Lookup resolves a dotted path ("where.status") inside an object.
// Returns nil when any segment is missing or not an object.
func (obj IRObject) Lookup(path string) IRValue {
	head, rest, nested := strings.Cut(path, ".")
	v, ok := obj[head]
	if !ok {
		return nil
	}
	if !nested {
		return v
	}
	child, ok := v.(IRObject)
	if !ok {
		return nil
	}
	return child.Lookup(rest)
}

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
func (obj IRObject) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering.
// Go's default string comparison uses UTF-8 which orders supplementary
// characters differently.
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))
	return slices.Compare(a16, b16)
}

// FromNative converts a decoded Go value (from JSON, YAML or CBOR) into an
// IRValue. Integers that overflow int64 become floats.
func FromNative(v any) (IRValue, error) {
	switch val := v.(type) {
	case nil:
		return IRNull{}, nil
	case IRValue:
		return val, nil
	case string:
		return IRString(val), nil
	case bool:
		return IRBool(val), nil
	case int:
		return IRInt(val), nil
	case int64:
		return IRInt(val), nil
	case int32:
		return IRInt(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return IRFloat(float64(val)), nil
		}
		return IRInt(int64(val)), nil
	case uint32:
		return IRInt(int64(val)), nil
	case float32:
		return IRFloat(float64(val)), nil
	case float64:
		return IRFloat(val), nil
	case json.Number:
		return numberToIR(val)
	case []any:
		arr := make(IRArray, len(val))
		for i, elem := range val {
			irElem, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = irElem
		}
		return arr, nil
	case map[string]any:
		obj := make(IRObject, len(val))
		for k, elem := range val {
			irElem, err := FromNative(elem)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = irElem
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

// ObjectFromNative converts a decoded map into an IRObject.
func ObjectFromNative(m map[string]any) (IRObject, error) {
	if m == nil {
		return nil, nil
	}
	v, err := FromNative(m)
	if err != nil {
		return nil, err
	}
	return v.(IRObject), nil
}

func numberToIR(n json.Number) (IRValue, error) {
	s := string(n)
	if !strings.ContainsAny(s, ".eE") {
		if i, err := n.Int64(); err == nil {
			return IRInt(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return IRFloat(f), nil
}

// UnmarshalJSON implements json.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	switch val := v.(type) {
	case IRNull:
		*obj = nil
	case IRObject:
		*obj = val
	default:
		return fmt.Errorf("IRObject: expected object, got %T", v)
	}
	return nil
}

// UnmarshalJSON implements json.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalJSON(data []byte) error {
	v, err := UnmarshalIRValue(data)
	if err != nil {
		return err
	}
	switch val := v.(type) {
	case IRNull:
		*arr = nil
	case IRArray:
		*arr = val
	default:
		return fmt.Errorf("IRArray: expected array, got %T", v)
	}
	return nil
}

// MarshalJSON implements json.Marshaler for IRObject with sorted keys.
// This is NOT canonical marshaling; use MarshalCanonical for hashing.
func (obj IRObject) MarshalJSON() ([]byte, error) {
	if obj == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := MarshalIRValue(obj[k])
		if err != nil {
			return nil, fmt.Errorf("marshal value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// MarshalIRValue marshals an IRValue to JSON bytes.
func MarshalIRValue(v IRValue) ([]byte, error) {
	switch val := v.(type) {
	case nil, IRNull:
		return []byte("null"), nil
	case IRString:
		return json.Marshal(string(val))
	case IRInt:
		return json.Marshal(int64(val))
	case IRFloat:
		if math.IsNaN(float64(val)) || math.IsInf(float64(val), 0) {
			return nil, ErrNonFinite
		}
		return json.Marshal(float64(val))
	case IRBool:
		return json.Marshal(bool(val))
	case IRArray:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			elemBytes, err := MarshalIRValue(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(elemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case IRObject:
		return val.MarshalJSON()
	default:
		return nil, fmt.Errorf("unknown IRValue type: %T", v)
	}
}

// UnmarshalIRValue decodes JSON into an IRValue. Numbers without a fraction
// or exponent become IRInt, all others IRFloat; null becomes IRNull.
func UnmarshalIRValue(data []byte) (IRValue, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	return FromNative(raw)
}

// UnmarshalCBOR implements cbor.Unmarshaler for IRObject.
func (obj *IRObject) UnmarshalCBOR(data []byte) error {
	if isCBORNull(data) {
		*obj = nil
		return nil
	}
	var raw map[string]any
	if err := codec.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("IRObject: %w", err)
	}
	converted, err := ObjectFromNative(raw)
	if err != nil {
		return fmt.Errorf("IRObject: %w", err)
	}
	*obj = converted
	return nil
}

// UnmarshalCBOR implements cbor.Unmarshaler for IRArray.
func (arr *IRArray) UnmarshalCBOR(data []byte) error {
	if isCBORNull(data) {
		*arr = nil
		return nil
	}
	var raw []any
	if err := codec.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("IRArray: %w", err)
	}
	v, err := FromNative(raw)
	if err != nil {
		return fmt.Errorf("IRArray: %w", err)
	}
	*arr = v.(IRArray)
	return nil
}

// isCBORNull reports whether data is a single CBOR null or undefined.
func isCBORNull(data []byte) bool {
	return len(data) == 1 && (data[0] == 0xf6 || data[0] == 0xf7)
}
