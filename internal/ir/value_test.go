package ir

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/govbot/internal/codec"
)

func TestIRValueSealed(t *testing.T) {
	var _ IRValue = IRNull{}
	var _ IRValue = IRString("test")
	var _ IRValue = IRInt(42)
	var _ IRValue = IRFloat(1.5)
	var _ IRValue = IRBool(true)
	var _ IRValue = IRArray{IRString("a"), IRInt(1)}
	var _ IRValue = IRObject{"key": IRString("value")}
}

func TestIRObjectSortedKeys(t *testing.T) {
	obj := IRObject{
		"zebra":  IRString("z"),
		"apple":  IRString("a"),
		"banana": IRString("b"),
	}

	assert.Equal(t, []string{"apple", "banana", "zebra"}, obj.SortedKeys())
}

func TestIRObjectSortedKeysRFC8785Order(t *testing.T) {
	obj := IRObject{
		"a":  IRInt(1),
		"A":  IRInt(2),
		"aa": IRInt(3),
		"aA": IRInt(4),
		"Aa": IRInt(5),
		"AA": IRInt(6),
	}

	// 'A' = 65, 'a' = 97
	assert.Equal(t, []string{"A", "AA", "Aa", "a", "aA", "aa"}, obj.SortedKeys())
}

func TestCompareKeysRFC8785(t *testing.T) {
	tests := []struct {
		a, b     string
		expected int
	}{
		{"a", "b", -1},
		{"b", "a", 1},
		{"a", "a", 0},
		{"aa", "a", 1},
		{"A", "a", -1},
		{"", "a", -1},
		// U+FB33 sorts after U+1D11E in UTF-16 (surrogate pair starts 0xD834)
		{"\uFB33", "\U0001D11E", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"_vs_"+tt.b, func(t *testing.T) {
			result := compareKeysRFC8785(tt.a, tt.b)
			switch {
			case tt.expected < 0:
				assert.Less(t, result, 0)
			case tt.expected > 0:
				assert.Greater(t, result, 0)
			default:
				assert.Equal(t, 0, result)
			}
		})
	}
}

func TestIRObjectLookup(t *testing.T) {
	obj := IRObject{
		"where": IRObject{
			"status": IRString("passed"),
			"chain":  IRObject{"name": IRString("osmosis")},
		},
		"flat": IRInt(1),
	}

	assert.Equal(t, IRString("passed"), obj.Lookup("where.status"))
	assert.Equal(t, IRString("osmosis"), obj.Lookup("where.chain.name"))
	assert.Equal(t, IRInt(1), obj.Lookup("flat"))
	assert.Nil(t, obj.Lookup("where.missing"))
	assert.Nil(t, obj.Lookup("flat.deeper"))
	assert.Nil(t, obj.Lookup("missing"))
}

func TestText(t *testing.T) {
	tests := []struct {
		name     string
		value    IRValue
		expected string
	}{
		{"nil", nil, ""},
		{"null", IRNull{}, ""},
		{"string", IRString("passed"), "passed"},
		{"int", IRInt(-7), "-7"},
		{"float", IRFloat(2.5), "2.5"},
		{"bool", IRBool(true), "true"},
		{"array", IRArray{IRInt(1), IRString("a")}, `[1,"a"]`},
		{"object", IRObject{"b": IRInt(2), "a": IRInt(1)}, `{"a":1,"b":2}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Text(tt.value))
		})
	}
}

func TestIRNullInObject(t *testing.T) {
	obj := IRObject{
		"present": IRString("value"),
		"missing": IRNull{},
	}

	data, err := json.Marshal(obj)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"missing":null`)

	var decoded IRObject
	require.NoError(t, json.Unmarshal(data, &decoded))

	val := decoded["missing"]
	_, isNull := val.(IRNull)
	assert.True(t, isNull, "expected IRNull, got %T", val)
	assert.True(t, IsNull(val))
	assert.True(t, IsNull(nil))
	assert.False(t, IsNull(IRString("")))
}

func TestUnmarshalIRValueNumbers(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected IRValue
	}{
		{"integer", `42`, IRInt(42)},
		{"negative integer", `-100`, IRInt(-100)},
		{"fraction", `3.14`, IRFloat(3.14)},
		{"exponent", `1e3`, IRFloat(1000)},
		{"beyond int64", `9223372036854775808`, IRFloat(9223372036854775808)},
		{"nested", `{"a":[1,2.5]}`, IRObject{"a": IRArray{IRInt(1), IRFloat(2.5)}}},
		{"null", `null`, IRNull{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := UnmarshalIRValue([]byte(tt.input))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestMarshalIRValueRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value IRValue
	}{
		{"string", IRString("hello")},
		{"int", IRInt(42)},
		{"max int64", IRInt(9223372036854775807)},
		{"min int64", IRInt(-9223372036854775808)},
		{"float", IRFloat(0.5)},
		{"bool", IRBool(false)},
		{"empty array", IRArray{}},
		{"empty object", IRObject{}},
		{"nested", IRObject{
			"array":  IRArray{IRInt(1), IRObject{"nested": IRBool(true)}},
			"string": IRString("test"),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := MarshalIRValue(tt.value)
			require.NoError(t, err)

			result, err := UnmarshalIRValue(data)
			require.NoError(t, err)
			assert.Equal(t, tt.value, result)
		})
	}
}

func TestIRObjectCBORRoundTrip(t *testing.T) {
	obj := IRObject{
		"status": IRString("passed"),
		"rank":   IRInt(-3),
		"score":  IRFloat(0.75),
		"flag":   IRBool(true),
		"none":   IRNull{},
		"list":   IRArray{IRInt(1), IRString("x")},
		"nested": IRObject{"deep": IRInt(7)},
	}

	data, err := codec.Marshal(obj)
	require.NoError(t, err)

	var decoded IRObject
	require.NoError(t, codec.Unmarshal(data, &decoded))
	assert.Equal(t, obj, decoded)
}

func TestFromNativeRejectsUnsupported(t *testing.T) {
	_, err := FromNative(struct{}{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported type")
}
