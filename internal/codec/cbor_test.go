package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalIsDeterministic(t *testing.T) {
	a, err := Marshal(map[string]any{"user_hash": uint64(7), "message": []string{"osmosis #2"}, "buttons": nil})
	require.NoError(t, err)
	b, err := Marshal(map[string]any{"buttons": nil, "message": []string{"osmosis #2"}, "user_hash": uint64(7)})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestUnmarshalUsesStringKeyedMaps(t *testing.T) {
	data, err := Marshal(map[string]any{"where": map[string]any{"status": "passed"}})
	require.NoError(t, err)

	var v any
	require.NoError(t, Unmarshal(data, &v))
	m, ok := v.(map[string]any)
	require.True(t, ok)
	inner, ok := m["where"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "passed", inner["status"])
}

func TestDiagnose(t *testing.T) {
	data, err := Marshal([]any{"notify", map[string]any{"user_hash": uint64(7)}})
	require.NoError(t, err)

	diag, err := Diagnose(data)
	require.NoError(t, err)
	assert.Equal(t, `["notify", {"user_hash": 7}]`, diag)

	_, err = Diagnose([]byte{0x82, 0x01})
	assert.Error(t, err)
}
