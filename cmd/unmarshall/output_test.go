package main

import (
	"testing"

	"github.com/brojonat/unmarshall/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesAll(t *testing.T) {
	tests := []struct {
		name        string
		txn         client.Object
		filters     []string
		expectMatch bool
	}{
		{
			name:        "single filter match",
			txn:         client.Object{"status": "completed"},
			filters:     []string{`.status == "completed"`},
			expectMatch: true,
		},
		{
			name:        "single filter mismatch",
			txn:         client.Object{"status": "failed"},
			filters:     []string{`.status == "completed"`},
			expectMatch: false,
		},
		{
			name:        "all filters must match",
			txn:         client.Object{"status": "completed", "fee": "21000"},
			filters:     []string{`.status == "completed"`, `(.fee | tonumber) > 50000`},
			expectMatch: false,
		},
		{
			name:        "nested field",
			txn:         client.Object{"sent": []interface{}{map[string]interface{}{"symbol": "USDC"}}},
			filters:     []string{`any(.sent[]; .symbol == "USDC")`},
			expectMatch: true,
		},
		{
			name:        "null result is falsy",
			txn:         client.Object{},
			filters:     []string{`.missing`},
			expectMatch: false,
		},
		{
			name:        "no output is falsy",
			txn:         client.Object{},
			filters:     []string{`empty`},
			expectMatch: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := compileJQ(tt.filters)
			require.NoError(t, err)

			matched, err := matchesAll(codes, tt.txn)
			require.NoError(t, err)
			assert.Equal(t, tt.expectMatch, matched)
		})
	}
}

func TestRunJQ(t *testing.T) {
	results, err := runJQ(`.[] | .id`, []client.Object{{"id": "a"}, {"id": "b"}})
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"a", "b"}, results)

	_, err = runJQ(`.[] | error("boom")`, []client.Object{{"id": "a"}})
	assert.Error(t, err)
}

func TestIsTruthy(t *testing.T) {
	assert.False(t, isTruthy(nil))
	assert.False(t, isTruthy(false))
	assert.True(t, isTruthy(true))
	assert.True(t, isTruthy(0.0))
	assert.True(t, isTruthy(""))
	assert.True(t, isTruthy([]interface{}{}))
}
