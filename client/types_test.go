package client

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeObject(t *testing.T, s string) map[string]any {
	t.Helper()
	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &raw))
	return raw
}

func TestDecodePage(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantItems int
		wantNext  bool
	}{
		{"items and next", `{"transactions":[{"id":"a"},{"id":"b"}],"has_next":true}`, 2, true},
		{"missing has_next", `{"transactions":[{"id":"a"}]}`, 1, false},
		{"missing field", `{"has_next":true}`, 0, true},
		{"null field", `{"transactions":null,"has_next":false}`, 0, false},
		{"non-object items skipped", `{"transactions":[1,"x",{"id":"a"}]}`, 1, false},
		{"has_next as number", `{"has_next":1}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := decodePage(decodeObject(t, tt.body), "transactions")
			assert.Len(t, p.Items, tt.wantItems)
			assert.Equal(t, tt.wantNext, p.HasNext)
		})
	}
}

func TestObject_Accessors(t *testing.T) {
	obj := Object(decodeObject(t, `{"id":"0xabc","block":"17","fee":0.25,"ok":true,"total_txs":9}`))

	assert.Equal(t, "0xabc", obj.Hash())
	assert.Equal(t, "0.25", obj.String("fee"))
	assert.Equal(t, "true", obj.String("ok"))
	assert.Equal(t, "", obj.String("missing"))

	block, ok := obj.Int("block")
	require.True(t, ok)
	assert.Equal(t, int64(17), block)

	_, ok = obj.Int("ok")
	assert.False(t, ok)

	n, ok := obj.Count()
	require.True(t, ok)
	assert.Equal(t, int64(9), n)

	assert.Equal(t, "sig", Object{"signature": "sig"}.Hash())
}
