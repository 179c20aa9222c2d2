package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionrelay/tailwatch/pkg/block"
)

func TestMarshalSSEAddBlock(t *testing.T) {
	ev := AddBlockEvent{Session: "s", ID: 1, Block: block.Block{ID: "b1", Type: block.TypeUser, Text: "hi"}}
	data, err := MarshalSSE(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, float64(1), decoded["event_id"])
	assert.Equal(t, "add_block", decoded["kind"])
	assert.NotNil(t, decoded["block"])
}

func TestMarshalSSEUpdateBlockIncludesBlockID(t *testing.T) {
	ev := UpdateBlockEvent{Session: "s", ID: 2, BlockID: "b1", Block: block.Block{ID: "b1"}}
	data, err := MarshalSSE(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "b1", decoded["block_id"])
}

func TestMarshalSSEClearAllOmitsBlockFields(t *testing.T) {
	ev := ClearAllEvent{Session: "s", ID: 3}
	data, err := MarshalSSE(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "clear_all", decoded["kind"])
	_, hasBlock := decoded["block"]
	assert.False(t, hasBlock)
}
