package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sessionrelay/tailwatch/pkg/block"
)

func TestConsumerAddAndGet(t *testing.T) {
	c := NewConsumer()
	c.AddBlock(block.Block{ID: "1", Type: block.TypeUser, Text: "hi"})

	got, ok := c.Get("1")
	require.True(t, ok)
	assert.Equal(t, "hi", got.Text)
}

func TestConsumerUpdateUnknownIDIsNoop(t *testing.T) {
	c := NewConsumer()
	c.AddBlock(block.Block{ID: "1", Type: block.TypeToolCall})
	c.UpdateBlock("missing", block.Block{ProgressText: "x"})

	assert.Len(t, c.Blocks(), 1)
}

func TestConsumerUpdateMergesProgressAndResult(t *testing.T) {
	c := NewConsumer()
	c.AddBlock(block.Block{ID: "1", Type: block.TypeToolCall, ToolLabel: "Read"})

	c.UpdateBlock("1", block.Block{ProgressText: "working"})
	got, _ := c.Get("1")
	assert.Equal(t, "working", got.ProgressText)
	assert.False(t, got.HasResult)

	c.UpdateBlock("1", block.Block{Result: "done", HasResult: true})
	got, _ = c.Get("1")
	assert.Equal(t, "done", got.Result)
	assert.True(t, got.HasResult)
	assert.Equal(t, "working", got.ProgressText) // preserved, patch left it zero
}

func TestConsumerClearAllResetsState(t *testing.T) {
	c := NewConsumer()
	c.AddBlock(block.Block{ID: "1", Type: block.TypeUser})
	c.ClearAll()

	assert.Empty(t, c.Blocks())
	_, ok := c.Get("1")
	assert.False(t, ok)
}

func TestConsumerBlocksReturnsOrderedCopy(t *testing.T) {
	c := NewConsumer()
	c.AddBlock(block.Block{ID: "1", Type: block.TypeUser})
	c.AddBlock(block.Block{ID: "2", Type: block.TypeAssistant})

	out := c.Blocks()
	require.Len(t, out, 2)
	out[0].ID = "mutated"

	fresh := c.Blocks()
	assert.Equal(t, "1", fresh[0].ID)
}
