// Package render implements the Visual State Consumer (§4.2): the ordered
// block list a session's events project onto, and the markdown rendering
// rules used for SSE catch-up replay, message bodies, and the out-of-scope
// offline replay CLI's single entry point.
package render

import "github.com/sessionrelay/tailwatch/pkg/block"

// Consumer holds the ordered block list and an id->index map for a single
// session, mirroring the teacher's ordered/id-indexed collection shape used
// for timeline entries in pkg/services/timeline_service.go.
type Consumer struct {
	blocks []block.Block
	index  map[string]int
}

// NewConsumer returns an empty consumer.
func NewConsumer() *Consumer {
	return &Consumer{index: make(map[string]int)}
}

// AddBlock appends b and indexes it by id.
func (c *Consumer) AddBlock(b block.Block) {
	c.index[b.ID] = len(c.blocks)
	c.blocks = append(c.blocks, b)
}

// UpdateBlock merges patch onto the existing block at id. Fields on patch
// that matter per block type are overlaid onto the stored block; unset
// fields in patch never clobber existing content. A no-op if id is unknown,
// per the spec's "fails silently" contract.
func (c *Consumer) UpdateBlock(id string, patch block.Block) {
	idx, ok := c.index[id]
	if !ok {
		return
	}
	existing := c.blocks[idx]
	c.blocks[idx] = mergeBlock(existing, patch)
}

// mergeBlock overlays the fields a progress/result patch carries onto the
// stored block, preserving identity fields the patch leaves zero.
func mergeBlock(existing, patch block.Block) block.Block {
	merged := existing
	if patch.ProgressText != "" {
		merged.ProgressText = patch.ProgressText
	}
	if patch.HasResult {
		merged.Result = patch.Result
		merged.HasResult = true
		merged.IsError = patch.IsError
	}
	if patch.Text != "" {
		merged.Text = patch.Text
	}
	return merged
}

// ClearAll discards all blocks and the index, per COMPACT_BOUNDARY/
// truncation recovery.
func (c *Consumer) ClearAll() {
	c.blocks = nil
	c.index = make(map[string]int)
}

// Blocks returns a copy of the current ordered block list.
func (c *Consumer) Blocks() []block.Block {
	out := make([]block.Block, len(c.blocks))
	copy(out, c.blocks)
	return out
}

// Get returns the block for id and whether it was found.
func (c *Consumer) Get(id string) (block.Block, bool) {
	idx, ok := c.index[id]
	if !ok {
		return block.Block{}, false
	}
	return c.blocks[idx], true
}
