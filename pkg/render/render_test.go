package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sessionrelay/tailwatch/pkg/block"
)

func TestRenderJoinsConsecutiveAssistantBlocksSameRequest(t *testing.T) {
	blocks := []block.Block{
		{ID: "1", Type: block.TypeAssistant, RequestID: "req-1", Text: "line one"},
		{ID: "2", Type: block.TypeAssistant, RequestID: "req-1", Text: "line two"},
	}
	out := Render(blocks)
	assert.Equal(t, "line one\nline two", out)
}

func TestRenderSeparatesUnrelatedBlocksWithBlankLine(t *testing.T) {
	blocks := []block.Block{
		{ID: "1", Type: block.TypeUser, Text: "hi"},
		{ID: "2", Type: block.TypeAssistant, RequestID: "req-1", Text: "hello"},
	}
	out := Render(blocks)
	assert.Equal(t, "hi\n\nhello", out)
}

func TestRenderDurationFormatsByMagnitude(t *testing.T) {
	assert.Equal(t, "500ms", renderDuration(500))
	assert.Equal(t, "3s", renderDuration(3000))
	assert.Equal(t, "1m 5s", renderDuration(65000))
}

func TestRenderToolCallIncludesProgressAndResult(t *testing.T) {
	b := block.Block{
		ID: "1", Type: block.TypeToolCall,
		ToolLabel: "Read file.go", ProgressText: "reading...",
		Result: "ok", HasResult: true,
	}
	out := renderBlock(b)
	assert.Contains(t, out, "Read file.go")
	assert.Contains(t, out, "reading...")
	assert.Contains(t, out, "ok")
}

func TestRenderToolCallMarksErrors(t *testing.T) {
	b := block.Block{ID: "1", Type: block.TypeToolCall, ToolLabel: "Run tests", IsError: true}
	out := renderBlock(b)
	assert.Contains(t, out, errorMarker)
}

func TestTruncateResultAppendsMarkerPastLimit(t *testing.T) {
	long := make([]rune, resultTruncateLimit+10)
	for i := range long {
		long[i] = 'x'
	}
	out := truncateResult(string(long))
	assert.Contains(t, out, "[truncated]")
	assert.Less(t, len([]rune(out)), len(long))
}
