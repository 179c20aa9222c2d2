package render

import (
	"fmt"
	"strings"

	"github.com/sessionrelay/tailwatch/pkg/block"
)

const resultTruncateLimit = 2000

// errorMarker prefixes the rendered text of a failed tool call.
const errorMarker = "⚠ "

// Render converts an ordered block list into markdown, per §4.2's rendering
// rules. Used for SSE catch-up replay, message bodies (via RenderTurn), and
// the offline replay CLI's single entry point (RenderFile).
func Render(blocks []block.Block) string {
	var out strings.Builder
	for i, b := range blocks {
		if i > 0 && !joinsWithPrevious(blocks[i-1], b) {
			out.WriteString("\n\n")
		} else if i > 0 {
			out.WriteString("\n")
		}
		out.WriteString(renderBlock(b))
	}
	return out.String()
}

// joinsWithPrevious reports whether cur should be rendered directly under
// prev without a blank-line separator: consecutive ASSISTANT blocks sharing
// a request id, or a TOOL_CALL immediately following an ASSISTANT block
// with the same request id.
func joinsWithPrevious(prev, cur block.Block) bool {
	if prev.Type == block.TypeAssistant && cur.Type == block.TypeAssistant {
		return prev.RequestID != "" && prev.RequestID == cur.RequestID
	}
	if prev.Type == block.TypeAssistant && cur.Type == block.TypeToolCall {
		return prev.RequestID != "" && prev.RequestID == cur.RequestID
	}
	return false
}

func renderBlock(b block.Block) string {
	switch b.Type {
	case block.TypeUser:
		return b.Text
	case block.TypeAssistant, block.TypeThinking, block.TypeSystem:
		return b.Text
	case block.TypeDuration:
		return renderDuration(b.DurationMS)
	case block.TypeToolCall:
		return renderToolCall(b)
	default:
		return b.Text
	}
}

func renderDuration(ms int64) string {
	switch {
	case ms < 1000:
		return fmt.Sprintf("%dms", ms)
	case ms < 60000:
		return fmt.Sprintf("%ds", ms/1000)
	default:
		totalSeconds := ms / 1000
		minutes := totalSeconds / 60
		seconds := totalSeconds % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
}

func renderToolCall(b block.Block) string {
	var out strings.Builder
	label := b.ToolLabel
	if b.IsError {
		label = errorMarker + label
	}
	out.WriteString(label)
	if b.ProgressText != "" {
		out.WriteString("\n")
		out.WriteString(b.ProgressText)
	}
	if b.HasResult {
		out.WriteString("\n")
		out.WriteString(truncateResult(b.Result))
	}
	return out.String()
}

func truncateResult(s string) string {
	runes := []rune(s)
	if len(runes) <= resultTruncateLimit {
		return s
	}
	return string(runes[:resultTruncateLimit]) + "… [truncated]"
}
