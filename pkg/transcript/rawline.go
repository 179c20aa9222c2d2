package transcript

import "encoding/json"

// rawLine is the envelope shape of one parsed JSONL line. Fields referenced
// by the core per spec §6: top-level type, role/message.role,
// message.content (string | list of blocks | null), isSidechain,
// parentToolUseID, requestId, toolUseResult, and tool_use_id within content
// blocks. Unknown/absent fields are tolerated zero values.
type rawLine struct {
	Type            string          `json:"type"`
	Role            string          `json:"role"`
	IsSidechain     bool            `json:"isSidechain"`
	RequestID       string          `json:"requestId"`
	ParentToolUseID string          `json:"parentToolUseID"`
	DurationMS      int64           `json:"duration_ms"`
	Message         *rawMessage     `json:"message"`
	ToolUseResult   json.RawMessage `json:"toolUseResult"`

	// Progress-envelope text, present under varying keys depending on
	// progress sub-variant; checked in order by progressText.
	Text   string `json:"text"`
	Output string `json:"output"`
	Query  string `json:"query"`
}

type rawMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// rawContentBlock is one entry of message.content when it is a list.
type rawContentBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	ID        string          `json:"id"`         // tool_use block id
	Name      string          `json:"name"`        // tool_use tool name
	Input     json.RawMessage `json:"input"`       // tool_use input
	ToolUseID string          `json:"tool_use_id"` // tool_result reference
	Content   json.RawMessage `json:"content"`     // tool_result payload
	IsError   bool            `json:"is_error"`
}

// progressText picks whichever field the progress envelope populated.
func (r rawLine) progressText() string {
	switch {
	case r.Text != "":
		return r.Text
	case r.Output != "":
		return r.Output
	case r.Query != "":
		return r.Query
	default:
		return ""
	}
}

// contentString extracts a plain string if message.content is a JSON string.
func contentString(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}

// contentBlocks extracts a list of content blocks if message.content is a
// JSON array.
func contentBlocks(raw json.RawMessage) ([]rawContentBlock, bool) {
	var blocks []rawContentBlock
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, false
	}
	return blocks, true
}

// isNullContent reports whether message.content is a JSON null or absent.
func isNullContent(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return true
	}
	trimmed := string(raw)
	return trimmed == "null"
}

// resultText extracts the human text of a tool result, whether content is a
// plain string or a nested block list.
func resultText(raw json.RawMessage) string {
	if s, ok := contentString(raw); ok {
		return s
	}
	if blocks, ok := contentBlocks(raw); ok {
		var out string
		for _, b := range blocks {
			if b.Text != "" {
				if out != "" {
					out += "\n"
				}
				out += b.Text
			}
		}
		return out
	}
	return string(raw)
}
