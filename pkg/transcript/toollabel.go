package transcript

import (
	"encoding/json"
	"path"
	"strings"
)

// renderMode picks how a tool's chosen input field is rendered into a label.
type renderMode int

const (
	renderTruncate renderMode = iota
	renderBasename
)

// toolLabelRule is one row of the per-tool abbreviation table, §4.1.1:
// (input_field, secondary_field|none, render_mode).
type toolLabelRule struct {
	inputField     string
	secondaryField string // empty if none
	mode           renderMode
}

// toolLabelRules is the static table keyed by tool name. Grounded on the
// kylesnowschwartz tail-claude parser's ToolSummary convention ("main.go"
// for Read, "go test" for Bash — basename vs. truncate per tool).
var toolLabelRules = map[string]toolLabelRule{
	"Read":      {inputField: "file_path", mode: renderBasename},
	"Write":     {inputField: "file_path", mode: renderBasename},
	"Edit":      {inputField: "file_path", mode: renderBasename},
	"NotebookEdit": {inputField: "notebook_path", mode: renderBasename},
	"Bash":      {inputField: "command", mode: renderTruncate},
	"Grep":      {inputField: "pattern", secondaryField: "path", mode: renderTruncate},
	"Glob":      {inputField: "pattern", mode: renderTruncate},
	"Task":      {inputField: "description", mode: renderTruncate},
	"WebFetch":  {inputField: "url", mode: renderTruncate},
	"WebSearch": {inputField: "query", mode: renderTruncate},
	"TodoWrite": {inputField: "todos", mode: renderTruncate},
}

const maxLabelCodePoints = 80

// ToolLabel derives the human label for a tool_use block per §4.1.1.
// Unknown tools render as `tool_name` plus truncated JSON of the input.
func ToolLabel(toolName string, input json.RawMessage) string {
	rule, ok := toolLabelRules[toolName]
	if !ok {
		return toolName + " " + truncateCodePoints(compactJSON(input), maxLabelCodePoints)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(input, &fields); err != nil {
		return toolName + " " + truncateCodePoints(compactJSON(input), maxLabelCodePoints)
	}

	primary := stringField(fields[rule.inputField])
	if rule.mode == renderBasename && primary != "" {
		primary = path.Base(primary)
	}

	label := toolName
	if primary != "" {
		label += " " + truncateCodePoints(primary, maxLabelCodePoints)
	}
	if rule.secondaryField != "" {
		if secondary := stringField(fields[rule.secondaryField]); secondary != "" {
			label += " (" + truncateCodePoints(secondary, maxLabelCodePoints) + ")"
		}
	}
	return label
}

func stringField(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

func compactJSON(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	return string(raw)
}

// truncateCodePoints clips s to max code points, appending an ellipsis
// marker when truncated. Single-line: embedded newlines are collapsed to
// spaces first.
func truncateCodePoints(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
