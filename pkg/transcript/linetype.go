package transcript

// LineType is the closed set of classifications a raw JSONL line can map to.
// String-backed with an IsValid method, grounded on the teacher's
// pkg/config/enums.go enum style.
type LineType string

const (
	// User-visible user messages.
	LineUserInput          LineType = "USER_INPUT"
	LineToolResult         LineType = "TOOL_RESULT"
	LineLocalCommandOutput LineType = "LOCAL_COMMAND_OUTPUT"

	// User-visible assistant messages.
	LineAssistantText LineType = "ASSISTANT_TEXT"
	LineToolUse       LineType = "TOOL_USE"
	LineThinking      LineType = "THINKING"

	// System lines.
	LineTurnDuration   LineType = "TURN_DURATION"
	LineCompactBoundary LineType = "COMPACT_BOUNDARY"

	// Progress updates mutating an existing tool-call block.
	LineBashProgress     LineType = "BASH_PROGRESS"
	LineHookProgress     LineType = "HOOK_PROGRESS"
	LineAgentProgress    LineType = "AGENT_PROGRESS"
	LineQueryUpdate      LineType = "QUERY_UPDATE"
	LineSearchResults    LineType = "SEARCH_RESULTS"
	LineWaitingForTask   LineType = "WAITING_FOR_TASK"

	// Skipped.
	LineInvisible LineType = "INVISIBLE"
)

// IsValid reports whether t is one of the 15 closed variants.
func (t LineType) IsValid() bool {
	switch t {
	case LineUserInput, LineToolResult, LineLocalCommandOutput,
		LineAssistantText, LineToolUse, LineThinking,
		LineTurnDuration, LineCompactBoundary,
		LineBashProgress, LineHookProgress, LineAgentProgress,
		LineQueryUpdate, LineSearchResults, LineWaitingForTask,
		LineInvisible:
		return true
	default:
		return false
	}
}

// IsProgress reports whether t is one of the six progress sub-variants that
// mutate an existing TOOL_CALL block rather than adding a new one.
func (t LineType) IsProgress() bool {
	switch t {
	case LineBashProgress, LineHookProgress, LineAgentProgress,
		LineQueryUpdate, LineSearchResults, LineWaitingForTask:
		return true
	default:
		return false
	}
}

// progressLineTypes maps the inner envelope `type` field to the matching
// progress LineType, per spec §4.1 "dispatch to the matching progress
// sub-variant by inner shape".
var progressLineTypes = map[string]LineType{
	"bash_progress":   LineBashProgress,
	"hook_progress":   LineHookProgress,
	"agent_progress":  LineAgentProgress,
	"query_update":    LineQueryUpdate,
	"search_results":  LineSearchResults,
	"waiting_for_task": LineWaitingForTask,
}
