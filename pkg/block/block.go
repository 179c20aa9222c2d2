// Package block defines the visual block model produced by the transcript
// processor and consumed by the renderer and turn tracker.
package block

// Type discriminates the kind of content a Block carries.
type Type string

const (
	TypeUser      Type = "USER"
	TypeAssistant Type = "ASSISTANT"
	TypeToolCall  Type = "TOOL_CALL"
	TypeThinking  Type = "THINKING"
	TypeDuration  Type = "DURATION"
	TypeSystem    Type = "SYSTEM"
)

// IsValid reports whether t is one of the closed set of block types.
func (t Type) IsValid() bool {
	switch t {
	case TypeUser, TypeAssistant, TypeToolCall, TypeThinking, TypeDuration, TypeSystem:
		return true
	default:
		return false
	}
}

// Block is a single visual element. Fields not applicable to Type are left
// at their zero value rather than modeled as subclasses, per the tagged
// variant approach — one shape, nullable-by-convention fields per kind.
type Block struct {
	ID   string
	Type Type

	// Text holds the plain rendered content for USER, ASSISTANT, THINKING,
	// and SYSTEM blocks.
	Text string

	// RequestID groups ASSISTANT and THINKING blocks (and TOOL_CALL blocks
	// produced within the same turn) for rendering and turn-boundary
	// decisions. Empty for block types that don't carry one.
	RequestID string

	// Tool-call fields.
	ToolName     string
	ToolUseID    string
	ToolLabel    string
	ProgressText string
	Result       string
	HasResult    bool
	IsError      bool

	// DurationMS holds the elapsed time in milliseconds for DURATION blocks.
	DurationMS int64
}

// New constructs a Block of the given type and id; callers set the
// type-specific fields directly.
func New(id string, t Type) Block {
	return Block{ID: id, Type: t}
}
