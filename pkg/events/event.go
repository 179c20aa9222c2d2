// Package events defines the closed set of block-list operations produced
// by the transcript processor, plus the per-session buffer and SSE fan-out
// that distribute them.
package events

import (
	"encoding/json"
	"fmt"

	"github.com/sessionrelay/tailwatch/pkg/block"
)

// Kind discriminates the three event variants. Grounded on the
// interface-plus-closed-struct-set pattern used for chat streaming events
// in the sidekick example pack (flow_event.FlowEvent / FlowEventType),
// adapted from a two-field parent-id envelope to a session-scoped block
// list operation.
type Kind string

const (
	KindAddBlock    Kind = "add_block"
	KindUpdateBlock Kind = "update_block"
	KindClearAll    Kind = "clear_all"
)

// Event is implemented by AddBlockEvent, UpdateBlockEvent, and ClearAllEvent.
// Consumers switch on Kind() rather than relying on type assertions against
// an open set.
type Event interface {
	SessionID() string
	EventID() uint64
	Kind() Kind
}

// AddBlockEvent appends a block to the ordered list.
type AddBlockEvent struct {
	Session string
	ID      uint64
	Block   block.Block
}

func (e AddBlockEvent) SessionID() string { return e.Session }
func (e AddBlockEvent) EventID() uint64   { return e.ID }
func (e AddBlockEvent) Kind() Kind        { return KindAddBlock }

// UpdateBlockEvent replaces the content of an existing block. Consumers
// that can't find BlockID treat this as a silent no-op, per spec.
type UpdateBlockEvent struct {
	Session string
	ID      uint64
	BlockID string
	Block   block.Block
}

func (e UpdateBlockEvent) SessionID() string { return e.Session }
func (e UpdateBlockEvent) EventID() uint64   { return e.ID }
func (e UpdateBlockEvent) Kind() Kind        { return KindUpdateBlock }

// ClearAllEvent discards all blocks and context for the session, emitted on
// compact boundaries and truncation/rotation recovery.
type ClearAllEvent struct {
	Session string
	ID      uint64
}

func (e ClearAllEvent) SessionID() string { return e.Session }
func (e ClearAllEvent) EventID() uint64   { return e.ID }
func (e ClearAllEvent) Kind() Kind        { return KindClearAll }

// wireEvent is the JSON shape written to SSE `data:` lines, per spec §6:
// {event_id, kind, ...}.
type wireEvent struct {
	EventID uint64       `json:"event_id"`
	Kind    Kind         `json:"kind"`
	Block   *block.Block `json:"block,omitempty"`
	BlockID string       `json:"block_id,omitempty"`
}

// MarshalSSE renders an Event as the JSON payload carried on a `data:` line.
func MarshalSSE(e Event) ([]byte, error) {
	w := wireEvent{EventID: e.EventID(), Kind: e.Kind()}
	switch ev := e.(type) {
	case AddBlockEvent:
		w.Block = &ev.Block
	case UpdateBlockEvent:
		w.BlockID = ev.BlockID
		w.Block = &ev.Block
	case ClearAllEvent:
		// no payload beyond kind/event_id
	default:
		return nil, fmt.Errorf("events: unknown event variant %T", e)
	}
	return json.Marshal(w)
}
