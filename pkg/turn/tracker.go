// Package turn implements the Turn/Message State Tracker (§4.6): the
// decision of whether a destination should receive a new message or an
// edit of an existing one, driven by turn (request_id) boundaries.
package turn

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/sessionrelay/tailwatch/pkg/block"
	"github.com/sessionrelay/tailwatch/pkg/events"
	"github.com/sessionrelay/tailwatch/pkg/render"
)

// ActionKind discriminates the decision the tracker hands to the debouncer.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionSendNewMessage
	ActionUpdateExistingMessage
)

// Action is the tracker's output for one event: what the destination
// publisher should do, and the already-rendered text to publish.
type Action struct {
	Kind   ActionKind
	Text   string
	Handle string // set for ActionUpdateExistingMessage; ignored otherwise
}

// Tracker holds per-(session, destination) turn state. Created and mutated
// only from the owning session's processing goroutine, per §5's ownership
// rules — grounded structurally on the teacher's
// pkg/services/chat_service.go GetOrCreateChat "find existing or create"
// decision, generalized from a DB row to an in-memory turn record, and on
// pkg/queue/worker.go's explicit status-enum style for the state machine.
type Tracker struct {
	turnOpen         bool
	currentTurnID    string // request_id of the open turn; "" if unset
	currentHandle    string
	hasTextHash      bool
	currentTextHash  [32]byte
	pendingBlockIDs  map[string]struct{}
}

// NewTracker returns a tracker with no open turn.
func NewTracker() *Tracker {
	return &Tracker{pendingBlockIDs: make(map[string]struct{})}
}

// RestoreTracker rebuilds a tracker from persisted destination state
// (§3 Persisted State, §4.10): an open turn with its handle, pending block
// ids, and last-published text hash survive a restart so the next matching
// event continues editing the existing message instead of sending a new
// one. textHashHex is the hex encoding of a 32-byte sha256 sum, or "" if
// no turn had emitted anything yet.
func RestoreTracker(turnID, handle, textHashHex string, pendingBlockIDs []string) *Tracker {
	t := &Tracker{
		currentTurnID:   turnID,
		currentHandle:   handle,
		pendingBlockIDs: make(map[string]struct{}, len(pendingBlockIDs)),
	}
	for _, id := range pendingBlockIDs {
		t.pendingBlockIDs[id] = struct{}{}
	}
	if turnID != "" || handle != "" || len(pendingBlockIDs) > 0 {
		t.turnOpen = true
	}
	if raw, err := hex.DecodeString(textHashHex); err == nil && len(raw) == 32 {
		copy(t.currentTextHash[:], raw)
		t.hasTextHash = true
	}
	return t
}

// HandleEvent applies one session event to this destination's turn state
// and returns the resulting Action (possibly ActionNone). consumer is the
// session's shared Visual State Consumer, used to fetch up-to-date block
// content when re-rendering the pending turn.
func (t *Tracker) HandleEvent(e events.Event, consumer *render.Consumer) Action {
	switch ev := e.(type) {
	case events.ClearAllEvent:
		t.finalize()
		return Action{Kind: ActionNone}
	case events.AddBlockEvent:
		return t.handleAdd(ev.Block, consumer)
	case events.UpdateBlockEvent:
		return t.handleUpdate(ev.BlockID, consumer)
	default:
		return Action{Kind: ActionNone}
	}
}

func (t *Tracker) handleAdd(b block.Block, consumer *render.Consumer) Action {
	boundary := t.isTurnBoundary(b)
	if boundary {
		t.finalize()
		t.turnOpen = true
		t.currentTurnID = b.RequestID
		t.pendingBlockIDs = map[string]struct{}{b.ID: {}}
		action := t.emit(ActionSendNewMessage, consumer)

		if b.Type == block.TypeDuration {
			t.finalize()
		}
		return action
	}

	// Joins the currently open turn.
	if !t.turnOpen {
		t.turnOpen = true
		t.pendingBlockIDs = make(map[string]struct{})
	}
	if t.currentTurnID == "" && b.RequestID != "" {
		t.currentTurnID = b.RequestID
	}
	t.pendingBlockIDs[b.ID] = struct{}{}

	action := t.emit(ActionUpdateExistingMessage, consumer)

	if b.Type == block.TypeDuration {
		t.finalize()
	}
	return action
}

// isTurnBoundary decides whether adding b starts a new turn rather than
// joining the open one, per §4.6 rule 2. A block with no request_id always
// joins an already-open turn (or opens a fresh one if none is open); a
// block whose request_id differs from an already-assigned current_turn_id
// starts a new turn.
func (t *Tracker) isTurnBoundary(b block.Block) bool {
	if !t.turnOpen {
		return true
	}
	if b.RequestID == "" {
		return false
	}
	if t.currentTurnID == "" {
		return false
	}
	return b.RequestID != t.currentTurnID
}

func (t *Tracker) handleUpdate(blockID string, consumer *render.Consumer) Action {
	if _, ok := t.pendingBlockIDs[blockID]; !ok {
		return Action{Kind: ActionNone} // frozen turn or unknown block: ignore
	}
	return t.emit(ActionUpdateExistingMessage, consumer)
}

// emit renders the pending turn's blocks and decides whether to surface an
// action, applying the text-hash idempotence rule.
func (t *Tracker) emit(kind ActionKind, consumer *render.Consumer) Action {
	text := t.renderPending(consumer)
	hash := sha256.Sum256([]byte(text))

	if kind == ActionUpdateExistingMessage && t.hasTextHash && hash == t.currentTextHash {
		return Action{Kind: ActionNone}
	}

	t.currentTextHash = hash
	t.hasTextHash = true

	action := Action{Kind: kind, Text: text}
	if kind == ActionUpdateExistingMessage {
		action.Handle = t.currentHandle
	}
	return action
}

func (t *Tracker) renderPending(consumer *render.Consumer) string {
	ids := make([]string, 0, len(t.pendingBlockIDs))
	for id := range t.pendingBlockIDs {
		ids = append(ids, id)
	}
	blocks := make([]block.Block, 0, len(ids))
	for _, full := range consumer.Blocks() {
		if _, ok := t.pendingBlockIDs[full.ID]; ok {
			blocks = append(blocks, full)
		}
	}
	return render.Render(blocks)
}

// finalize freezes the current turn: no further edits will be sent to its
// handle. A no-op if no turn is open.
func (t *Tracker) finalize() {
	t.turnOpen = false
	t.currentTurnID = ""
	t.currentHandle = ""
	t.hasTextHash = false
	t.pendingBlockIDs = make(map[string]struct{})
}

// SetHandle records the message handle returned by a just-completed send,
// so subsequent edits within the same turn target it.
func (t *Tracker) SetHandle(handle string) {
	t.currentHandle = handle
}

// Finalize forcibly closes the open turn, used by the idle-finalize timer
// (§4.6 rule 6): no action is emitted, the existing message remains as-is.
func (t *Tracker) Finalize() {
	t.finalize()
}

// IsOpen reports whether a turn is currently open for this destination.
func (t *Tracker) IsOpen() bool {
	return t.turnOpen
}

// CurrentTurnID returns the request_id of the open turn, for persisting
// restart state.
func (t *Tracker) CurrentTurnID() string { return t.currentTurnID }

// CurrentHandle returns the message handle the open turn is editing, for
// persisting restart state.
func (t *Tracker) CurrentHandle() string { return t.currentHandle }

// CurrentTextHash returns the hex encoding of the last-published text's
// sha256 sum, or "" if nothing has been published yet, for persisting
// restart state.
func (t *Tracker) CurrentTextHash() string {
	if !t.hasTextHash {
		return ""
	}
	return hex.EncodeToString(t.currentTextHash[:])
}

// PendingBlockIDs returns the block ids accumulated into the open turn, for
// persisting restart state.
func (t *Tracker) PendingBlockIDs() []string {
	ids := make([]string, 0, len(t.pendingBlockIDs))
	for id := range t.pendingBlockIDs {
		ids = append(ids, id)
	}
	return ids
}
