package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sessionrelay/tailwatch/pkg/debounce"
	"github.com/sessionrelay/tailwatch/pkg/destination"
	"github.com/sessionrelay/tailwatch/pkg/events"
	"github.com/sessionrelay/tailwatch/pkg/statestore"
	"github.com/sessionrelay/tailwatch/pkg/transcript"
	"github.com/sessionrelay/tailwatch/pkg/turn"
	"github.com/sessionrelay/tailwatch/pkg/watcher"
)

// defaultIdleGrace is the wait after a session's last destination detaches
// before the session is torn down, per §4.9.
const defaultIdleGrace = 60 * time.Second

// defaultIdleFinalize is the per-destination turn idle window, per §4.6
// rule 6.
const defaultIdleFinalize = 3 * time.Second

// Registry is the Destination Registry (§4.9): it owns every watched
// session's live pipeline and the attach/detach lifecycle.
type Registry struct {
	w              *watcher.Watcher
	store          *statestore.Store
	debouncers     map[destination.Kind]*debounce.Debouncer
	idleGrace      time.Duration
	idleFinal      time.Duration
	logger         *slog.Logger
	onAttachChange AttachChangeFunc

	mu       sync.Mutex
	sessions map[string]*sessionRuntime

	doneCh chan struct{}
	wg     sync.WaitGroup
}

// AttachChangeFunc is invoked after every successful Attach/Detach
// mutation, so the caller can persist the change elsewhere (e.g. back into
// the config YAML, per §4.12). attached is true for Attach, false for
// Detach.
type AttachChangeFunc func(sessionID, path string, dest destination.Target, attached bool)

// Config bundles the constructor's inputs.
type Config struct {
	Watcher        *watcher.Watcher
	Store          *statestore.Store
	Debouncers     map[destination.Kind]*debounce.Debouncer
	IdleGrace      time.Duration
	IdleFinalize   time.Duration
	OnAttachChange AttachChangeFunc
}

// New constructs a Registry and starts its batch-dispatch loop.
func New(cfg Config) *Registry {
	idleGrace := cfg.IdleGrace
	if idleGrace <= 0 {
		idleGrace = defaultIdleGrace
	}
	idleFinal := cfg.IdleFinalize
	if idleFinal <= 0 {
		idleFinal = defaultIdleFinalize
	}
	r := &Registry{
		w:              cfg.Watcher,
		store:          cfg.Store,
		debouncers:     cfg.Debouncers,
		idleGrace:      idleGrace,
		idleFinal:      idleFinal,
		logger:         slog.Default().With("component", "registry"),
		onAttachChange: cfg.OnAttachChange,
		sessions:       make(map[string]*sessionRuntime),
		doneCh:         make(chan struct{}),
	}
	r.wg.Add(1)
	go r.dispatchLoop()
	return r
}

func (r *Registry) dispatchLoop() {
	defer r.wg.Done()
	for {
		select {
		case <-r.doneCh:
			return
		case batch, ok := <-r.w.Batches():
			if !ok {
				return
			}
			r.handleBatch(batch)
		case err, ok := <-r.w.Errors():
			if !ok {
				return
			}
			r.logger.Warn("watcher error", "error", err)
		}
	}
}

// Attach ensures sessionID's file is being watched and adds dest, per
// §4.9. Idempotent: attaching an already-attached (session, kind, target)
// is a no-op.
func (r *Registry) Attach(sessionID, path string, dest destination.Target) error {
	if !dest.Kind.IsValid() {
		return fmt.Errorf("registry: invalid destination kind %q", dest.Kind)
	}
	if _, ok := r.debouncers[dest.Kind]; !ok {
		return fmt.Errorf("registry: no debouncer configured for destination kind %q", dest.Kind)
	}

	rt, isNew, err := r.getOrCreateSession(sessionID, path)
	if err != nil {
		return err
	}

	rt.mu.Lock()
	if rt.idleTimer != nil {
		rt.idleTimer.Stop()
		rt.idleTimer = nil
	}

	key := dest.Key()
	if _, exists := rt.destinations[key]; exists {
		rt.mu.Unlock()
		return nil
	}
	rt.destinations[key] = newDestRuntime(dest)
	rt.mu.Unlock()

	if isNew {
		r.logger.Info("session attached", "session_id", sessionID, "path", path)
	}
	if r.onAttachChange != nil {
		r.onAttachChange(sessionID, path, dest, true)
	}
	return nil
}

// getOrCreateSession returns the runtime for sessionID, creating and
// registering it with the watcher if this is the first attach. A
// previously persisted record (§4.10), if one exists, is used to rehydrate
// the transcript processor and every destination's turn tracker, not just
// the file offset, so a restart resumes mid-session instead of
// misclassifying tool results and re-sending open turns as new messages.
func (r *Registry) getOrCreateSession(sessionID, path string) (*sessionRuntime, bool, error) {
	r.mu.Lock()
	if rt, ok := r.sessions[sessionID]; ok {
		r.mu.Unlock()
		return rt, false, nil
	}
	r.mu.Unlock()

	offset := int64(0)
	var rt *sessionRuntime
	if rec, ok, err := r.store.Load(sessionID); err == nil && ok {
		offset = rec.Offset
		rt = newSessionRuntimeFromRecord(rec, path, r.logger)
	} else {
		rt = newSessionRuntime(sessionID, path, r.logger)
	}

	r.mu.Lock()
	if existing, ok := r.sessions[sessionID]; ok {
		r.mu.Unlock()
		return existing, false, nil
	}
	r.sessions[sessionID] = rt
	r.mu.Unlock()

	if err := r.w.Watch(sessionID, path, offset); err != nil {
		r.mu.Lock()
		delete(r.sessions, sessionID)
		r.mu.Unlock()
		return nil, false, err
	}
	return rt, true, nil
}

// LoadPersisted restores every session recorded in the state store,
// independent of whether it's named in the static config, per §4.10's "on
// startup: load all records... resume." A session attached at runtime via
// Attach (and so absent from the config file, if config write-back is also
// disabled) would otherwise be dropped silently on restart.
func (r *Registry) LoadPersisted() error {
	records, err := r.store.LoadAll()
	if err != nil {
		return err
	}

	for _, rec := range records {
		r.mu.Lock()
		_, exists := r.sessions[rec.SessionID]
		r.mu.Unlock()
		if exists {
			continue
		}

		rt := newSessionRuntimeFromRecord(rec, rec.Path, r.logger)

		r.mu.Lock()
		r.sessions[rec.SessionID] = rt
		r.mu.Unlock()

		if err := r.w.Watch(rec.SessionID, rec.Path, rec.Offset); err != nil {
			r.mu.Lock()
			delete(r.sessions, rec.SessionID)
			r.mu.Unlock()
			r.logger.Warn("failed to resume persisted session",
				"session_id", rec.SessionID, "path", rec.Path, "error", err)
			continue
		}
		r.logger.Info("resumed persisted session",
			"session_id", rec.SessionID, "path", rec.Path, "destinations", len(rec.Destinations))
	}
	return nil
}

// Detach removes dest from sessionID, per §4.9. If it was the last
// destination, starts the idle grace timer. Cancels dest's own context so
// any in-flight or queued outbound call for it is abandoned rather than
// outliving the attachment (§5). Idempotent.
func (r *Registry) Detach(sessionID string, dest destination.Target) error {
	r.mu.Lock()
	rt, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil
	}

	rt.mu.Lock()
	d, existed := rt.destinations[dest.Key()]
	delete(rt.destinations, dest.Key())
	empty := len(rt.destinations) == 0
	if empty && rt.idleTimer == nil {
		rt.idleTimer = time.AfterFunc(r.idleGrace, func() { r.maybeRetireSession(sessionID) })
	}
	rt.mu.Unlock()

	if !existed {
		return nil
	}
	if d.idleTimer != nil {
		d.idleTimer.Stop()
	}
	d.cancel()

	if r.onAttachChange != nil {
		r.onAttachChange(sessionID, rt.path, dest, false)
	}
	return nil
}

// maybeRetireSession stops watching and flushes state for sessionID once
// its idle grace timer fires, provided it still has zero destinations and
// zero SSE subscribers.
func (r *Registry) maybeRetireSession(sessionID string) {
	r.mu.Lock()
	rt, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return
	}

	rt.mu.Lock()
	stillIdle := len(rt.destinations) == 0 && rt.subs.SubscriberCount(sessionID) == 0
	rt.mu.Unlock()
	if !stillIdle {
		return
	}

	r.mu.Lock()
	delete(r.sessions, sessionID)
	r.mu.Unlock()

	r.w.Unwatch(rt.path)
	if err := r.store.Delete(sessionID); err != nil {
		r.logger.Warn("failed to delete session state on retire", "session_id", sessionID, "error", err)
	}
	r.logger.Info("session retired", "session_id", sessionID)
}

// List returns a point-in-time summary of every attached session.
func (r *Registry) List() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	infos := make([]Info, 0, len(r.sessions))
	for id, rt := range r.sessions {
		rt.mu.Lock()
		targets := make([]destination.Target, 0, len(rt.destinations))
		for _, d := range rt.destinations {
			targets = append(targets, d.target)
		}
		rt.mu.Unlock()
		infos = append(infos, Info{SessionID: id, Path: rt.path, Destinations: targets})
	}
	return infos
}

// Exists reports whether dest is currently attached to sessionID.
func (r *Registry) Exists(sessionID string, dest destination.Target) bool {
	r.mu.Lock()
	rt, ok := r.sessions[sessionID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	_, exists := rt.destinations[dest.Key()]
	return exists
}

// Subscribe registers an SSE subscriber for sessionID and returns the
// buffered backlog to replay first, per §4.5. Returns ok=false if
// sessionID isn't attached.
func (r *Registry) Subscribe(sessionID string) (backlog []events.Event, sub *events.Subscriber, unsubscribe func(), ok bool) {
	r.mu.Lock()
	rt, exists := r.sessions[sessionID]
	r.mu.Unlock()
	if !exists {
		return nil, nil, nil, false
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	backlog = rt.buffer.Snapshot()
	sub, unsubscribe = rt.subs.Subscribe(sessionID)
	return backlog, sub, unsubscribe, true
}

// targetString returns the raw destination identifier to hand to a
// publisher (chat id or channel name).
func targetString(t destination.Target) string {
	if t.Kind == destination.KindTelegram {
		return t.ChatID
	}
	return t.Channel
}

// handleBatch applies one watcher batch to its session's pipeline:
// classifying lines into ops, stamping them as buffered/fanned-out
// events, updating the shared visual state, and driving every attached
// destination's turn tracker.
func (r *Registry) handleBatch(batch watcher.Batch) {
	r.mu.Lock()
	rt, ok := r.sessions[batch.SessionID]
	r.mu.Unlock()
	if !ok {
		return
	}

	if batch.Truncated {
		rt.procCtx.Clear()
		rt.consumer.ClearAll()
		r.emitClearAll(rt)
	}

	for _, line := range batch.Lines {
		for _, op := range rt.procCtx.Process(line) {
			r.emitOp(rt, op)
		}
	}

	r.persist(rt, batch.Offset)
}

func (r *Registry) emitClearAll(rt *sessionRuntime) {
	ev := events.ClearAllEvent{Session: rt.sessionID, ID: rt.buffer.NextEventID()}
	rt.buffer.Append(ev)
	rt.subs.Publish(ev)
	r.dispatchToDestinations(rt, ev)
}

func (r *Registry) emitOp(rt *sessionRuntime, op transcript.Op) {
	ev := stampOp(rt, op)
	rt.buffer.Append(ev)

	switch e := ev.(type) {
	case events.AddBlockEvent:
		rt.consumer.AddBlock(e.Block)
	case events.UpdateBlockEvent:
		rt.consumer.UpdateBlock(e.BlockID, e.Block)
	case events.ClearAllEvent:
		rt.consumer.ClearAll()
	}

	rt.subs.Publish(ev)
	r.dispatchToDestinations(rt, ev)
}

func (r *Registry) dispatchToDestinations(rt *sessionRuntime, ev events.Event) {
	rt.mu.Lock()
	dests := make([]*destRuntime, 0, len(rt.destinations))
	for _, d := range rt.destinations {
		dests = append(dests, d)
	}
	rt.mu.Unlock()

	for _, d := range dests {
		action := d.tracker.HandleEvent(ev, rt.consumer)
		r.dispatchAction(d, action)
		r.rearmIdleFinalize(d)
	}
}

// rearmIdleFinalize re-arms d's idle-finalize timer whenever its turn is
// still open, and cancels it once the turn has closed (e.g. a DURATION
// block or ClearAll just froze it), per §4.6 rule 6.
func (r *Registry) rearmIdleFinalize(d *destRuntime) {
	if d.idleTimer != nil {
		d.idleTimer.Stop()
		d.idleTimer = nil
	}
	if !d.tracker.IsOpen() {
		return
	}
	tracker := d.tracker
	d.idleTimer = time.AfterFunc(r.idleFinal, tracker.Finalize)
}

func (r *Registry) dispatchAction(d *destRuntime, action turn.Action) {
	db, ok := r.debouncers[d.target.Kind]
	if !ok {
		return
	}
	target := targetString(d.target)
	ctx := d.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	switch action.Kind {
	case turn.ActionSendNewMessage:
		handle, err := db.SendNewMessage(ctx, target, action.Text)
		if err != nil {
			r.logger.Warn("send failed", "destination", d.target.Key(), "error", err)
			return
		}
		d.tracker.SetHandle(handle)
	case turn.ActionUpdateExistingMessage:
		db.EnqueueEdit(ctx, target, action.Handle, action.Text)
	}
}

// persist writes the session's recovery record, per §4.10: at most once
// per processed batch, after events have been handed to the debouncer.
func (r *Registry) persist(rt *sessionRuntime, offset int64) {
	rt.mu.Lock()
	destStates := make(map[string]statestore.DestinationState, len(rt.destinations))
	for key, d := range rt.destinations {
		destStates[key] = statestore.DestinationState{
			Kind:            string(d.target.Kind),
			Target:          targetString(d.target),
			CurrentTurnID:   d.tracker.CurrentTurnID(),
			CurrentHandle:   d.tracker.CurrentHandle(),
			CurrentTextHash: d.tracker.CurrentTextHash(),
			PendingBlockIDs: d.tracker.PendingBlockIDs(),
		}
	}
	rt.mu.Unlock()

	rec := statestore.Record{
		SessionID:        rt.sessionID,
		Path:             rt.path,
		Offset:           offset,
		ToolUseToBlock:   rt.procCtx.ToolUseToBlock(),
		CurrentRequestID: rt.procCtx.CurrentRequestID(),
		BlockSeq:         rt.procCtx.BlockSeq(),
		Destinations:     destStates,
	}
	if err := r.store.Save(rec); err != nil {
		r.logger.Warn("failed to persist session state", "session_id", rt.sessionID, "error", err)
	}
}

// Shutdown stops the dispatch loop and drains every configured debouncer
// for up to timeout, per §4.11.
func (r *Registry) Shutdown(timeout time.Duration) {
	close(r.doneCh)
	r.wg.Wait()
	for _, db := range r.debouncers {
		db.Wait(timeout)
	}
}


// stampOp converts an unstamped transcript.Op into the matching concrete
// events.Event variant, assigning it the session's next monotonic event
// id.
func stampOp(rt *sessionRuntime, op transcript.Op) events.Event {
	id := rt.buffer.NextEventID()
	switch op.Kind {
	case events.KindAddBlock:
		return events.AddBlockEvent{Session: rt.sessionID, ID: id, Block: op.Block}
	case events.KindUpdateBlock:
		return events.UpdateBlockEvent{Session: rt.sessionID, ID: id, BlockID: op.BlockID, Block: op.Block}
	default:
		return events.ClearAllEvent{Session: rt.sessionID, ID: id}
	}
}
