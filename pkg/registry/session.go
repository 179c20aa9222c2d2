// Package registry implements the Destination Registry (§4.9): it owns
// the per-session runtime (file watcher registration, transcript
// processor, visual state consumer, event buffer/fan-out, and one
// turn-tracker per attached destination) and the attach/detach lifecycle
// that wires them together.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sessionrelay/tailwatch/pkg/destination"
	"github.com/sessionrelay/tailwatch/pkg/events"
	"github.com/sessionrelay/tailwatch/pkg/render"
	"github.com/sessionrelay/tailwatch/pkg/statestore"
	"github.com/sessionrelay/tailwatch/pkg/transcript"
	"github.com/sessionrelay/tailwatch/pkg/turn"
)

// destRuntime is one attached destination's live turn-tracker state plus
// the target it dispatches to. idleTimer implements §4.6 rule 6: a
// one-shot timer, re-armed on every event, that finalizes the open turn
// if no new blocks arrive within the idle window. ctx/cancel scope every
// outbound call dispatched for this destination (§5): Detach cancels it so
// in-flight retries are abandoned rather than outliving the attachment.
type destRuntime struct {
	target    destination.Target
	tracker   *turn.Tracker
	idleTimer *time.Timer
	ctx       context.Context
	cancel    context.CancelFunc
}

// newDestRuntime returns a fresh destRuntime with a no-op turn tracker and
// its own cancelable context.
func newDestRuntime(target destination.Target) *destRuntime {
	ctx, cancel := context.WithCancel(context.Background())
	return &destRuntime{target: target, tracker: turn.NewTracker(), ctx: ctx, cancel: cancel}
}

// restoreDestRuntime rebuilds a destRuntime from persisted destination
// state (§3 Persisted State, §4.10).
func restoreDestRuntime(target destination.Target, ds statestore.DestinationState) *destRuntime {
	ctx, cancel := context.WithCancel(context.Background())
	return &destRuntime{
		target:  target,
		tracker: turn.RestoreTracker(ds.CurrentTurnID, ds.CurrentHandle, ds.CurrentTextHash, ds.PendingBlockIDs),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// targetFromState rebuilds a destination.Target from its persisted kind
// and raw target string.
func targetFromState(ds statestore.DestinationState) destination.Target {
	kind := destination.Kind(ds.Kind)
	if kind == destination.KindTelegram {
		return destination.Target{Kind: kind, ChatID: ds.Target}
	}
	return destination.Target{Kind: kind, Channel: ds.Target}
}

// sessionRuntime is one watched transcript's full live state: the shared
// processing/render pipeline plus one turn tracker per attached
// destination. A single sessionRuntime is processed by exactly one
// goroutine at a time (the registry's batch dispatch loop), so its
// fields need no internal locking beyond the destinations map, which the
// HTTP-facing attach/detach path also touches.
type sessionRuntime struct {
	sessionID string
	path      string

	procCtx  *transcript.ProcessingContext
	consumer *render.Consumer
	buffer   *events.Buffer
	subs     *events.Manager

	mu           sync.Mutex
	destinations map[string]*destRuntime // keyed by destination.Target.Key()

	idleTimer *time.Timer
}

func newSessionRuntime(sessionID, path string, logger *slog.Logger) *sessionRuntime {
	return &sessionRuntime{
		sessionID:    sessionID,
		path:         path,
		procCtx:      transcript.NewProcessingContext(),
		consumer:     render.NewConsumer(),
		buffer:       events.NewBuffer(),
		subs:         events.NewManager(),
		destinations: make(map[string]*destRuntime),
	}
}

// newSessionRuntimeFromRecord rebuilds a sessionRuntime from a persisted
// Record (§3 Persisted State, §4.10): the transcript processor's
// tool_use/block correlation and each destination's turn tracker are
// rehydrated so a restart resumes instead of starting fresh. path
// overrides rec.Path, since the caller's current attach/config path is
// authoritative over whatever was last observed.
func newSessionRuntimeFromRecord(rec statestore.Record, path string, logger *slog.Logger) *sessionRuntime {
	destinations := make(map[string]*destRuntime, len(rec.Destinations))
	for key, ds := range rec.Destinations {
		destinations[key] = restoreDestRuntime(targetFromState(ds), ds)
	}
	return &sessionRuntime{
		sessionID:    rec.SessionID,
		path:         path,
		procCtx:      transcript.RestoreProcessingContext(rec.ToolUseToBlock, rec.CurrentRequestID, rec.BlockSeq),
		consumer:     render.NewConsumer(),
		buffer:       events.NewBuffer(),
		subs:         events.NewManager(),
		destinations: destinations,
	}
}

func (s *sessionRuntime) destinationCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.destinations)
}

// Info is the read-only session/destination summary exposed to list().
type Info struct {
	SessionID    string
	Path         string
	Destinations []destination.Target
}
