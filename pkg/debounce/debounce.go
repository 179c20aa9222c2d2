// Package debounce implements the per-destination debouncer (§4.7):
// per-handle coalescing, a minimum inter-edit gap, a global rate budget,
// and retry-with-backoff for transient publish failures.
package debounce

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Classification distinguishes retryable from fatal publish failures.
type Classification int

const (
	Transient Classification = iota
	Permanent
)

// ClassifyError applies the teacher's pkg/mcp/recovery.go ClassifyError
// heuristics (context/deadline/net.Error timeout inspection, connection
// refused/reset detection) generalized from MCP recovery actions to a
// binary transient/permanent publish classification. Destination
// publishers that carry richer HTTP status information should wrap errors
// so callers can refine this via errors.As before falling back to it.
func ClassifyError(err error) Classification {
	if err == nil {
		return Permanent
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Transient
		}
	}
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return Transient
	}
	var srv *ServerError
	if errors.As(err, &srv) {
		return Transient
	}
	return Permanent
}

// RateLimitedError marks a destination publisher's 429 response.
type RateLimitedError struct{ Err error }

func (e *RateLimitedError) Error() string { return e.Err.Error() }
func (e *RateLimitedError) Unwrap() error { return e.Err }

// ServerError marks a destination publisher's 5xx response.
type ServerError struct{ Err error }

func (e *ServerError) Error() string { return e.Err.Error() }
func (e *ServerError) Unwrap() error { return e.Err }

// backoffSchedule is the retry delay sequence per §4.7: 1s, 2s, 4s, up to
// 30s, 5 attempts.
var backoffSchedule = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 30 * time.Second}

// Publisher is the uniform destination contract the debouncer dispatches
// to, matching §4.8.
type Publisher interface {
	Send(ctx context.Context, target, text string) (handle string, err error)
	Edit(ctx context.Context, target, handle, text string) error
}

// Config tunes one destination kind's debounce/rate behaviour; the spec
// leaves the exact window and budget implementation-defined (§9 Open
// Questions), so these are plain configurable fields rather than
// constants.
type Config struct {
	MinEditGap time.Duration
	RateBudget int
	RateWindow time.Duration
}

// Debouncer coalesces and rate-limits dispatch for one destination kind
// (e.g. all Telegram targets, or all Slack targets share one token
// bucket — callers construct one Debouncer per destination kind).
type Debouncer struct {
	cfg       Config
	limiter   *rate.Limiter
	publisher Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	handles map[string]*handleQueue

	wg sync.WaitGroup
}

// New constructs a Debouncer for one destination kind.
func New(cfg Config, publisher Publisher) *Debouncer {
	limit := rate.Every(cfg.RateWindow / time.Duration(cfg.RateBudget))
	return &Debouncer{
		cfg:       cfg,
		limiter:   rate.NewLimiter(limit, cfg.RateBudget),
		publisher: publisher,
		logger:    slog.Default().With("component", "debouncer"),
		handles:   make(map[string]*handleQueue),
	}
}

// SendNewMessage bypasses per-handle coalescing (there is no handle yet)
// but still honours the rate budget, per §4.7.
func (d *Debouncer) SendNewMessage(ctx context.Context, target, text string) (string, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return d.publishWithRetry(ctx, func(ctx context.Context) (string, error) {
		return d.publisher.Send(ctx, target, text)
	})
}

// handleQueue serializes and coalesces edits for one message handle: only
// the most recently enqueued text survives if several arrive before the
// worker can dispatch, and a minimum gap is enforced between dispatches.
type handleQueue struct {
	mu       sync.Mutex
	pending  string
	hasPend  bool
	lastEdit time.Time
	running  bool
}

// EnqueueEdit queues text for handle on target, starting a dispatch
// goroutine if one isn't already draining this handle's queue.
func (d *Debouncer) EnqueueEdit(ctx context.Context, target, handle, text string) {
	d.mu.Lock()
	hq, ok := d.handles[handle]
	if !ok {
		hq = &handleQueue{}
		d.handles[handle] = hq
	}
	d.mu.Unlock()

	hq.mu.Lock()
	hq.pending = text
	hq.hasPend = true
	alreadyRunning := hq.running
	hq.running = true
	hq.mu.Unlock()

	if alreadyRunning {
		return
	}

	d.wg.Add(1)
	go d.drainHandle(ctx, target, handle, hq)
}

func (d *Debouncer) drainHandle(ctx context.Context, target, handle string, hq *handleQueue) {
	defer d.wg.Done()
	for {
		hq.mu.Lock()
		if !hq.hasPend {
			hq.running = false
			hq.mu.Unlock()
			return
		}
		text := hq.pending
		hq.hasPend = false
		wait := d.cfg.MinEditGap - time.Since(hq.lastEdit)
		hq.mu.Unlock()

		if wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				hq.mu.Lock()
				hq.running = false
				hq.mu.Unlock()
				return
			}
		}

		if err := d.limiter.Wait(ctx); err != nil {
			hq.mu.Lock()
			hq.running = false
			hq.mu.Unlock()
			return
		}

		_, err := d.publishWithRetry(ctx, func(ctx context.Context) (string, error) {
			return "", d.publisher.Edit(ctx, target, handle, text)
		})
		if err != nil {
			d.logger.Warn("permanent edit failure, turn stays frozen at last published state",
				"target", target, "handle", handle, "error", err)
		}

		hq.mu.Lock()
		hq.lastEdit = time.Now()
		hq.mu.Unlock()
	}
}

// publishWithRetry retries fn on transient errors per backoffSchedule,
// giving up (returning the last error) after the schedule is exhausted or
// a permanent error is classified.
func (d *Debouncer) publishWithRetry(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	for attempt := 0; ; attempt++ {
		handle, err := fn(ctx)
		if err == nil {
			return handle, nil
		}

		if ClassifyError(err) == Permanent {
			d.logger.Warn("permanent destination error, dropping action", "error", err)
			return "", err
		}
		if attempt >= len(backoffSchedule) {
			d.logger.Warn("exhausted retries, dropping action", "error", err)
			return "", err
		}

		select {
		case <-time.After(backoffSchedule[attempt]):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Wait blocks until all in-flight per-handle drain goroutines finish or
// the bounded drain deadline passes, per the orchestrator's shutdown
// sequence (§4.11, default 5s).
func (d *Debouncer) Wait(timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		d.logger.Warn("debouncer drain timed out", "timeout", timeout)
	}
}
