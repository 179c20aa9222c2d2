// Package watcher implements the File Watcher (§4.3): it observes
// OS file-modification notifications for a set of watched transcript
// paths, reads newly appended complete lines, and emits batches for the
// transcript processor to classify. Truncation and rotation are detected
// and surfaced as a synthetic clear so the caller can reset its
// processing context before replaying from the start.
package watcher

import (
	"bufio"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Batch carries newly read lines for one session, or a truncation signal.
// When Truncated is true, Offset is always 0 and Lines reflects a full
// re-read of the file from the start; the caller must clear its
// processing/render state before applying Lines.
type Batch struct {
	SessionID string
	Lines     [][]byte
	Offset    int64
	Truncated bool
}

// session tracks per-path read state. Only the Watcher's run loop touches
// offset and pending after construction — external goroutines only set
// pending (via the debounce timer) and read it under mu.
type session struct {
	sessionID string
	path      string
	offset    int64

	mu      sync.Mutex
	timer   *time.Timer
	pending bool
}

// Watcher multiplexes fsnotify events for every watched session onto a
// single run loop, debouncing rapid writes into one read per coalescing
// window, per §4.3.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	coalesce  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*session // keyed by path

	wake    chan struct{}
	batches chan Batch
	errc    chan error
	done    chan struct{}
	closeOnce sync.Once
}

// New constructs a Watcher with the given coalescing window (≈50–200ms
// per §4.3).
func New(coalesce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		fsWatcher: fsw,
		coalesce:  coalesce,
		logger:    slog.Default().With("component", "watcher"),
		sessions:  make(map[string]*session),
		wake:      make(chan struct{}, 1),
		batches:   make(chan Batch, 16),
		errc:      make(chan error, 1),
		done:      make(chan struct{}),
	}
	return w, nil
}

// Batches returns the channel of read batches. Must be drained by the
// caller or the watcher's internal buffer (capacity 16) will fill and
// block the run loop.
func (w *Watcher) Batches() <-chan Batch { return w.batches }

// Errors returns the channel of non-fatal watch errors (e.g. a watched
// file briefly missing during rotation).
func (w *Watcher) Errors() <-chan error { return w.errc }

// Watch registers path for observation under sessionID, starting from
// initialOffset (0 for a brand-new attach, or a persisted offset on
// restart per §4.10). Calling Watch again for a path already watched
// replaces its session id and offset.
func (w *Watcher) Watch(sessionID, path string, initialOffset int64) error {
	s := &session{sessionID: sessionID, path: path, offset: initialOffset}

	w.mu.Lock()
	w.sessions[path] = s
	w.mu.Unlock()

	if err := w.fsWatcher.Add(path); err != nil {
		w.mu.Lock()
		delete(w.sessions, path)
		w.mu.Unlock()
		return err
	}

	// Prime with whatever is already on disk past initialOffset.
	w.signal(s)
	return nil
}

// Unwatch stops observing path. Safe to call even if path was never
// watched.
func (w *Watcher) Unwatch(path string) {
	w.mu.Lock()
	s, ok := w.sessions[path]
	delete(w.sessions, path)
	w.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.mu.Unlock()
	_ = w.fsWatcher.Remove(path)
}

// signal debounces a read trigger for s: a timer fires after the
// coalescing window, marking s pending and waking the run loop. Repeated
// calls within the window collapse onto the same timer.
func (w *Watcher) signal(s *session) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(w.coalesce, func() {
		s.mu.Lock()
		s.pending = true
		s.mu.Unlock()
		w.wakeRunLoop()
	})
	s.mu.Unlock()
}

func (w *Watcher) wakeRunLoop() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run drives the event loop until ctx-independent Close is called.
// Intended to be invoked once, typically as its own goroutine.
func (w *Watcher) Run() {
	for {
		select {
		case <-w.done:
			return

		case <-w.wake:
			w.drainPending()

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.mu.Lock()
			s, found := w.sessions[event.Name]
			w.mu.Unlock()
			if found {
				w.signal(s)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			select {
			case w.errc <- err:
			default:
			}
		}
	}
}

// drainPending reads every session currently marked pending. Runs only on
// the single run-loop goroutine, so no synchronization is needed around
// the reads themselves.
func (w *Watcher) drainPending() {
	w.mu.Lock()
	pending := make([]*session, 0, len(w.sessions))
	for _, s := range w.sessions {
		s.mu.Lock()
		if s.pending {
			s.pending = false
			pending = append(pending, s)
		}
		s.mu.Unlock()
	}
	w.mu.Unlock()

	for _, s := range pending {
		w.readOne(s)
	}
}

func (w *Watcher) readOne(s *session) {
	info, err := os.Stat(s.path)
	if err != nil {
		select {
		case w.errc <- err:
		default:
		}
		return
	}

	if info.Size() < s.offset {
		// Truncation or rotation: reset and replay from the start,
		// signaling the caller to clear prior state first.
		s.offset = 0
		lines, newOffset, err := readLinesFrom(s.path, 0)
		if err != nil {
			select {
			case w.errc <- err:
			default:
			}
			return
		}
		s.offset = newOffset
		w.batches <- Batch{SessionID: s.sessionID, Lines: lines, Offset: newOffset, Truncated: true}
		return
	}

	lines, newOffset, err := readLinesFrom(s.path, s.offset)
	if err != nil {
		select {
		case w.errc <- err:
		default:
		}
		return
	}
	if len(lines) == 0 && newOffset == s.offset {
		return
	}
	s.offset = newOffset
	w.batches <- Batch{SessionID: s.sessionID, Lines: lines, Offset: newOffset}
}

// readLinesFrom opens path, seeks to offset, and reads complete
// newline-terminated lines up to EOF. A trailing incomplete line (no
// final newline yet) is left unread: the offset returned stops just
// before it so the next read picks it up once it's complete.
func readLinesFrom(path string, offset int64) ([][]byte, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, offset, err
	}
	defer f.Close()

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, err
	}

	reader := bufio.NewReaderSize(f, 64*1024)
	var lines [][]byte
	cur := offset
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 && line[len(line)-1] == '\n' {
			trimmed := line[:len(line)-1]
			cp := make([]byte, len(trimmed))
			copy(cp, trimmed)
			lines = append(lines, cp)
			cur += int64(len(line))
			continue
		}
		if err == io.EOF {
			// Incomplete trailing line: don't advance past it.
			break
		}
		if err != nil {
			return lines, cur, err
		}
	}
	return lines, cur, nil
}

// Close stops the run loop and releases the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	w.closeOnce.Do(func() {
		close(w.done)
	})
	return w.fsWatcher.Close()
}
