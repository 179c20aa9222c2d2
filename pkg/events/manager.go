package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// subscriberQueueSize bounds the per-connection outbound queue; once full,
// the connection is dropped as a slow consumer rather than stalling the
// producer, per spec §4.5.
const subscriberQueueSize = 64

// Subscriber is one SSE connection's delivery channel. The HTTP handler
// reads Events until Done is closed, then stops writing to the response.
type Subscriber struct {
	ID     string
	Events chan Event
	Done   chan struct{}

	closeOnce sync.Once
}

func newSubscriber() *Subscriber {
	return &Subscriber{
		ID:     uuid.New().String(),
		Events: make(chan Event, subscriberQueueSize),
		Done:   make(chan struct{}),
	}
}

func (s *Subscriber) close() {
	s.closeOnce.Do(func() {
		close(s.Done)
	})
}

// Manager fan-outs events to per-session subscriber sets. Grounded on the
// teacher's pkg/events ConnectionManager: a single RWMutex-guarded map of
// connections per key, with connection state mutated only by its owning
// goroutine. Adapted from WebSocket push to buffered-channel SSE delivery.
type Manager struct {
	mu   sync.RWMutex
	subs map[string]map[string]*Subscriber // session_id -> conn_id -> subscriber

	logger *slog.Logger
}

// NewManager constructs an empty fan-out manager.
func NewManager() *Manager {
	return &Manager{
		subs:   make(map[string]map[string]*Subscriber),
		logger: slog.Default().With("component", "events-manager"),
	}
}

// Subscribe registers a new SSE connection for sessionID. The caller must
// call the returned unsubscribe function when the connection ends.
func (m *Manager) Subscribe(sessionID string) (*Subscriber, func()) {
	sub := newSubscriber()

	m.mu.Lock()
	set, ok := m.subs[sessionID]
	if !ok {
		set = make(map[string]*Subscriber)
		m.subs[sessionID] = set
	}
	set[sub.ID] = sub
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		if set, ok := m.subs[sessionID]; ok {
			delete(set, sub.ID)
			if len(set) == 0 {
				delete(m.subs, sessionID)
			}
		}
		m.mu.Unlock()
		sub.close()
	}
	return sub, unsubscribe
}

// SubscriberCount returns the number of live SSE connections for sessionID,
// used by the Destination Registry's idle-grace decision.
func (m *Manager) SubscriberCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.subs[sessionID])
}

// Publish delivers e to every subscriber of its session. A subscriber whose
// queue is full is disconnected as a slow consumer; Publish never blocks on
// a slow subscriber, per spec §4.5 and §8 property (S6).
func (m *Manager) Publish(e Event) {
	m.mu.RLock()
	set := m.subs[e.SessionID()]
	subs := make([]*Subscriber, 0, len(set))
	for _, s := range set {
		subs = append(subs, s)
	}
	m.mu.RUnlock()

	for _, s := range subs {
		select {
		case s.Events <- e:
		default:
			m.logger.Warn("slow SSE consumer disconnected",
				"session_id", e.SessionID(), "conn_id", s.ID)
			m.disconnect(e.SessionID(), s.ID)
		}
	}
}

func (m *Manager) disconnect(sessionID, connID string) {
	m.mu.Lock()
	set, ok := m.subs[sessionID]
	if ok {
		if s, ok := set[connID]; ok {
			delete(set, connID)
			if len(set) == 0 {
				delete(m.subs, sessionID)
			}
			m.mu.Unlock()
			s.close()
			return
		}
	}
	m.mu.Unlock()
}
