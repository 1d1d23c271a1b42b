// Package bus is the publish/subscribe layer for session lifecycle and
// progress events. Delivery is fire-and-forget: a slow subscriber never
// blocks a publisher; its bounded queue drops the oldest event instead.
package bus

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType enumerates the event channel message types.
type EventType string

const (
	EventAnalysisComplete      EventType = "analysis_complete"
	EventOptimizationApplied   EventType = "optimization_applied"
	EventAISuggestionGenerated EventType = "ai_suggestion_generated"
	EventOptimizationProgress  EventType = "optimization_progress"
	EventOptimizationCompleted EventType = "optimization_completed"
	EventErrorOccurred         EventType = "error_occurred"

	// EventSnapshot is the synthetic event a late subscriber receives
	// carrying the session's last known state. It is never published
	// directly.
	EventSnapshot EventType = "session_snapshot"
)

// Event is one immutable event channel message.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"session_id"`
	Progress  int             `json:"progress,omitempty"`
	Message   string          `json:"message,omitempty"`
	Payload   json.RawMessage `json:"result,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Filter selects which events a subscriber receives. Zero values match
// everything.
type Filter struct {
	// SessionID limits delivery to one session when non-empty.
	SessionID string

	// Types limits delivery to the listed event types when non-empty.
	Types []EventType

	// FinalOnly delivers only terminal events (completion and errors),
	// for subscribers that just want the outcome.
	FinalOnly bool
}

func (f Filter) matches(e Event) bool {
	if f.SessionID != "" && f.SessionID != e.SessionID {
		return false
	}
	if f.FinalOnly && e.Type != EventOptimizationCompleted && e.Type != EventErrorOccurred {
		return false
	}
	if len(f.Types) > 0 {
		ok := false
		for _, t := range f.Types {
			if t == e.Type {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// defaultQueueSize bounds each subscriber's buffer.
const defaultQueueSize = 64

// Subscription is one subscriber's view of the bus. Events arrive on C;
// the channel closes after Unsubscribe or bus Close.
type Subscription struct {
	C      chan Event
	filter Filter

	mu      sync.Mutex
	queue   []Event
	closed  bool
	notify  chan struct{}
	done    chan struct{}
	dropped int
}

// Dropped returns how many events were discarded because the queue was
// full.
func (s *Subscription) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// push enqueues an event, dropping the oldest buffered event when full.
func (s *Subscription) push(e Event, max int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if len(s.queue) >= max {
		s.queue = s.queue[1:]
		s.dropped++
	}
	s.queue = append(s.queue, e)
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// drain moves queued events onto C until the subscription closes. Sends
// race against done so an abandoned reader never wedges the goroutine.
func (s *Subscription) drain() {
	defer close(s.C)
	for {
		select {
		case <-s.done:
			return
		case <-s.notify:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 || s.closed {
				s.mu.Unlock()
				break
			}
			e := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.C <- e:
			case <-s.done:
				return
			}
		}
	}
}

// close stops the drain goroutine and releases the subscriber.
func (s *Subscription) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.queue = nil
	s.mu.Unlock()
	close(s.done)
}

// Bus fans events out to subscribers and remembers each session's last
// event so late subscribers can catch up with a single snapshot.
type Bus struct {
	mu        sync.RWMutex
	subs      map[*Subscription]struct{}
	last      map[string]Event
	queueSize int
	closed    bool
}

// New creates a Bus with the default per-subscriber queue size.
func New() *Bus {
	return NewWithQueueSize(defaultQueueSize)
}

// NewWithQueueSize creates a Bus with a custom per-subscriber queue bound.
func NewWithQueueSize(n int) *Bus {
	if n < 1 {
		n = 1
	}
	return &Bus{
		subs:      make(map[*Subscription]struct{}),
		last:      make(map[string]Event),
		queueSize: n,
	}
}

// Publish delivers e to every matching subscriber without blocking, and
// records it as the session's last known state.
func (b *Bus) Publish(e Event) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.last[e.SessionID] = e
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if s.filter.matches(e) {
			s.push(e, b.queueSize)
		}
	}
}

// Subscribe attaches a new subscriber. When the filter names a session
// that already has published events, the subscriber immediately receives
// one synthetic snapshot event carrying the last known state; there is no
// further history replay.
func (b *Bus) Subscribe(f Filter) *Subscription {
	sub := &Subscription{
		C:      make(chan Event),
		filter: f,
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go sub.drain()

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	var snapshot *Event
	if f.SessionID != "" {
		if last, ok := b.last[f.SessionID]; ok {
			snap := last
			snap.Type = EventSnapshot
			snapshot = &snap
		}
	}
	b.mu.Unlock()

	if snapshot != nil {
		sub.push(*snapshot, b.queueSize)
	}
	return sub
}

// Unsubscribe detaches sub and closes its channel.
func (b *Bus) Unsubscribe(sub *Subscription) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
	sub.close()
}

// Forget drops the remembered last event for a session. Called when the
// registry deletes the session.
func (b *Bus) Forget(sessionID string) {
	b.mu.Lock()
	delete(b.last, sessionID)
	b.mu.Unlock()
}

// Close shuts down the bus and every subscription.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*Subscription]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.close()
	}
}
