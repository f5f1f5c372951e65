package imports

import (
	"sync"
)

// subscriberBuffer is the per-listener queue. A listener that falls this far
// behind starts losing events; it can always re-fetch current status.
const subscriberBuffer = 16

// ProgressEvent is the compact message pushed to listeners whenever a
// session's status or progress changes.
type ProgressEvent struct {
	SessionID string   `json:"session_id"`
	Status    Status   `json:"status"`
	Progress  Progress `json:"progress"`
	Reason    string   `json:"reason,omitempty"`
}

// Broadcaster fans session events out to connected listeners. Delivery is
// best-effort: a slow or dead listener drops events, never the pipeline.
// Events are not replayed; a reconnecting listener pulls current state first.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[string]map[chan ProgressEvent]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		subs: make(map[string]map[chan ProgressEvent]struct{}),
	}
}

// Subscribe registers a listener for one session and returns its event
// channel plus an unsubscribe func. The channel is closed on unsubscribe or
// when the session reaches a terminal state.
func (b *Broadcaster) Subscribe(sessionID string) (<-chan ProgressEvent, func()) {
	ch := make(chan ProgressEvent, subscriberBuffer)

	b.mu.Lock()
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[chan ProgressEvent]struct{})
	}
	b.subs[sessionID][ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if listeners, ok := b.subs[sessionID]; ok {
			if _, live := listeners[ch]; live {
				delete(listeners, ch)
				close(ch)
			}
			if len(listeners) == 0 {
				delete(b.subs, sessionID)
			}
		}
	}
	return ch, unsubscribe
}

// Publish pushes an event to every listener of the session. Sends never
// block: a full listener queue drops the event.
func (b *Broadcaster) Publish(event ProgressEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[event.SessionID] {
		select {
		case ch <- event:
		default:
			// Listener is not keeping up; it re-syncs via the status query.
		}
	}
}

// CloseSession closes all listener channels for a finished session.
func (b *Broadcaster) CloseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[sessionID] {
		close(ch)
	}
	delete(b.subs, sessionID)
}

// ListenerCount reports the current number of listeners for a session.
func (b *Broadcaster) ListenerCount(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}
