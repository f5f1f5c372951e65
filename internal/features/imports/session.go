package imports

import (
	"sync"
	"time"
)

// Transition moves the session along one legal edge or returns a StateError.
// All status changes in this package go through here.
func (s *ImportSession) Transition(next Status) error {
	if !s.Status.CanTransition(next) {
		return &StateError{From: s.Status, To: next}
	}
	s.Status = next
	s.UpdatedAt = time.Now()
	return nil
}

// RecomputeProgress refreshes the counters that are derivable before the
// executor runs. Totals never shrink; processed/succeeded/failed belong to
// the executor alone.
func (s *ImportSession) RecomputeProgress() {
	s.Progress.Total = len(s.Records)
	skipped := 0
	for _, entry := range s.Records {
		if entry.Skipped {
			skipped++
		}
	}
	s.Progress.Skipped = skipped
}

// SessionStore is the in-process session registry. Sessions do not survive a
// restart; finished ones are archived to the database separately.
//
// Each session has its own lock, so operations on different sessions run
// concurrently while all access to one session is serialized, reads included.
// Callers never receive the live *ImportSession outside a closure.
type SessionStore struct {
	mu    sync.RWMutex
	slots map[string]*sessionSlot
}

type sessionSlot struct {
	mu      sync.Mutex
	session *ImportSession
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		slots: make(map[string]*sessionSlot),
	}
}

// Put registers a new session.
func (st *SessionStore) Put(session *ImportSession) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.slots[session.ID] = &sessionSlot{session: session}
}

func (st *SessionStore) slot(id string) (*sessionSlot, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	slot, ok := st.slots[id]
	return slot, ok
}

// Update runs fn with exclusive access to the session. This is the
// single-writer discipline: every mutation, however small, happens inside
// exactly one Update call.
func (st *SessionStore) Update(id string, fn func(*ImportSession) error) error {
	slot, ok := st.slot(id)
	if !ok {
		return ErrSessionNotFound
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return fn(slot.session)
}

// View runs fn with access to the session for reading. It takes the same
// per-session lock as Update; fn must not mutate.
func (st *SessionStore) View(id string, fn func(*ImportSession) error) error {
	return st.Update(id, fn)
}

// Remove drops a session from the registry.
func (st *SessionStore) Remove(id string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.slots, id)
}

// IDs returns a snapshot of all registered session ids.
func (st *SessionStore) IDs() []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	ids := make([]string, 0, len(st.slots))
	for id := range st.slots {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered sessions.
func (st *SessionStore) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.slots)
}
