package session

import (
	"sync"
)

// Locks serializes conversation turns per session. At most one
// read-modify-write cycle runs against a session at a time; concurrent
// submissions to the same session queue behind the lock in FIFO-ish order.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// NewLocks creates an empty lock registry.
func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*sessionLock)}
}

// Acquire blocks until the caller holds the session's lock and returns the
// release function. Entries are removed once the last holder releases.
func (l *Locks) Acquire(sessionID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[sessionID]
	if !ok {
		entry = &sessionLock{}
		l.locks[sessionID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, sessionID)
		}
		l.mu.Unlock()
	}
}
