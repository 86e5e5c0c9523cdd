package service

import "sync"

// eventLocks serializes mutations per event id. Entries are
// reference-counted so the map does not grow with the event count.
type eventLocks struct {
	mu    sync.Mutex
	locks map[string]*eventLock
}

type eventLock struct {
	mu   sync.Mutex
	refs int
}

func newEventLocks() *eventLocks {
	return &eventLocks{locks: make(map[string]*eventLock)}
}

// acquire blocks until the caller holds the lock for eventID and
// returns the release function.
func (l *eventLocks) acquire(eventID string) func() {
	l.mu.Lock()
	entry, ok := l.locks[eventID]
	if !ok {
		entry = &eventLock{}
		l.locks[eventID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	entry.mu.Lock()

	return func() {
		entry.mu.Unlock()

		l.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(l.locks, eventID)
		}
		l.mu.Unlock()
	}
}
