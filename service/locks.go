package service

import "sync"

// spotLocks hands out one mutex per spot so admission control serializes
// racing reservations for the same spot without serializing unrelated ones.
// Locks are never reclaimed; the population of spots a single process
// handles is small enough that this is not a concern in practice.
type spotLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSpotLocks() *spotLocks {
	return &spotLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *spotLocks) forSpot(spotID string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[spotID]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[spotID] = lock
	}
	return lock
}
