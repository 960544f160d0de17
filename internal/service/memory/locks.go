package memory

import "sync"

type sessionLock struct {
	mu sync.Mutex
	// pending is non-nil while a reset is in flight and closed once it commits.
	pending chan struct{}
}

// sessionLocks serializes work per session. Sessions never block each other.
type sessionLocks struct {
	mu    sync.Mutex
	locks map[string]*sessionLock
}

func newSessionLocks() *sessionLocks {
	return &sessionLocks{locks: make(map[string]*sessionLock)}
}

func (l *sessionLocks) get(sessionID string) *sessionLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock, ok := l.locks[sessionID]
	if !ok {
		lock = &sessionLock{}
		l.locks[sessionID] = lock
	}
	return lock
}
