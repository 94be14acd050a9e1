package assessments

import "sync"

// pairLocks enforces at most one running assessment per
// (tenant, system, framework) pair. In-memory: this service runs as a
// single binary, so a keyed mutex is the whole lock.
// The zero value is ready to use.
type pairLocks struct {
	mu   sync.Mutex
	held map[string]bool
}

// TryAcquire returns false when the pair is already locked instead of
// blocking, so a second caller gets a retryable conflict.
func (l *pairLocks) TryAcquire(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held == nil {
		l.held = make(map[string]bool)
	}
	if l.held[key] {
		return false
	}
	l.held[key] = true
	return true
}

func (l *pairLocks) Release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
