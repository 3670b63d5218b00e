package scheduler

import (
	"context"
	"sync"
	"time"
)

// Locker is a named mutual-exclusion guard.
// TryLock never waits: false means the name is held.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, name string) error
}

// MemoryLocker is the process-local Locker; a held lock expires after its TTL
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time // name → expiry
	now  func() time.Time
}

// NewMemoryLocker creates a process-local locker
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]time.Time),
		now:  time.Now,
	}
}

// TryLock acquires name unless a live holder exists
func (l *MemoryLocker) TryLock(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if expiry, ok := l.held[name]; ok && now.Before(expiry) {
		return false, nil
	}
	l.held[name] = now.Add(ttl)
	return true, nil
}

// Unlock releases name
func (l *MemoryLocker) Unlock(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	return nil
}
