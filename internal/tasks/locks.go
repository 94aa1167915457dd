package tasks

import "sync"

// LockRegistry hands out one non-blocking lock per owner.
//
// Handles are created on first use and kept for the registry's lifetime. The zero value is not
// usable; call [NewLockRegistry].
type LockRegistry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: make(map[string]*sync.Mutex)}
}

// TryLock acquires owner's lock without waiting. On success the returned func releases it;
// when the lock is held elsewhere ok is false and release is nil.
func (r *LockRegistry) TryLock(owner string) (release func(), ok bool) {
	r.mu.Lock()
	l, exists := r.locks[owner]
	if !exists {
		l = &sync.Mutex{}
		r.locks[owner] = l
	}
	r.mu.Unlock()

	if !l.TryLock() {
		return nil, false
	}
	var once sync.Once
	return func() { once.Do(l.Unlock) }, true
}

// Len returns how many owners have a lock handle.
func (r *LockRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}
