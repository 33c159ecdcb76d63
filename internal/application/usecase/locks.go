package usecase

import "sync"

// keyedMutex serializes cart-mutating operations per device so an ordinary
// mutation cannot race a reconciliation and be silently overwritten. Lock
// entries are kept for the process lifetime; the key space is bounded by the
// devices an instance actually serves.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.m == nil {
		k.m = make(map[string]*sync.Mutex)
	}
	l, ok := k.m[key]
	if !ok {
		l = &sync.Mutex{}
		k.m[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}
