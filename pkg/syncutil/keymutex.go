// Package syncutil provides small concurrency helpers shared by the
// stateful components.
package syncutil

import "sync"

// KeyedMutex hands out one mutex per string key, so operations on the
// same conversation or binding serialize while different keys proceed
// in parallel. Mutexes are never discarded; key cardinality is bounded
// by the number of live conversations in a process.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Lock acquires the mutex for key, creating it on first use. The caller
// must call the returned unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*sync.Mutex)
	}
	lock, ok := k.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		k.locks[key] = lock
	}
	k.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
