// Package keylock provides per-key mutual exclusion inside one process.
package keylock

import "sync"

// Locker hands out one mutex per key and forgets keys nobody holds.
// It is safe for concurrent use.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty Locker.
func New() *Locker {
	return &Locker{locks: make(map[string]*entry)}
}

// Lock blocks until key is free and returns the function that releases it.
func (l *Locker) Lock(key string) (unlock func()) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Unlock()
			l.mu.Lock()
			e.refs--
			if e.refs == 0 {
				delete(l.locks, key)
			}
			l.mu.Unlock()
		})
	}
}

// Len returns the number of keys currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// Held is a set of keys taken during one operation and released together.
// Locking a key the set already holds is a no-op, so a retried transaction
// body can lock the same keys again.
type Held struct {
	l       *Locker
	mu      sync.Mutex
	unlocks map[string]func()
	order   []string
}

// Hold returns an empty set backed by l.
func (l *Locker) Hold() *Held {
	return &Held{l: l, unlocks: make(map[string]func())}
}

// Lock blocks until key is free unless h already holds it.
func (h *Held) Lock(key string) {
	h.mu.Lock()
	_, ok := h.unlocks[key]
	h.mu.Unlock()
	if ok {
		return
	}
	unlock := h.l.Lock(key)
	h.mu.Lock()
	h.unlocks[key] = unlock
	h.order = append(h.order, key)
	h.mu.Unlock()
}

// Holds reports whether key is in the set.
func (h *Held) Holds(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.unlocks[key]
	return ok
}

// Release frees every key in reverse acquisition order. It is safe to call
// more than once.
func (h *Held) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := len(h.order) - 1; i >= 0; i-- {
		h.unlocks[h.order[i]]()
	}
	h.unlocks = make(map[string]func())
	h.order = nil
}
