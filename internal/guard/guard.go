// Package guard serializes mutating access to named store resources while
// letting readers proceed concurrently.
//
// A Guard hands out one sync.RWMutex per resource key ("event:E1",
// "ledger", "session:42"). Entries are reference counted and dropped when
// the last holder releases them, so the key space can be unbounded (one per
// user session) without the map growing forever.
package guard

import "sync"

// Guard is a keyed reader/writer lock. The zero value is not usable; call New.
type Guard struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	rw   sync.RWMutex
	refs int
}

// New returns an empty Guard.
func New() *Guard {
	return &Guard{locks: make(map[string]*entry)}
}

// Lock acquires the exclusive lock for key and returns the function that
// releases it.
func (g *Guard) Lock(key string) (unlock func()) {
	e := g.acquire(key)
	e.rw.Lock()
	return func() {
		e.rw.Unlock()
		g.release(key, e)
	}
}

// RLock acquires the shared lock for key and returns the function that
// releases it.
func (g *Guard) RLock(key string) (unlock func()) {
	e := g.acquire(key)
	e.rw.RLock()
	return func() {
		e.rw.RUnlock()
		g.release(key, e)
	}
}

// Len reports how many keys currently have holders or waiters.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.locks)
}

func (g *Guard) acquire(key string) *entry {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.locks[key]
	if !ok {
		e = &entry{}
		g.locks[key] = e
	}
	e.refs++
	return e
}

func (g *Guard) release(key string, e *entry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(g.locks, key)
	}
}

// EventKey names the inventory resource for one event.
func EventKey(eventID string) string {
	return "event:" + eventID
}

// SessionKey names the conversation resource for one user.
func SessionKey(userID string) string {
	return "session:" + userID
}
