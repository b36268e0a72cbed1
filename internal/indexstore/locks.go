package indexstore

import "sync"

// tenantLocks hands out one mutex per tenant. An entry lives only while someone holds
// or waits for it.
type tenantLocks struct {
	mu    sync.Mutex
	locks map[string]*tenantLock
}

type tenantLock struct {
	sync.Mutex
	refs int
}

func (t *tenantLocks) lock(clientID string) func() {
	t.mu.Lock()
	if t.locks == nil {
		t.locks = make(map[string]*tenantLock)
	}
	l, ok := t.locks[clientID]
	if !ok {
		l = &tenantLock{}
		t.locks[clientID] = l
	}
	l.refs++
	t.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		t.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(t.locks, clientID)
		}
		t.mu.Unlock()
	}
}

func (t *tenantLocks) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
