package engine

import "sync"

// memberLocks hands out one mutex per member id. Entries are dropped once no
// goroutine holds or waits on them.
type memberLocks struct {
	mu    sync.Mutex
	locks map[string]*memberLock
}

type memberLock struct {
	mu   sync.Mutex
	refs int
}

func newMemberLocks() *memberLocks {
	return &memberLocks{locks: make(map[string]*memberLock)}
}

// lock blocks until id is free and returns the matching unlock.
func (l *memberLocks) lock(id string) func() {
	l.mu.Lock()
	ml, ok := l.locks[id]
	if !ok {
		ml = &memberLock{}
		l.locks[id] = ml
	}
	ml.refs++
	l.mu.Unlock()

	ml.mu.Lock()

	return func() {
		ml.mu.Unlock()

		l.mu.Lock()
		ml.refs--
		if ml.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}

func (l *memberLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
