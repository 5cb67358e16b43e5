package engine

import (
	"sync"
	"testing"
	"time"
)

func TestMemberLocksSerializeSameID(t *testing.T) {
	l := newMemberLocks()

	unlock := l.lock("a")
	acquired := make(chan struct{})
	go func() {
		u := l.lock("a")
		close(acquired)
		u()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock acquired while first held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second lock not acquired after unlock")
	}
}

func TestMemberLocksIndependentIDs(t *testing.T) {
	l := newMemberLocks()

	unlockA := l.lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		l.lock("b")()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked by a")
	}
}

func TestMemberLocksReleased(t *testing.T) {
	l := newMemberLocks()

	var wg sync.WaitGroup
	counter := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := l.lock("a")
			counter++
			unlock()
		}()
	}
	wg.Wait()

	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if n := l.size(); n != 0 {
		t.Errorf("size = %d, want 0", n)
	}
}
