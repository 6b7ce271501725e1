package marketfeed

import (
	"sync"
	"time"
)

// timer is a cancellable single-shot timer. Every arm invalidates the
// previous one, and the generation handed to the callback lets the owner
// discard fires that raced with a rearm or a cancel.
type timer struct {
	lock     sync.Mutex
	t        *time.Timer
	gen      uint64
	armed    bool
	deadline time.Time
}

func (t *timer) arm(d time.Duration, fn func(gen uint64)) {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.stopLocked()
	t.gen++
	gen := t.gen
	t.armed = true
	t.deadline = time.Now().Add(d)
	t.t = time.AfterFunc(d, func() { fn(gen) })
}

func (t *timer) cancel() {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.stopLocked()
	t.gen++
	t.armed = false
	t.deadline = time.Time{}
}

// fired reports whether gen is the pending generation and, if so, marks the
// timer as no longer armed.
func (t *timer) fired(gen uint64) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.armed || gen != t.gen {
		return false
	}
	t.armed = false
	t.deadline = time.Time{}
	return true
}

func (t *timer) pending() (time.Time, bool) {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.deadline, t.armed
}

func (t *timer) stopLocked() {
	if t.t != nil {
		t.t.Stop()
		t.t = nil
	}
}
