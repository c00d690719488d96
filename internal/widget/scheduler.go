package widget

import (
	"sync"
	"time"
)

// Scheduler runs delayed tasks. Tasks never run synchronously inside After, so
// callers may schedule while holding their own locks.
type Scheduler interface {
	After(d time.Duration, fn func()) (cancel func())
	// Stop drops every pending task. Later calls to After are ignored.
	Stop()
}

type timerQueue struct {
	mu      sync.Mutex
	seq     uint64
	pending map[uint64]*time.Timer
	stopped bool
}

// NewTimerQueue returns a Scheduler backed by time.AfterFunc.
func NewTimerQueue() Scheduler {
	return &timerQueue{pending: make(map[uint64]*time.Timer)}
}

func (q *timerQueue) After(d time.Duration, fn func()) func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return func() {}
	}

	q.seq++
	id := q.seq
	q.pending[id] = time.AfterFunc(d, func() {
		if !q.take(id) {
			return
		}
		fn()
	})

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if t, ok := q.pending[id]; ok {
			t.Stop()
			delete(q.pending, id)
		}
	}
}

// take removes id from the pending set, reporting whether it was still pending.
func (q *timerQueue) take(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.pending[id]; !ok {
		return false
	}
	delete(q.pending, id)
	return true
}

func (q *timerQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	for id, t := range q.pending {
		t.Stop()
		delete(q.pending, id)
	}
}

// Pending reports the number of scheduled tasks.
func (q *timerQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
