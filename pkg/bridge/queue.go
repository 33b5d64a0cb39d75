package bridge

import (
	"sync"

	"github.com/atenbridge/vncbridge/pkg/aten"
)

// ActionQueue is the downstream-to-upstream FIFO: unbounded,
// mutex-protected, with a condition variable signalling non-empty. The
// callback (keyboard) goroutine and the reader goroutine (for its
// next-frame requests and terminal Ping) both enqueue; only the writer
// goroutine dequeues.
type ActionQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []aten.WriteAction
	closed bool
}

// NewActionQueue builds an empty ActionQueue.
func NewActionQueue() *ActionQueue {
	q := &ActionQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues an action and wakes one waiting dequeuer.
func (q *ActionQueue) Push(a aten.WriteAction) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, a)
	q.cond.Signal()
}

// Pop blocks until an action is available or the queue is closed. ok is
// false only when the queue was closed with nothing left to drain —
// exposing closure lets a session shut its writer down without relying
// solely on the Ping action.
func (q *ActionQueue) Pop() (aten.WriteAction, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return aten.WriteAction{}, false
	}
	a := q.items[0]
	q.items = q.items[1:]
	return a, true
}

// Close wakes every waiter; a subsequent Pop drains whatever remains and
// then reports ok=false.
func (q *ActionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}

// Reopen clears the closed flag for the next session's reconnect.
func (q *ActionQueue) Reopen() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = false
}

// UpdateQueue is the upstream-to-downstream FIFO: unbounded,
// mutex-protected, with non-emptiness communicated by an async-watcher
// signal rather than a condition variable (the downstream event loop
// polls it from inside the libev callback, it never blocks on it).
type UpdateQueue struct {
	mu     sync.Mutex
	items  []aten.RFBUpdate
	notify func()
}

// NewUpdateQueue builds an empty UpdateQueue. notify is invoked
// (outside the queue's lock) after every push; the bridge wires it to
// the downstream event loop's async-wakeup.
func NewUpdateQueue(notify func()) *UpdateQueue {
	return &UpdateQueue{notify: notify}
}

// Push enqueues an update and signals the downstream event loop.
func (q *UpdateQueue) Push(u aten.RFBUpdate) {
	q.mu.Lock()
	q.items = append(q.items, u)
	q.mu.Unlock()
	if q.notify != nil {
		q.notify()
	}
}

// DrainAll removes and returns every queued update, preserving FIFO
// order. Called from the downstream event-loop thread in response to
// the async-watcher signal.
func (q *UpdateQueue) DrainAll() []aten.RFBUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	drained := q.items
	q.items = nil
	return drained
}
