// internal/scraper/queue.go
package scraper

import "sync"

// taskQueue is the in-memory work queue feeding the worker pool. It tracks
// pending work (queued plus in-flight) so the run can terminate exactly
// when the last task finishes without spawning successors.
type taskQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []*PageTask
	pending int
	closed  bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a task. It returns false once the queue is closed.
func (q *taskQueue) Push(t *PageTask) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, t)
	q.pending++
	q.cond.Signal()
	return true
}

// Pop blocks until a task is available or the queue is closed. The second
// return value is false only when the queue has shut down.
func (q *taskQueue) Pop() (*PageTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

// Done marks one popped task finished. When no work remains pending the
// queue closes and all blocked workers wake up.
func (q *taskQueue) Done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending--
	if q.pending <= 0 {
		q.closed = true
		q.cond.Broadcast()
	}
}

// Close shuts the queue down regardless of pending work.
func (q *taskQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.cond.Broadcast()
}
