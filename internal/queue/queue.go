// Package queue implements the scheduler's ready queue: FIFO order, no
// duplicate members, blocking Dequeue for idle workers.
//
// Grounded on the teacher's colaReady []*PCB plus its removerDeCola
// dedup helper (cmd/kernel/planificador.go); here membership is
// enforced by Enqueue itself so a caller can never accidentally queue
// the same process twice, which the teacher's separate append/remove
// calls did not guarantee.
package queue

import (
	"sync"

	"github.com/lccx-tp/csopesy-core/internal/process"
)

// Ready is a FIFO of processes waiting for a core.
type Ready struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []*process.Process
	present map[int]bool
	closed  bool
}

// NewReady builds an empty ready queue.
func NewReady() *Ready {
	q := &Ready{present: make(map[int]bool)}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends p to the back of the queue. It reports false without
// modifying the queue if p's pid is already present.
func (q *Ready) Enqueue(p *process.Process) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.present[p.PID()] {
		return false
	}
	q.items = append(q.items, p)
	q.present[p.PID()] = true
	q.cond.Signal()
	return true
}

// Dequeue blocks until a process is available or the queue is closed,
// in which case it returns nil.
func (q *Ready) Dequeue() *process.Process {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items = q.items[1:]
	delete(q.present, p.PID())
	return p
}

// Len returns the number of processes currently queued.
func (q *Ready) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Snapshot returns a copy of the queue contents in order, for
// reporting.
func (q *Ready) Snapshot() []*process.Process {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*process.Process, len(q.items))
	copy(out, q.items)
	return out
}

// Close wakes every blocked Dequeue call, which then return nil. Close
// is idempotent.
func (q *Ready) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}
