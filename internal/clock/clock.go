// Package clock implements the simulator's tick source: a background
// goroutine that advances a monotonic tick counter at a fixed real-time
// period and wakes every goroutine waiting on WaitForTickAfter.
//
// The wait/broadcast idiom is grounded on the teacher's condReady
// sync.Cond, used in cmd/kernel/planificador.go to wake schedulers
// waiting on a non-empty ready queue; here the same primitive wakes
// scheduler workers waiting on tick advance instead.
package clock

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lccx-tp/csopesy-core/internal/corestate"
)

// Clock is the tick source shared by every scheduler worker.
type Clock struct {
	mu   sync.Mutex
	cond *sync.Cond

	ticks       atomic.Uint64
	activeTicks atomic.Uint64
	running     atomic.Bool
	stopCh      chan struct{}
	wg          sync.WaitGroup

	period   time.Duration
	registry *corestate.Registry
	log      *logrus.Entry
}

// New builds a Clock that advances every period, consulting registry
// to decide whether each tick counts as active.
func New(registry *corestate.Registry, period time.Duration, log *logrus.Entry) *Clock {
	c := &Clock{period: period, registry: registry, log: log}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Start launches the ticker goroutine. Calling Start on an
// already-running clock is a no-op.
func (c *Clock) Start() {
	if !c.running.CompareAndSwap(false, true) {
		return
	}
	c.stopCh = make(chan struct{})
	c.wg.Add(1)
	go c.run()
	c.log.Info("clock started")
}

func (c *Clock) run() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			busy := c.registry.AnyBusy()
			n := c.ticks.Add(1)
			if busy {
				c.activeTicks.Add(1)
			}
			c.mu.Lock()
			c.cond.Broadcast()
			c.mu.Unlock()
			c.log.WithField("tick", n).Trace("tick")
		}
	}
}

// Stop halts the ticker and wakes every waiter one last time so none
// block forever past shutdown. Calling Stop on an already-stopped
// clock is a no-op.
func (c *Clock) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	close(c.stopCh)
	c.wg.Wait()
	c.mu.Lock()
	c.cond.Broadcast()
	c.mu.Unlock()
	c.log.WithField("ticks", c.ticks.Load()).Info("clock stopped")
}

// Ticks returns the number of ticks elapsed so far.
func (c *Clock) Ticks() uint64 { return c.ticks.Load() }

// ActiveTicks returns the number of ticks during which at least one
// core was busy.
func (c *Clock) ActiveTicks() uint64 { return c.activeTicks.Load() }

// WaitForTickAfter blocks until the tick counter exceeds after, or the
// clock is stopped, then returns the current tick count. The mutex
// guarding cond.Wait is the same one taken by run before Broadcast, so
// a waiter observing the wakeup has already observed the updated tick
// counter (a plain atomic load after Wait returns is safe, no separate
// synchronization needed).
func (c *Clock) WaitForTickAfter(after uint64) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.ticks.Load() <= after && c.running.Load() {
		c.cond.Wait()
	}
	return c.ticks.Load()
}
