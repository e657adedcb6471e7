package scheduler_test

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lccx-tp/csopesy-core/internal/backingstore"
	"github.com/lccx-tp/csopesy-core/internal/clock"
	"github.com/lccx-tp/csopesy-core/internal/corestate"
	"github.com/lccx-tp/csopesy-core/internal/logging"
	"github.com/lccx-tp/csopesy-core/internal/memory"
	"github.com/lccx-tp/csopesy-core/internal/process"
	"github.com/lccx-tp/csopesy-core/internal/queue"
	"github.com/lccx-tp/csopesy-core/internal/scheduler"
)

type harness struct {
	sched    *scheduler.Scheduler
	ready    *queue.Ready
	clk      *clock.Clock
	registry *corestate.Registry
	byPID    map[int]*process.Process
}

func newHarness(cfg scheduler.Config) *harness {
	registry := corestate.New(cfg.NumCPU)
	clk := clock.New(registry, time.Millisecond, logging.Discard())
	ready := queue.NewReady()
	store, err := backingstore.Open(filepath.Join(GinkgoT().TempDir(), "backing.txt"), logging.Discard())
	Expect(err).NotTo(HaveOccurred())

	byPID := map[int]*process.Process{}
	sched := scheduler.New(cfg, ready, clk, registry, logging.Discard())
	alloc := memory.New(1<<20, 1<<20, memory.Deps{
		IsRunning: sched.IsRunning,
		Lookup:    func(pid int) *process.Process { return byPID[pid] },
		Store:     store,
		Log:       logging.Discard(),
	})
	sched.SetAllocator(alloc)

	return &harness{sched: sched, ready: ready, clk: clk, registry: registry, byPID: byPID}
}

func (h *harness) submit(pid, steps int) *process.Process {
	p := process.New(pid, "p", time.Now(), process.GenerateProgram(steps), 1024, 1)
	h.byPID[pid] = p
	h.ready.Enqueue(p)
	return p
}

var _ = Describe("Scheduler", func() {
	It("runs every FCFS process to completion without preemption", func() {
		h := newHarness(scheduler.Config{NumCPU: 1, Policy: scheduler.FCFS})
		p1 := h.submit(1, 3)
		p2 := h.submit(2, 2)

		h.clk.Start()
		h.sched.Start()
		defer h.sched.Stop()
		defer h.clk.Stop()

		Eventually(p1.State, 2*time.Second, time.Millisecond).Should(Equal(process.Finished))
		Eventually(p2.State, 2*time.Second, time.Millisecond).Should(Equal(process.Finished))
		Expect(p1.PC()).To(Equal(3))
		Expect(p2.PC()).To(Equal(2))
	})

	It("preempts a round-robin process once its quantum is exhausted", func() {
		h := newHarness(scheduler.Config{NumCPU: 1, Policy: scheduler.RR, Quantum: 2})
		long := h.submit(1, 5)
		other := h.submit(2, 5)

		h.clk.Start()
		h.sched.Start()
		defer h.sched.Stop()
		defer h.clk.Stop()

		// With one core and a two-step quantum against a five-step
		// program, the second process can only start executing before
		// the first finishes if the first was preempted and sent back
		// to the ready queue.
		Eventually(func() int { return long.PC() }, time.Second, time.Millisecond).Should(BeNumerically(">=", 2))
		Eventually(func() bool { return other.PC() > 0 && long.PC() < 5 }, time.Second, time.Millisecond).Should(BeTrue())
		Eventually(long.State, 2*time.Second, time.Millisecond).Should(Equal(process.Finished))
		Eventually(other.State, 2*time.Second, time.Millisecond).Should(Equal(process.Finished))
		Expect(long.PC()).To(Equal(5))
		Expect(other.PC()).To(Equal(5))
	})

	It("distributes ready processes across every configured core", func() {
		h := newHarness(scheduler.Config{NumCPU: 2, Policy: scheduler.FCFS})
		p1 := h.submit(1, 10)
		p2 := h.submit(2, 10)

		h.clk.Start()
		h.sched.Start()
		defer h.sched.Stop()
		defer h.clk.Stop()

		Eventually(func() bool {
			return p1.State() == process.Running && p2.State() == process.Running
		}, time.Second, time.Millisecond).Should(BeTrue(), "with two cores both processes should run concurrently, not one after another")

		Eventually(p1.State, 2*time.Second, time.Millisecond).Should(Equal(process.Finished))
		Eventually(p2.State, 2*time.Second, time.Millisecond).Should(Equal(process.Finished))
	})
})
