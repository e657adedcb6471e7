// Command csopesyctl runs the CORE simulator's console: a single
// process hosting the tick clock, the scheduler's worker pool, and the
// memory subsystem behind the command surface in SPEC_FULL.md §6.
//
// Grounded on the teacher's cmd/kernel/main.go + kernel_init.go wiring
// order (load config, build the shared state, start the background
// loops, then serve requests) — collapsed here from four OS processes
// dialing each other over HTTP into one process wiring plain Go
// values together.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lccx-tp/csopesy-core/internal/admission"
	"github.com/lccx-tp/csopesy-core/internal/backingstore"
	"github.com/lccx-tp/csopesy-core/internal/clock"
	"github.com/lccx-tp/csopesy-core/internal/config"
	"github.com/lccx-tp/csopesy-core/internal/console"
	"github.com/lccx-tp/csopesy-core/internal/corestate"
	"github.com/lccx-tp/csopesy-core/internal/logging"
	"github.com/lccx-tp/csopesy-core/internal/memory"
	"github.com/lccx-tp/csopesy-core/internal/process"
	"github.com/lccx-tp/csopesy-core/internal/queue"
	"github.com/lccx-tp/csopesy-core/internal/scheduler"
)

const (
	tickPeriod          = time.Millisecond
	maxConcurrentAdmits = 8
	backingStorePath    = "csopesy-backing-store.txt"
	reportDir           = "."
)

func main() {
	log := logging.New("csopesyctl", "info")

	initFn := func(path string) (*console.Runtime, error) {
		return initializeRuntime(path, log)
	}

	c := console.New(os.Stdin, os.Stdout, reportDir, initFn, log)
	if err := c.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "csopesyctl:", err)
		os.Exit(1)
	}
}

// initializeRuntime performs the "initialize" command's work: load the
// config file and wire every subsystem together.
//
// The allocator needs to ask the scheduler which pids are running
// (SPEC_FULL.md §9's cyclic-reference note), but the scheduler needs
// the allocator to admit into. The cycle is broken by constructing the
// scheduler first with no allocator, building the allocator against
// the scheduler's IsRunning method, then wiring the allocator back into
// the scheduler with SetAllocator.
func initializeRuntime(path string, log *logrus.Entry) (*console.Runtime, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	registry := corestate.New(cfg.NumCPU)
	clk := clock.New(registry, tickPeriod, log.WithField("component", "clock"))
	ready := queue.NewReady()

	store, err := backingstore.Open(backingStorePath, log.WithField("component", "backingstore"))
	if err != nil {
		return nil, err
	}

	var policy scheduler.Policy
	switch cfg.Scheduler {
	case config.RR:
		policy = scheduler.RR
	default:
		policy = scheduler.FCFS
	}

	sched := scheduler.New(scheduler.Config{
		NumCPU:       cfg.NumCPU,
		Policy:       policy,
		Quantum:      cfg.QuantumCycles,
		DelayPerExec: cfg.DelaysPerExec,
	}, ready, clk, registry, log.WithField("component", "scheduler"))

	mgr := admission.New(cfg, ready, clk, registry, maxConcurrentAdmits, log.WithField("component", "admission"))

	alloc := memory.New(cfg.MaxOverallMem, cfg.MemPerFrame, memory.Deps{
		IsRunning: sched.IsRunning,
		Lookup: func(pid int) *process.Process {
			p, _ := mgr.Lookup(pid)
			return p
		},
		Store: store,
		Log:   log.WithField("component", "memory"),
	})
	sched.SetAllocator(alloc)
	mgr.SetAllocator(alloc)

	clk.Start()
	sched.Start()

	return &console.Runtime{Manager: mgr, Clock: clk, Scheduler: sched}, nil
}
