// Package admission implements the admission façade (SPEC_FULL.md
// §4.6): the single entry point that turns a name into a newly
// admitted process, hands it to the ready queue, and answers the
// console's lookup/listing/reporting commands.
//
// Grounded on the teacher's cmd/kernel/LTS.go long-term-scheduler
// admission loop and cmd/kernel/pcb.go's pid assignment
// (GenerarNuevoPID), collapsed from a queue-draining goroutine that
// pushed processes into memory itself down to a synchronous call that
// enqueues onto the ready queue and lets the scheduler's own workers
// drive admission — the teacher needed a separate LTS goroutine because
// admitting into memory was a blocking RPC to another process; here it
// is not.
package admission

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/lccx-tp/csopesy-core/internal/clock"
	"github.com/lccx-tp/csopesy-core/internal/config"
	"github.com/lccx-tp/csopesy-core/internal/coreerr"
	"github.com/lccx-tp/csopesy-core/internal/corestate"
	"github.com/lccx-tp/csopesy-core/internal/memory"
	"github.com/lccx-tp/csopesy-core/internal/process"
	"github.com/lccx-tp/csopesy-core/internal/queue"
	"github.com/lccx-tp/csopesy-core/internal/xnum"
)

// Manager is the admission façade.
type Manager struct {
	cfg      *config.Config
	ready    *queue.Ready
	clock    *clock.Clock
	registry *corestate.Registry
	alloc    memory.Allocator
	sem      *Semaphore
	log      *logrus.Entry

	mu        sync.RWMutex
	byName    map[string]*process.Process
	byPID     map[int]*process.Process
	nextPID   atomic.Int64
	rngSeed   atomic.Int64

	batchMu      sync.Mutex
	batchStop    chan struct{}
	batchRunning bool
	batchWG      sync.WaitGroup
}

// New builds an admission façade. The allocator is wired in afterward
// with SetAllocator, breaking the allocator/scheduler/admission cycle
// the same way scheduler.SetAllocator does: the allocator's Deps.Lookup
// callback is this Manager's Lookup method, which needs no allocator
// reference itself. maxConcurrentSubmits bounds how many Submit calls
// (interactive plus batch-generated) run at once.
func New(cfg *config.Config, ready *queue.Ready, clk *clock.Clock, registry *corestate.Registry, maxConcurrentSubmits int, log *logrus.Entry) *Manager {
	return &Manager{
		cfg:      cfg,
		ready:    ready,
		clock:    clk,
		registry: registry,
		sem:      NewSemaphore(maxConcurrentSubmits),
		log:      log,
		byName:   make(map[string]*process.Process),
		byPID:    make(map[int]*process.Process),
	}
}

// SetAllocator wires the allocator used for VMStat's memory
// statistics. Must be called before VMStat.
func (m *Manager) SetAllocator(alloc memory.Allocator) { m.alloc = alloc }

// Lookup finds a process by pid.
func (m *Manager) Lookup(pid int) (*process.Process, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byPID[pid]
	return p, ok
}

// LookupByName finds a process by name.
func (m *Manager) LookupByName(name string) (*process.Process, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.byName[name]
	return p, ok
}

// ListAll returns every known process, admitted or finished, in
// admission order.
func (m *Manager) ListAll() []*process.Process {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*process.Process, 0, len(m.byPID))
	for pid := 1; pid <= int(m.nextPID.Load()); pid++ {
		if p, ok := m.byPID[pid]; ok {
			out = append(out, p)
		}
	}
	return out
}

// Submit admits a new process named name, generating a random
// instruction count and memory footprint from the configured ranges,
// and enqueues it onto the ready queue. Each process gets its own RNG
// stream seeded from an incrementing counter, so batch generation is
// reproducible from a fixed starting seed without processes sharing
// (and contending on) one global generator.
func (m *Manager) Submit(name string, createdAt time.Time) (*process.Process, error) {
	m.mu.RLock()
	_, exists := m.byName[name]
	m.mu.RUnlock()
	if exists {
		return nil, coreerr.New(coreerr.UnknownCommand, "Submit", fmt.Errorf("process %q already exists", name))
	}

	m.sem.Acquire()
	defer m.sem.Release()

	seed := m.rngSeed.Add(1)
	rng := rand.New(rand.NewSource(seed))

	programLen := m.cfg.MinIns
	if span := m.cfg.MaxIns - m.cfg.MinIns; span > 0 {
		programLen += rng.Intn(span + 1)
	}
	program := process.GenerateProgram(programLen)

	rawMem := m.cfg.MinMemPerProc
	if span := m.cfg.MaxMemPerProc - m.cfg.MinMemPerProc; span > 0 {
		rawMem += rng.Intn(span + 1)
	}
	memBytes := xnum.RoundUpPow2(rawMem)
	pages := xnum.CeilDiv(memBytes, m.cfg.MemPerFrame)

	if memBytes > m.cfg.MaxOverallMem {
		return nil, coreerr.New(coreerr.AdmissionPermanent, "Submit",
			fmt.Errorf("process %q requests %d bytes, exceeding max-overall-mem %d", name, memBytes, m.cfg.MaxOverallMem))
	}

	pid := int(m.nextPID.Add(1))
	p := process.New(pid, name, createdAt, program, memBytes, pages)

	m.mu.Lock()
	m.byName[name] = p
	m.byPID[pid] = p
	m.mu.Unlock()

	m.ready.Enqueue(p)
	m.log.WithField("pid", pid).WithField("name", name).WithField("mem_bytes", memBytes).Info("process admitted")
	return p, nil
}

// StartBatchGenerator submits a new synthetic process every
// batch-process-freq ticks until StopBatchGenerator is called.
func (m *Manager) StartBatchGenerator() error {
	m.batchMu.Lock()
	defer m.batchMu.Unlock()
	if m.batchRunning {
		return coreerr.New(coreerr.UnknownCommand, "StartBatchGenerator", fmt.Errorf("already running"))
	}
	m.batchRunning = true
	m.batchStop = make(chan struct{})
	m.batchWG.Add(1)
	go m.runBatchGenerator(m.batchStop)
	return nil
}

// StopBatchGenerator halts the batch generator started by
// StartBatchGenerator.
func (m *Manager) StopBatchGenerator() error {
	m.batchMu.Lock()
	if !m.batchRunning {
		m.batchMu.Unlock()
		return coreerr.New(coreerr.UnknownCommand, "StopBatchGenerator", fmt.Errorf("not running"))
	}
	close(m.batchStop)
	m.batchRunning = false
	m.batchMu.Unlock()

	m.batchWG.Wait()
	return nil
}

func (m *Manager) runBatchGenerator(stop chan struct{}) {
	defer m.batchWG.Done()
	counter := 0
	freq := uint64(m.cfg.BatchProcessFreq)
	last := m.clock.Ticks()
	for {
		select {
		case <-stop:
			return
		default:
		}
		now := m.clock.WaitForTickAfter(last)
		last = now
		if now%freq != 0 {
			continue
		}
		counter++
		name := fmt.Sprintf("p%02d", counter)
		if _, err := m.Submit(name, time.Now()); err != nil {
			m.log.WithError(err).Warn("batch generator failed to submit process")
		}
	}
}

// SMIReport is the process-smi command's payload.
type SMIReport struct {
	UtilizationPct float64
	CoresUsed      int
	CoresAvail     int
	Running        []*process.Process
}

// ProcessSMI reports current CPU utilization and every RUNNING process.
func (m *Manager) ProcessSMI() SMIReport {
	cores := m.registry.SnapshotAll()
	busy := make([]float64, len(cores))
	var running []*process.Process
	for i, c := range cores {
		if c.Busy {
			busy[i] = 1
			if p, ok := m.Lookup(c.PID); ok {
				running = append(running, p)
			}
		}
	}
	util := 0.0
	if len(busy) > 0 {
		util = stat.Mean(busy, nil) * 100
	}
	return SMIReport{
		UtilizationPct: util,
		CoresUsed:      m.registry.BusyCount(),
		CoresAvail:     len(cores),
		Running:        running,
	}
}

// VMStatReport is the vmstat command's payload.
type VMStatReport struct {
	TotalTicks    uint64
	ActiveTicks   uint64
	IdleTicks     uint64
	TotalMemBytes int
	UsedMemBytes  int
	FreeMemBytes  int
	PagesIn       int
	PagesOut      int
}

// VMStat reports clock and memory statistics.
func (m *Manager) VMStat() VMStatReport {
	total := m.clock.Ticks()
	active := m.clock.ActiveTicks()
	st := m.alloc.Stats()
	return VMStatReport{
		TotalTicks:    total,
		ActiveTicks:   active,
		IdleTicks:     total - active,
		TotalMemBytes: st.CapacityBytes,
		UsedMemBytes:  st.UsedBytes,
		FreeMemBytes:  st.CapacityBytes - st.UsedBytes,
		PagesIn:       st.PageIns,
		PagesOut:      st.PageOuts,
	}
}
