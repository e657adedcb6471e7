package admission_test

import (
	"path/filepath"
	"time"

	"github.com/google/go-cmp/cmp"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lccx-tp/csopesy-core/internal/admission"
	"github.com/lccx-tp/csopesy-core/internal/backingstore"
	"github.com/lccx-tp/csopesy-core/internal/clock"
	"github.com/lccx-tp/csopesy-core/internal/config"
	"github.com/lccx-tp/csopesy-core/internal/corestate"
	"github.com/lccx-tp/csopesy-core/internal/logging"
	"github.com/lccx-tp/csopesy-core/internal/memory"
	"github.com/lccx-tp/csopesy-core/internal/process"
	"github.com/lccx-tp/csopesy-core/internal/queue"
)

func newManager(cfg *config.Config) *admission.Manager {
	registry := corestate.New(cfg.NumCPU)
	clk := clock.New(registry, time.Millisecond, logging.Discard())
	ready := queue.NewReady()
	store, err := backingstore.Open(filepath.Join(GinkgoT().TempDir(), "backing.txt"), logging.Discard())
	Expect(err).NotTo(HaveOccurred())

	mgr := admission.New(cfg, ready, clk, registry, 4, logging.Discard())
	alloc := memory.New(cfg.MaxOverallMem, cfg.MemPerFrame, memory.Deps{
		IsRunning: func(int) bool { return false },
		Lookup:    func(pid int) *process.Process { p, _ := mgr.Lookup(pid); return p },
		Store:     store,
		Log:       logging.Discard(),
	})
	mgr.SetAllocator(alloc)
	return mgr
}

func baseConfig() *config.Config {
	return &config.Config{
		NumCPU: 2, Scheduler: config.FCFS, QuantumCycles: 1, BatchProcessFreq: 1,
		MinIns: 1, MaxIns: 1, DelaysPerExec: 0,
		MaxOverallMem: 4096, MemPerFrame: 1024, MinMemPerProc: 1024, MaxMemPerProc: 1024,
	}
}

var _ = Describe("Admission Manager", func() {
	It("assigns increasing pids to successive submissions", func() {
		mgr := newManager(baseConfig())
		p1, err := mgr.Submit("alpha", time.Now())
		Expect(err).NotTo(HaveOccurred())
		p2, err := mgr.Submit("beta", time.Now())
		Expect(err).NotTo(HaveOccurred())

		Expect(p2.PID()).To(BeNumerically(">", p1.PID()))
	})

	It("rejects a duplicate process name", func() {
		mgr := newManager(baseConfig())
		_, err := mgr.Submit("alpha", time.Now())
		Expect(err).NotTo(HaveOccurred())
		_, err = mgr.Submit("alpha", time.Now())
		Expect(err).To(HaveOccurred())
	})

	It("rejects a process whose memory footprint exceeds max-overall-mem", func() {
		cfg := baseConfig()
		cfg.MinMemPerProc, cfg.MaxMemPerProc = 8192, 8192
		mgr := newManager(cfg)
		_, err := mgr.Submit("toobig", time.Now())
		Expect(err).To(HaveOccurred())
	})

	It("finds a submitted process by name and by pid", func() {
		mgr := newManager(baseConfig())
		p, err := mgr.Submit("alpha", time.Now())
		Expect(err).NotTo(HaveOccurred())

		byName, ok := mgr.LookupByName("alpha")
		Expect(ok).To(BeTrue())
		Expect(byName.PID()).To(Equal(p.PID()))

		byPID, ok := mgr.Lookup(p.PID())
		Expect(ok).To(BeTrue())
		Expect(byPID.Name()).To(Equal("alpha"))
	})

	It("reports vmstat capacity matching the configured allocator", func() {
		cfg := baseConfig()
		mgr := newManager(cfg)
		vm := mgr.VMStat()
		Expect(vm.TotalMemBytes).To(Equal(cfg.MaxOverallMem))
		Expect(vm.FreeMemBytes).To(Equal(cfg.MaxOverallMem))
	})

	It("reports an unchanged vmstat snapshot when nothing was submitted", func() {
		cfg := baseConfig()
		mgr := newManager(cfg)
		want := mgr.VMStat()
		got := mgr.VMStat()
		if diff := cmp.Diff(want, got); diff != "" {
			Fail("vmstat drifted between two calls with no intervening submissions (-want +got):\n" + diff)
		}
	})
})
