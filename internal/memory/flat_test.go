package memory_test

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lccx-tp/csopesy-core/internal/backingstore"
	"github.com/lccx-tp/csopesy-core/internal/coreerr"
	"github.com/lccx-tp/csopesy-core/internal/logging"
	"github.com/lccx-tp/csopesy-core/internal/memory"
	"github.com/lccx-tp/csopesy-core/internal/process"
)

func newProc(pid, memBytes int) *process.Process {
	return process.New(pid, "p", time.Now(), process.GenerateProgram(5), memBytes, 1)
}

func newFlatDeps() (memory.Deps, map[int]*process.Process, map[int]bool) {
	store, err := backingstore.Open(filepath.Join(GinkgoT().TempDir(), "backing.txt"), logging.Discard())
	Expect(err).NotTo(HaveOccurred())

	registry := map[int]*process.Process{}
	running := map[int]bool{}
	deps := memory.Deps{
		IsRunning: func(pid int) bool { return running[pid] },
		Lookup:    func(pid int) *process.Process { return registry[pid] },
		Store:     store,
		Log:       logging.Discard(),
	}
	return deps, registry, running
}

var _ = Describe("Flat allocator", func() {
	It("places a process at offset zero when memory is empty", func() {
		deps, registry, _ := newFlatDeps()
		alloc := memory.NewFlat(1024, deps)
		p := newProc(1, 256)
		registry[1] = p

		Expect(alloc.Admit(p)).To(Succeed())
		base, end := p.FlatRange()
		Expect(base).To(Equal(0))
		Expect(end).To(Equal(256))
		Expect(alloc.Stats().UsedBytes).To(Equal(256))
	})

	It("uses first fit after a hole opens up", func() {
		deps, registry, _ := newFlatDeps()
		alloc := memory.NewFlat(1024, deps)
		a, b, c := newProc(1, 256), newProc(2, 256), newProc(3, 128)
		registry[1], registry[2], registry[3] = a, b, c

		Expect(alloc.Admit(a)).To(Succeed())
		Expect(alloc.Admit(b)).To(Succeed())
		alloc.Release(a)

		Expect(alloc.Admit(c)).To(Succeed())
		base, _ := c.FlatRange()
		Expect(base).To(Equal(0), "the freed hole at offset 0 should be reused before extending past b")
	})

	It("evicts the oldest non-running resident when full", func() {
		deps, registry, running := newFlatDeps()
		alloc := memory.NewFlat(512, deps)
		a, b := newProc(1, 512), newProc(2, 512)
		registry[1], registry[2] = a, b

		Expect(alloc.Admit(a)).To(Succeed())
		Expect(alloc.Admit(b)).To(Succeed())

		Expect(a.Residency()).To(Equal(process.OnBackingStore))
		_ = running
	})

	It("returns AdmissionTransient when nothing evictable exists", func() {
		deps, registry, running := newFlatDeps()
		alloc := memory.NewFlat(256, deps)
		a := newProc(1, 256)
		registry[1] = a
		Expect(alloc.Admit(a)).To(Succeed())
		running[1] = true

		b := newProc(2, 256)
		registry[2] = b
		err := alloc.Admit(b)
		Expect(err).To(HaveOccurred())
		Expect(coreerr.Is(err, coreerr.AdmissionTransient)).To(BeTrue())
	})

	It("rejects a process larger than total capacity as permanent", func() {
		deps, registry, _ := newFlatDeps()
		alloc := memory.NewFlat(256, deps)
		p := newProc(1, 512)
		registry[1] = p
		err := alloc.Admit(p)
		Expect(err).To(HaveOccurred())
		Expect(coreerr.Is(err, coreerr.AdmissionPermanent)).To(BeTrue())
	})

	It("reports external fragmentation between resident blocks", func() {
		deps, registry, _ := newFlatDeps()
		alloc := memory.NewFlat(1024, deps)
		a, b, c := newProc(1, 128), newProc(2, 128), newProc(3, 128)
		registry[1], registry[2], registry[3] = a, b, c
		Expect(alloc.Admit(a)).To(Succeed())
		Expect(alloc.Admit(b)).To(Succeed())
		Expect(alloc.Admit(c)).To(Succeed())
		alloc.Release(b)

		Expect(alloc.Stats().ExternalFragBytes).To(Equal(128))
	})
})
