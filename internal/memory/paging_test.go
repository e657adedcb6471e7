package memory_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/lccx-tp/csopesy-core/internal/memory"
	"github.com/lccx-tp/csopesy-core/internal/process"
)

func newPagedProc(pid, pages int) *process.Process {
	return process.New(pid, "p", time.Now(), process.GenerateProgram(5), pages*16, pages)
}

var _ = Describe("Paging allocator", func() {
	It("assigns the requested number of frames", func() {
		deps, registry, _ := newFlatDeps()
		alloc := memory.NewPaging(64, 16, deps)
		p := newPagedProc(1, 2)
		registry[1] = p

		Expect(alloc.Admit(p)).To(Succeed())
		Expect(p.Frames()).To(HaveLen(2))
	})

	It("evicts oldest resident to free frames for a new admission", func() {
		deps, registry, _ := newFlatDeps()
		alloc := memory.NewPaging(32, 16, deps)
		a, b := newPagedProc(1, 2), newPagedProc(2, 2)
		registry[1], registry[2] = a, b

		Expect(alloc.Admit(a)).To(Succeed())
		Expect(alloc.Admit(b)).To(Succeed())

		Expect(a.Residency()).To(Equal(process.OnBackingStore))
		Expect(b.Frames()).To(HaveLen(2))
	})

	It("frees frames back to the pool on Release", func() {
		deps, registry, _ := newFlatDeps()
		alloc := memory.NewPaging(32, 16, deps)
		a := newPagedProc(1, 2)
		registry[1] = a
		Expect(alloc.Admit(a)).To(Succeed())
		alloc.Release(a)

		b := newPagedProc(2, 2)
		registry[2] = b
		Expect(alloc.Admit(b)).To(Succeed())
	})

	It("reports every free frame as external fragmentation", func() {
		deps, registry, _ := newFlatDeps()
		alloc := memory.NewPaging(64, 16, deps) // 4 frames total
		p := newPagedProc(1, 3)
		registry[1] = p
		Expect(alloc.Admit(p)).To(Succeed())
		Expect(alloc.Stats().ExternalFragBytes).To(Equal(16), "1 leftover frame * 16 bytes")
	})

	It("round-trips page_in and page_out by the same amount as release undoes admit", func() {
		deps, registry, _ := newFlatDeps()
		alloc := memory.NewPaging(64, 16, deps)
		p := newPagedProc(1, 2)
		registry[1] = p

		before := alloc.Stats()
		Expect(alloc.Admit(p)).To(Succeed())
		alloc.Release(p)
		after := alloc.Stats()

		Expect(after.PageIns - before.PageIns).To(Equal(2))
		Expect(after.PageOuts - before.PageOuts).To(Equal(2))
		Expect(after.UsedBytes).To(Equal(before.UsedBytes))
	})
})
