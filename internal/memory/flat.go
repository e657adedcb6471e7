package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lccx-tp/csopesy-core/internal/backingstore"
	"github.com/lccx-tp/csopesy-core/internal/process"
)

// block is one process's contiguous placement in the flat address
// space.
type block struct {
	pid       int
	base, end int // [base, end)
}

// Flat is a first-fit contiguous allocator over a byte-addressed
// space, grounded on original_source/FlatMemoryAllocator.cpp.
type Flat struct {
	mu       sync.Mutex
	maxBytes int
	occupied []bool // one entry per byte; fine at simulator scale
	blocks   []block
	resident residentFIFO
	deps     Deps
	stats    Stats
}

func NewFlat(maxBytes int, deps Deps) *Flat {
	return &Flat{
		maxBytes: maxBytes,
		occupied: make([]bool, maxBytes),
		deps:     deps,
		stats:    Stats{CapacityBytes: maxBytes},
	}
}

// Admit finds the first run of p.MemBytes() free bytes, evicting the
// oldest non-running resident as many times as needed to make room.
func (f *Flat) Admit(p *process.Process) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	need := p.MemBytes()
	if need > f.maxBytes {
		return permanentError("Flat.Admit", need, f.maxBytes)
	}

	for {
		if base, ok := f.firstFit(need); ok {
			f.place(p, base, base+need)
			return nil
		}
		pid, ok := f.resident.oldestEvictable(f.deps.IsRunning)
		if !ok {
			return evictionError("Flat.Admit")
		}
		f.evict(pid)
	}
}

func (f *Flat) firstFit(need int) (base int, ok bool) {
	run := 0
	start := 0
	for i := 0; i <= len(f.occupied); i++ {
		free := i < len(f.occupied) && !f.occupied[i]
		if free {
			if run == 0 {
				start = i
			}
			run++
			if run == need {
				return start, true
			}
		} else {
			run = 0
		}
	}
	return 0, false
}

func (f *Flat) place(p *process.Process, base, end int) {
	for i := base; i < end; i++ {
		f.occupied[i] = true
	}
	f.blocks = append(f.blocks, block{pid: p.PID(), base: base, end: end})
	sort.Slice(f.blocks, func(i, j int) bool { return f.blocks[i].base < f.blocks[j].base })
	f.resident.add(p.PID())
	f.stats.UsedBytes += end - base
	f.stats.ResidentCount++
	p.SetResidentFlat(base, end)
}

// evict writes the process behind pid to the backing store and frees
// its bytes. It does not touch the process's ready-queue membership —
// residency and ready-queue membership are orthogonal (SPEC_FULL.md
// §9 open question 2).
func (f *Flat) evict(pid int) {
	proc := f.deps.Lookup(pid)
	idx := -1
	for i, b := range f.blocks {
		if b.pid == pid {
			idx = i
			break
		}
	}
	if idx == -1 {
		return
	}
	b := f.blocks[idx]
	for i := b.base; i < b.end; i++ {
		f.occupied[i] = false
	}
	f.blocks = append(f.blocks[:idx], f.blocks[idx+1:]...)
	f.resident.remove(pid)
	f.stats.UsedBytes -= b.end - b.base
	f.stats.ResidentCount--

	if proc != nil {
		if err := f.deps.Store.Append(backingstore.Record{
			PID: proc.PID(), Name: proc.Name(), CreatedAt: proc.CreatedAt(),
			PC: proc.PC(), ProgramLen: proc.ProgramLen(), MemBytes: proc.MemBytes(),
		}); err != nil {
			f.deps.Log.WithError(err).WithField("pid", pid).Error("failed to write evicted process to backing store")
		}
		proc.SetOnBackingStore()
	}
}

// Release frees the process's block outright, without persisting it —
// used on normal completion, never on eviction.
func (f *Flat) Release(p *process.Process) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := -1
	for i, b := range f.blocks {
		if b.pid == p.PID() {
			idx = i
			break
		}
	}
	if idx == -1 {
		p.ClearResidency()
		return
	}
	b := f.blocks[idx]
	for i := b.base; i < b.end; i++ {
		f.occupied[i] = false
	}
	f.blocks = append(f.blocks[:idx], f.blocks[idx+1:]...)
	f.resident.remove(p.PID())
	f.stats.UsedBytes -= b.end - b.base
	f.stats.ResidentCount--
	p.ClearResidency()
}

// Stats reports current occupancy, including the classic external
// fragmentation measure: the sum of every gap between resident blocks
// (and the gap before the lowest block), which no future first-fit
// request larger than the gap could ever use without a compaction
// pass this allocator does not perform.
func (f *Flat) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	frag := 0
	prevEnd := 0
	for _, b := range f.blocks {
		frag += b.base - prevEnd
		prevEnd = b.end
	}
	out := f.stats
	out.ExternalFragBytes = frag
	return out
}

// Snapshot renders the current placement, in ascending base-address
// order, for diagnostics.
func (f *Flat) Snapshot() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sb strings.Builder
	fmt.Fprintf(&sb, "flat memory: %d/%d bytes used, %d resident\n", f.stats.UsedBytes, f.maxBytes, f.stats.ResidentCount)
	for _, b := range f.blocks {
		fmt.Fprintf(&sb, "  pid=%d [%d,%d)\n", b.pid, b.base, b.end)
	}
	return sb.String()
}

