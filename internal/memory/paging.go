package memory

import (
	"fmt"
	"strings"
	"sync"

	"github.com/lccx-tp/csopesy-core/internal/backingstore"
	"github.com/lccx-tp/csopesy-core/internal/process"
)

// Paging is a fixed-frame allocator: every process occupies a whole
// number of frame-sized chunks, tracked only by which frames it owns —
// there is no page table and no address translation, since the
// specification never simulates virtual addresses (SPEC_FULL.md §1
// non-goals). Grounded on the teacher's cmd/memoria/marcos.go free-list
// bookkeeping (asignarMarco/liberarMemoriaProceso), stripped of the
// multi-level page-table machinery in tablas_paginas.go that this
// specification has no use for.
type Paging struct {
	mu         sync.Mutex
	frameBytes int
	numFrames  int
	free       []int // LIFO stack of free frame indices
	owner      map[int]int
	resident   residentFIFO
	deps       Deps
	stats      Stats
}

func NewPaging(maxBytes, frameBytes int, deps Deps) *Paging {
	n := maxBytes / frameBytes
	free := make([]int, n)
	for i := range free {
		free[i] = n - 1 - i // stack pops from the end; fill so frame 0 pops first
	}
	return &Paging{
		frameBytes: frameBytes,
		numFrames:  n,
		free:       free,
		owner:      make(map[int]int),
		deps:       deps,
		stats:      Stats{CapacityBytes: maxBytes},
	}
}

// Admit allocates p.Pages() frames, evicting the oldest non-running
// resident as many times as needed to free enough frames.
func (pg *Paging) Admit(p *process.Process) error {
	pg.mu.Lock()
	defer pg.mu.Unlock()

	need := p.Pages()
	if need > pg.numFrames {
		return permanentError("Paging.Admit", need*pg.frameBytes, pg.numFrames*pg.frameBytes)
	}

	for len(pg.free) < need {
		pid, ok := pg.resident.oldestEvictable(pg.deps.IsRunning)
		if !ok {
			return evictionError("Paging.Admit")
		}
		pg.evict(pid)
	}

	frames := make([]int, 0, need)
	for i := 0; i < need; i++ {
		f := pg.free[len(pg.free)-1]
		pg.free = pg.free[:len(pg.free)-1]
		pg.owner[f] = p.PID()
		frames = append(frames, f)
	}
	pg.resident.add(p.PID())
	pg.stats.PageIns += need
	pg.stats.UsedBytes += need * pg.frameBytes
	pg.stats.ResidentCount++
	p.SetResidentPaging(frames)
	return nil
}

func (pg *Paging) framesOf(pid int) []int {
	var frames []int
	for f, owner := range pg.owner {
		if owner == pid {
			frames = append(frames, f)
		}
	}
	return frames
}

func (pg *Paging) evict(pid int) {
	proc := pg.deps.Lookup(pid)
	frames := pg.framesOf(pid)
	for _, f := range frames {
		delete(pg.owner, f)
		pg.free = append(pg.free, f)
	}
	pg.resident.remove(pid)
	pg.stats.PageOuts += len(frames)
	pg.stats.UsedBytes -= len(frames) * pg.frameBytes
	pg.stats.ResidentCount--

	if proc != nil {
		if err := pg.deps.Store.Append(backingstore.Record{
			PID: proc.PID(), Name: proc.Name(), CreatedAt: proc.CreatedAt(),
			PC: proc.PC(), ProgramLen: proc.ProgramLen(), MemBytes: proc.MemBytes(), Pages: len(frames),
		}); err != nil {
			pg.deps.Log.WithError(err).WithField("pid", pid).Error("failed to write evicted process to backing store")
		}
		proc.SetOnBackingStore()
	}
}

// Release frees p's frames outright, without persisting them. page_out
// increments here the same as it does on eviction — both paths return
// frames to the free stack, and the round-trip law (release(admit(p))
// restores the pre-admit free set with page_in and page_out both up by
// pages(p)) makes no distinction between them.
func (pg *Paging) Release(p *process.Process) {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	frames := pg.framesOf(p.PID())
	for _, f := range frames {
		delete(pg.owner, f)
		pg.free = append(pg.free, f)
	}
	pg.resident.remove(p.PID())
	pg.stats.PageOuts += len(frames)
	pg.stats.UsedBytes -= len(frames) * pg.frameBytes
	if len(frames) > 0 {
		pg.stats.ResidentCount--
	}
	p.ClearResidency()
}

// Stats reports current occupancy. External fragmentation under paging
// is every free frame: a request smaller than a frame can never reclaim
// the wasted tail of the frame holding it, and a request larger than the
// free set as a whole simply cannot be satisfied regardless of layout.
func (pg *Paging) Stats() Stats {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	out := pg.stats
	out.ExternalFragBytes = len(pg.free) * pg.frameBytes
	return out
}

func (pg *Paging) Snapshot() string {
	pg.mu.Lock()
	defer pg.mu.Unlock()
	var sb strings.Builder
	fmt.Fprintf(&sb, "paging memory: %d/%d frames free, %d resident\n", len(pg.free), pg.numFrames, pg.stats.ResidentCount)
	return sb.String()
}
