// Package memory implements the two interchangeable memory allocators
// (flat and paging) behind a shared Allocator interface, plus the
// eviction discipline both share.
//
// Flat is grounded on original_source/FlatMemoryAllocator.cpp's
// first-fit contiguous placement (the teacher never implemented a flat
// allocator, only paging). Paging is grounded on the teacher's
// cmd/memoria/marcos.go free-frame bookkeeping, simplified to a flat
// frame-ownership map since address translation is out of scope
// (SPEC_FULL.md §1 non-goals).
package memory

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/lccx-tp/csopesy-core/internal/backingstore"
	"github.com/lccx-tp/csopesy-core/internal/coreerr"
	"github.com/lccx-tp/csopesy-core/internal/process"
)

// ErrNoSpace is wrapped into a coreerr.AdmissionTransient when no
// placement can be found even after evicting every evictable resident.
var ErrNoSpace = errors.New("memory: no space available")

// Stats summarizes an allocator's current occupancy.
type Stats struct {
	UsedBytes         int
	CapacityBytes     int
	ResidentCount     int
	PageIns           int
	PageOuts          int
	ExternalFragBytes int
}

// Allocator is the interface both the flat and paging implementations
// satisfy. Admit blocks (by evicting, never by sleeping) until it can
// place p or it determines placement is impossible right now.
type Allocator interface {
	Admit(p *process.Process) error
	Release(p *process.Process)
	Snapshot() string
	Stats() Stats
}

// Deps are the collaborators an allocator needs but must not own
// outright, breaking the scheduler/process/allocator reference cycle
// noted in SPEC_FULL.md §9: the allocator asks the scheduler whether a
// pid is running instead of holding a reference to the scheduler
// itself, and asks the admission façade for the live *process.Process
// behind a pid instead of caching one.
type Deps struct {
	IsRunning func(pid int) bool
	Lookup    func(pid int) *process.Process
	Store     *backingstore.Store
	Log       *logrus.Entry
}

// New picks flat or paging per SPEC_FULL.md §4.3.3: paging only pays
// for itself once a process can span more than one frame.
func New(maxBytes, frameBytes int, deps Deps) Allocator {
	if maxBytes == frameBytes {
		return NewFlat(maxBytes, deps)
	}
	return NewPaging(maxBytes, frameBytes, deps)
}

// residentFIFO is the shared "oldest resident first" bookkeeping used
// by both allocators' eviction discipline (SPEC_FULL.md §4.3): the
// oldest resident process that is not currently RUNNING is evicted
// first.
type residentFIFO struct {
	order []int
}

func (r *residentFIFO) add(pid int) {
	r.order = append(r.order, pid)
}

func (r *residentFIFO) remove(pid int) {
	for i, p := range r.order {
		if p == pid {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

// oldestEvictable returns the pid of the oldest resident process for
// which isRunning is false, or ok=false if every resident is currently
// running (nothing can be evicted).
func (r *residentFIFO) oldestEvictable(isRunning func(pid int) bool) (pid int, ok bool) {
	for _, p := range r.order {
		if !isRunning(p) {
			return p, true
		}
	}
	return 0, false
}

func evictionError(op string) error {
	return coreerr.New(coreerr.AdmissionTransient, op, ErrNoSpace)
}

// permanentError reports a request that can never be satisfied, no
// matter how much eviction happens, because the process's own
// footprint exceeds total capacity.
func permanentError(op string, need, capacity int) error {
	return coreerr.New(coreerr.AdmissionPermanent, op, fmt.Errorf("requested %d bytes exceeds capacity %d", need, capacity))
}
