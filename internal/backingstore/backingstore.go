// Package backingstore implements the on-disk store evicted processes
// are written to, per SPEC_FULL.md §4.4: an append-only, pipe-delimited
// text file, one record per eviction.
//
// Grounded on the teacher's cmd/memoria/swap.go (moverASwap,
// recuperarDeSwap), simplified from a per-page binary image to a single
// descriptor line — the backing store persists a process's bookkeeping,
// not its instruction stream, since process.GenerateProgram rebuilds a
// program from its length alone. The package stores and looks up
// records; it does not rebuild processes from them.
package backingstore

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lccx-tp/csopesy-core/internal/coreerr"
)

// Record is one evicted process's descriptor.
type Record struct {
	PID        int
	Name       string
	CreatedAt  time.Time
	PC         int
	ProgramLen int
	MemBytes   int
	Pages      int
}

// Store is a single mutex-guarded append-only file, keyed by pid.
type Store struct {
	mu   sync.Mutex
	path string
	file *os.File
	log  *logrus.Entry
}

// Open creates (or appends to) the backing store file at path.
func Open(path string, log *logrus.Entry) (*Store, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, coreerr.New(coreerr.BackingStoreIO, "backingstore.Open", err)
	}
	return &Store{path: path, file: f, log: log}, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// Append writes r as a new pipe-delimited record. A later record for
// the same pid shadows an earlier one on Lookup (the file is a log,
// not a table with in-place updates — appropriate since evictions of
// the same pid are rare and the file is expected to stay small for a
// simulator run).
func (s *Store) Append(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	line := fmt.Sprintf("%d|%s|%s|%d|%d|%d|%d\n",
		r.PID, r.Name, r.CreatedAt.Format(time.RFC3339Nano), r.PC, r.ProgramLen, r.MemBytes, r.Pages)
	if _, err := s.file.WriteString(line); err != nil {
		return coreerr.New(coreerr.BackingStoreIO, "backingstore.Append", err)
	}
	if err := s.file.Sync(); err != nil {
		return coreerr.New(coreerr.BackingStoreIO, "backingstore.Append", err)
	}
	s.log.WithField("pid", r.PID).Debug("evicted process written to backing store")
	return nil
}

// Lookup scans the file for the most recent record with the given pid.
func (s *Store) Lookup(pid int) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Seek(0, 0); err != nil {
		return Record{}, false, coreerr.New(coreerr.BackingStoreIO, "backingstore.Lookup", err)
	}
	var found Record
	ok := false
	sc := bufio.NewScanner(s.file)
	for sc.Scan() {
		r, err := parseLine(sc.Text())
		if err != nil {
			continue
		}
		if r.PID == pid {
			found, ok = r, true
		}
	}
	if err := sc.Err(); err != nil {
		return Record{}, false, coreerr.New(coreerr.BackingStoreIO, "backingstore.Lookup", err)
	}
	return found, ok, nil
}

func parseLine(line string) (Record, error) {
	parts := strings.Split(line, "|")
	if len(parts) != 7 {
		return Record{}, fmt.Errorf("malformed backing-store record %q", line)
	}
	pid, err := strconv.Atoi(parts[0])
	if err != nil {
		return Record{}, err
	}
	createdAt, err := time.Parse(time.RFC3339Nano, parts[2])
	if err != nil {
		return Record{}, err
	}
	pc, err := strconv.Atoi(parts[3])
	if err != nil {
		return Record{}, err
	}
	programLen, err := strconv.Atoi(parts[4])
	if err != nil {
		return Record{}, err
	}
	memBytes, err := strconv.Atoi(parts[5])
	if err != nil {
		return Record{}, err
	}
	pages, err := strconv.Atoi(parts[6])
	if err != nil {
		return Record{}, err
	}
	return Record{
		PID: pid, Name: parts[1], CreatedAt: createdAt,
		PC: pc, ProgramLen: programLen, MemBytes: memBytes, Pages: pages,
	}, nil
}
