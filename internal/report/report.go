// Package report implements the report-util command: a snapshot of
// every known process written to a timestamped section of a running
// log file.
//
// Grounded on the teacher's cmd/memoria/dump.go (crearMemoryDump):
// os.MkdirAll + os.Create + buffered write, run each time the command
// fires rather than continuously.
package report

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/lccx-tp/csopesy-core/internal/admission"
	"github.com/lccx-tp/csopesy-core/internal/process"
)

const logFileName = "csopesy-log.txt"

// Write appends a timestamped snapshot of every process in mgr to
// logFileName in dir.
func Write(dir string, mgr *admission.Manager) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	path := dir + string(os.PathSeparator) + logFileName
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	defer f.Close()

	fmt.Fprintf(f, "=== report %s ===\n", time.Now().Format(time.RFC3339))
	tw := tabwriter.NewWriter(f, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PID\tNAME\tSTATE\tCORE\tPC/TOTAL\tMEM_BYTES\tRESIDENCY")
	for _, p := range mgr.ListAll() {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%d/%d\t%d\t%s\n",
			p.PID(), p.Name(), p.State(), p.CoreID(), p.PC(), p.ProgramLen(), p.MemBytes(), residencyLabel(p.Residency()))
	}
	if err := tw.Flush(); err != nil {
		return "", fmt.Errorf("report: %w", err)
	}
	fmt.Fprintln(f)
	return path, nil
}

func residencyLabel(r process.Residency) string {
	switch r {
	case process.ResidentFlat:
		return "flat"
	case process.ResidentPaging:
		return "paging"
	case process.OnBackingStore:
		return "backing-store"
	default:
		return "none"
	}
}
