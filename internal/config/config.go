// Package config loads the simulator's configuration file: a plain
// whitespace-separated key/value text format, not JSON — the teacher's
// utils.CargarConfiguracion[T] loader decoded JSON because each of its
// modules exchanged config over the same wire it used for RPC. This
// loader answers to a single in-process caller, so it reads the format
// the simulator actually ships (see SPEC_FULL.md §6).
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/lccx-tp/csopesy-core/internal/coreerr"
	"github.com/lccx-tp/csopesy-core/internal/xnum"
)

// SchedulerPolicy names the dispatch discipline.
type SchedulerPolicy string

const (
	FCFS SchedulerPolicy = "fcfs"
	RR   SchedulerPolicy = "rr"
)

// Config mirrors the key table in SPEC_FULL.md §6.
type Config struct {
	NumCPU           int
	Scheduler        SchedulerPolicy
	QuantumCycles    int
	BatchProcessFreq int
	MinIns           int
	MaxIns           int
	DelaysPerExec    int
	MaxOverallMem    int
	MemPerFrame      int
	MinMemPerProc    int
	MaxMemPerProc    int
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, coreerr.New(coreerr.BadConfig, "config.Load", err)
	}
	defer f.Close()

	cfg, err := parse(f)
	if err != nil {
		return nil, coreerr.New(coreerr.BadConfig, "config.Load", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, coreerr.New(coreerr.BadConfig, "config.Load", err)
	}
	return cfg, nil
}

func parse(r io.Reader) (*Config, error) {
	raw := map[string]string{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed config line %q", line)
		}
		key := fields[0]
		value := strings.Trim(strings.Join(fields[1:], " "), `"`)
		raw[key] = value
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	cfg := &Config{}
	var err error
	if cfg.NumCPU, err = reqInt(raw, "num-cpu"); err != nil {
		return nil, err
	}
	schedRaw, ok := raw["scheduler"]
	if !ok {
		return nil, fmt.Errorf("missing key %q", "scheduler")
	}
	switch SchedulerPolicy(strings.ToLower(schedRaw)) {
	case FCFS:
		cfg.Scheduler = FCFS
	case RR:
		cfg.Scheduler = RR
	default:
		return nil, fmt.Errorf("scheduler %q is not one of fcfs, rr", schedRaw)
	}
	if cfg.QuantumCycles, err = reqInt(raw, "quantum-cycles"); err != nil {
		return nil, err
	}
	if cfg.BatchProcessFreq, err = reqInt(raw, "batch-process-freq"); err != nil {
		return nil, err
	}
	if cfg.MinIns, err = reqInt(raw, "min-ins"); err != nil {
		return nil, err
	}
	if cfg.MaxIns, err = reqInt(raw, "max-ins"); err != nil {
		return nil, err
	}
	if cfg.DelaysPerExec, err = reqInt(raw, "delays-per-exec"); err != nil {
		return nil, err
	}
	if cfg.MaxOverallMem, err = reqInt(raw, "max-overall-mem"); err != nil {
		return nil, err
	}
	if cfg.MemPerFrame, err = reqInt(raw, "mem-per-frame"); err != nil {
		return nil, err
	}
	if cfg.MinMemPerProc, err = reqInt(raw, "min-mem-per-proc"); err != nil {
		return nil, err
	}
	if cfg.MaxMemPerProc, err = reqInt(raw, "max-mem-per-proc"); err != nil {
		return nil, err
	}
	return cfg, nil
}

func reqInt(raw map[string]string, key string) (int, error) {
	v, ok := raw[key]
	if !ok {
		return 0, fmt.Errorf("missing key %q", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("key %q: %v", key, err)
	}
	return n, nil
}

// Validate enforces the cross-field constraints from SPEC_FULL.md §6:
// scheduling parameters must be positive, the instruction-count and
// per-process memory ranges must be non-empty, and overall memory must
// be an exact multiple of the frame size (a partial frame has no owner
// to belong to).
func (c *Config) Validate() error {
	if c.NumCPU < 1 {
		return fmt.Errorf("num-cpu must be >= 1, got %d", c.NumCPU)
	}
	if c.QuantumCycles < 1 && c.Scheduler == RR {
		return fmt.Errorf("quantum-cycles must be >= 1 for rr, got %d", c.QuantumCycles)
	}
	if c.BatchProcessFreq < 1 {
		return fmt.Errorf("batch-process-freq must be >= 1, got %d", c.BatchProcessFreq)
	}
	if c.MinIns < 1 || c.MaxIns < c.MinIns {
		return fmt.Errorf("min-ins/max-ins invalid: %d/%d", c.MinIns, c.MaxIns)
	}
	if c.DelaysPerExec < 0 {
		return fmt.Errorf("delays-per-exec must be >= 0, got %d", c.DelaysPerExec)
	}
	if c.MemPerFrame < 1 {
		return fmt.Errorf("mem-per-frame must be >= 1, got %d", c.MemPerFrame)
	}
	if c.MaxOverallMem < c.MemPerFrame {
		return fmt.Errorf("max-overall-mem (%d) must be >= mem-per-frame (%d)", c.MaxOverallMem, c.MemPerFrame)
	}
	if c.MaxOverallMem%c.MemPerFrame != 0 {
		return fmt.Errorf("max-overall-mem (%d) must be a multiple of mem-per-frame (%d)", c.MaxOverallMem, c.MemPerFrame)
	}
	if c.MinMemPerProc < 1 || c.MaxMemPerProc < c.MinMemPerProc {
		return fmt.Errorf("min-mem-per-proc/max-mem-per-proc invalid: %d/%d", c.MinMemPerProc, c.MaxMemPerProc)
	}
	if !xnum.IsPow2(c.MinMemPerProc) {
		return fmt.Errorf("min-mem-per-proc (%d) must be a power of two", c.MinMemPerProc)
	}
	if !xnum.IsPow2(c.MaxMemPerProc) {
		return fmt.Errorf("max-mem-per-proc (%d) must be a power of two", c.MaxMemPerProc)
	}
	if c.MaxMemPerProc > c.MaxOverallMem {
		return fmt.Errorf("max-mem-per-proc (%d) must be <= max-overall-mem (%d)", c.MaxMemPerProc, c.MaxOverallMem)
	}
	return nil
}
