// Package console implements the line-oriented command loop described
// in SPEC_FULL.md §6. The specification calls the command parser an
// external collaborator out of the CORE's scope; this package is the
// runnable harness that exercises the CORE end to end, grounded on the
// teacher's cmd/kernel/main.go bufio.NewReader(os.Stdin) read loop and
// its "press enter to begin" pre-scheduling gate (generalized here to
// "type initialize to begin").
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lccx-tp/csopesy-core/internal/admission"
	"github.com/lccx-tp/csopesy-core/internal/clock"
	"github.com/lccx-tp/csopesy-core/internal/coreerr"
	"github.com/lccx-tp/csopesy-core/internal/process"
	"github.com/lccx-tp/csopesy-core/internal/report"
	"github.com/lccx-tp/csopesy-core/internal/scheduler"
)

// Runtime bundles the pieces built by initialize.
type Runtime struct {
	Manager   *admission.Manager
	Clock     *clock.Clock
	Scheduler *scheduler.Scheduler
}

// InitFunc constructs a Runtime from a config file path. It is
// supplied by the caller (cmd/csopesyctl) so this package never
// depends on how the pieces are wired together.
type InitFunc func(configPath string) (*Runtime, error)

// Console runs the read-eval-print loop described in SPEC_FULL.md §6.
type Console struct {
	in        *bufio.Reader
	out       io.Writer
	initFn    InitFunc
	reportDir string
	log       *logrus.Entry

	rt *Runtime
}

// New builds a console reading from in and writing to out.
func New(in io.Reader, out io.Writer, reportDir string, initFn InitFunc, log *logrus.Entry) *Console {
	return &Console{in: bufio.NewReader(in), out: out, initFn: initFn, reportDir: reportDir, log: log}
}

// Run drives the command loop until exit or EOF.
func (c *Console) Run() error {
	fmt.Fprintln(c.out, "csopesy core simulator. type 'initialize' to begin.")
	for {
		fmt.Fprint(c.out, "> ")
		line, err := c.in.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" {
			c.shutdown()
			return nil
		}
		if err := c.dispatch(line); err != nil {
			fmt.Fprintln(c.out, "error:", err)
		}
	}
}

func (c *Console) shutdown() {
	if c.rt == nil {
		return
	}
	c.rt.Scheduler.Stop()
	c.rt.Clock.Stop()
}

func (c *Console) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd := fields[0]
	args := fields[1:]

	switch cmd {
	case "initialize":
		return c.cmdInitialize(args)
	case "clear":
		fmt.Fprint(c.out, "\033[H\033[2J")
		return nil
	}

	if c.rt == nil {
		return coreerr.New(coreerr.NotInitialized, cmd, fmt.Errorf("run 'initialize' first"))
	}

	switch cmd {
	case "screen":
		return c.cmdScreen(args)
	case "scheduler-test":
		return c.rt.Manager.StartBatchGenerator()
	case "scheduler-stop":
		return c.rt.Manager.StopBatchGenerator()
	case "process-smi":
		return c.cmdProcessSMI()
	case "vmstat":
		return c.cmdVMStat()
	case "report-util":
		path, err := report.Write(c.reportDir, c.rt.Manager)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.out, "report written to", path)
		return nil
	default:
		return coreerr.New(coreerr.UnknownCommand, cmd, fmt.Errorf("unrecognized command %q", cmd))
	}
}

func (c *Console) cmdInitialize(args []string) error {
	if c.rt != nil {
		return coreerr.New(coreerr.UnknownCommand, "initialize", fmt.Errorf("already initialized"))
	}
	path := "config.txt"
	if len(args) > 0 {
		path = args[0]
	}
	rt, err := c.initFn(path)
	if err != nil {
		return err
	}
	c.rt = rt
	fmt.Fprintln(c.out, "initialized from", path)
	return nil
}

func (c *Console) cmdScreen(args []string) error {
	if len(args) == 0 {
		return coreerr.New(coreerr.UnknownCommand, "screen", fmt.Errorf("usage: screen -s|-r|-ls [name]"))
	}
	switch args[0] {
	case "-s":
		if len(args) < 2 {
			return fmt.Errorf("usage: screen -s <name>")
		}
		p, err := c.rt.Manager.Submit(args[1], time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(c.out, "process %s admitted, pid=%d\n", p.Name(), p.PID())
		return nil
	case "-r":
		if len(args) < 2 {
			return fmt.Errorf("usage: screen -r <name>")
		}
		p, ok := c.rt.Manager.LookupByName(args[1])
		if !ok {
			return fmt.Errorf("process %q not found", args[1])
		}
		if p.State() == process.Finished {
			return fmt.Errorf("process %q has already finished", args[1])
		}
		fmt.Fprintf(c.out, "%s: pid=%d state=%s pc=%d/%d core=%d\n",
			p.Name(), p.PID(), p.State(), p.PC(), p.ProgramLen(), p.CoreID())
		return nil
	case "-ls":
		for _, p := range c.rt.Manager.ListAll() {
			fmt.Fprintf(c.out, "%-12s pid=%-6d state=%-9s pc=%d/%d core=%d\n",
				p.Name(), p.PID(), p.State(), p.PC(), p.ProgramLen(), p.CoreID())
		}
		return nil
	default:
		return fmt.Errorf("usage: screen -s|-r|-ls [name]")
	}
}

func (c *Console) cmdProcessSMI() error {
	r := c.rt.Manager.ProcessSMI()
	fmt.Fprintf(c.out, "CPU utilization: %.2f%% (%d/%d cores busy)\n", r.UtilizationPct, r.CoresUsed, r.CoresAvail)
	for _, p := range r.Running {
		fmt.Fprintf(c.out, "  core=%d pid=%d name=%s pc=%d/%d\n", p.CoreID(), p.PID(), p.Name(), p.PC(), p.ProgramLen())
	}
	return nil
}

func (c *Console) cmdVMStat() error {
	r := c.rt.Manager.VMStat()
	fmt.Fprintf(c.out, "ticks: total=%d active=%d idle=%d\n", r.TotalTicks, r.ActiveTicks, r.IdleTicks)
	fmt.Fprintf(c.out, "memory: total=%d used=%d free=%d\n", r.TotalMemBytes, r.UsedMemBytes, r.FreeMemBytes)
	fmt.Fprintf(c.out, "paging: in=%d out=%d\n", r.PagesIn, r.PagesOut)
	return nil
}
