// Package diagnostics formats the kernel's fatal halts and thread/queue
// dumps in a consistent way, the same shape the teacher's own
// ProgramDiagnostic/Diagnostic/WriteTo trio uses for compiler errors: small
// formatted-value structs with a WriteTo method, not a logging framework.
package diagnostics

import (
	"fmt"
	"io"
	"os"

	colorable "github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Severity distinguishes a fatal halt from an informational dump.
type Severity int

const (
	Info Severity = iota
	Fatal
)

// Halt is a fatal kernel halt: a PRECONDITION, STACK_OVERFLOW, or PANIC
// failure, carrying the same two facts the original kernel's PANIC() macro
// prints - the failing thread's name and the file:line of the assertion -
// per spec.md §7.
type Halt struct {
	Thread string
	File   string
	Line   int
	Msg    string
}

// WriteTo writes h to w, colored red when w is a terminal (the direct
// generalization of the teacher's cpuColoredPrint idea in
// runtime/scheduler_cores.go, here used to distinguish a fatal halt from
// ordinary dump output instead of distinguishing CPU cores).
func (h Halt) WriteTo(w io.Writer) {
	writeColored(w, "\x1b[31m", fmt.Sprintf("PANIC in thread \"%s\" at %s:%d: %s\n", h.Thread, h.File, h.Line, h.Msg))
}

// ThreadSnapshot is one line of a ready/sleep/all-threads dump.
type ThreadSnapshot struct {
	Name       string
	Tid        int
	State      string
	Priority   int
	Nice       int
	WakeupTick uint64 // only meaningful for a sleep-queue snapshot
}

// Dump is a titled list of thread snapshots, the printable form of
// DumpReadyQueue/DumpSleepQueue/DumpAllThreads.
type Dump struct {
	Title   string
	Threads []ThreadSnapshot
}

// WriteTo writes d as a plain, uncolored table - thread dumps are routine
// output, not a failure signal, so they never get the red treatment Halt
// gets.
func (d Dump) WriteTo(w io.Writer) {
	fmt.Fprintf(w, "%s (%d threads):\n", d.Title, len(d.Threads))
	for _, th := range d.Threads {
		if th.WakeupTick != 0 {
			fmt.Fprintf(w, "  tid=%d %-12s state=%-8s priority=%-3d nice=%-3d wakeup=%d\n",
				th.Tid, th.Name, th.State, th.Priority, th.Nice, th.WakeupTick)
			continue
		}
		fmt.Fprintf(w, "  tid=%d %-12s state=%-8s priority=%-3d nice=%-3d\n",
			th.Tid, th.Name, th.State, th.Priority, th.Nice)
	}
}

// Stats is the idle/kernel/user tick breakdown spec.md §6 says is
// printable but not persisted.
type Stats struct {
	Ticks      uint64
	IdleTicks  uint64
	KernelTicks uint64
	UserTicks  uint64
}

// WriteTo writes s as a one-line summary.
func (s Stats) WriteTo(w io.Writer) {
	fmt.Fprintf(w, "Thread: %d idle ticks, %d kernel ticks, %d user ticks\n", s.IdleTicks, s.KernelTicks, s.UserTicks)
}

// writeColored writes msg to w wrapped in the ANSI color code when w is a
// terminal *os.File, and plain otherwise. Wrapping the file in go-colorable
// first lets the ANSI codes survive on a Windows console, which otherwise
// doesn't interpret them; the isatty check decides whether to emit them at
// all, so piping kernel output to a regular file never embeds escape codes.
func writeColored(w io.Writer, code, msg string) {
	f, ok := w.(*os.File)
	if !ok || !(isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		fmt.Fprint(w, msg)
		return
	}
	fmt.Fprint(colorable.NewColorable(f), code, msg, "\x1b[0m")
}
