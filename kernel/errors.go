package kernel

import (
	"os"
	"runtime"

	"github.com/austin-personal/pintos-kaist-jungle/diagnostics"
)

// PreconditionError reports a violated precondition on a kernel call, such
// as a priority or niceness value outside its allowed range. Unlike
// PanicError and StackOverflowError, it does not halt the kernel: Create,
// SetPriority, and SetNice hand it back to the caller as an error.
type PreconditionError struct {
	Msg string
}

func (e PreconditionError) Error() string { return "precondition violated: " + e.Msg }

// PanicError models an assertion failure inside the kernel: a condition
// that, in the original C kernel, calls PANIC() and halts the machine. It
// carries the failing thread's name so the caller can report where things
// went wrong, the same information the real kernel prints alongside the
// file and line of the ASSERT that fired.
type PanicError struct {
	Thread string
	Msg    string
}

func (e PanicError) Error() string {
	return "kernel panic in thread " + e.Thread + ": " + e.Msg
}

// StackOverflowError models the guard-page fault the original kernel
// detects when a thread's 4 KiB stack is exhausted. This port has no real
// stacks to overflow, but keeps the same signal alive by checking a
// Thread's magic cookie on every scheduler entry (see threadMagic);
// a corrupted cookie reaches here exactly as a real overrun would reach
// the original's thread_current() ASSERT.
type StackOverflowError struct {
	Thread string
}

func (e StackOverflowError) Error() string {
	return "stack overflow in thread " + e.Thread
}

// OutOfMemoryError models palloc_get_page returning NULL, the one failure
// mode thread_create is expected to recover from by returning an error
// instead of halting.
type OutOfMemoryError struct {
	Reason string
}

func (e OutOfMemoryError) Error() string { return "out of memory: " + e.Reason }

// fatal halts the kernel the way the original's PANIC() macro does: print
// the failing thread's name and the file:line of the call site that
// detected the violation, then panic. Per spec §7 there is no recoverable
// path past a PRECONDITION or STACK_OVERFLOW failure - continuing would
// violate a global invariant (queue order, list membership uniqueness,
// donation chain acyclicity) - so every call site that detects one of
// these reaches here instead of returning an error.
func fatal(t *Thread, err error) {
	_, file, line, _ := runtime.Caller(1)
	name := "?"
	if t != nil {
		name = t.name
	}
	diagnostics.Halt{Thread: name, File: file, Line: line, Msg: err.Error()}.WriteTo(os.Stderr)
	panic(err)
}
