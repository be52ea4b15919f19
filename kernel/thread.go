// Package kernel implements the thread scheduler of a small educational
// kernel: a priority ready queue with donation-aware locks, a tick-driven
// sleep queue, and an optional MLFQS scheduling policy. A single goroutine
// represents the "CPU": at most one Thread's goroutine is ever allowed past
// its wake channel at a time, and every other participating goroutine sits
// parked until the scheduler resumes it. This mirrors how a preemptive
// kernel runs exactly one context per core, using the host's own scheduler
// only to hold blocked contexts, never to run them concurrently.
package kernel

import "github.com/austin-personal/pintos-kaist-jungle/fixedpoint"

// State is a Thread's position in its lifecycle.
type State int

const (
	// Blocked means the thread is waiting on a semaphore, lock, condition
	// variable, or the sleep queue. It holds no queue membership other than
	// the one collection it is blocked on.
	Blocked State = iota
	// Ready means the thread is on the ready queue, waiting for the CPU.
	Ready
	// Running means the thread currently holds the CPU.
	Running
	// Dying means the thread has called Exit and is waiting for the next
	// context switch to reclaim its resources.
	Dying
)

func (s State) String() string {
	switch s {
	case Blocked:
		return "blocked"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Dying:
		return "dying"
	default:
		return "unknown"
	}
}

// PriMin and PriMax bound both the base priority a thread may be created
// with and the donated priority a lock's donation chain may raise it to.
const (
	PriMin = 0
	PriMax = 63
	// PriDefault is the priority new threads get unless told otherwise.
	PriDefault = 31
	// NiceMin and NiceMax bound the MLFQS niceness value.
	NiceMin = -20
	NiceMax = 20
	// donationDepthLimit bounds how many locks a single Lock call will walk
	// while propagating a donation, so a cyclic or very deep wait-for graph
	// cannot make Acquire loop forever.
	donationDepthLimit = 8
)

// threadMagic is the stack-overflow guard cookie spec.md §3 lists under a
// Thread's identity fields, the Go analogue of pintos's THREAD_MAGIC: every
// scheduler entry checks a thread's magic still reads this value before
// touching anything else about it.
const threadMagic = 0xcd6abf4b

// donation records that donor's effective priority is being lent to the
// holder of lock, because donor is blocked waiting to acquire it. The
// donations list on a Thread is independent of schedNext/allNext: a thread
// can simultaneously be on the ready queue and be the target of several
// donations from threads blocked on its locks.
type donation struct {
	donor *Thread
	lock  *Lock
}

// Thread is a single schedulable context. All fields are only ever touched
// while the owning Kernel's mu is held; none are safe to read or write from
// outside the kernel package.
type Thread struct {
	name  string
	tid   int
	k     *Kernel
	magic uint32 // stack-overflow guard cookie; must stay threadMagic

	state State

	priority     int // effective priority, possibly raised by donation
	origPriority int // priority SetPriority last assigned, pre-donation
	nice         int
	recentCPU    fixedpoint.Q

	wakeupTick uint64   // valid only while on the sleep queue
	waitOnLock *Lock    // non-nil while blocked trying to Acquire a Lock
	donations  []donation

	// schedNext links this thread into exactly one of: the ready queue, the
	// sleep queue, the destruction queue, or a semaphore/lock/condvar
	// waiters list. A thread is never in more than one of these at once.
	schedNext *Thread

	// allNext links this thread into the kernel's all-threads list, used
	// only by the MLFQS policy to recompute every thread's priority each
	// fourth tick. Membership here is independent of schedNext.
	allNext *Thread
	inAll   bool

	wake chan struct{} // capacity 1; resume signal from the scheduler
	fn   func(t *Thread)
	done chan struct{}

	// sliceTicks counts ticks since this thread last became current;
	// preempt is set by the tick handler once sliceTicks reaches
	// TimeSlice, or once a higher-priority thread becomes ready. Neither
	// field forces a context switch by itself - see CheckPreempt - since
	// nothing outside this thread's own goroutine may pause it.
	sliceTicks int
	preempt    bool
}

// Name returns the thread's name, fixed at creation.
func (t *Thread) Name() string { return t.name }

// Tid returns the thread's identifier, unique within its Kernel.
func (t *Thread) Tid() int { return t.tid }

// Priority returns the thread's current effective priority, which may be
// higher than the priority it was last assigned if it is lending its
// priority to a lock holder.
func (t *Thread) Priority() int { return t.priority }

// Nice returns the thread's MLFQS niceness.
func (t *Thread) Nice() int { return t.nice }

// State returns the thread's current lifecycle state.
func (t *Thread) State() State { return t.state }

func newThread(k *Kernel, tid int, name string, priority int, fn func(t *Thread)) *Thread {
	return &Thread{
		name:         name,
		tid:          tid,
		k:            k,
		magic:        threadMagic,
		state:        Blocked,
		priority:     priority,
		origPriority: priority,
		fn:           fn,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
}

// resume lets a paused thread's goroutine continue running. The scheduler
// calls it only after unlocking the kernel's mu, so the resumed goroutine
// can take mu as soon as it runs: resume only posts to a buffered channel,
// it never blocks.
func (t *Thread) resume() {
	select {
	case t.wake <- struct{}{}:
	default:
		// Already has a pending wakeup; Resume is idempotent like a
		// counting semaphore capped at one outstanding wakeup, which is
		// all the scheduler ever needs.
	}
}

// pauseUntilResumed blocks the calling goroutine until resume is called.
// The caller must not be holding the kernel's mu: pauseUntilResumed is
// invoked by a new thread's goroutine before it first runs, and by the
// scheduler for the outgoing thread right after it has unlocked mu and
// handed the CPU token to the next thread by calling resume.
func (t *Thread) pauseUntilResumed() {
	<-t.wake
}
