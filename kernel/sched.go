package kernel

import (
	"fmt"
	"sync"

	"github.com/austin-personal/pintos-kaist-jungle/fixedpoint"
)

// TimeSlice is the number of ticks a thread may run before the round-robin
// scheduler considers it due for preemption, mirroring pintos's TIME_SLICE.
const TimeSlice = 4

// Kernel is one simulated machine: a ready queue, a sleep queue, and the
// single currently-running thread. All exported methods that touch
// scheduler state take Kernel.mu, the stand-in for pintos's "interrupts
// disabled" discipline: every operation here corresponds to something the
// original kernel only ever does with interrupts off.
type Kernel struct {
	mu sync.Mutex

	current *Thread
	idle    *Thread
	nextTid int

	readyHead *Thread // sorted by priority desc, FIFO within a priority
	sleepHead *Thread // sorted by wakeupTick asc
	allHead   *Thread // MLFQS all-threads list

	ticks       uint64
	idleTicks   uint64
	kernelTicks uint64
	userTicks   uint64

	mlfqs   bool
	loadAvg fixedpoint.Q

	driver       TickDriver
	loopsPerTick uint64
}

// defaultLoopsPerTick is used until CalibrateLoopsPerTick's result is wired
// in with WithLoopsPerTick; it only affects MSleep/USleep/NSleep's sub-tick
// busy-wait, never the scheduler's own behavior.
const defaultLoopsPerTick = 1_000_000

// Option configures a Kernel at construction time.
type Option func(*Kernel)

// WithMLFQS enables the 4.4BSD multi-level feedback queue scheduler in
// place of plain priority scheduling.
func WithMLFQS() Option {
	return func(k *Kernel) { k.mlfqs = true }
}

// WithLoopsPerTick sets the calibrated loops-per-tick constant MSleep,
// USleep, and NSleep busy-wait against for sub-tick durations, the Go
// analogue of installing timer_calibrate's result before any real_time_sleep
// call. See CalibrateLoopsPerTick.
func WithLoopsPerTick(loops uint64) Option {
	return func(k *Kernel) { k.loopsPerTick = loops }
}

// New boots a Kernel: it creates the idle thread, parked until the ready
// queue first runs empty, and installs the caller's own goroutine as the
// initial running context - the "main" thread, named main, at PriDefault
// priority; callers should use the
// returned *Thread to Exit, Create children from, etc.
func New(opts ...Option) (*Kernel, *Thread) {
	k := &Kernel{driver: NewManualTicker(DefaultTimerFreq), loopsPerTick: defaultLoopsPerTick}
	for _, opt := range opts {
		opt(k)
	}

	k.idle = newThread(k, k.allocTid(), "idle", PriMin, idleLoop)
	k.addToAllThreads(k.idle)
	go func() {
		k.idle.pauseUntilResumed()
		k.idle.fn(k.idle)
	}()

	main := newThread(k, k.allocTid(), "main", PriDefault, nil)
	main.state = Running
	k.addToAllThreads(main)
	k.current = main

	return k, main
}

func (k *Kernel) allocTid() int {
	k.nextTid++
	return k.nextTid
}

func idleLoop(t *Thread) {
	for {
		t.k.Yield(t)
	}
}

// Ticks returns the number of timer ticks the kernel has observed.
func (k *Kernel) Ticks() uint64 {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.ticks
}

// Current returns the thread currently holding the CPU.
func (k *Kernel) Current() *Thread {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.current
}

// Create allocates a new thread, adds it to the ready queue, and yields the
// CPU to it if its priority is higher than the caller's. fn runs on its own
// goroutine, starting only once the scheduler first resumes it.
func (k *Kernel) Create(caller *Thread, name string, priority int, fn func(t *Thread)) (*Thread, error) {
	if priority < PriMin || priority > PriMax {
		return nil, PreconditionError{fmt.Sprintf("priority %d out of range [%d,%d]", priority, PriMin, PriMax)}
	}
	k.mu.Lock()
	t := newThread(k, k.allocTid(), name, priority, fn)
	if k.mlfqs {
		t.nice = caller.nice
		t.recentCPU = caller.recentCPU
		t.priority = mlfqsPriority(t)
		t.origPriority = t.priority
	}
	t.state = Ready
	k.addToAllThreads(t)
	k.readyPush(t)
	preempt := t.priority > caller.priority
	k.mu.Unlock()

	go func() {
		t.pauseUntilResumed()
		t.fn(t)
		k.Exit(t)
	}()

	if preempt {
		k.Yield(caller)
	}
	return t, nil
}

// Yield gives up the CPU voluntarily. The calling thread goes back onto the
// ready queue and the scheduler picks whichever runnable thread (possibly
// the same one, if it is still the highest priority) runs next.
func (k *Kernel) Yield(t *Thread) {
	k.mu.Lock()
	if t != k.idle {
		t.state = Ready
		k.readyPush(t)
	}
	k.schedule(t)
	k.mu.Unlock()
}

// CheckPreempt yields the CPU if the tick handler has flagged t as due for
// preemption - its round-robin slice expired, or a higher-priority thread
// became ready while it ran - and is a no-op otherwise. A CPU-bound
// workload that never calls another blocking kernel primitive should call
// this periodically (e.g. once per simulated unit of work) to stay
// preemptible; see timer.go for why the tick handler cannot force this
// itself.
func (k *Kernel) CheckPreempt(t *Thread) {
	k.mu.Lock()
	due := t.preempt
	k.mu.Unlock()
	if due {
		k.Yield(t)
	}
}

// Block removes t from the CPU and parks it off every scheduling queue.
// Callers (semaphores, locks, condvars, the sleep queue) are responsible for
// putting t on whatever collection it should wake from, and for eventually
// calling Unblock. Block must be called by t's own goroutine.
func (k *Kernel) Block(t *Thread) {
	k.mu.Lock()
	t.state = Blocked
	k.schedule(t)
	k.mu.Unlock()
}

// Unblock moves a blocked thread back onto the ready queue. It may be
// called from any thread's context (the thread releasing a lock or posting
// a semaphore), but not from the tick handler, which holds mu and wakes
// sleepers through wakeDueSleepers instead; if the unblocked
// thread's priority exceeds the caller's, Unblock yields the caller's CPU
// to it immediately, matching pintos's preemption-on-unblock behavior.
func (k *Kernel) Unblock(caller *Thread, t *Thread) {
	k.mu.Lock()
	if t.state != Blocked {
		k.mu.Unlock()
		fatal(t, PanicError{Thread: t.name, Msg: fmt.Sprintf("unblock: %q is not blocked (state=%s)", t.name, t.state)})
	}
	t.state = Ready
	k.readyPush(t)
	preempt := caller != nil && t.priority > caller.priority
	k.mu.Unlock()
	if preempt {
		k.Yield(caller)
	}
}

// Exit terminates t. It never returns: the goroutine running fn calls Exit
// once fn has finished, at which point t is removed from the all-threads
// list and the CPU is handed to the next ready thread.
func (k *Kernel) Exit(t *Thread) {
	k.mu.Lock()
	t.state = Dying
	k.removeFromAllThreads(t)
	close(t.done)
	k.schedule(t)
	// schedule never returns for the exiting thread: its goroutine is
	// never resumed again, so execution stops here for good.
	select {}
}

// Done returns a channel closed once t has exited, so other threads (or
// tests) can wait for it without busy-polling priority state.
func (t *Thread) Done() <-chan struct{} { return t.done }

// SetPriority changes t's base priority. It is a no-op under MLFQS, which
// drives priority solely from the feedback formulas in mlfqs.go. The
// effective priority is recomputed at once as the larger of the new base
// and the highest priority donated to t by threads waiting on locks it
// holds, so a donation above the new base keeps Priority() at the donated
// value until that donation is released. If lowering the
// priority causes a higher-priority thread to now be ready, the caller
// yields immediately.
func (k *Kernel) SetPriority(t *Thread, priority int) error {
	if priority < PriMin || priority > PriMax {
		return PreconditionError{fmt.Sprintf("priority %d out of range [%d,%d]", priority, PriMin, PriMax)}
	}
	k.mu.Lock()
	if k.mlfqs {
		k.mu.Unlock()
		return nil
	}
	t.origPriority = priority
	newPriority := priority
	for _, d := range t.donations {
		if d.donor.priority > newPriority {
			newPriority = d.donor.priority
		}
	}
	t.priority = newPriority
	shouldYield := k.readyHead != nil && k.readyHead.priority > t.priority
	k.mu.Unlock()
	if shouldYield {
		k.Yield(t)
	}
	return nil
}

// SetNice changes t's MLFQS niceness and immediately recomputes its
// priority, yielding if it is no longer the highest-priority runnable
// thread.
func (k *Kernel) SetNice(t *Thread, nice int) error {
	if nice < NiceMin || nice > NiceMax {
		return PreconditionError{fmt.Sprintf("nice %d out of range [%d,%d]", nice, NiceMin, NiceMax)}
	}
	k.mu.Lock()
	t.nice = nice
	if k.mlfqs {
		t.priority = mlfqsPriority(t)
	}
	shouldYield := k.readyHead != nil && k.readyHead.priority > t.priority
	k.mu.Unlock()
	if shouldYield {
		k.Yield(t)
	}
	return nil
}

// GetLoadAvg returns the system load average, scaled to an integer the way
// thread_get_load_avg does: 100 * load_avg, rounded to the nearest integer.
func (k *Kernel) GetLoadAvg() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.loadAvg.MulInt(100).ToIntRound()
}

// GetRecentCPU returns t's recent_cpu scaled the corrected way: multiply by
// 100 in fixed-point first, then round to the nearest integer once. See
// DESIGN.md for the original accessor's rounding bug this corrects.
func (k *Kernel) GetRecentCPU(t *Thread) int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return t.recentCPU.MulInt(100).ToIntRound()
}

// schedule picks the next thread to run and performs the context switch. It
// must be called with mu held and with prev's scheduling state (ready,
// blocked, sleeping, or dying) already updated by the caller. It unlocks mu
// before resuming the next thread - next needs no lock to start running
// user code - and, mirroring the "interrupts off on entry and exit"
// discipline every scheduler operation follows, re-acquires mu before
// returning to prev once prev is resumed again. The one exception is a
// prev that is Dying: its goroutine is never resumed, so schedule leaves mu
// unlocked for good and does not return to it in any meaningful sense.
func (k *Kernel) schedule(prev *Thread) {
	if prev.magic != threadMagic {
		k.mu.Unlock()
		fatal(prev, StackOverflowError{Thread: prev.name})
	}
	next := k.readyPop()
	if next == nil {
		next = k.idle
	}
	k.current = next
	next.state = Running
	next.sliceTicks = 0
	next.preempt = false
	k.mu.Unlock()
	next.resume()
	if prev.state != Dying {
		prev.pauseUntilResumed()
		k.mu.Lock()
	}
}

// readyPush inserts t into the ready queue, ordered by descending
// priority with FIFO ordering among threads of equal priority.
func (k *Kernel) readyPush(t *Thread) {
	t.schedNext = nil
	if k.readyHead == nil || t.priority > k.readyHead.priority {
		t.schedNext = k.readyHead
		k.readyHead = t
		return
	}
	prev := k.readyHead
	for prev.schedNext != nil && prev.schedNext.priority >= t.priority {
		prev = prev.schedNext
	}
	t.schedNext = prev.schedNext
	prev.schedNext = t
}

// readyPop removes and returns the head of the ready queue, or nil if it is
// empty.
func (k *Kernel) readyPop() *Thread {
	t := k.readyHead
	if t == nil {
		return nil
	}
	k.readyHead = t.schedNext
	t.schedNext = nil
	return t
}

// readyRemove removes t from the ready queue if present, used when a
// thread's priority changes and it needs to be reinserted in sorted order.
func (k *Kernel) readyRemove(t *Thread) bool {
	if k.readyHead == t {
		k.readyHead = t.schedNext
		t.schedNext = nil
		return true
	}
	for prev := k.readyHead; prev != nil; prev = prev.schedNext {
		if prev.schedNext == t {
			prev.schedNext = t.schedNext
			t.schedNext = nil
			return true
		}
	}
	return false
}

func (k *Kernel) addToAllThreads(t *Thread) {
	t.allNext = k.allHead
	k.allHead = t
	t.inAll = true
}

func (k *Kernel) removeFromAllThreads(t *Thread) {
	if !t.inAll {
		return
	}
	if k.allHead == t {
		k.allHead = t.allNext
	} else {
		for prev := k.allHead; prev != nil; prev = prev.allNext {
			if prev.allNext == t {
				prev.allNext = t.allNext
				break
			}
		}
	}
	t.allNext = nil
	t.inAll = false
}

// forEachThread calls fn for every thread in the all-threads list. Only
// meaningful under MLFQS, where every thread (not just ready ones) needs
// its priority and recent_cpu recomputed periodically.
func (k *Kernel) forEachThread(fn func(*Thread)) {
	for t := k.allHead; t != nil; t = t.allNext {
		fn(t)
	}
}

// readyLen reports how many threads are waiting on the ready queue, used by
// the MLFQS load average formula's "ready_threads" term (which counts the
// running thread too, unless it is idle).
func (k *Kernel) readyLen() int {
	n := 0
	for t := k.readyHead; t != nil; t = t.schedNext {
		n++
	}
	if k.current != nil && k.current != k.idle {
		n++
	}
	return n
}
