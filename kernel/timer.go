package kernel

import (
	"sync/atomic"
	"time"
)

// DefaultTimerFreq is the tick rate used throughout this repository's
// scenarios and tests, matching TIMER_FREQ=100 from the original PIT setup
// (1,193,180 Hz divided by 100, rounded to the nearest divisor).
const DefaultTimerFreq = 100

// TickDriver is the kernel's hardware-facing tick source. The scheduler,
// sleep queue, and MLFQS policy only ever call Attach and Frequency; how
// ticks actually get delivered - a real-time goroutine or a test stepping
// by hand - is entirely the driver's concern, the same separation the
// original keeps between devices/timer.c (the driver) and threads/thread.c
// (the policy that consumes ticks.)
type TickDriver interface {
	// Frequency returns the configured tick rate in Hz.
	Frequency() int
	// Attach starts delivering ticks to onTick until Stop is called. A
	// driver whose ticks are driven externally (ManualTicker) may treat
	// Attach as a no-op.
	Attach(onTick func())
	// Stop halts delivery. Safe to call even if Attach was never called.
	Stop()
}

// Attach installs d as the kernel's tick source and starts delivering
// ticks. It must be called at most once per Kernel.
func (k *Kernel) Attach(d TickDriver) {
	k.driver = d
	d.Attach(k.onTick)
}

// Stop halts the kernel's tick source.
func (k *Kernel) Stop() {
	if k.driver != nil {
		k.driver.Stop()
	}
}

// onTick is the tick ISR: advance the clock, run MLFQS accounting, wake due
// sleepers, and flag the running thread for preemption if its slice has
// expired or a higher-priority thread is now ready. It never itself
// performs a context switch - see CheckPreempt and Yield - since nothing
// but a thread's own goroutine may pause it.
func (k *Kernel) onTick() {
	k.mu.Lock()
	k.ticks++
	now := k.ticks

	if k.mlfqs {
		k.mlfqsTick()
		if now%uint64(k.driver.Frequency()) == 0 {
			k.mlfqsRecomputeSecond()
		}
		if now%4 == 0 {
			k.mlfqsRecomputePriorities()
		}
	}

	k.wakeDueSleepers(now)

	// This port models only kernel threads, so every tick not spent idle is
	// a kernel tick; user_ticks stays zero but is still tracked and
	// reported so the idle+kernel+user == ticks invariant holds visibly
	// rather than by omission.
	if k.current == k.idle {
		k.idleTicks++
	} else {
		k.kernelTicks++
	}

	if k.current != nil && k.current != k.idle {
		k.current.sliceTicks++
		overQuantum := k.current.sliceTicks >= TimeSlice
		outranked := k.readyHead != nil && k.readyHead.priority > k.current.priority
		if overQuantum || outranked {
			k.current.preempt = true
		}
	}
	k.mu.Unlock()
}

// ManualTicker is a TickDriver stepped explicitly by the caller, used by
// every deterministic test and by the scenario runner: wall-clock-driven
// scheduling tests are inherently flaky, so anything that needs a
// reproducible tick sequence drives the clock itself instead of waiting on
// a real timer.
type ManualTicker struct {
	freq   int
	onTick func()
}

// NewManualTicker returns a driver at the given frequency. freq only
// affects MSleep/USleep/NSleep conversions and the once-a-second MLFQS
// recomputation; Step always advances exactly one tick regardless of freq.
func NewManualTicker(freq int) *ManualTicker {
	return &ManualTicker{freq: freq}
}

func (m *ManualTicker) Frequency() int { return m.freq }

func (m *ManualTicker) Attach(onTick func()) { m.onTick = onTick }

func (m *ManualTicker) Stop() {}

// Step delivers a single tick.
func (m *ManualTicker) Step() {
	if m.onTick != nil {
		m.onTick()
	}
}

// StepN delivers n ticks in sequence.
func (m *ManualTicker) StepN(n int) {
	for i := 0; i < n; i++ {
		m.Step()
	}
}

// RealTimeTicker drives ticks from a time.Ticker at Frequency Hz, for
// booting a kernel that runs against the wall clock instead of a test
// harness.
type RealTimeTicker struct {
	freq    int
	ticker  *time.Ticker
	stopped atomic.Bool
	done    chan struct{}
}

// NewRealTimeTicker returns a driver that will deliver ticks at freq Hz
// once Attach is called.
func NewRealTimeTicker(freq int) *RealTimeTicker {
	return &RealTimeTicker{freq: freq}
}

func (r *RealTimeTicker) Frequency() int { return r.freq }

func (r *RealTimeTicker) Attach(onTick func()) {
	r.ticker = time.NewTicker(time.Second / time.Duration(r.freq))
	r.done = make(chan struct{})
	go func() {
		for {
			select {
			case <-r.ticker.C:
				onTick()
			case <-r.done:
				return
			}
		}
	}()
}

func (r *RealTimeTicker) Stop() {
	if r.stopped.CompareAndSwap(false, true) {
		if r.ticker != nil {
			r.ticker.Stop()
		}
		if r.done != nil {
			close(r.done)
		}
	}
}

// StepTicks advances the kernel's attached tick driver by n ticks. It
// requires a driver that can be stepped manually (ManualTicker); a
// RealTimeTicker's pace comes from the wall clock, not a script, so
// calling this with one attached panics.
func (k *Kernel) StepTicks(n int) {
	stepper, ok := k.driver.(*ManualTicker)
	if !ok {
		panic("kernel: StepTicks requires a ManualTicker driver")
	}
	stepper.StepN(n)
}

// CalibrateLoopsPerTick estimates, the way the original timer_calibrate
// does, how many iterations of a tight loop fit in a single tick: double
// from 1024 while the doubled count still finishes within one tick, then
// refine the next eight lower bits one at a time, from high to low, keeping
// each bit whose addition still fits. spin is the busy-wait primitive
// to calibrate against (a no-op loop in the original; here, any function
// that takes roughly constant time per call and can be asked to repeat
// itself n times). Its result is meant to be installed with
// WithLoopsPerTick before booting: sleepFraction's sub-tick busy-wait scales
// against whatever loopsPerTick the kernel was given, the same way
// real_time_sleep scales against timer_calibrate's loops_per_tick.
func CalibrateLoopsPerTick(tickDuration time.Duration, spin func(loops uint64) time.Duration) uint64 {
	loopsPerTick := uint64(1024)
	for {
		next := loopsPerTick * 2
		if next <= loopsPerTick {
			break // overflow guard
		}
		if spin(next) >= tickDuration {
			break
		}
		loopsPerTick = next
	}

	highBit := loopsPerTick
	for bit := highBit >> 1; bit != highBit>>9; bit >>= 1 {
		candidate := loopsPerTick | bit
		if spin(candidate) < tickDuration {
			loopsPerTick = candidate
		}
	}
	return loopsPerTick
}
