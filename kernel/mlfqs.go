package kernel

import "github.com/austin-personal/pintos-kaist-jungle/fixedpoint"

// mlfqsPriority computes a thread's MLFQS priority from its recent_cpu and
// nice value: clamp(PRI_MAX - recent_cpu/4 - nice*2, PRI_MIN, PRI_MAX). The
// subtraction happens in fixed-point; only the final result is truncated to
// an integer, so a thread's priority never drifts from rounding twice.
func mlfqsPriority(t *Thread) int {
	p := fixedpoint.FromInt(PriMax).Sub(t.recentCPU.DivInt(4)).SubInt(t.nice * 2)
	pi := p.ToInt()
	if pi < PriMin {
		return PriMin
	}
	if pi > PriMax {
		return PriMax
	}
	return pi
}

// mlfqsRecentCPU computes recent_cpu := (2*load_avg)/(2*load_avg+1) *
// recent_cpu + nice for a single thread, given the kernel's current
// load_avg.
func mlfqsRecentCPU(t *Thread, loadAvg fixedpoint.Q) fixedpoint.Q {
	twoLoad := loadAvg.MulInt(2)
	coeff := twoLoad.Div(twoLoad.AddInt(1))
	return coeff.Mul(t.recentCPU).AddInt(t.nice)
}

// mlfqsTick applies the per-tick recent_cpu increment to the running
// thread. Called once per tick; a no-op when the idle thread is running,
// matching the original's "unless idle" carve-out.
func (k *Kernel) mlfqsTick() {
	if k.current != nil && k.current != k.idle {
		k.current.recentCPU = k.current.recentCPU.AddInt(1)
	}
}

// mlfqsRecomputeSecond recomputes load_avg from the current ready-queue
// depth, then recomputes every thread's recent_cpu from the new load_avg.
// Called once every TIMER_FREQ ticks.
func (k *Kernel) mlfqsRecomputeSecond() {
	ready := fixedpoint.FromInt(k.readyLen())
	coeffA := fixedpoint.FromInt(59).DivInt(60)
	coeffB := fixedpoint.FromInt(1).DivInt(60)
	k.loadAvg = coeffA.Mul(k.loadAvg).Add(coeffB.Mul(ready))

	loadAvg := k.loadAvg
	k.forEachThread(func(t *Thread) {
		if t == k.idle {
			return
		}
		t.recentCPU = mlfqsRecentCPU(t, loadAvg)
	})
}

// mlfqsRecomputePriorities recomputes every thread's priority from its
// current recent_cpu and nice, then re-sorts the ready queue in one pass
// rather than repositioning each thread as its priority changes. Called
// once every 4 ticks.
func (k *Kernel) mlfqsRecomputePriorities() {
	k.forEachThread(func(t *Thread) {
		if t == k.idle {
			return
		}
		t.priority = mlfqsPriority(t)
	})
	k.resortReadyQueue()
}

// resortReadyQueue rebuilds the ready queue from scratch in priority order,
// preserving relative order among threads whose priority didn't change.
func (k *Kernel) resortReadyQueue() {
	var items []*Thread
	for t := k.readyHead; t != nil; {
		next := t.schedNext
		items = append(items, t)
		t = next
	}
	k.readyHead = nil
	for _, t := range items {
		k.readyPush(t)
	}
}
