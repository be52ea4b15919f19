package kernel

import "github.com/austin-personal/pintos-kaist-jungle/diagnostics"

// WakeupTick returns the tick at which t will wake if it is on the sleep
// queue. Meaningless for a thread that is not currently sleeping.
func (t *Thread) WakeupTick() uint64 { return t.wakeupTick }

func snapshot(t *Thread) diagnostics.ThreadSnapshot {
	return diagnostics.ThreadSnapshot{
		Name:       t.name,
		Tid:        t.tid,
		State:      t.state.String(),
		Priority:   t.priority,
		Nice:       t.nice,
		WakeupTick: t.wakeupTick,
	}
}

// DumpReadyQueue snapshots the ready queue in scheduling order, the Go
// analogue of the original thread_print_stats's ready-list walk.
func (k *Kernel) DumpReadyQueue() diagnostics.Dump {
	k.mu.Lock()
	defer k.mu.Unlock()
	d := diagnostics.Dump{Title: "ready queue"}
	for t := k.readyHead; t != nil; t = t.schedNext {
		d.Threads = append(d.Threads, snapshot(t))
	}
	return d
}

// DumpSleepQueue snapshots the sleep queue in wakeup order.
func (k *Kernel) DumpSleepQueue() diagnostics.Dump {
	k.mu.Lock()
	defer k.mu.Unlock()
	d := diagnostics.Dump{Title: "sleep queue"}
	for t := k.sleepHead; t != nil; t = t.schedNext {
		d.Threads = append(d.Threads, snapshot(t))
	}
	return d
}

// DumpAllThreads snapshots every live thread regardless of scheduling
// state, the MLFQS all-threads list this port otherwise only uses
// internally for the periodic priority recompute.
func (k *Kernel) DumpAllThreads() diagnostics.Dump {
	k.mu.Lock()
	defer k.mu.Unlock()
	d := diagnostics.Dump{Title: "all threads"}
	for t := k.allHead; t != nil; t = t.allNext {
		d.Threads = append(d.Threads, snapshot(t))
	}
	return d
}

// DumpStats reports the idle/kernel/user tick breakdown spec.md §6
// describes as printable but not persisted.
func (k *Kernel) DumpStats() diagnostics.Stats {
	k.mu.Lock()
	defer k.mu.Unlock()
	return diagnostics.Stats{
		Ticks:       k.ticks,
		IdleTicks:   k.idleTicks,
		KernelTicks: k.kernelTicks,
		UserTicks:   k.userTicks,
	}
}
