package kernel

// Sleep blocks the calling thread for the given number of ticks, waking it
// only once the kernel's tick count has advanced by at least that much,
// never sooner. A non-positive duration is a no-op, matching
// timer_sleep's own guard against sleeping zero or negative ticks.
func (k *Kernel) Sleep(t *Thread, ticks uint64) {
	if ticks == 0 {
		return
	}
	k.mu.Lock()
	t.wakeupTick = k.ticks + ticks
	t.state = Blocked
	k.sleepInsert(t)
	k.schedule(t)
	k.mu.Unlock()
}

// MSleep, USleep and NSleep convert a millisecond, microsecond, or
// nanosecond duration into ticks at the kernel's configured timer
// frequency, rounding down (NUM * TIMER_FREQ / DENOM), the same contract as
// real_time_sleep. A duration of at least one tick sleeps, yielding the CPU
// to other threads; a sub-tick duration instead busy-waits the scaled
// loops-per-tick count, since blocking the caller for a whole tick to honor
// a request for a fraction of one would be far less accurate than spinning.
func (k *Kernel) MSleep(t *Thread, ms int64) { k.sleepFraction(t, ms, 1000) }
func (k *Kernel) USleep(t *Thread, us int64) { k.sleepFraction(t, us, 1000000) }
func (k *Kernel) NSleep(t *Thread, ns int64) { k.sleepFraction(t, ns, 1000000000) }

func (k *Kernel) sleepFraction(t *Thread, amount, unitsPerSecond int64) {
	freq := int64(t.k.driver.Frequency())
	ticks := amount * freq / unitsPerSecond
	if ticks > 0 {
		k.Sleep(t, uint64(ticks))
		return
	}
	// Sub-tick: busy-wait instead, scaling the numerator and denominator
	// down by 1000 first the same way real_time_sleep does, to avoid
	// overflowing loopsPerTick*amount for a nanosecond-denominated call.
	k.mu.Lock()
	loopsPerTick := k.loopsPerTick
	k.mu.Unlock()
	loops := int64(loopsPerTick) * amount / 1000 * freq / (unitsPerSecond / 1000)
	busyWait(loops)
}

// busyWait spins for approximately loops iterations, the simulated
// stand-in for the original's NO_INLINE busy_wait loop. This port has no
// compiler barrier to keep an empty loop from being optimized away, so it
// touches a package-level counter each iteration instead, making the spin
// do observable work rather than relying on that guarantee.
var busyWaitSink uint64

func busyWait(loops int64) {
	for ; loops > 0; loops-- {
		busyWaitSink++
	}
}

// sleepInsert inserts t into the sleep queue in ascending order of
// wakeupTick, so the tick handler only ever needs to look at the head to
// decide whether anyone is due to wake.
func (k *Kernel) sleepInsert(t *Thread) {
	t.schedNext = nil
	if k.sleepHead == nil || t.wakeupTick < k.sleepHead.wakeupTick {
		t.schedNext = k.sleepHead
		k.sleepHead = t
		return
	}
	prev := k.sleepHead
	for prev.schedNext != nil && prev.schedNext.wakeupTick <= t.wakeupTick {
		prev = prev.schedNext
	}
	t.schedNext = prev.schedNext
	prev.schedNext = t
}

// wakeDueSleepers moves every thread whose wakeupTick has arrived from the
// sleep queue to the ready queue. Must be called with mu held.
func (k *Kernel) wakeDueSleepers(now uint64) {
	for k.sleepHead != nil && k.sleepHead.wakeupTick <= now {
		t := k.sleepHead
		k.sleepHead = t.schedNext
		t.schedNext = nil
		t.state = Ready
		k.readyPush(t)
	}
}
