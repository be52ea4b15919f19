package kernel

import "testing"

// lowerMainPriority drops main below every thread these tests create, so
// each Create call preempts immediately and runs its new thread to its
// next blocking point before returning control to main - the whole
// scenario plays out deterministically across a single goroutine's
// perspective, with no extra synchronization needed.
func lowerMainPriority(k *Kernel, main *Thread) {
	if err := k.SetPriority(main, PriMin); err != nil {
		panic(err)
	}
}

// TestNestedDonation mirrors spec.md scenario 2: L holds locks a and b, M
// blocks on b, H blocks on a, and L's effective priority must track the
// highest of its own and the donations it currently holds, dropping back
// down one lock at a time as each is released.
func TestNestedDonation(t *testing.T) {
	k, main := New()
	lowerMainPriority(k, main)
	a := NewLock(k)
	b := NewLock(k)
	gate := NewSemaphore(k, 0)

	var l *Thread
	if _, err := k.Create(main, "L", 31, func(th *Thread) {
		l = th
		a.Acquire(th)
		b.Acquire(th)
		gate.Down(th)
		a.Release(th)
		gate.Down(th)
		b.Release(th)
	}); err != nil {
		t.Fatalf("create L: %v", err)
	}
	if l == nil || l.Priority() != 31 {
		t.Fatalf("after L acquires a and b, priority = %v, want 31", l)
	}

	if _, err := k.Create(main, "M", 32, func(th *Thread) {
		b.Acquire(th)
		b.Release(th)
	}); err != nil {
		t.Fatalf("create M: %v", err)
	}
	if got := l.Priority(); got != 32 {
		t.Fatalf("after M blocks on b, L.Priority() = %d, want 32", got)
	}

	if _, err := k.Create(main, "H", 34, func(th *Thread) {
		a.Acquire(th)
		a.Release(th)
	}); err != nil {
		t.Fatalf("create H: %v", err)
	}
	if got := l.Priority(); got != 34 {
		t.Fatalf("after H blocks on a, L.Priority() = %d, want 34", got)
	}

	gate.Up(main) // let L release a; H's donation is stripped
	if got := l.Priority(); got != 32 {
		t.Fatalf("after releasing a, L.Priority() = %d, want 32", got)
	}

	gate.Up(main) // let L release b and exit; M's donation is stripped
	// L is now Dying; nothing further to assert about its priority.
}

// TestSetPriorityRecomputesAgainstDonationUnconditionally checks that
// SetPriority always recomputes the effective priority as
// max(origPriority, max donation received), not just when the new base
// priority happens to exceed the stale cached priority. T holds a lock
// with a lower-priority donation outstanding (30 < T's priority of 50);
// lowering its own base to 40 must still land on max(40, 30) = 40, even
// though 40 is less than T's previous effective priority of 50.
func TestSetPriorityRecomputesAgainstDonationUnconditionally(t *testing.T) {
	k, main := New()
	lowerMainPriority(k, main)
	l := NewLock(k)
	gate := NewSemaphore(k, 0)
	gate2 := NewSemaphore(k, 0)

	var tt *Thread
	var priorityAfterSet int
	if _, err := k.Create(main, "T", 50, func(th *Thread) {
		tt = th
		l.Acquire(th)
		gate.Down(th)
		if err := k.SetPriority(th, 40); err != nil {
			panic(err)
		}
		priorityAfterSet = th.Priority()
		gate2.Down(th)
		l.Release(th)
	}); err != nil {
		t.Fatalf("create T: %v", err)
	}
	if tt == nil || tt.Priority() != 50 {
		t.Fatalf("T.Priority() = %v, want 50", tt)
	}

	if _, err := k.Create(main, "W", 30, func(th *Thread) {
		l.Acquire(th)
		l.Release(th)
	}); err != nil {
		t.Fatalf("create W: %v", err)
	}
	if got := tt.Priority(); got != 50 {
		t.Fatalf("after W blocks on T's lock, T.Priority() = %d, want 50 (donation of 30 is below 50)", got)
	}

	gate.Up(main) // let T call SetPriority(40) on itself, then block on gate2
	if priorityAfterSet != 40 {
		t.Fatalf("T.Priority() after SetPriority(40) = %d, want max(40, 30) = 40", priorityAfterSet)
	}

	gate2.Up(main) // let T release l and exit
}

// TestSemaphoreFIFOUnderEqualPriority mirrors scenario 3: four threads of
// equal priority Down the same semaphore, and Up releases them in the
// order they arrived.
func TestSemaphoreFIFOUnderEqualPriority(t *testing.T) {
	k, main := New()
	lowerMainPriority(k, main)
	sem := NewSemaphore(k, 0)

	var order []string
	names := []string{"W1", "W2", "W3", "W4"}
	for _, name := range names {
		if _, err := k.Create(main, name, PriDefault, func(th *Thread) {
			sem.Down(th)
			order = append(order, th.Name())
		}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}

	for range names {
		sem.Up(main)
	}
	k.Yield(main) // each Up already preempted main and ran its waiter; nothing is left to run

	if len(order) != len(names) {
		t.Fatalf("order = %v, want all of %v", order, names)
	}
	for i, name := range names {
		if order[i] != name {
			t.Errorf("order[%d] = %s, want %s (order=%v)", i, order[i], name, order)
		}
	}
}

// TestCondSignalPicksHighestPriority mirrors scenario 6: three waiters of
// priorities 30, 32, 31 all cond_wait; a single signal must wake the
// priority-32 waiter.
func TestCondSignalPicksHighestPriority(t *testing.T) {
	k, main := New()
	lowerMainPriority(k, main)
	l := NewLock(k)
	c := NewCond(k)

	var woken string
	makeWaiter := func(name string, priority int) {
		if _, err := k.Create(main, name, priority, func(th *Thread) {
			l.Acquire(th)
			c.Wait(l, th)
			woken = th.Name()
			l.Release(th)
		}); err != nil {
			t.Fatalf("create %s: %v", name, err)
		}
	}
	makeWaiter("low", 30)
	makeWaiter("high", 32)
	makeWaiter("mid", 31)

	l.Acquire(main)
	c.Signal(main)
	l.Release(main)

	if woken != "high" {
		t.Errorf("cond signal woke %q, want %q", woken, "high")
	}
}

// TestTryAcquireNoDonation checks that TryAcquire never performs priority
// donation even when it fails.
func TestTryAcquireNoDonation(t *testing.T) {
	k, main := New()
	l := NewLock(k)
	l.Acquire(main)

	succeeded := true
	if _, err := k.Create(main, "other", PriDefault+1, func(th *Thread) {
		succeeded = l.TryAcquire(th)
	}); err != nil {
		t.Fatalf("create other: %v", err)
	}
	if succeeded {
		t.Error("TryAcquire succeeded on a held lock")
	}
	if main.Priority() != PriDefault {
		t.Errorf("TryAcquire donated priority: main.Priority() = %d, want %d", main.Priority(), PriDefault)
	}
	l.Release(main)
}

// TestReleaseRestoresOriginalPriority checks the single-donation case: once
// the one thread waiting on a lock is let go, the releaser's priority
// drops all the way back to its own base, per spec.md's testable property
// on Release.
func TestReleaseRestoresOriginalPriority(t *testing.T) {
	k, main := New()
	lowerMainPriority(k, main)
	l := NewLock(k)
	gate := NewSemaphore(k, 0)

	var holder *Thread
	if _, err := k.Create(main, "holder", 31, func(th *Thread) {
		holder = th
		l.Acquire(th)
		gate.Down(th)
		l.Release(th)
	}); err != nil {
		t.Fatalf("create holder: %v", err)
	}

	if _, err := k.Create(main, "waiter", 40, func(th *Thread) {
		l.Acquire(th)
		l.Release(th)
	}); err != nil {
		t.Fatalf("create waiter: %v", err)
	}
	if got := holder.Priority(); got != 40 {
		t.Fatalf("holder.Priority() = %d, want 40", got)
	}

	gate.Up(main)
	if got := holder.Priority(); got != 31 {
		t.Errorf("holder.Priority() after Release = %d, want 31", got)
	}
}
