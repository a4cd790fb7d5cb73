package kernel

// EventGroupWaitFlags modifies the predicate a waiter blocks on.
type EventGroupWaitFlags uint8

const (
	// WaitAny (the zero value) wakes when pattern ∩ bits ≠ ∅.
	WaitAny EventGroupWaitFlags = 0
	// WaitAll wakes only when pattern ⊆ bits.
	WaitAll EventGroupWaitFlags = 1 << iota
	// WaitClear atomically clears the bits that satisfied the waiter's
	// predicate from the group, as part of the wake walk.
	WaitClear
)

// EventGroup is a 32-bit bit set plus a wait queue.
type EventGroup struct {
	bits  uint32
	queue *waitQueue

	k *Kernel
}

func (k *Kernel) newEventGroup(initial uint32, order WaitOrder) *EventGroup {
	return &EventGroup{bits: initial, queue: newWaitQueue(order), k: k}
}

// Bits returns the group's current bit set.
func (g *EventGroup) Bits() uint32 { return g.bits }

// satisfies reports whether observed bits satisfy a waiter's predicate.
func satisfies(pattern, bits uint32, flags EventGroupWaitFlags) bool {
	if flags&WaitAll != 0 {
		return pattern&bits == pattern
	}
	return pattern&bits != 0
}

// Set ORs bits into the group, then walks the wait queue waking every
// waiter whose predicate is now satisfied. A waiter with WaitClear has
// the bits it matched cleared from the group as part of the walk, so
// later waiters in the same walk observe the updated set. The ordering of
// clears among same-walk waiters is queue order, exactly.
func (g *EventGroup) Set(bits uint32) error {
	guard, err := g.k.enter("Set")
	if err != nil {
		return err
	}
	defer guard.release()

	g.bits |= bits

	w := g.queue.list.Front()
	for w != nil {
		next := g.queue.list.Next(w)
		if satisfies(w.egPattern, g.bits, w.egFlags) {
			observed := g.bits
			if w.egFlags&WaitClear != 0 {
				g.bits &^= w.egPattern & g.bits
			}
			w.egObserved = observed
			g.queue.remove(w)
			w.wake(WaitOK)
		}
		w = next
	}
	return nil
}

// Clear ANDs the group's bits with ^bits.
func (g *EventGroup) Clear(bits uint32) error {
	guard, err := g.k.enter("Clear")
	if err != nil {
		return err
	}
	defer guard.release()
	g.bits &^= bits
	return nil
}

// Wait blocks until pattern satisfies flags against the group's bits,
// returning the bits observed at wake time. Waitable-context only.
func (g *EventGroup) Wait(pattern uint32, flags EventGroupWaitFlags) (uint32, error) {
	return g.waitTimeout(pattern, flags, -1)
}

// WaitTimeout is Wait bounded by a microsecond duration.
func (g *EventGroup) WaitTimeout(pattern uint32, flags EventGroupWaitFlags, durationMicros int64) (uint32, error) {
	return g.waitTimeout(pattern, flags, durationMicros)
}

// Poll is Wait with zero-timeout semantics: it never blocks, returning
// Timeout if the predicate is not already satisfied.
func (g *EventGroup) Poll(pattern uint32, flags EventGroupWaitFlags) (uint32, error) {
	return g.waitTimeout(pattern, flags, 0)
}

func (g *EventGroup) waitTimeout(pattern uint32, flags EventGroupWaitFlags, durationMicros int64) (uint32, error) {
	guard, err := g.k.enter("Wait")
	if err != nil {
		return 0, err
	}
	defer guard.release()

	if !g.k.isWaitableContext() {
		return 0, newErr("Wait", BadContext)
	}
	if satisfies(pattern, g.bits, flags) {
		observed := g.bits
		if flags&WaitClear != 0 {
			g.bits &^= pattern & g.bits
		}
		return observed, nil
	}
	if durationMicros == 0 {
		return 0, newErr("Wait", Timeout)
	}

	t := g.k.runningTask
	var wd waitDescriptor
	wd.task = t
	wd.kind = waitEventGroupBits
	wd.egPattern = pattern
	wd.egFlags = flags
	g.queue.enqueue(&wd)
	t.wait = &wd
	t.state = Waiting

	reg, tErr := g.k.registerTimeoutFor(t, durationMicros)
	if tErr != nil {
		g.queue.remove(&wd)
		t.wait = nil
		t.state = Running
		return 0, tErr
	}
	defer reg.unregister()

	g.k.suspend(t)
	switch wd.result {
	case WaitInterrupted:
		return 0, newErr("Wait", Interrupted)
	case WaitTimedOut:
		return 0, newErr("Wait", Timeout)
	default:
		return wd.egObserved, nil
	}
}
