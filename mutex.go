package kernel

// MutexProtocol selects a Mutex's locking discipline.
type MutexProtocol int

const (
	// None applies no priority protocol: the owner's effective priority
	// is unaffected by holding this mutex.
	None MutexProtocol = iota
	// Ceiling is the immediate priority-ceiling protocol. Not full
	// priority inheritance: that would require tracking a tree of blocked
	// tasks, which this kernel avoids for bounded worst-case latency.
	Ceiling
)

// Mutex is the Mutex Control Block.
type Mutex struct {
	owner        *Task
	protocol     MutexProtocol
	ceiling      int
	inconsistent bool
	order        WaitOrder
	queue        *waitQueue
	nextOwned    *Mutex // link in owner's LIFO owned-mutex chain

	k *Kernel
}

// newMutex constructs a mutex. Statically configured mutexes are
// registered through WithMutex, which calls this at Build time.
func (k *Kernel) newMutex(protocol MutexProtocol, ceiling int, order WaitOrder) *Mutex {
	return &Mutex{protocol: protocol, ceiling: ceiling, order: order, queue: newWaitQueue(order), k: k}
}

// Owner returns the task currently holding the mutex, or nil.
func (m *Mutex) Owner() *Task { return m.owner }

// IsLocked reports whether the mutex is currently owned.
func (m *Mutex) IsLocked() bool { return m.owner != nil }

// Protocol returns the mutex's configured locking protocol.
func (m *Mutex) Protocol() MutexProtocol { return m.protocol }

// pushOwned links m atop t's owned-mutex LIFO stack.
func (m *Mutex) pushOwned(t *Task) {
	m.nextOwned = t.lastMutex
	t.lastMutex = m
	m.owner = t
}

// popOwned unlinks m from the top of its owner's stack. Caller must have
// already verified m is the top.
func (m *Mutex) popOwned() {
	t := m.owner
	t.lastMutex = m.nextOwned
	m.nextOwned = nil
	m.owner = nil
}

// Lock acquires m, blocking if necessary. Waitable-context only.
func (m *Mutex) Lock() error { return m.lockTimeout(-1) }

// LockTimeout is Lock bounded by a microsecond duration.
func (m *Mutex) LockTimeout(durationMicros int64) error { return m.lockTimeout(durationMicros) }

// TryLock acquires m only if immediately available; never blocks. An
// owned mutex yields Timeout, the same zero-duration semantics as the
// other poll-style operations.
func (m *Mutex) TryLock() error {
	guard, err := m.k.enter("TryLock")
	if err != nil {
		return err
	}
	defer guard.release()
	return m.acquireOrFail()
}

func (m *Mutex) lockTimeout(durationMicros int64) error {
	if durationMicros < -1 {
		return newErr("Lock", BadParam)
	}
	guard, err := m.k.enter("Lock")
	if err != nil {
		return err
	}
	defer guard.release()

	if !m.k.isWaitableContext() {
		return newErr("Lock", BadContext)
	}
	// Timeout from acquireOrFail means "owned by another task": the one
	// case where blocking is the right continuation. Everything else
	// (success, Abandoned success, WouldDeadlock, ceiling BadParam)
	// surfaces to the caller as-is.
	if err := m.acquireOrFail(); KindOf(err) != Timeout {
		return err
	}
	if durationMicros == 0 {
		return newErr("Lock", Timeout)
	}

	t := m.k.runningTask
	var wd waitDescriptor
	wd.task = t
	wd.kind = waitMutex
	wd.mutex = m
	m.queue.enqueue(&wd)
	t.wait = &wd
	t.state = Waiting

	reg, tErr := m.k.registerTimeoutFor(t, durationMicros)
	if tErr != nil {
		m.queue.remove(&wd)
		t.wait = nil
		t.state = Running
		return tErr
	}
	defer reg.unregister()

	m.k.suspend(t)
	switch wd.result {
	case WaitInterrupted:
		return newErr("Lock", Interrupted)
	case WaitTimedOut:
		return newErr("Lock", Timeout)
	default:
		if wd.mutexAbandoned {
			return newErr("Lock", Abandoned)
		}
		return nil
	}
}

// acquireOrFail grants m to the running task if it is not owned, checking
// the priority-ceiling precondition: a Ceiling(C) mutex may only be
// locked by a task whose base priority is C or worse (numerically
// C or greater), so that boosting it to C during ownership is always a
// raise, never a lowering. Must be called with CPU-lock held.
func (m *Mutex) acquireOrFail() error {
	t := m.k.runningTask
	if m.protocol == Ceiling && t.basePriority < m.ceiling {
		return newErr("Lock", BadParam)
	}
	if m.owner == t {
		return newErr("Lock", WouldDeadlock)
	}
	if m.owner != nil {
		return newErr("Lock", Timeout)
	}
	wasInconsistent := m.inconsistent
	m.pushOwned(t)
	t.recomputeEffectivePriority()
	if wasInconsistent {
		return newErr("Lock", Abandoned)
	}
	return nil
}

// Unlock releases m, which the calling task must currently own at the top
// of its owned-mutex stack (unlock order is LIFO); releasing out of
// order fails BadObjectState. Wakes the front-most waiter, if any,
// transferring ownership directly to it.
func (m *Mutex) Unlock() error {
	guard, err := m.k.enter("Unlock")
	if err != nil {
		return err
	}
	defer guard.release()

	t := m.k.runningTask
	if m.owner != t {
		return newErr("Unlock", NotOwner)
	}
	if t.lastMutex != m {
		return newErr("Unlock", BadObjectState)
	}
	m.popOwned()
	t.recomputeEffectivePriority()

	if wd := m.queue.popFront(); wd != nil {
		m.pushOwned(wd.task)
		// The inconsistent flag survives an unlock that never ran
		// MarkConsistent; each successive taker keeps seeing Abandoned
		// until one of them repairs the state.
		wd.mutexAbandoned = m.inconsistent
		wd.task.recomputeEffectivePriority()
		wd.wake(WaitOK)
	}
	return nil
}

// MarkConsistent clears m's inconsistent flag after the caller (normally
// the owner that just acquired it with outcome Abandoned) has
// repaired whatever invariant the abandoning owner may have broken.
// Fails BadObjectState if m is not currently inconsistent.
func (m *Mutex) MarkConsistent() error {
	guard, err := m.k.enter("MarkConsistent")
	if err != nil {
		return err
	}
	defer guard.release()

	if !m.inconsistent {
		return newErr("MarkConsistent", BadObjectState)
	}
	m.inconsistent = false
	return nil
}

// abandonOwnedMutexes walks t's owned-mutex chain at exit time: every
// mutex is marked inconsistent and detached; if a waiter is
// queued, ownership transfers directly to it (with outcome Abandoned),
// otherwise the mutex becomes unowned but stays inconsistent until the
// next locker's MarkConsistent.
func (k *Kernel) abandonOwnedMutexes(t *Task) {
	m := t.lastMutex
	t.lastMutex = nil
	for m != nil {
		next := m.nextOwned
		m.nextOwned = nil
		m.owner = nil
		m.inconsistent = true
		k.log.Log(Event{Level: LevelWarn, Op: "abandon", TaskID: t.id, Message: "mutex abandoned on task exit"})

		if wd := m.queue.popFront(); wd != nil {
			m.pushOwned(wd.task)
			wd.mutexAbandoned = true
			wd.task.recomputeEffectivePriority()
			wd.wake(WaitOK)
		}
		m = next
	}
}
