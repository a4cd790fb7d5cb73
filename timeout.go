package kernel

import "runtime"

// Timeout is a self-referential record: while enqueued, the timeout heap
// holds a live pointer to it and writes its heapPos back on every sift,
// so the record must stay put for exactly as long as it is registered.
// That discipline is enforced two ways: the guard (timeoutRegistration)
// unconditionally removes it on every exit path of the owning call, and a
// finalizer is armed as a backstop that panics if a Timeout is ever
// garbage-collected while still linked into the heap, catching incorrect
// manual use.
type timeoutEntry struct {
	at       uint32 // target event-time, tickless-engine coordinates
	heapPos  int
	callback func(arg any)
	arg      any

	// deferred marks a callback that must run with CPU-lock inactive
	// (e.g. a user-supplied Timer callback, which is allowed to call
	// ordinary guarded kernel primitives) as opposed to the kernel's own
	// internal wake callbacks, which run inline inside HandleTick while CPU-lock
	// is held, because they only touch already-locked structures.
	deferred bool
}

func newTimeout(callback func(arg any), arg any) *timeoutEntry {
	t := &timeoutEntry{heapPos: notQueued, callback: callback, arg: arg}
	runtime.SetFinalizer(t, func(t *timeoutEntry) {
		if t.heapPos != notQueued {
			panicf("timeout finalized while still enqueued in the timeout heap")
		}
	})
	return t
}

// queued reports whether the timeout is currently linked into a heap.
func (t *timeoutEntry) queued() bool { return t.heapPos != notQueued }

// timeoutRegistration is the RAII guard returned by registering a timeout.
// Every exit path of a blocking call must invoke unregister (typically via
// defer), which unregisters the timeout regardless of whether it already
// fired; see timeoutHeap.remove's no-op-when-absent behavior.
type timeoutRegistration struct {
	engine  *TimeEngine
	timeout *timeoutEntry
}

func (g timeoutRegistration) unregister() {
	if g.timeout == nil {
		return
	}
	g.engine.cancelTimeout(g.timeout)
}
