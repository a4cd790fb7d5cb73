package kernel

// priorityInfinity is the "any priority" threshold used by dispatch when
// there is no currently-Running task to outrank.
const priorityInfinity = int(^uint(0) >> 1)

// cpuLockGuard is the entry guard every public kernel primitive uses:
// CPU-lock is acquired on entry and a corresponding release (or panic) is
// guaranteed. Obtained via Kernel.enter; release is idempotent
// against a zero-value guard so a pre-entry error return can defer it
// unconditionally.
type cpuLockGuard struct {
	k *Kernel
}

// enter acquires CPU-lock for a public primitive named op, failing with
// BadContext if CPU-lock is already active.
func (k *Kernel) enter(op string) (cpuLockGuard, error) {
	if k.port.IsCPULockActive() {
		return cpuLockGuard{}, newErr(op, BadContext)
	}
	k.port.EnterCPULock()
	return cpuLockGuard{k: k}, nil
}

// release ends the primitive, triggering a preemption check. Call via
// defer immediately after a successful enter.
func (g cpuLockGuard) release() {
	if g.k == nil {
		return
	}
	g.k.unlockCPUAndCheckPreemption()
}

// isWaitableContext reports whether the caller may suspend: task
// context, not boot, CPU-lock inactive, priority boost inactive. Every
// caller evaluates this from inside a primitive
// already entered via Kernel.enter, which has itself rejected the call
// with BadContext if CPU-lock was already active on entry, so the
// "CPU-lock inactive" clause is validated there, not here; checking
// port.IsCPULockActive() here would always observe the lock this
// primitive's own enter() just acquired and could never pass.
func (k *Kernel) isWaitableContext() bool {
	return k.booted && k.port.IsTaskContext() && !k.priorityBoost
}

// dispatch chooses the next running task. Must be called with CPU-lock
// held; it is the decision logic behind ChooseRunningTask.
func (k *Kernel) dispatch() {
	if k.priorityBoost && k.runningTask != nil && k.runningTask.state == Running {
		return
	}

	threshold := priorityInfinity
	if k.runningTask != nil && k.runningTask.state == Running {
		threshold = k.runningTask.effectivePriority
	}

	next := k.ready.PopHighestBelow(threshold)
	if next == nil {
		if k.runningTask != nil && k.runningTask.state == Running {
			return
		}
		k.runningTask = nil
		return
	}

	if prev := k.runningTask; prev != nil && prev.state == Running {
		prev.state = Ready
		k.ready.Push(prev)
	}
	next.state = Running
	k.runningTask = next

	if k.log.IsEnabled(LevelDebug) {
		k.log.Log(Event{Level: LevelDebug, Op: "dispatch", TaskID: next.id, Message: "now running"})
	}
}

// needsPreemption reports whether the ready queue holds a task strictly
// higher-priority than the currently running task's effective priority.
func (k *Kernel) needsPreemption() bool {
	if k.priorityBoost {
		return false
	}
	threshold := priorityInfinity
	if k.runningTask != nil && k.runningTask.state == Running {
		threshold = k.runningTask.effectivePriority
	}
	top := k.ready.highestPopulated()
	return top != -1 && top < threshold
}

// unlockCPUAndCheckPreemption releases CPU-lock and, if warranted,
// requests a Port-provided yield.
func (k *Kernel) unlockCPUAndCheckPreemption() {
	need := k.needsPreemption()
	k.port.LeaveCPULock()
	if need {
		k.port.YieldCPU()
	}
}

// checkPreemption is invoked by Task.recomputeEffectivePriority when the
// Running task's own effective priority changes. No action is needed here:
// every public operation that can trigger such a recomputation already
// ends with unlockCPUAndCheckPreemption, which will observe the updated
// priority before releasing CPU-lock.
func (k *Kernel) checkPreemption() {}

// BoostPriority enters the priority-boosted mode: until the matching
// UnboostPriority, dispatch treats the running task as having
// the maximum priority. Fails BadContext outside task context or when
// boost is already active.
func (k *Kernel) BoostPriority() error {
	guard, err := k.enter("BoostPriority")
	if err != nil {
		return err
	}
	defer guard.release()

	if !k.port.IsTaskContext() || k.priorityBoost {
		return newErr("BoostPriority", BadContext)
	}
	k.priorityBoost = true
	return nil
}

// UnboostPriority leaves the priority-boosted mode, immediately
// re-checking preemption (a higher-priority task made Ready during the
// boosted section runs now). Fails BadContext outside task context or
// when boost is not active.
func (k *Kernel) UnboostPriority() error {
	guard, err := k.enter("UnboostPriority")
	if err != nil {
		return err
	}
	defer guard.release()

	if !k.port.IsTaskContext() || !k.priorityBoost {
		return newErr("UnboostPriority", BadContext)
	}
	k.priorityBoost = false
	return nil
}

// IsPriorityBoostActive reports whether the kernel is currently in the
// priority-boosted mode.
func (k *Kernel) IsPriorityBoostActive() bool { return k.priorityBoost }

// suspend blocks the calling goroutine (representing task t, which must
// already be marked Waiting with its wait descriptor linked) until the
// dispatcher has made it Running again. The Port cannot atomically
// "release CPU-lock and block" the way a hosted OS thread can, so the
// task repeatedly releases CPU-lock, asks
// the Port to yield, and on return re-acquires CPU-lock and rechecks its
// own state. Must be called, and returns, with CPU-lock held.
func (k *Kernel) suspend(t *Task) {
	for t.state != Running {
		k.port.LeaveCPULock()
		k.port.YieldCPU()
		k.port.EnterCPULock()
	}
}

// Activate transitions t from Dormant to Ready. Valid from any context;
// fails BadObjectState if t is not Dormant.
func (k *Kernel) Activate(t *Task) error {
	guard, err := k.enter("Activate")
	if err != nil {
		return err
	}
	defer guard.release()

	if t.state != Dormant {
		return newErr("Activate", BadObjectState)
	}
	t.parkToken = false
	t.effectivePriority = t.basePriority
	k.port.InitializeTaskState(t)
	t.state = Ready
	k.ready.Push(t)
	return nil
}

// ExitTask terminates the calling task: it must be called from task
// context by the running task itself. Any mutexes still owned are
// abandoned. Does not return on success; the Port destroys the task's
// execution context and dispatches the next task.
func (k *Kernel) ExitTask() error {
	if !k.port.IsTaskContext() || k.port.IsCPULockActive() {
		return newErr("ExitTask", BadContext)
	}
	k.port.EnterCPULock()

	t := k.runningTask
	k.abandonOwnedMutexes(t)
	t.state = Dormant
	t.effectivePriority = t.basePriority
	k.runningTask = nil
	k.dispatch()

	k.port.ExitAndDispatch(t)
	panicf("ExitAndDispatch returned")
	return nil
}

// InterruptTask is the sole cancellation mechanism for blocking calls.
// It transitions a Waiting task to Ready with result WaitInterrupted.
// Fails BadObjectState if t is not currently Waiting.
func (k *Kernel) InterruptTask(t *Task) error {
	guard, err := k.enter("InterruptTask")
	if err != nil {
		return err
	}
	defer guard.release()

	if t.state != Waiting {
		return newErr("InterruptTask", BadObjectState)
	}
	t.wait.wake(WaitInterrupted)
	return nil
}

// SetTaskPriority changes t's base priority. Rejected with BadParam if t
// currently owns, or is waiting on, a Ceiling mutex whose ceiling the
// new priority would violate, i.e. a
// change that would raise t's base priority numerically past (better
// than) any such ceiling, breaking the "ceiling ≤ base priority"
// invariant every owner of a Ceiling mutex must satisfy.
func (k *Kernel) SetTaskPriority(t *Task, priority int) error {
	guard, err := k.enter("SetTaskPriority")
	if err != nil {
		return err
	}
	defer guard.release()

	if priority < 0 || priority >= len(k.ready.levels) {
		return newErr("SetTaskPriority", BadParam)
	}
	for m := t.lastMutex; m != nil; m = m.nextOwned {
		if m.protocol == Ceiling && priority < m.ceiling {
			return newErr("SetTaskPriority", BadParam)
		}
	}
	if t.state == Waiting && t.wait.kind == waitMutex {
		if m := t.wait.mutex; m.protocol == Ceiling && priority < m.ceiling {
			return newErr("SetTaskPriority", BadParam)
		}
	}
	t.basePriority = priority
	t.recomputeEffectivePriority()
	return nil
}

// TaskPriority returns t's base priority.
func (k *Kernel) TaskPriority(t *Task) int { return t.basePriority }

// TaskEffectivePriority returns t's currently-scheduled priority.
func (k *Kernel) TaskEffectivePriority(t *Task) int { return t.effectivePriority }

// Park blocks the calling task until it holds a park token, consuming
// the token on return; wait/notify without a shared object.
// Waitable-context only.
func (k *Kernel) Park() error { return k.parkTimeout(-1) }

// ParkTimeout is Park bounded by a microsecond duration; negative
// durations other than the sentinel "no timeout" fail BadParam.
func (k *Kernel) ParkTimeout(durationMicros int64) error { return k.parkTimeout(durationMicros) }

func (k *Kernel) parkTimeout(durationMicros int64) error {
	if durationMicros < -1 {
		return newErr("Park", BadParam)
	}
	guard, err := k.enter("Park")
	if err != nil {
		return err
	}
	defer guard.release()

	if !k.isWaitableContext() {
		return newErr("Park", BadContext)
	}
	t := k.runningTask
	if t.parkToken {
		t.parkToken = false
		return nil
	}
	if durationMicros == 0 {
		return newErr("Park", Timeout)
	}

	var wd waitDescriptor
	wd.task = t
	wd.kind = waitPark
	t.wait = &wd
	t.state = Waiting

	reg, tErr := k.registerTimeoutFor(t, durationMicros)
	if tErr != nil {
		t.wait = nil
		t.state = Running
		return tErr
	}
	defer reg.unregister()

	k.suspend(t)
	switch wd.result {
	case WaitInterrupted:
		return newErr("Park", Interrupted)
	case WaitTimedOut:
		return newErr("Park", Timeout)
	default:
		return nil
	}
}

// Unpark gives t a park token, waking it if it is currently parked;
// otherwise the token is banked for a future Park call. If t already
// holds a token the call is a no-op; use UnparkExact for the strict
// variant.
func (k *Kernel) Unpark(t *Task) error {
	err := k.UnparkExact(t)
	if KindOf(err) == QueueOverflow {
		return nil
	}
	return err
}

// UnparkExact is Unpark, except that a token already banked and
// unconsumed fails QueueOverflow: a task holds at most one token.
func (k *Kernel) UnparkExact(t *Task) error {
	guard, err := k.enter("Unpark")
	if err != nil {
		return err
	}
	defer guard.release()

	if t.state == Waiting && t.wait.kind == waitPark {
		t.wait.wake(WaitOK)
		return nil
	}
	if t.parkToken {
		return newErr("Unpark", QueueOverflow)
	}
	t.parkToken = true
	return nil
}

// Sleep suspends the calling task for durationMicros, which must be
// non-negative. Waitable-context only; equivalent to parking with a
// timeout and no token ever being granted.
func (k *Kernel) Sleep(durationMicros int64) error {
	if durationMicros < 0 {
		return newErr("Sleep", BadParam)
	}
	guard, err := k.enter("Sleep")
	if err != nil {
		return err
	}
	defer guard.release()

	if !k.isWaitableContext() {
		return newErr("Sleep", BadContext)
	}
	if durationMicros == 0 {
		return nil
	}
	t := k.runningTask

	var wd waitDescriptor
	wd.task = t
	wd.kind = waitSleep
	t.wait = &wd
	t.state = Waiting

	reg, tErr := k.registerTimeoutFor(t, durationMicros)
	if tErr != nil {
		t.wait = nil
		t.state = Running
		return tErr
	}
	defer reg.unregister()

	k.suspend(t)
	if wd.result == WaitInterrupted {
		return newErr("Sleep", Interrupted)
	}
	return nil
}

// registerTimeoutFor registers a timeout that wakes t with wait-result
// Timeout when it fires. durationMicros < 0 means "no timeout" and
// registerTimeoutFor is a no-op. Durations past the engine's maximum are
// rejected BadParam before registration.
func (k *Kernel) registerTimeoutFor(t *Task, durationMicros int64) (timeoutRegistration, error) {
	if durationMicros < 0 {
		return timeoutRegistration{}, nil
	}
	if durationMicros > int64(k.timeEngine.MaxTimeout()) {
		return timeoutRegistration{}, newErr("registerTimeoutFor", BadParam)
	}
	return k.timeEngine.Register(uint32(durationMicros), func(arg any) {
		wt := arg.(*Task)
		if wt.state == Waiting {
			wt.wait.wake(WaitTimedOut)
		}
	}, t)
}
