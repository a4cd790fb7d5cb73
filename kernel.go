package kernel

// Kernel is the global kernel state: a process-wide singleton, built once
// by Config.Build and entered once via Boot. Every field is accessed
// exclusively under CPU-lock except the runningTask read-only fast path
// (only the dispatcher writes it, and the dispatcher runs with CPU-lock
// held).
type Kernel struct {
	port   Port
	log    Logger
	config Config

	tasks []*Task

	ready *readyQueue

	runningTask   *Task
	priorityBoost bool

	timeEngine *TimeEngine

	interrupts *interruptTable

	startupHooks []func()

	booted bool
}

// RunningTask returns the currently running task, or nil if the scheduler
// has not yet dispatched one (boot phase). Safe to call without CPU-lock
// from task context: only the dispatcher writes the pointer, under
// CPU-lock.
func (k *Kernel) RunningTask() *Task { return k.runningTask }

// CurrentTask is an alias for RunningTask matching the public operation
// name used elsewhere in this package's documentation and tests.
func (k *Kernel) CurrentTask() *Task { return k.runningTask }

// Task looks up a statically-configured task by its configuration-time
// index. Panics (a configuration bug) if out of range.
func (k *Kernel) Task(id int) *Task {
	if id < 0 || id >= len(k.tasks) {
		panicf("task id %d out of range", id)
	}
	return k.tasks[id]
}

// Boot is entered once by the Port from the reset handler with CPU-lock
// active. It activates every
// task configured to start active, then hands control to the Port's
// first dispatch.
func (k *Kernel) Boot() {
	if k.booted {
		panicf("Boot called twice")
	}
	k.booted = true
	k.timeEngine.Boot(k.port.TickCount())

	// Startup hooks run on the boot context with CPU-lock still active,
	// before any task is dispatched.
	for _, hook := range k.startupHooks {
		hook()
	}

	for _, t := range k.tasks {
		if t.state == PendingActivation {
			t.state = Ready
			k.port.InitializeTaskState(t)
			k.ready.Push(t)
		}
	}
	k.ChooseRunningTask()
	k.port.DispatchFirstTask()
}

// ChooseRunningTask is called by the Port's context-switch stub with
// CPU-lock held to update
// runningTask. It delegates to scheduler.go's dispatch, which holds the
// decision logic.
func (k *Kernel) ChooseRunningTask() {
	k.dispatch()
}

// TimerTick is called by the Port's timer interrupt handler with
// CPU-lock inactive. It delegates to
// the tickless engine, which fires expired timeouts and reschedules the
// next interrupt.
func (k *Kernel) TimerTick() {
	k.port.EnterCPULock()
	deferred := k.timeEngine.HandleTick(k.port.TickCount())
	k.unlockCPUAndCheckPreemption()
	for _, cb := range deferred {
		cb()
	}
}

// AdjustTime shifts the current event time by deltaMicros.
// Waitable-context independent: may be called from any context
// that is not already holding CPU-lock.
func (k *Kernel) AdjustTime(deltaMicros int64) error {
	if k.port.IsCPULockActive() {
		return newErr("AdjustTime", BadContext)
	}
	k.port.EnterCPULock()
	defer k.port.LeaveCPULock()
	return k.timeEngine.AdjustTime(deltaMicros)
}

// Now returns the current event time (CET), the kernel's monotonic
// microsecond clock modulo 2^32.
func (k *Kernel) Now() uint32 { return k.timeEngine.Now() }

// Time returns the current system time in microseconds. Unlike the
// event time it is 64-bit and freely rewritable via SetTime.
func (k *Kernel) Time() (uint64, error) {
	if k.port.IsCPULockActive() {
		return 0, newErr("Time", BadContext)
	}
	k.port.EnterCPULock()
	defer k.port.LeaveCPULock()
	return k.timeEngine.Time(), nil
}

// SetTime rewrites the system time. No registered timeout is affected;
// use AdjustTime to shift the event timeline itself.
func (k *Kernel) SetTime(micros uint64) error {
	if k.port.IsCPULockActive() {
		return newErr("SetTime", BadContext)
	}
	k.port.EnterCPULock()
	defer k.port.LeaveCPULock()
	k.timeEngine.SetTime(micros)
	return nil
}
