package kernel

// Port is the hardware/environment abstraction the kernel dispatches
// through. A Port owns context switching, CPU Lock,
// interrupt line control, and the tickless timer's hardware counter and
// next-interrupt scheduling; the kernel never touches hardware directly.
//
// All methods except the IsXxx queries are precondition-bearing: callers
// (exclusively the kernel core) must hold or not hold CPU Lock as
// documented per method. A Port
// implementation is trusted code, not sandboxed against kernel misuse.
type Port interface {
	// DispatchFirstTask transfers control to the first task chosen by the
	// scheduler, discarding the boot context. Precondition: CPU Lock active,
	// boot phase. Must not return.
	DispatchFirstTask()

	// YieldCPU requests a reschedule. In a task context the effect is
	// immediate; in an interrupt context it is deferred until the
	// interrupt handler returns. Precondition: CPU Lock inactive.
	YieldCPU()

	// ExitAndDispatch destroys task's execution context (it has already
	// been removed from the running-task slot) and transfers control to
	// the dispatcher. Precondition: CPU Lock active. Must not return.
	ExitAndDispatch(task *Task)

	// EnterCPULock disables kernel-managed interrupts. Precondition: CPU
	// Lock inactive.
	EnterCPULock()

	// LeaveCPULock re-enables kernel-managed interrupts. Precondition: CPU
	// Lock active.
	LeaveCPULock()

	// TryEnterCPULock enters CPU Lock if it is inactive, reporting whether
	// it did. No precondition.
	TryEnterCPULock() bool

	// IsCPULockActive reports whether CPU Lock is currently held.
	IsCPULockActive() bool

	// InitializeTaskState resets task's saved execution context so it will
	// begin running from its entry point when next dispatched.
	// Precondition: CPU Lock active; task must not be Running.
	InitializeTaskState(task *Task)

	// IsTaskContext reports whether the caller is running as a task (as
	// opposed to an interrupt handler or the boot context).
	IsTaskContext() bool

	// IsInterruptContext reports whether the caller is running as an
	// interrupt handler.
	IsInterruptContext() bool

	// IsSchedulerActive reports whether DispatchFirstTask has run.
	IsSchedulerActive() bool

	// SetInterruptLinePriority sets the priority of a managed interrupt
	// line. Precondition: CPU Lock active, task context or boot phase.
	// Returns ErrNotSupported if the Port has no managed interrupt lines.
	SetInterruptLinePriority(line int, priority int) error

	// EnableInterruptLine enables delivery of the given interrupt line.
	EnableInterruptLine(line int) error

	// DisableInterruptLine disables delivery of the given interrupt line.
	DisableInterruptLine(line int) error

	// PendInterruptLine sets line's pending flag, causing it to fire (or
	// fire again) if enabled.
	PendInterruptLine(line int) error

	// ClearInterruptLine clears line's pending flag.
	ClearInterruptLine(line int) error

	// IsInterruptLinePending reads line's pending flag.
	IsInterruptLinePending(line int) (bool, error)

	// TickCount reads the free-running hardware tick counter. Wraps at an
	// implementation-defined modulus reported via TicklessConfig.
	// Precondition: CPU Lock active.
	TickCount() uint32

	// PendTickAfter asks the Port to call the kernel's tick handler no
	// later than tickCountDelta hardware ticks from now (the current tick
	// counts as elapsing). A Port may instead ignore the delta and call
	// the handler at a steady rate ("tickful" mode); tickCountDelta is
	// always in 0..=TicklessConfig.HwMaxTickCount, zero meaning "as soon
	// as possible". Precondition: CPU Lock active.
	PendTickAfter(tickCountDelta uint32)

	// PendTick arranges a call to the kernel's tick handler as soon as
	// possible. Precondition: CPU Lock active.
	PendTick()
}

// ManagedInterruptRange describes the inclusive-exclusive priority range
// and explicit line numbers a Port treats as "managed" (safe for the
// kernel to mask via CPU Lock). interrupt.go's Config.Build validation
// consults this.
type ManagedInterruptRange struct {
	PriorityLo, PriorityHi int
	Lines                  []int
}

// ManagedInterruptProvider is implemented by Ports that restrict which
// interrupt lines the kernel may manage. A Port that does not implement it
// is treated as having no managed lines.
type ManagedInterruptProvider interface {
	ManagedInterrupts() ManagedInterruptRange
}
