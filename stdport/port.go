// Package stdport is a hosted reference Port: it backs the kernel's
// tickless hardware counter with the
// host's monotonic clock and its context switches with goroutines,
// coordinated so that only one logical execution context (a task, the
// timer "interrupt", or the boot sequence) ever runs kernel code at a
// time, the same single-processor discipline a real Cortex-M target
// gets for free from having one core and masked interrupts. It exists so
// the core's test suite can exercise the dispatcher, wait subsystem, and
// tickless engine against a real, schedulable Port instead of a mock,
// and as a worked example for anyone writing a new Port.
package stdport

import (
	"runtime"
	"sync"
	"time"

	kernel "github.com/r3-os/r3-sub000"
)

// Port is a goroutine-backed kernel.Port. The zero value is not usable;
// construct with New.
type Port struct {
	k *kernel.Kernel

	mu   sync.Mutex
	cond *sync.Cond

	cpuLock          bool
	inInterrupt      bool
	schedulerActive  bool
	current          *kernel.Task
	deferredDispatch bool

	slots map[*kernel.Task]chan struct{}

	originMicros uint64

	timerMu    sync.Mutex
	nextTarget uint32
	timerGen   uint64
	wake       chan struct{}
	stop       chan struct{}

	interruptMu sync.Mutex
	lines       map[int]*interruptLine
	managed     kernel.ManagedInterruptRange
}

type interruptLine struct {
	priority int
	hasPrio  bool
	enabled  bool
	pending  bool
}

// New constructs a Port. Call Attach once the Kernel has been built with
// this Port (kernel.Builder.Build needs the Port before the Kernel
// exists), then Run to boot.
func New() *Port {
	p := &Port{
		slots:        make(map[*kernel.Task]chan struct{}),
		originMicros: monotonicMicros(),
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		lines:        make(map[int]*interruptLine),
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// SetManagedInterrupts restricts which interrupt lines the kernel may
// treat as "managed-safe"; used to implement
// kernel.ManagedInterruptProvider. Optional: a Port with no managed range
// configured reports no managed lines.
func (p *Port) SetManagedInterrupts(r kernel.ManagedInterruptRange) {
	p.managed = r
}

// ManagedInterrupts implements kernel.ManagedInterruptProvider.
func (p *Port) ManagedInterrupts() kernel.ManagedInterruptRange { return p.managed }

// Attach completes construction by giving the Port a reference back to
// the Kernel it serves. Must be called exactly once, after
// kernel.Builder.Build and before Run.
func (p *Port) Attach(k *kernel.Kernel) {
	p.k = k
	go p.timerLoop()
}

// Run boots the kernel on the calling goroutine: it enters CPU-lock (the
// precondition for Kernel.Boot, normally established by a reset handler)
// and calls Boot, which dispatches the first task and does not return.
// Run itself therefore never returns either; callers that need to drive
// a test to completion should run it in its own goroutine and
// synchronize via task code (e.g. a channel closed from the last task to
// exit).
func (p *Port) Run() {
	p.EnterCPULock()
	p.k.Boot()
}

// Close stops the background timer goroutine. Safe to call once, after
// the test driving this Port no longer needs it; task goroutines that
// are still parked are leaked (as they would be on a real target that
// never powers off), which is fine for short-lived test processes.
func (p *Port) Close() {
	close(p.stop)
}

// ---- task lifecycle ----------------------------------------------------

// InitializeTaskState prepares t to start running its entry point from
// the next time it is dispatched, by spawning (or respawning, on
// reactivation) the goroutine that will run its code.
func (p *Port) InitializeTaskState(t *kernel.Task) {
	ch := make(chan struct{})
	p.mu.Lock()
	p.slots[t] = ch
	p.mu.Unlock()
	go p.runTask(t, ch)
}

func (p *Port) runTask(t *kernel.Task, turn chan struct{}) {
	<-turn
	p.mu.Lock()
	p.current = t
	p.mu.Unlock()

	t.InvokeEntry()

	// A task whose entry function returns is treated as calling
	// ExitTask implicitly.
	p.k.ExitTask()
}

// DispatchFirstTask hands control to the task the scheduler chose during
// Boot and parks the calling (boot) goroutine forever; on real hardware
// this call never returns because the boot stack is discarded.
func (p *Port) DispatchFirstTask() {
	p.mu.Lock()
	p.cpuLock = false
	p.schedulerActive = true
	p.mu.Unlock()

	next := p.k.RunningTask()
	if next != nil {
		p.resume(next)
	}
	select {}
}

// ExitAndDispatch tears down t's execution context (by simply letting its
// goroutine end via runtime.Goexit, running any deferred unregistrations
// on the way) and hands control to whichever task the scheduler chose
// next. Called with CPU-lock active (Kernel.ExitTask already ran
// dispatch under it); clears it as part of the handoff, since the
// resumed task runs in ordinary task context.
func (p *Port) ExitAndDispatch(t *kernel.Task) {
	next := p.k.RunningTask()
	p.mu.Lock()
	p.current = nil
	p.cpuLock = false
	delete(p.slots, t)
	p.mu.Unlock()
	p.cond.Broadcast()

	if next != nil {
		p.resume(next)
	}
	runtime.Goexit()
}

// YieldCPU requests a reschedule. From "interrupt" context (the timer
// goroutine) it is recorded and actually performed by the interrupt
// epilogue in fireInterrupt, once the outermost handler has returned.
// From task context it plays the part of a
// real port's PendSV/SVCall handler: re-enter CPU-lock, run the
// dispatcher to decide who should run next (nothing upstream of here
// has done this yet; the kernel's own unlockCPUAndCheckPreemption only
// decides whether a switch is needed, not which task wins it), then
// hand off.
func (p *Port) YieldCPU() {
	p.mu.Lock()
	if p.inInterrupt {
		p.deferredDispatch = true
		p.mu.Unlock()
		return
	}
	self := p.current
	p.mu.Unlock()

	p.EnterCPULock()
	p.k.ChooseRunningTask()
	p.LeaveCPULock()

	p.handoff(self)
}

// handoff is the task-to-task context switch: if the scheduler's choice
// of running task hasn't changed, it is a no-op; otherwise self (which
// may be nil, for the boot context) gives up the floor, the new running
// task is resumed, and self blocks until it is resumed again.
func (p *Port) handoff(self *kernel.Task) {
	next := p.k.RunningTask()
	if next == self {
		return
	}

	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	p.cond.Broadcast()

	if next != nil {
		p.resume(next)
	}
	if self != nil {
		p.waitTurn(self)
	}
}

func (p *Port) resume(t *kernel.Task) {
	p.mu.Lock()
	ch := p.slots[t]
	p.mu.Unlock()
	ch <- struct{}{}
}

func (p *Port) waitTurn(self *kernel.Task) {
	p.mu.Lock()
	ch := p.slots[self]
	p.mu.Unlock()
	<-ch
	p.mu.Lock()
	p.current = self
	p.mu.Unlock()
}

// ---- CPU-lock / context queries -----------------------------------------

func (p *Port) EnterCPULock() {
	p.mu.Lock()
	p.cpuLock = true
	p.mu.Unlock()
}

func (p *Port) LeaveCPULock() {
	p.mu.Lock()
	p.cpuLock = false
	p.mu.Unlock()
}

func (p *Port) TryEnterCPULock() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cpuLock {
		return false
	}
	p.cpuLock = true
	return true
}

func (p *Port) IsCPULockActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cpuLock
}

func (p *Port) IsTaskContext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *Port) IsInterruptContext() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inInterrupt
}

func (p *Port) IsSchedulerActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.schedulerActive
}

// ---- tickless timer ------------------------------------------------------

// TickCount reads the host's monotonic clock, in microseconds since this
// Port was constructed, truncated to 32 bits. At 1 tick/µs this wraps
// roughly every 71 minutes; NewTicklessConfig selects the stateless
// algorithm for that rate, which spans the full 32-bit counter range and
// handles the wrap the same way it would a hardware counter of that width.
func (p *Port) TickCount() uint32 {
	return uint32(monotonicMicros() - p.originMicros)
}

// PendTickAfter arranges for the timer goroutine to call Kernel.TimerTick
// no later than delta ticks (microseconds) from now.
func (p *Port) PendTickAfter(delta uint32) {
	p.timerMu.Lock()
	p.nextTarget = p.TickCount() + delta
	p.timerGen++
	p.timerMu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// PendTick requests an immediate timer tick.
func (p *Port) PendTick() { p.PendTickAfter(0) }

// timerLoop is the background goroutine that plays the role of the
// hardware timer interrupt: it sleeps until the most recently requested
// deadline, then fires, subject to two kinds of preemption: a newer
// PendTickAfter request (restarts the wait) or Close (exits).
func (p *Port) timerLoop() {
	for {
		p.timerMu.Lock()
		target := p.nextTarget
		gen := p.timerGen
		p.timerMu.Unlock()

		delay := int32(target - p.TickCount())
		if delay < 0 {
			delay = 0
		}
		timer := time.NewTimer(time.Duration(delay) * time.Microsecond)

		select {
		case <-timer.C:
		case <-p.wake:
			timer.Stop()
			continue
		case <-p.stop:
			timer.Stop()
			return
		}

		p.timerMu.Lock()
		stale := gen != p.timerGen
		p.timerMu.Unlock()
		if stale {
			continue
		}
		p.fireInterrupt()
	}
}

// fireInterrupt plays the part of the Port's first-level timer handler:
// wait for the system to be idle (no task actively running; under the
// single-processor model the timer interrupt and a running task are
// never simultaneously "in" kernel code), call the kernel's
// timer-tick callback, then run the interrupt epilogue: if the tick made a
// higher-priority task ready, dispatch and hand off to it.
func (p *Port) fireInterrupt() {
	p.mu.Lock()
	for p.current != nil {
		p.cond.Wait()
	}
	p.inInterrupt = true
	p.mu.Unlock()

	p.k.TimerTick()

	p.mu.Lock()
	needDispatch := p.deferredDispatch
	p.deferredDispatch = false
	p.inInterrupt = false
	p.mu.Unlock()

	if needDispatch {
		p.EnterCPULock()
		p.k.ChooseRunningTask()
		p.LeaveCPULock()
		if next := p.k.RunningTask(); next != nil {
			p.resume(next)
		}
	}
}

// ---- interrupt lines -----------------------------------------------------

func (p *Port) line(num int) *interruptLine {
	p.interruptMu.Lock()
	defer p.interruptMu.Unlock()
	l, ok := p.lines[num]
	if !ok {
		l = &interruptLine{}
		p.lines[num] = l
	}
	return l
}

func (p *Port) SetInterruptLinePriority(num int, priority int) error {
	l := p.line(num)
	p.interruptMu.Lock()
	l.priority, l.hasPrio = priority, true
	p.interruptMu.Unlock()
	return nil
}

func (p *Port) EnableInterruptLine(num int) error {
	l := p.line(num)
	p.interruptMu.Lock()
	l.enabled = true
	p.interruptMu.Unlock()
	return nil
}

func (p *Port) DisableInterruptLine(num int) error {
	l := p.line(num)
	p.interruptMu.Lock()
	l.enabled = false
	p.interruptMu.Unlock()
	return nil
}

func (p *Port) PendInterruptLine(num int) error {
	l := p.line(num)
	p.interruptMu.Lock()
	l.pending = true
	p.interruptMu.Unlock()
	return nil
}

func (p *Port) ClearInterruptLine(num int) error {
	l := p.line(num)
	p.interruptMu.Lock()
	l.pending = false
	p.interruptMu.Unlock()
	return nil
}

func (p *Port) IsInterruptLinePending(num int) (bool, error) {
	l := p.line(num)
	p.interruptMu.Lock()
	defer p.interruptMu.Unlock()
	return l.pending, nil
}

var _ kernel.Port = (*Port)(nil)
var _ kernel.ManagedInterruptProvider = (*Port)(nil)
