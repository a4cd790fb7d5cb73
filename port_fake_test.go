package kernel

// fakePort is a minimal, single-goroutine kernel.Port test double: it
// never actually spawns execution contexts, it just tracks the
// bookkeeping state (CPU-lock, task/interrupt context, the armed
// interrupt delta) that the parts of the kernel under test in this
// package read and write. Tests that need real task scheduling use the
// stdport package instead; these unit tests exercise scheduler.go,
// tickengine.go, mutex.go, etc. directly against their own state, with
// this fake only standing in for the Port interface's bookkeeping
// half.
type fakePort struct {
	cpuLock      bool
	taskCtx      bool
	interruptCtx bool
	schedActive  bool

	tick        uint32
	pendedDelta uint32
	pendCalls   int

	initialized []*Task
	dispatched  []*Task
	exited      []*Task
	yields      int

	managed ManagedInterruptRange
}

func newFakePort() *fakePort { return &fakePort{taskCtx: true} }

func (p *fakePort) DispatchFirstTask() { p.schedActive = true }
func (p *fakePort) YieldCPU()          { p.yields++ }
func (p *fakePort) ExitAndDispatch(t *Task) {
	p.exited = append(p.exited, t)
}

func (p *fakePort) EnterCPULock()         { p.cpuLock = true }
func (p *fakePort) LeaveCPULock()         { p.cpuLock = false }
func (p *fakePort) IsCPULockActive() bool { return p.cpuLock }
func (p *fakePort) TryEnterCPULock() bool {
	if p.cpuLock {
		return false
	}
	p.cpuLock = true
	return true
}

func (p *fakePort) InitializeTaskState(t *Task) { p.initialized = append(p.initialized, t) }

func (p *fakePort) IsTaskContext() bool      { return p.taskCtx }
func (p *fakePort) IsInterruptContext() bool { return p.interruptCtx }
func (p *fakePort) IsSchedulerActive() bool  { return p.schedActive }

func (p *fakePort) SetInterruptLinePriority(line int, priority int) error { return nil }
func (p *fakePort) EnableInterruptLine(line int) error                    { return nil }
func (p *fakePort) DisableInterruptLine(line int) error                   { return nil }
func (p *fakePort) PendInterruptLine(line int) error                      { return nil }
func (p *fakePort) ClearInterruptLine(line int) error                     { return nil }
func (p *fakePort) IsInterruptLinePending(line int) (bool, error)         { return false, nil }

func (p *fakePort) TickCount() uint32 { return p.tick }
func (p *fakePort) PendTickAfter(delta uint32) {
	p.pendedDelta = delta
	p.pendCalls++
}
func (p *fakePort) PendTick() { p.PendTickAfter(0) }

func (p *fakePort) ManagedInterrupts() ManagedInterruptRange { return p.managed }

var _ Port = (*fakePort)(nil)
var _ ManagedInterruptProvider = (*fakePort)(nil)
