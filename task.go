package kernel

// TaskState is a task's position in the scheduling state machine.
type TaskState int

const (
	Dormant TaskState = iota
	PendingActivation
	Ready
	Running
	Waiting
)

func (s TaskState) String() string {
	switch s {
	case Dormant:
		return "Dormant"
	case PendingActivation:
		return "PendingActivation"
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	case Waiting:
		return "Waiting"
	default:
		return "TaskState(?)"
	}
}

// TaskEntry is the function a task runs; it is invoked by the Port once
// per activation, on a fresh stack, from Dormant/PendingActivation. The
// core never calls this directly (InitializeTaskState and dispatch are
// Port responsibilities) but the type is part of the kernel-facing
// configuration surface (see config.go).
type TaskEntry func(arg any)

// Task is the Task Control Block. Every Task is created once,
// statically, at Config.Build time, and lives for the process's lifetime;
// it is never deallocated.
type Task struct {
	id    int
	name  string
	entry TaskEntry
	arg   any

	basePriority      int
	effectivePriority int
	state             TaskState
	parkToken         bool

	readyLink Link[Task]

	wait *waitDescriptor // non-nil iff state == Waiting

	lastMutex *Mutex // head of the owned-mutex LIFO chain, via Mutex.nextOwned

	portState any // opaque, Port-owned (e.g. saved register file / goroutine handle)

	k *Kernel
}

func taskReadyLink(t *Task) *Link[Task] { return &t.readyLink }

// BasePriority returns the task's configured, un-boosted priority.
func (t *Task) BasePriority() int { return t.basePriority }

// EffectivePriority returns the task's current scheduling priority,
// accounting for held Ceiling mutexes.
func (t *Task) EffectivePriority() int { return t.effectivePriority }

// State returns the task's current state.
func (t *Task) State() TaskState { return t.state }

// Name returns the task's configured name, for diagnostics.
func (t *Task) Name() string { return t.name }

// InvokeEntry calls the task's configured entry point with its configured
// argument. It exists for the benefit of Port implementations (e.g.
// stdport), which run task code on a goroutine and need to reach the entry
// function InitializeTaskState prepared a register-save area for; the
// core itself never calls this.
func (t *Task) InvokeEntry() {
	if t.entry != nil {
		t.entry(t.arg)
	}
}

// recomputeEffectivePriority re-derives the scheduled priority: base
// priority, lowered (numerically) by the minimum
// ceiling of every Ceiling mutex currently owned, repositioning the task
// if its bucket or wait-queue position must change, or checking for
// preemption if it is Running. Must be called with CPU-lock held.
func (t *Task) recomputeEffectivePriority() {
	eff := t.basePriority
	for m := t.lastMutex; m != nil; m = m.nextOwned {
		if m.protocol == Ceiling && m.ceiling < eff {
			eff = m.ceiling
		}
	}
	if eff == t.effectivePriority {
		return
	}
	old := t.effectivePriority
	t.effectivePriority = eff

	switch t.state {
	case Ready:
		t.k.ready.Remove(t, old)
		t.k.ready.Push(t)
	case Waiting:
		t.wait.reposition()
	case Running:
		t.k.checkPreemption()
	}
}
