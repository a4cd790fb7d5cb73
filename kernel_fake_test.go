package kernel

// newTestKernel builds a bare Kernel wired to a fakePort, with numLevels
// priority levels and an empty ready queue, for unit tests that exercise a
// single primitive (mutex, semaphore, event group) without driving a
// whole Port-backed scheduling loop. It creates no tasks and leaves
// booted false; tests add tasks with newTestTask, pick the running one
// with setRunning, and set booted themselves where they need it.
func newTestKernel(numLevels int) (*Kernel, *fakePort) {
	p := newFakePort()
	k := &Kernel{
		port:   p,
		log:    NopLogger{},
		config: Config{NumPriorityLevels: numLevels},
		ready:  newReadyQueue(numLevels),
	}
	return k, p
}

func (k *Kernel) newTestTask(priority int) *Task {
	t := &Task{
		id:                len(k.tasks),
		basePriority:      priority,
		effectivePriority: priority,
		k:                 k,
	}
	k.tasks = append(k.tasks, t)
	return t
}

func (k *Kernel) setRunning(t *Task) {
	if k.runningTask != nil {
		k.runningTask.state = Ready
	}
	t.state = Running
	k.runningTask = t
}
