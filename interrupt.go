package kernel

// InterruptLine is a statically-configured interrupt line record: a
// numeric id, an optional priority, an enable flag, and a second-level
// handler. The combined table (interruptTable) is what the Port's
// first-level handler dispatches through.
type InterruptLine struct {
	num      int
	priority int
	hasPrio  bool
	managed  bool // declared "managed-safe" at configuration time
	handler  func()

	k *Kernel
}

type interruptTable struct {
	byLine map[int]*InterruptLine
}

func newInterruptTable() *interruptTable {
	return &interruptTable{byLine: make(map[int]*InterruptLine)}
}

// validate is the configuration-time check: a line
// declared managed-safe must have a priority within the Port's managed
// range, if the Port declares one via ManagedInterruptProvider.
func (tbl *interruptTable) validate(port Port) error {
	mp, ok := port.(ManagedInterruptProvider)
	if !ok {
		return nil
	}
	r := mp.ManagedInterrupts()
	if r.PriorityLo == r.PriorityHi {
		// Empty range: the Port declares no constraint.
		return nil
	}
	for _, line := range tbl.byLine {
		if !line.managed {
			continue
		}
		if !line.hasPrio || line.priority < r.PriorityLo || line.priority >= r.PriorityHi {
			return newErr("Config.Build", BadParam)
		}
	}
	return nil
}

// Dispatch is the entry point a Port's first-level interrupt handler
// calls with the line number; it looks up and invokes the registered
// second-level handler, if any.
func (tbl *interruptTable) Dispatch(line int) {
	if l, ok := tbl.byLine[line]; ok && l.handler != nil {
		l.handler()
	}
}

// SetPriority sets line's priority, delegating to the Port. Fails
// NotSupported if the Port does not implement priority control, and
// BadParam if the line is declared managed-safe and priority falls
// outside the Port's managed range: its handler could then no longer
// call kernel primitives safely.
func (l *InterruptLine) SetPriority(priority int) error {
	guard, err := l.k.enter("SetPriority")
	if err != nil {
		return err
	}
	defer guard.release()
	if l.managed {
		if mp, ok := l.k.port.(ManagedInterruptProvider); ok {
			r := mp.ManagedInterrupts()
			if r.PriorityLo != r.PriorityHi && (priority < r.PriorityLo || priority >= r.PriorityHi) {
				return newErr("SetPriority", BadParam)
			}
		}
	}
	if perr := l.k.port.SetInterruptLinePriority(l.num, priority); perr != nil {
		return perr
	}
	l.priority = priority
	l.hasPrio = true
	return nil
}

// Enable enables delivery of the line.
func (l *InterruptLine) Enable() error { return l.k.port.EnableInterruptLine(l.num) }

// Disable disables delivery of the line.
func (l *InterruptLine) Disable() error { return l.k.port.DisableInterruptLine(l.num) }

// Pend sets the line's pending flag.
func (l *InterruptLine) Pend() error { return l.k.port.PendInterruptLine(l.num) }

// Clear clears the line's pending flag.
func (l *InterruptLine) Clear() error { return l.k.port.ClearInterruptLine(l.num) }

// IsPending reads the line's pending flag.
func (l *InterruptLine) IsPending() (bool, error) { return l.k.port.IsInterruptLinePending(l.num) }
