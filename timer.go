package kernel

// Timer is a configured software timer: a start delay, an
// optional period, and a callback, all expressed in microseconds against
// the tickless engine's event time.
type Timer struct {
	delay     uint32
	period    uint32 // 0 means one-shot
	hasPeriod bool
	callback  func()

	active bool
	target uint32 // valid only while active
	reg    timeoutRegistration

	k *Kernel
}

func (k *Kernel) newTimer(delayMicros uint32, callback func()) *Timer {
	return &Timer{delay: delayMicros, callback: callback, k: k}
}

// IsActive reports whether the timer is currently armed.
func (tm *Timer) IsActive() bool { return tm.active }

// Start (re)arms the timer at CET + delay. Idempotent: a
// timer already running is first stopped.
func (tm *Timer) Start() error {
	guard, err := tm.k.enter("Start")
	if err != nil {
		return err
	}
	defer guard.release()

	tm.stopLocked()
	return tm.armLocked(tm.delay)
}

// Stop disarms the timer if active; a no-op otherwise.
func (tm *Timer) Stop() error {
	guard, err := tm.k.enter("Stop")
	if err != nil {
		return err
	}
	defer guard.release()
	tm.stopLocked()
	return nil
}

// SetDelay changes the one-shot/initial delay. Negative values fail
// BadParam; takes effect on the next Start.
func (tm *Timer) SetDelay(delayMicros int64) error {
	if delayMicros < 0 {
		return newErr("SetDelay", BadParam)
	}
	guard, err := tm.k.enter("SetDelay")
	if err != nil {
		return err
	}
	defer guard.release()
	tm.delay = uint32(delayMicros)
	return nil
}

// SetPeriod changes the periodic re-arm interval. A negative value fails
// BadParam; zero makes the timer one-shot.
func (tm *Timer) SetPeriod(periodMicros int64) error {
	if periodMicros < 0 {
		return newErr("SetPeriod", BadParam)
	}
	guard, err := tm.k.enter("SetPeriod")
	if err != nil {
		return err
	}
	defer guard.release()
	tm.period = uint32(periodMicros)
	tm.hasPeriod = periodMicros != 0
	return nil
}

func (tm *Timer) stopLocked() {
	if tm.active {
		tm.reg.unregister()
		tm.active = false
	}
}

func (tm *Timer) armLocked(delayFromNow uint32) error {
	reg, err := tm.k.timeEngine.RegisterDeferred(delayFromNow, tm.fire, tm)
	if err != nil {
		return err
	}
	tm.reg = reg
	// Read Now after registering: registration refreshes the clock, and
	// the recorded target must match the deadline it computed.
	tm.target = tm.k.timeEngine.Now() + delayFromNow
	tm.active = true
	return nil
}

// fire is the deferred timeout callback: HandleTick collects it and the
// Port-facing TimerTick invokes it only after releasing CPU-lock (see
// tickengine.go and kernel.go), which is what lets the user callback call
// ordinary guarded kernel primitives.
func (tm *Timer) fire(arg any) {
	guard, err := tm.k.enter("timer")
	if err != nil {
		// CPU-lock should never already be active here; a Port bug.
		panicf("timer fire: %v", err)
	}
	tm.active = false
	if tm.hasPeriod {
		nextTarget := tm.target + tm.period
		delay := nextTarget - tm.k.timeEngine.Now()
		if int32(delay) < 0 {
			// The callback ran late enough that the next period boundary
			// has already passed; fire it on the next tick.
			delay = 0
		}
		if reg, rerr := tm.k.timeEngine.RegisterDeferred(delay, tm.fire, tm); rerr == nil {
			tm.reg = reg
			tm.target = nextTarget
			tm.active = true
		}
	}
	guard.release()

	if tm.callback != nil {
		tm.callback()
	}
}
