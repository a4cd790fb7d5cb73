package kernel

// Event-time zone widths. All three are fixed fractions of the
// u32 wrapping space and sum to exactly 2^32, so every u32 value decodes to
// exactly one position relative to the critical point.
const (
	durationMax  uint32 = 1 << 31 // enqueueable zone width
	userHeadroom uint32 = 1 << 29 // on each side of the enqueueable zone
	hardHeadroom uint32 = 1 << 30 // precedes the user headroom
)

// TimeEngine is the tickless timekeeping engine: it derives a
// monotonic microsecond "current event time" (CET) from an arbitrary-
// frequency free-running hardware counter, dispatches expiring timeouts
// from the timeout heap, and bounds backward/forward time adjustment by the
// frontier-gap invariant.
type TimeEngine struct {
	core *ticklessCore
	cfg  TicklessConfig
	heap timeoutHeap
	port Port // used to (re)arm the next hardware interrupt; nil until Bind

	cet         uint32
	frontier    uint32
	frontierGap uint32
	lastHwTick  uint32
	lastOsTick  uint32 // core-coordinate OS tick at the last reference
	booted      bool

	// sysTime is the 64-bit wall-clock snapshot at the last reference, in
	// microseconds. It advances in
	// lockstep with CET (including AdjustTime shifts in both directions)
	// but can be rewritten wholesale via SetTime without disturbing any
	// registered timeout.
	sysTime uint64
}

// NewTimeEngine constructs a TimeEngine for the given precomputed tickless
// configuration. The Port is bound separately via Bind once it is known
// (Config.Build constructs the TimeEngine before the Kernel it belongs to
// exists, but the Port itself is already available at that point).
func NewTimeEngine(cfg TicklessConfig) *TimeEngine {
	e := &TimeEngine{core: newTicklessCore(cfg), cfg: cfg}
	// The hardware-derived bound can exceed the enqueueable zone for
	// simple clocks (e.g. an exact 1 tick/µs counter); every registered
	// timeout must still land within [CET, CET+DURATION_MAX].
	if e.cfg.maxTimeout > durationMax {
		e.cfg.maxTimeout = durationMax
	}
	return e
}

// Bind attaches the Port the engine uses to arm hardware interrupts. Must
// be called once, before Boot.
func (e *TimeEngine) Bind(port Port) { e.port = port }

// MaxTimeout is the largest duration, in microseconds, that may be passed to
// Register.
func (e *TimeEngine) MaxTimeout() uint32 { return e.cfg.maxTimeout }

// Now returns the current event time.
func (e *TimeEngine) Now() uint32 { return e.cet }

// FrontierGap returns frontier-CET, which remains in [0, userHeadroom]
// at all times.
func (e *TimeEngine) FrontierGap() uint32 { return e.frontierGap }

// criticalPoint computes the earliest edge of the hard headroom zone
// relative to the current CET.
func (e *TimeEngine) criticalPoint() uint32 {
	return e.cet - userHeadroom - hardHeadroom
}

func criticalPointFor(cet uint32) uint32 {
	return cet - userHeadroom - hardHeadroom
}

// wouldCrossCritical reports whether event-time at, judged against critical
// point crit, lies within the hard-headroom zone [crit, crit+hardHeadroom),
// the one thing that must never happen to a live timeout. Points further
// before crit wrap to large distances and are not reported.
func wouldCrossCritical(at, crit uint32) bool {
	return at-crit < hardHeadroom
}

// Boot establishes the first reference point from the hardware counter's
// current reading. Must be called exactly once, from boot, before any
// timeout is registered or any tick handled.
func (e *TimeEngine) Boot(hwTick uint32) {
	e.lastHwTick = hwTick
	e.lastOsTick = e.core.markReference(hwTick)
	e.cet = e.lastOsTick
	e.frontier = e.cet
	e.frontierGap = 0
	e.booted = true
}

// Register enqueues a new timeout to fire delayMicros from now, returning a
// guard whose unregister method must be invoked on every exit path of the
// caller (typically via defer); see timeout.go. The callback runs inline,
// with CPU-lock still held by the HandleTick caller.
func (e *TimeEngine) Register(delayMicros uint32, callback func(arg any), arg any) (timeoutRegistration, error) {
	return e.register(delayMicros, callback, arg, false)
}

// RegisterDeferred is Register, except the callback is collected by
// HandleTick and invoked only after CPU-lock has been released, for
// callers (software timers) whose callback is allowed to call ordinary
// guarded kernel primitives.
func (e *TimeEngine) RegisterDeferred(delayMicros uint32, callback func(arg any), arg any) (timeoutRegistration, error) {
	return e.register(delayMicros, callback, arg, true)
}

func (e *TimeEngine) register(delayMicros uint32, callback func(arg any), arg any, deferred bool) (timeoutRegistration, error) {
	if delayMicros > e.cfg.maxTimeout {
		return timeoutRegistration{}, newErr("Register", BadParam)
	}
	if e.booted && e.port != nil {
		// The last snapshot may be almost a full timer interval old;
		// measure the new deadline from the counter's current reading.
		e.refresh(e.port.TickCount())
	}
	t := newTimeout(callback, arg)
	t.deferred = deferred
	t.at = e.cet + delayMicros
	e.heap.push(t, e.criticalPoint())
	if e.heap.peek() == t && e.port != nil {
		// t became the earliest pending timeout: the hardware interrupt
		// previously armed (if any) may fire too late to service it, so
		// rearm immediately rather than waiting for the next unrelated
		// HandleTick to notice.
		e.scheduleNextInterrupt(e.port.TickCount(), e.port)
	}
	return timeoutRegistration{engine: e, timeout: t}, nil
}

func (e *TimeEngine) cancelTimeout(t *timeoutEntry) {
	e.heap.remove(t, e.criticalPoint())
}

// advance moves CET forward to newCet (which must not have wrapped past the
// valid universe relative to the old critical point) and updates the
// frontier high-water mark.
func (e *TimeEngine) advance(newCet uint32) {
	crit := criticalPointFor(newCet)
	if wouldCrossCritical(e.frontier, crit) || (newCet-crit) > (e.frontier-crit) {
		e.frontier = newCet
	}
	e.sysTime += uint64(newCet - e.cet)
	e.cet = newCet
	e.frontierGap = e.frontier - e.cet
}

// Time returns the current system time in microseconds.
func (e *TimeEngine) Time() uint64 { return e.sysTime }

// SetTime rewrites the system time without affecting CET, the frontier,
// or any registered timeout.
func (e *TimeEngine) SetTime(micros uint64) { e.sysTime = micros }

// AdjustTime moves CET by deltaMicros (signed). A backward adjustment
// that would push frontier-CET beyond userHeadroom is rejected, and a
// forward adjustment that would push the earliest registered timeout into
// the hard-headroom zone is rejected. Either rejection is atomic: all
// state is left unchanged.
func (e *TimeEngine) AdjustTime(deltaMicros int64) error {
	if deltaMicros > int64(durationMax) || deltaMicros < -int64(durationMax) {
		return newErr("AdjustTime", BadParam)
	}
	if deltaMicros < 0 {
		backward := uint32(-deltaMicros)
		newGap := e.frontierGap + backward
		if newGap < e.frontierGap || newGap > userHeadroom {
			return newErr("AdjustTime", BadObjectState)
		}
		e.cet -= backward
		e.sysTime -= uint64(backward)
		e.frontierGap = newGap
		return nil
	}

	forward := uint32(deltaMicros)
	if t := e.heap.peek(); t != nil {
		// Signed microseconds until the earliest timeout (negative if
		// already overdue), measured against the critical point so the
		// value is wrap-free for any live timeout. The adjustment may
		// leave it overdue by at most USER_HEADROOM; any further and it
		// would enter the hard headroom zone.
		until := int64(t.at-e.criticalPoint()) - int64(userHeadroom+hardHeadroom)
		if int64(forward) > until+int64(userHeadroom) {
			return newErr("AdjustTime", BadObjectState)
		}
	}
	e.advance(e.cet + forward)
	return nil
}

// refresh advances CET by the time elapsed since the last reference
// rather than taking the core's OS-tick value directly, so that an
// AdjustTime shift survives subsequent reference updates.
func (e *TimeEngine) refresh(hwTick uint32) {
	newOsTick := e.core.markReference(hwTick)
	elapsed := newOsTick - e.lastOsTick
	e.lastOsTick = newOsTick
	e.lastHwTick = hwTick
	e.advance(e.cet + elapsed)
}

// HandleTick is called on every timer interrupt. The Port invokes
// Kernel.TimerTick with CPU-lock inactive; TimerTick re-acquires CPU-lock
// before calling this.
// It snapshots the hardware counter, fires every expired timeout in order,
// and arranges the next interrupt via port.PendTickAfter. Timeouts
// registered as deferred are returned instead of invoked, so the caller
// can run them after releasing CPU-lock.
func (e *TimeEngine) HandleTick(hwTick uint32) []func() {
	e.refresh(hwTick)

	var deferred []func()
	for {
		crit := e.criticalPoint()
		t := e.heap.peek()
		if t == nil || timeoutBefore(e.cet, t.at, crit) {
			break
		}
		e.heap.pop(crit)
		t.heapPos = notQueued
		if t.deferred {
			cb, arg := t.callback, t.arg
			deferred = append(deferred, func() { cb(arg) })
		} else {
			t.callback(t.arg)
		}
	}

	e.scheduleNextInterrupt(hwTick, e.port)
	return deferred
}

func (e *TimeEngine) scheduleNextInterrupt(hwTick uint32, port Port) {
	var delayMicros uint32
	if t := e.heap.peek(); t != nil {
		delayMicros = t.at - e.cet
		if delayMicros > durationMax {
			// Overdue (e.g. after a forward AdjustTime): fire as soon as
			// the hardware allows.
			port.PendTick()
			return
		}
	} else {
		delayMicros = e.cfg.maxTimeout
	}
	// The core's coordinate system knows nothing of AdjustTime shifts;
	// map the event-time delay onto the last reference's OS tick.
	targetOsTick := e.lastOsTick + delayMicros
	targetHw := e.core.tickCountToHwTickCount(targetOsTick)
	delta := targetHw - hwTick
	port.PendTickAfter(delta)
}
