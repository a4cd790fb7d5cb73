package kernel

// Semaphore is a counting semaphore: a nonnegative
// integer bounded by a configured maximum, plus a wait queue. Invariant:
// the wait queue is empty whenever the value is positive.
type Semaphore struct {
	value int
	max   int
	queue *waitQueue

	k *Kernel
}

func (k *Kernel) newSemaphore(initial, max int, order WaitOrder) *Semaphore {
	return &Semaphore{value: initial, max: max, queue: newWaitQueue(order), k: k}
}

// Value returns the semaphore's current count.
func (s *Semaphore) Value() int { return s.value }

// Signal adds n to the semaphore's value, failing QueueOverflow if that
// would exceed its configured maximum, then wakes waiters one at a time
// (in queue order), decrementing for each, until either the queue is
// empty or the value reaches zero.
func (s *Semaphore) Signal(n int) error {
	if n < 0 {
		return newErr("Signal", BadParam)
	}
	guard, err := s.k.enter("Signal")
	if err != nil {
		return err
	}
	defer guard.release()

	if s.max-s.value < n {
		return newErr("Signal", QueueOverflow)
	}
	s.value += n

	for s.value > 0 {
		wd := s.queue.popFront()
		if wd == nil {
			break
		}
		s.value--
		wd.wake(WaitOK)
	}
	return nil
}

// WaitOne blocks until the semaphore's value is positive, then
// decrements it and returns. Waitable-context only.
func (s *Semaphore) WaitOne() error { return s.waitOneTimeout(-1) }

// WaitOneTimeout is WaitOne bounded by a microsecond duration.
func (s *Semaphore) WaitOneTimeout(durationMicros int64) error {
	return s.waitOneTimeout(durationMicros)
}

// TryWaitOne decrements and returns immediately if the value is positive,
// otherwise fails Timeout without blocking.
func (s *Semaphore) TryWaitOne() error {
	guard, err := s.k.enter("TryWaitOne")
	if err != nil {
		return err
	}
	defer guard.release()
	if s.value <= 0 {
		return newErr("TryWaitOne", Timeout)
	}
	s.value--
	return nil
}

func (s *Semaphore) waitOneTimeout(durationMicros int64) error {
	guard, err := s.k.enter("WaitOne")
	if err != nil {
		return err
	}
	defer guard.release()

	if !s.k.isWaitableContext() {
		return newErr("WaitOne", BadContext)
	}
	if s.value > 0 {
		s.value--
		return nil
	}
	if durationMicros == 0 {
		return newErr("WaitOne", Timeout)
	}

	t := s.k.runningTask
	var wd waitDescriptor
	wd.task = t
	wd.kind = waitSemaphore
	s.queue.enqueue(&wd)
	t.wait = &wd
	t.state = Waiting

	reg, tErr := s.k.registerTimeoutFor(t, durationMicros)
	if tErr != nil {
		s.queue.remove(&wd)
		t.wait = nil
		t.state = Running
		return tErr
	}
	defer reg.unregister()

	s.k.suspend(t)
	switch wd.result {
	case WaitInterrupted:
		return newErr("WaitOne", Interrupted)
	case WaitTimedOut:
		return newErr("WaitOne", Timeout)
	default:
		return nil
	}
}

// Drain sets the semaphore's value to zero without waking any waiter.
func (s *Semaphore) Drain() error {
	guard, err := s.k.enter("Drain")
	if err != nil {
		return err
	}
	defer guard.release()
	s.value = 0
	return nil
}
