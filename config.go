package kernel

// Option configures a Builder. The functional-options pattern keeps
// Config construction readable as the number of statically-registered
// objects grows, the same way options compose for the kernel's own
// multi-knob constructors.
type Option interface {
	apply(*Builder) error
}

type optionFunc func(*Builder) error

func (f optionFunc) apply(b *Builder) error { return f(b) }

// WithPriorityLevels sets the number of scheduling priority levels
// (bucket 0 is highest). Required; Build fails BadParam if never set,
// and a non-positive n fails BadParam when the option is applied.
func WithPriorityLevels(n int) Option {
	return optionFunc(func(b *Builder) error {
		if n <= 0 {
			return newErr("WithPriorityLevels", BadParam)
		}
		b.numPriorityLevels = n
		return nil
	})
}

// WithPort supplies the hardware abstraction. Required.
func WithPort(port Port) Option {
	return optionFunc(func(b *Builder) error {
		b.port = port
		return nil
	})
}

// WithLogger supplies a pluggable diagnostic sink (logging.go). Defaults
// to NopLogger if never set.
func WithLogger(l Logger) Option {
	return optionFunc(func(b *Builder) error {
		b.logger = l
		return nil
	})
}

// WithClockFrequency configures the tickless engine's hardware clock, as
// an exact rational freqNum/freqDenom Hz, plus the worst-case interrupt
// latency expressed in hardware ticks. Required.
func WithClockFrequency(freqNum, freqDenom uint64, hwHeadroomTicks uint32) Option {
	return optionFunc(func(b *Builder) error {
		b.freqNum = freqNum
		b.freqDenom = freqDenom
		b.hwHeadroomTicks = hwHeadroomTicks
		b.hasClock = true
		return nil
	})
}

// WithStartupHook registers a function Boot runs on the boot context,
// with CPU-lock active, before the first task is dispatched. Hooks run
// in registration order.
func WithStartupHook(hook func()) Option {
	return optionFunc(func(b *Builder) error {
		if hook == nil {
			return newErr("WithStartupHook", BadParam)
		}
		b.startupHooks = append(b.startupHooks, hook)
		return nil
	})
}

// TaskSpec describes one statically-configured task.
type TaskSpec struct {
	Name           string
	Priority       int
	Entry          TaskEntry
	Arg            any
	ActivateAtBoot bool
}

// WithTask registers a task; *handle is written with the task's *Task
// once Build succeeds; the same "register now, resolve at
// Build time" shape used for mutexes/semaphores/etc below, since object
// identity (the concrete *Task) does not exist until Build constructs the
// Kernel singleton.
func WithTask(spec TaskSpec, handle **Task) Option {
	return optionFunc(func(b *Builder) error {
		if spec.Priority < 0 {
			return newErr("WithTask", BadParam)
		}
		b.taskSpecs = append(b.taskSpecs, spec)
		b.taskHandles = append(b.taskHandles, handle)
		return nil
	})
}

// MutexSpec describes one statically-configured mutex.
type MutexSpec struct {
	Protocol MutexProtocol
	Ceiling  int // only meaningful if Protocol == Ceiling
	Order    WaitOrder
}

// WithMutex registers a mutex.
func WithMutex(spec MutexSpec, handle **Mutex) Option {
	return optionFunc(func(b *Builder) error {
		b.mutexSpecs = append(b.mutexSpecs, spec)
		b.mutexHandles = append(b.mutexHandles, handle)
		return nil
	})
}

// SemaphoreSpec describes one statically-configured semaphore.
type SemaphoreSpec struct {
	Initial, Max int
	Order        WaitOrder
}

// WithSemaphore registers a semaphore.
func WithSemaphore(spec SemaphoreSpec, handle **Semaphore) Option {
	return optionFunc(func(b *Builder) error {
		if spec.Max < 0 || spec.Initial < 0 || spec.Initial > spec.Max {
			return newErr("WithSemaphore", BadParam)
		}
		b.semSpecs = append(b.semSpecs, spec)
		b.semHandles = append(b.semHandles, handle)
		return nil
	})
}

// EventGroupSpec describes one statically-configured event group.
type EventGroupSpec struct {
	Initial uint32
	Order   WaitOrder
}

// WithEventGroup registers an event group.
func WithEventGroup(spec EventGroupSpec, handle **EventGroup) Option {
	return optionFunc(func(b *Builder) error {
		b.egSpecs = append(b.egSpecs, spec)
		b.egHandles = append(b.egHandles, handle)
		return nil
	})
}

// TimerSpec describes one statically-configured software timer.
type TimerSpec struct {
	DelayMicros  uint32
	PeriodMicros uint32 // 0 = one-shot
	Callback     func()
}

// WithTimer registers a software timer.
func WithTimer(spec TimerSpec, handle **Timer) Option {
	return optionFunc(func(b *Builder) error {
		b.timerSpecs = append(b.timerSpecs, spec)
		b.timerHandles = append(b.timerHandles, handle)
		return nil
	})
}

// InterruptLineSpec describes one statically-configured interrupt line.
type InterruptLineSpec struct {
	Num      int
	Priority int
	HasPrio  bool
	Managed  bool
	Handler  func()
}

// WithInterruptLine registers an interrupt line.
func WithInterruptLine(spec InterruptLineSpec, handle **InterruptLine) Option {
	return optionFunc(func(b *Builder) error {
		b.lineSpecs = append(b.lineSpecs, spec)
		b.lineHandles = append(b.lineHandles, handle)
		return nil
	})
}

// Builder accumulates Options; call Build to validate and construct a
// Kernel singleton. The zero value is ready to use via NewBuilder.
type Builder struct {
	numPriorityLevels int
	port              Port
	logger            Logger

	hasClock        bool
	freqNum         uint64
	freqDenom       uint64
	hwHeadroomTicks uint32

	taskSpecs   []TaskSpec
	taskHandles []**Task

	mutexSpecs   []MutexSpec
	mutexHandles []**Mutex

	semSpecs   []SemaphoreSpec
	semHandles []**Semaphore

	egSpecs   []EventGroupSpec
	egHandles []**EventGroup

	timerSpecs   []TimerSpec
	timerHandles []**Timer

	lineSpecs   []InterruptLineSpec
	lineHandles []**InterruptLine

	startupHooks []func()
}

// Config is the immutable configuration produced by a successful Build,
// retained on Kernel for diagnostics.
type Config struct {
	NumPriorityLevels int
}

// NewBuilder constructs an empty Builder.
func NewBuilder(opts ...Option) (*Builder, error) {
	b := &Builder{}
	for _, o := range opts {
		if o == nil {
			continue
		}
		if err := o.apply(b); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Build validates the accumulated configuration and constructs the
// Kernel singleton, writing every registered object's handle. Build does
// not call Boot; the caller (typically the Port's reset handler) must
// call Kernel.Boot separately, normally from the Port's reset handler.
func (b *Builder) Build() (*Kernel, error) {
	if b.numPriorityLevels <= 0 {
		return nil, newErr("Build", BadParam)
	}
	if b.port == nil {
		return nil, newErr("Build", BadParam)
	}
	if !b.hasClock {
		return nil, newErr("Build", BadParam)
	}

	cfg, err := NewTicklessConfig(b.freqNum, b.freqDenom, b.hwHeadroomTicks)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = NopLogger{}
	}

	timeEngine := NewTimeEngine(cfg)
	timeEngine.Bind(b.port)

	k := &Kernel{
		port:         b.port,
		log:          logger,
		config:       Config{NumPriorityLevels: b.numPriorityLevels},
		ready:        newReadyQueue(b.numPriorityLevels),
		timeEngine:   timeEngine,
		interrupts:   newInterruptTable(),
		startupHooks: b.startupHooks,
	}

	for i, spec := range b.taskSpecs {
		if spec.Priority >= b.numPriorityLevels {
			return nil, newErr("Build", BadParam)
		}
		t := &Task{
			id:                i,
			name:              spec.Name,
			entry:             spec.Entry,
			arg:               spec.Arg,
			basePriority:      spec.Priority,
			effectivePriority: spec.Priority,
			state:             Dormant,
			k:                 k,
		}
		if spec.ActivateAtBoot {
			t.state = PendingActivation
		}
		k.tasks = append(k.tasks, t)
		if b.taskHandles[i] != nil {
			*b.taskHandles[i] = t
		}
	}

	for i, spec := range b.mutexSpecs {
		if spec.Protocol == Ceiling && (spec.Ceiling < 0 || spec.Ceiling >= b.numPriorityLevels) {
			return nil, newErr("Build", BadParam)
		}
		m := k.newMutex(spec.Protocol, spec.Ceiling, spec.Order)
		if b.mutexHandles[i] != nil {
			*b.mutexHandles[i] = m
		}
	}

	for i, spec := range b.semSpecs {
		s := k.newSemaphore(spec.Initial, spec.Max, spec.Order)
		if b.semHandles[i] != nil {
			*b.semHandles[i] = s
		}
	}

	for i, spec := range b.egSpecs {
		g := k.newEventGroup(spec.Initial, spec.Order)
		if b.egHandles[i] != nil {
			*b.egHandles[i] = g
		}
	}

	for i, spec := range b.timerSpecs {
		tm := k.newTimer(spec.DelayMicros, spec.Callback)
		tm.period = spec.PeriodMicros
		tm.hasPeriod = spec.PeriodMicros != 0
		if b.timerHandles[i] != nil {
			*b.timerHandles[i] = tm
		}
	}

	for i, spec := range b.lineSpecs {
		l := &InterruptLine{
			num: spec.Num, priority: spec.Priority, hasPrio: spec.HasPrio,
			managed: spec.Managed, handler: spec.Handler, k: k,
		}
		k.interrupts.byLine[spec.Num] = l
		if b.lineHandles[i] != nil {
			*b.lineHandles[i] = l
		}
	}
	if err := k.interrupts.validate(k.port); err != nil {
		return nil, err
	}

	return k, nil
}
