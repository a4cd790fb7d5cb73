package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderRequiresPriorityLevels(t *testing.T) {
	b, err := NewBuilder(WithPort(newFakePort()), WithClockFrequency(1_000_000, 1, 0))
	require.NoError(t, err)
	_, err = b.Build()
	assert.Equal(t, BadParam, KindOf(err))
}

func TestWithPriorityLevelsRejectsNonPositive(t *testing.T) {
	_, err := NewBuilder(WithPriorityLevels(0))
	assert.Equal(t, BadParam, KindOf(err))
}

func TestBuilderRequiresPort(t *testing.T) {
	b, err := NewBuilder(WithPriorityLevels(4), WithClockFrequency(1_000_000, 1, 0))
	require.NoError(t, err)
	_, err = b.Build()
	assert.Equal(t, BadParam, KindOf(err))
}

func TestBuilderRequiresClockFrequency(t *testing.T) {
	b, err := NewBuilder(WithPriorityLevels(4), WithPort(newFakePort()))
	require.NoError(t, err)
	_, err = b.Build()
	assert.Equal(t, BadParam, KindOf(err))
}

func TestBuilderBuildsKernelWithRegisteredObjects(t *testing.T) {
	var task *Task
	var mtx *Mutex
	var sem *Semaphore
	var eg *EventGroup
	var tmr *Timer
	var line *InterruptLine

	b, err := NewBuilder(
		WithPriorityLevels(4),
		WithPort(newFakePort()),
		WithClockFrequency(1_000_000, 1, 0),
		WithTask(TaskSpec{Name: "t0", Priority: 1}, &task),
		WithMutex(MutexSpec{Protocol: Ceiling, Ceiling: 0, Order: FIFO}, &mtx),
		WithSemaphore(SemaphoreSpec{Initial: 0, Max: 1, Order: FIFO}, &sem),
		WithEventGroup(EventGroupSpec{Initial: 0, Order: FIFO}, &eg),
		WithTimer(TimerSpec{DelayMicros: 100}, &tmr),
		WithInterruptLine(InterruptLineSpec{Num: 0}, &line),
	)
	require.NoError(t, err)

	k, err := b.Build()
	require.NoError(t, err)
	require.NotNil(t, k)

	assert.NotNil(t, task)
	assert.Equal(t, 1, task.basePriority)
	assert.Equal(t, Dormant, task.State())
	assert.NotNil(t, mtx)
	assert.NotNil(t, sem)
	assert.NotNil(t, eg)
	assert.NotNil(t, tmr)
	assert.NotNil(t, line)
}

func TestWithTaskRejectsNegativePriority(t *testing.T) {
	var task *Task
	_, err := NewBuilder(WithTask(TaskSpec{Priority: -1}, &task))
	assert.Equal(t, BadParam, KindOf(err))
}

func TestBuildRejectsTaskPriorityOutOfRange(t *testing.T) {
	var task *Task
	b, err := NewBuilder(
		WithPriorityLevels(2),
		WithPort(newFakePort()),
		WithClockFrequency(1_000_000, 1, 0),
		WithTask(TaskSpec{Priority: 5}, &task),
	)
	require.NoError(t, err)
	_, err = b.Build()
	assert.Equal(t, BadParam, KindOf(err))
}

func TestWithSemaphoreRejectsInitialAboveMax(t *testing.T) {
	var sem *Semaphore
	_, err := NewBuilder(WithSemaphore(SemaphoreSpec{Initial: 2, Max: 1}, &sem))
	assert.Equal(t, BadParam, KindOf(err))
}

func TestBuildRejectsCeilingMutexOutOfRange(t *testing.T) {
	var mtx *Mutex
	b, err := NewBuilder(
		WithPriorityLevels(2),
		WithPort(newFakePort()),
		WithClockFrequency(1_000_000, 1, 0),
		WithMutex(MutexSpec{Protocol: Ceiling, Ceiling: 9}, &mtx),
	)
	require.NoError(t, err)
	_, err = b.Build()
	assert.Equal(t, BadParam, KindOf(err))
}

func TestStartupHooksRunAtBootBeforeFirstDispatch(t *testing.T) {
	p := newFakePort()
	var order []string
	b, err := NewBuilder(
		WithPriorityLevels(2),
		WithPort(p),
		WithClockFrequency(1_000_000, 1, 0),
		WithStartupHook(func() {
			order = append(order, "hook1")
			assert.False(t, p.IsSchedulerActive(), "hooks run before first dispatch")
		}),
		WithStartupHook(func() { order = append(order, "hook2") }),
	)
	require.NoError(t, err)
	k, err := b.Build()
	require.NoError(t, err)

	p.EnterCPULock()
	k.Boot()
	assert.Equal(t, []string{"hook1", "hook2"}, order)
}

func TestWithStartupHookRejectsNil(t *testing.T) {
	_, err := NewBuilder(WithStartupHook(nil))
	assert.Equal(t, BadParam, KindOf(err))
}

func TestBuildValidatesManagedInterruptLines(t *testing.T) {
	var line *InterruptLine
	p := newFakePort()
	p.managed = ManagedInterruptRange{PriorityLo: 1, PriorityHi: 4}

	b, err := NewBuilder(
		WithPriorityLevels(2),
		WithPort(p),
		WithClockFrequency(1_000_000, 1, 0),
		WithInterruptLine(InterruptLineSpec{Num: 0, Managed: true, HasPrio: true, Priority: 10}, &line),
	)
	require.NoError(t, err)
	_, err = b.Build()
	assert.Equal(t, BadParam, KindOf(err))
}
