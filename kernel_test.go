package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBootedKernel(t *testing.T) (*Kernel, *fakePort) {
	t.Helper()
	p := newFakePort()
	b, err := NewBuilder(
		WithPriorityLevels(4),
		WithPort(p),
		WithClockFrequency(1_000_000, 1, 0),
	)
	require.NoError(t, err)
	k, err := b.Build()
	require.NoError(t, err)

	p.EnterCPULock()
	k.Boot()
	p.LeaveCPULock()
	return k, p
}

func TestBootPanicsWhenCalledTwice(t *testing.T) {
	k, p := newBootedKernel(t)
	p.EnterCPULock()
	assert.Panics(t, func() { k.Boot() })
}

func TestTimeAndSetTime(t *testing.T) {
	k, _ := newBootedKernel(t)

	now, err := k.Time()
	require.NoError(t, err)
	assert.Equal(t, uint64(0), now)

	require.NoError(t, k.SetTime(42_000_000))
	now, err = k.Time()
	require.NoError(t, err)
	assert.Equal(t, uint64(42_000_000), now)
}

func TestTimeRejectedUnderCPULock(t *testing.T) {
	k, p := newBootedKernel(t)
	p.EnterCPULock()
	_, err := k.Time()
	assert.Equal(t, BadContext, KindOf(err))
	assert.Equal(t, BadContext, KindOf(k.SetTime(1)))
}

func TestTimerTickFiresDueTimeoutAndRearms(t *testing.T) {
	k, p := newBootedKernel(t)
	running := k.newTestTask(1)
	k.setRunning(running)

	sleeper := k.newTestTask(2)
	wd := &waitDescriptor{task: sleeper, kind: waitSleep}
	sleeper.wait = wd
	sleeper.state = Waiting

	reg, err := k.registerTimeoutFor(sleeper, 100)
	require.NoError(t, err)
	defer reg.unregister()

	p.tick = 250
	k.TimerTick()

	assert.Equal(t, Ready, sleeper.State())
	assert.Equal(t, WaitTimedOut, wd.result)
	assert.Greater(t, p.pendCalls, 0)
}
