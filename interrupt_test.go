package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterruptTableDispatchInvokesRegisteredHandler(t *testing.T) {
	tbl := newInterruptTable()
	called := false
	tbl.byLine[3] = &InterruptLine{num: 3, handler: func() { called = true }}

	tbl.Dispatch(3)
	assert.True(t, called)
}

func TestInterruptTableDispatchIgnoresUnknownLine(t *testing.T) {
	tbl := newInterruptTable()
	assert.NotPanics(t, func() { tbl.Dispatch(99) })
}

func TestInterruptTableValidateSkipsWhenPortNotManaged(t *testing.T) {
	tbl := newInterruptTable()
	tbl.byLine[0] = &InterruptLine{num: 0, managed: true}
	require.NoError(t, tbl.validate(newFakePort()))
}

func TestInterruptTableValidateRejectsManagedLineOutsideRange(t *testing.T) {
	tbl := newInterruptTable()
	tbl.byLine[0] = &InterruptLine{num: 0, managed: true, hasPrio: true, priority: 10}

	p := newFakePort()
	p.managed = ManagedInterruptRange{PriorityLo: 1, PriorityHi: 4}
	assert.Equal(t, BadParam, KindOf(tbl.validate(p)))
}

func TestInterruptTableValidateRejectsManagedLineWithoutPriority(t *testing.T) {
	tbl := newInterruptTable()
	tbl.byLine[0] = &InterruptLine{num: 0, managed: true}

	p := newFakePort()
	p.managed = ManagedInterruptRange{PriorityLo: 1, PriorityHi: 4}
	assert.Equal(t, BadParam, KindOf(tbl.validate(p)))
}

func TestInterruptTableValidateAcceptsManagedLineInsideRange(t *testing.T) {
	tbl := newInterruptTable()
	tbl.byLine[0] = &InterruptLine{num: 0, managed: true, hasPrio: true, priority: 2}

	p := newFakePort()
	p.managed = ManagedInterruptRange{PriorityLo: 1, PriorityHi: 4}
	require.NoError(t, tbl.validate(p))
}

func TestInterruptLineSetPriorityUpdatesLocalState(t *testing.T) {
	k, _ := newTestKernel(4)
	k.booted = true
	k.setRunning(k.newTestTask(1))

	l := &InterruptLine{num: 5, k: k}
	require.NoError(t, l.SetPriority(2))
	assert.Equal(t, 2, l.priority)
	assert.True(t, l.hasPrio)
}

func TestInterruptLineSetPriorityRejectsUnmanagedPriorityOnManagedLine(t *testing.T) {
	k, p := newTestKernel(4)
	k.booted = true
	k.setRunning(k.newTestTask(1))
	p.managed = ManagedInterruptRange{PriorityLo: 1, PriorityHi: 4}

	l := &InterruptLine{num: 5, managed: true, k: k}
	assert.Equal(t, BadParam, KindOf(l.SetPriority(10)))
	require.NoError(t, l.SetPriority(2))
}
