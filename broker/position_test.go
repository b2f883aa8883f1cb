package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnrealizedPnL(t *testing.T) {
	t.Parallel()

	long := Position{Side: Long, Quantity: 2, EntryPrice: 100, CurrentPrice: 110}
	assert.InDelta(t, 20.0, long.UnrealizedPnL(), 1e-9)

	short := Position{Side: Short, Quantity: 2, EntryPrice: 100, CurrentPrice: 110}
	assert.InDelta(t, -20.0, short.UnrealizedPnL(), 1e-9)

	assert.InDelta(t, 220.0, short.Value(), 1e-9)
}

func TestExitTriggers(t *testing.T) {
	t.Parallel()

	long := Position{Side: Long, StopLoss: Float(95), TakeProfit: Float(120)}
	assert.True(t, long.HitStopLoss(95))
	assert.False(t, long.HitStopLoss(96))
	assert.True(t, long.HitTakeProfit(121))
	assert.False(t, long.HitTakeProfit(119))

	short := Position{Side: Short, StopLoss: Float(105), TakeProfit: Float(80)}
	assert.True(t, short.HitStopLoss(105))
	assert.False(t, short.HitStopLoss(104))
	assert.True(t, short.HitTakeProfit(79))

	bare := Position{Side: Long}
	assert.False(t, bare.HitStopLoss(0))
	assert.False(t, bare.HitTakeProfit(1e9))
}

func TestCloneDetachesPointers(t *testing.T) {
	t.Parallel()

	p := Position{StopLoss: Float(90)}
	c := p.Clone()
	*c.StopLoss = 91
	assert.Equal(t, 90.0, *p.StopLoss)
}

func TestFillDerivedValues(t *testing.T) {
	t.Parallel()

	f := OrderFill{Quantity: 0.1, Price: 100.05, Commission: 0.010005}
	assert.InDelta(t, 10.005, f.FillValue(), 1e-12)
	assert.InDelta(t, 10.015005, f.TotalCost(), 1e-12)

	r := Filled(f)
	assert.True(t, r.Success)
	assert.Equal(t, StatusFilled, r.Status)
	assert.Equal(t, "", r.Reason())

	rej := Rejected(ErrKillSwitch)
	assert.False(t, rej.Success)
	assert.Equal(t, StatusRejected, rej.Status)
	assert.True(t, errors.Is(rej.Err, ErrKillSwitch))
}
