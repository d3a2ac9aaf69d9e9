package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

func feedReps(c *RepCounter, start time.Time, n int) time.Time {
	at := start
	for range n {
		for _, p := range repPath() {
			c.Sample(telemetry.Sample{Timestamp: at, Position: p})
			at = at.Add(50 * time.Millisecond)
		}
	}
	return at
}

func TestRepCounter_CountsWarmupThenWorking(t *testing.T) {
	c := NewRepCounter(50, 2)
	feedReps(c, time.Unix(0, 0), 5)

	count := c.Count()
	assert.Equal(t, 2, count.Warmup)
	assert.Equal(t, 3, count.Working)
	assert.Equal(t, 5, count.Total)

	bottom, top, ok := c.RangeOfMotion()
	assert.True(t, ok)
	assert.InDelta(t, 0, bottom, 0.001)
	assert.InDelta(t, 500, top, 0.001)
	assert.False(t, c.LastRepAt().IsZero())
}

func TestRepCounter_IgnoresSmallMovements(t *testing.T) {
	c := NewRepCounter(50, 0)
	at := time.Unix(0, 0)
	for _, p := range []float64{0, 20, 40, 20, 0, 30, 10, 0} {
		c.Sample(telemetry.Sample{Timestamp: at, Position: p})
		at = at.Add(50 * time.Millisecond)
	}
	assert.Equal(t, RepCount{}, c.Count())
	_, _, ok := c.RangeOfMotion()
	assert.False(t, ok)
}

func TestRepCounter_DeviceEventsAreAuthoritative(t *testing.T) {
	c := NewRepCounter(50, 1)
	start := time.Unix(0, 0)

	assert.Equal(t, 1, c.DeviceRep(telemetry.RepEvent{Timestamp: start, TopCounter: 1}))
	// Position reps no longer count once the device reports its own.
	at := feedReps(c, start, 2)
	assert.Equal(t, 1, c.Count().Total)

	assert.Equal(t, 2, c.DeviceRep(telemetry.RepEvent{Timestamp: at, TopCounter: 3}))
	assert.Equal(t, 0, c.DeviceRep(telemetry.RepEvent{Timestamp: at, TopCounter: 3}))

	count := c.Count()
	assert.Equal(t, 1, count.Warmup)
	assert.Equal(t, 2, count.Working)
	assert.Equal(t, 3, count.Total)
	assert.Equal(t, at, c.LastRepAt())

	// The range of motion is still learned from samples.
	_, _, ok := c.RangeOfMotion()
	assert.True(t, ok)
}

func TestRepCounter_Reset(t *testing.T) {
	c := NewRepCounter(50, 0)
	feedReps(c, time.Unix(0, 0), 2)
	c.DeviceRep(telemetry.RepEvent{TopCounter: 4})

	c.Reset(3)
	assert.Equal(t, RepCount{}, c.Count())
	assert.Equal(t, 3, c.WarmupTarget())
	assert.True(t, c.LastRepAt().IsZero())
	_, _, ok := c.RangeOfMotion()
	assert.False(t, ok)

	// Device counters restart from zero after a reset.
	assert.Equal(t, 1, c.DeviceRep(telemetry.RepEvent{TopCounter: 1}))
}

func TestRepCounter_SyncDeviceMovesBaseline(t *testing.T) {
	c := NewRepCounter(50, 0)
	c.SyncDevice(telemetry.RepEvent{TopCounter: 2})
	assert.Equal(t, RepCount{}, c.Count())

	assert.Equal(t, 1, c.DeviceRep(telemetry.RepEvent{TopCounter: 3}))
	// The bottom-of-rep event repeats the top counter.
	assert.Equal(t, 0, c.DeviceRep(telemetry.RepEvent{TopCounter: 3, BottomCount: 3}))
	assert.Equal(t, 1, c.Count().Working)
}

func TestRepCounter_DeviceCounterWraps(t *testing.T) {
	c := NewRepCounter(50, 0)
	c.SyncDevice(telemetry.RepEvent{TopCounter: 0xFFFE})

	assert.Equal(t, 1, c.DeviceRep(telemetry.RepEvent{TopCounter: 0xFFFF}))
	assert.Equal(t, 2, c.DeviceRep(telemetry.RepEvent{TopCounter: 1}))
	assert.Equal(t, 1, c.DeviceRep(telemetry.RepEvent{TopCounter: 2}))
	assert.Equal(t, 4, c.Count().Working)
}

func TestRepCounter_DeviceCounterGoingBackwardsRebases(t *testing.T) {
	c := NewRepCounter(50, 0)
	assert.Equal(t, 5, c.DeviceRep(telemetry.RepEvent{TopCounter: 5}))

	assert.Equal(t, 0, c.DeviceRep(telemetry.RepEvent{TopCounter: 1}))
	assert.Equal(t, 1, c.DeviceRep(telemetry.RepEvent{TopCounter: 2}))
	assert.Equal(t, 6, c.Count().Working)
}
