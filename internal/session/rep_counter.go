package session

import (
	"math"
	"time"

	"github.com/lowaak/smart-trainer/cable-trainer-app/internal/telemetry"
)

// returnFraction is how far back toward the bottom the cable must travel,
// as a share of the rep's range, before the rep counts.
const returnFraction = 0.8

// Device rep counters are uint16 on the wire and wrap around.
const (
	counterModulus = 1 << 16
	maxCounterStep = counterModulus / 2
)

// RepCounter turns telemetry into reps. It tracks cable turnarounds to learn
// the range of motion and count reps itself, until the device's own rep
// events show up; from then on the device is authoritative and samples only
// refine the range of motion.
type RepCounter struct {
	minTravel    float64
	warmupTarget int
	count        RepCount

	started   bool
	valley    float64
	peak      float64
	romBottom float64
	romTop    float64
	romKnown  bool
	lastRepAt time.Time

	deviceDriven   bool
	lastTopCounter int
}

// NewRepCounter creates a counter that needs minTravel mm of cable travel per
// rep and treats the first warmupTarget reps as warm-up.
func NewRepCounter(minTravel float64, warmupTarget int) *RepCounter {
	c := &RepCounter{minTravel: minTravel}
	c.Reset(warmupTarget)
	return c
}

// Reset clears all per-set state.
func (c *RepCounter) Reset(warmupTarget int) {
	*c = RepCounter{minTravel: c.minTravel, warmupTarget: max(warmupTarget, 0)}
}

// Count returns the current tally.
func (c *RepCounter) Count() RepCount { return c.count }

// WarmupTarget returns the number of warm-up reps for this set.
func (c *RepCounter) WarmupTarget() int { return c.warmupTarget }

// LastRepAt returns the timestamp of the most recent rep, zero if none.
func (c *RepCounter) LastRepAt() time.Time { return c.lastRepAt }

// RangeOfMotion returns the learned bottom and top cable positions. ok is
// false until the first full rep was seen.
func (c *RepCounter) RangeOfMotion() (bottom, top float64, ok bool) {
	return c.romBottom, c.romTop, c.romKnown
}

// Sample feeds one telemetry sample and returns the number of reps it added.
func (c *RepCounter) Sample(s telemetry.Sample) int {
	pos := s.Position
	if !c.started {
		c.started = true
		c.valley = pos
		c.peak = pos
		c.count.Phase = RepPhaseIdle
		return 0
	}

	switch c.count.Phase {
	case RepPhaseIdle:
		c.valley = math.Min(c.valley, pos)
		if pos-c.valley >= c.minTravel {
			c.count.Phase = RepPhaseConcentric
			c.peak = pos
		}
	case RepPhaseConcentric:
		c.peak = math.Max(c.peak, pos)
		if c.peak-pos >= c.minTravel {
			c.count.Phase = RepPhaseEccentric
		}
	case RepPhaseEccentric:
		travel := c.peak - c.valley
		if pos <= c.peak-travel*returnFraction {
			c.learnRange(c.valley, c.peak)
			c.count.Phase = RepPhaseIdle
			c.valley = pos
			c.peak = pos
			if !c.deviceDriven {
				c.register(1, s.Timestamp)
				return 1
			}
		}
	}
	return 0
}

// DeviceRep feeds a device rep event and returns the number of reps it added.
// Counters that wrap past 0xFFFF keep counting; a counter that jumps backwards
// becomes the new baseline without adding reps.
func (c *RepCounter) DeviceRep(e telemetry.RepEvent) int {
	c.deviceDriven = true
	delta := counterDelta(c.lastTopCounter, e.TopCounter)
	c.lastTopCounter = e.TopCounter
	if delta <= 0 || delta >= maxCounterStep {
		return 0
	}
	c.register(delta, e.Timestamp)
	return delta
}

// SyncDevice records the device counter without counting, for rep events
// that arrive before the set is active.
func (c *RepCounter) SyncDevice(e telemetry.RepEvent) {
	c.lastTopCounter = e.TopCounter
}

func counterDelta(from, to int) int {
	return ((to-from)%counterModulus + counterModulus) % counterModulus
}

func (c *RepCounter) register(n int, at time.Time) {
	for range n {
		if c.count.Warmup < c.warmupTarget {
			c.count.Warmup++
		} else {
			c.count.Working++
		}
		c.count.Total++
	}
	c.lastRepAt = at
}

func (c *RepCounter) learnRange(bottom, top float64) {
	if !c.romKnown {
		c.romBottom, c.romTop, c.romKnown = bottom, top, true
		return
	}
	c.romBottom = (c.romBottom + bottom) / 2
	c.romTop = (c.romTop + top) / 2
}
