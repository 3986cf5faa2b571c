// ABOUTME: Fixed-size SPSC queue of device clock ticks
// ABOUTME: The only cross-thread channel between device callback and guest data path
package ring

import "sync/atomic"

// timingRingSize bounds the number of in-flight ticks. The guest data path
// drains the ring on every push, so in steady state at most a handful of
// slots are occupied.
const timingRingSize = 16

// Tick is one device clock observation published by the pull callback.
type Tick struct {
	PeriodFrames int
	NextTime     int64 // predicted wall time of the next pull, nanoseconds
	NextPosition int64 // cumulative frames at NextTime
}

// TimingRing is a single-producer/single-consumer queue of Ticks. Push runs
// on the device callback thread, Pop on the guest data thread. The atomic
// indices order slot writes before they become visible to the reader.
type TimingRing struct {
	slots [timingRingSize]Tick
	write atomic.Uint32
	read  atomic.Uint32
}

// NewTimingRing creates an empty timing ring.
func NewTimingRing() *TimingRing {
	return &TimingRing{}
}

// Push publishes a tick. When the ring is full the tick is dropped; the
// reader just observes the device correction one drain later, which is
// self-healing.
func (r *TimingRing) Push(t Tick) bool {
	w := r.write.Load()
	if w-r.read.Load() >= timingRingSize {
		return false
	}
	r.slots[w%timingRingSize] = t
	r.write.Store(w + 1)
	return true
}

// Pop removes the oldest tick, returning false when the ring is empty.
func (r *TimingRing) Pop() (Tick, bool) {
	rd := r.read.Load()
	if rd == r.write.Load() {
		return Tick{}, false
	}
	t := r.slots[rd%timingRingSize]
	r.read.Store(rd + 1)
	return t, true
}

// Len returns the number of queued ticks.
func (r *TimingRing) Len() int {
	return int(r.write.Load() - r.read.Load())
}
