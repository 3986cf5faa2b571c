// ABOUTME: Second-order PLL clock tracker for one side of the pipeline
// ABOUTME: Estimates period and phase from observed wakeup times
package playback

import "math"

const (
	// pllBandwidth is the loop bandwidth in Hz. Low enough to ride out
	// scheduling jitter, high enough to follow real clock drift.
	pllBandwidth = 0.05

	// desyncThresholdSec is the phase error beyond which tracking is
	// abandoned and the stream position is slewed instead.
	desyncThresholdSec = 0.2
)

// clockTracker estimates one clock's period and phase from the arrival
// times of its wakeups. Two instances run independently, one on the device
// callback thread and one on the guest data thread; they never share state.
type clockTracker struct {
	periodFrames int
	periodSec    float64
	nextTime     int64 // predicted wall time of the next wakeup, ns
	nextPosition int64 // cumulative frames at nextTime
	b, c         float64
}

// pllCoeffs derives the second-order loop coefficients for a period.
func pllCoeffs(periodSec float64) (b, c float64) {
	omega := 2 * math.Pi * pllBandwidth * periodSec
	return math.Sqrt2 * omega, omega * omega
}

// setPeriod installs a new period estimate and recomputes the loop
// coefficients. The caller adjusts nextTime: the device side advances it by
// the old period before this call, the guest side by the new period after
// it; see the period-change handling in the engine.
func (t *clockTracker) setPeriod(frames, sampleRate int) {
	t.periodFrames = frames
	t.periodSec = float64(frames) / float64(sampleRate)
	t.b, t.c = pllCoeffs(t.periodSec)
}

// errorSec returns the phase error of an observed wakeup at now.
func (t *clockTracker) errorSec(now int64) float64 {
	return float64(now-t.nextTime) * 1e-9
}

// step advances the loop by one wakeup with the given phase error.
func (t *clockTracker) step(errSec float64) {
	t.nextTime += llrint((t.b*errSec + t.periodSec) * 1e9)
	t.periodSec += t.c * errSec
}

func llrint(x float64) int64 {
	return int64(math.Round(x))
}
