// ABOUTME: PI latency controller converting offset error into a resample ratio
// ABOUTME: Also computes the target latency with the period-downshift correction
package playback

const (
	latencyKp = 0.5e-6
	latencyKi = 1.0e-16

	// resamplerStartupFrames is extra slack added to the slew target when
	// playback restarts out of keep-alive, covering the converter's
	// priming latency.
	resamplerStartupFrames = 20
)

// latencyController filters the measured offset error and integrates it
// into a resampling ratio. It lives on the guest data thread.
type latencyController struct {
	offsetError         float64
	offsetErrorIntegral float64
	ratioIntegral       float64
}

func (l *latencyController) reset() {
	*l = latencyController{}
}

// filter folds a new offset-error measurement into the smoothed estimate.
// The raw measurement moves quickly, particularly at stream start, and
// feeding it to the PI stage unfiltered would cause audible pitch shifts;
// the guest clock's own loop coefficients are reused as the filter.
func (l *latencyController) filter(actualOffsetError, b, c float64) {
	err := actualOffsetError - l.offsetError
	l.offsetError += b*err + l.offsetErrorIntegral
	l.offsetErrorIntegral += c * err
}

// ratio produces the resampling ratio from the offset error in effect for
// this period. The caller passes the error captured before filter ran, so
// the integral accumulates the value the current output was produced with.
func (l *latencyController) ratio(offsetError, periodSec float64) float64 {
	l.ratioIntegral += offsetError * periodSec
	return 1.0 + latencyKp*offsetError + latencyKi*l.ratioIntegral
}

// targetLatencyFrames computes the steady-state offset the controller aims
// for: the largest period the device can ask for plus a jitter margin and
// the configured extra buffer.
//
// When the device is running a smaller period than its maximum, the
// difference is added on top. During a downshift the device requests the
// smaller buffer while the previous larger buffer is still playing, which
// shifts data from the device buffer into our ring. Left uncorrected the
// controller would speed playback up to burn off the surplus, and the
// stream would then underrun badly when the period size goes back up.
func targetLatencyFrames(deviceMaxPeriod, observedDevPeriod, sampleRate, configLatencyMs int) float64 {
	maxPeriod := deviceMaxPeriod
	if observedDevPeriod > maxPeriod {
		maxPeriod = observedDevPeriod
	}
	target := float64(maxPeriod)*1.1 +
		float64(configLatencyMs)*float64(sampleRate)/1000.0
	if observedDevPeriod != 0 && observedDevPeriod < deviceMaxPeriod {
		target += float64(deviceMaxPeriod - observedDevPeriod)
	}
	return target
}
