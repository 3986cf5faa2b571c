// ABOUTME: Tests for the latency controller and target latency computation
// ABOUTME: Tests the PI output, filter smoothing, and the downshift correction
package playback

import (
	"math"
	"testing"
)

func TestTargetLatencyFrames(t *testing.T) {
	tests := []struct {
		name              string
		deviceMaxPeriod   int
		observedDevPeriod int
		sampleRate        int
		configLatencyMs   int
		expected          float64
	}{
		{
			// A device running below its maximum period gets the
			// difference added on top of the usual budget.
			name:              "downshifted period",
			deviceMaxPeriod:   1024,
			observedDevPeriod: 256,
			sampleRate:        48000,
			configLatencyMs:   12,
			expected:          1.1*1024 + 12*48 + (1024 - 256),
		},
		{
			name:              "period at maximum",
			deviceMaxPeriod:   1024,
			observedDevPeriod: 1024,
			sampleRate:        48000,
			configLatencyMs:   12,
			expected:          1.1*1024 + 12*48,
		},
		{
			// Observed above the expected maximum takes over as the base.
			name:              "period above maximum",
			deviceMaxPeriod:   256,
			observedDevPeriod: 512,
			sampleRate:        48000,
			configLatencyMs:   0,
			expected:          1.1 * 512,
		},
		{
			name:              "no ticks observed yet",
			deviceMaxPeriod:   512,
			observedDevPeriod: 0,
			sampleRate:        44100,
			configLatencyMs:   10,
			expected:          1.1*512 + 441,
		},
	}

	for _, tt := range tests {
		got := targetLatencyFrames(tt.deviceMaxPeriod, tt.observedDevPeriod,
			tt.sampleRate, tt.configLatencyMs)
		if math.Abs(got-tt.expected) > 1e-9 {
			t.Errorf("%s: expected %f, got %f", tt.name, tt.expected, got)
		}
	}
}

func TestControllerRatio(t *testing.T) {
	var lc latencyController

	// Zero error produces unity ratio.
	if r := lc.ratio(0, 0.01); r != 1.0 {
		t.Errorf("expected unity ratio at zero error, got %.9f", r)
	}

	// Positive offset error (stream behind target) stretches output.
	r := lc.ratio(100, 0.01)
	expected := 1.0 + latencyKp*100
	if math.Abs(r-expected) > 1e-12 {
		t.Errorf("expected ratio %.9f, got %.9f", expected, r)
	}
	if r <= 1.0 {
		t.Error("positive offset error must raise the ratio above 1")
	}

	// Negative error shrinks it.
	lc.reset()
	if r := lc.ratio(-100, 0.01); r >= 1.0 {
		t.Errorf("negative offset error must drop the ratio below 1, got %.9f", r)
	}
}

func TestControllerFilterSmoothing(t *testing.T) {
	var lc latencyController
	b, c := pllCoeffs(0.01)

	// A step input must be approached gradually, not jumped to.
	lc.filter(1000, b, c)
	first := lc.offsetError
	if first <= 0 || first >= 1000 {
		t.Fatalf("expected smoothed step response in (0, 1000), got %f", first)
	}

	for i := 0; i < 100000; i++ {
		lc.filter(1000, b, c)
	}
	if math.Abs(lc.offsetError-1000) > 1 {
		t.Errorf("expected filter to converge to 1000, got %f", lc.offsetError)
	}
}

func TestControllerReset(t *testing.T) {
	lc := latencyController{
		offsetError:         5,
		offsetErrorIntegral: 7,
		ratioIntegral:       9,
	}
	lc.reset()
	if lc.offsetError != 0 || lc.offsetErrorIntegral != 0 || lc.ratioIntegral != 0 {
		t.Errorf("expected zeroed controller, got %+v", lc)
	}
}
