// ABOUTME: Tests for the PLL clock tracker
// ABOUTME: Tests coefficient derivation, phase stepping, and drift convergence
package playback

import (
	"math"
	"testing"
)

func TestPLLCoeffs(t *testing.T) {
	b, c := pllCoeffs(0.01)

	omega := 2 * math.Pi * 0.05 * 0.01
	if math.Abs(b-math.Sqrt2*omega) > 1e-12 {
		t.Errorf("expected b %.12f, got %.12f", math.Sqrt2*omega, b)
	}
	if math.Abs(c-omega*omega) > 1e-15 {
		t.Errorf("expected c %.15f, got %.15f", omega*omega, c)
	}
}

func TestClockTrackerStepZeroError(t *testing.T) {
	tr := &clockTracker{}
	tr.setPeriod(480, 48000)
	tr.nextTime = 1_000_000_000

	tr.step(0)
	if tr.nextTime != 1_010_000_000 {
		t.Errorf("expected nextTime to advance exactly one period, got %d", tr.nextTime)
	}
	if tr.periodSec != 0.01 {
		t.Errorf("expected period unchanged at 0.01, got %f", tr.periodSec)
	}
}

// Feeding wakeups at a slightly longer true period must pull the period
// estimate toward the truth.
func TestClockTrackerConvergesToTruePeriod(t *testing.T) {
	const sampleRate = 48000
	const frames = 480
	const truePeriodSec = 0.010002

	tr := &clockTracker{}
	tr.setPeriod(frames, sampleRate)

	now := int64(0)
	tr.nextTime = now + llrint(tr.periodSec*1e9)

	for i := 0; i < 20000; i++ {
		now += llrint(truePeriodSec * 1e9)
		errSec := tr.errorSec(now)
		if math.Abs(errSec) >= desyncThresholdSec {
			t.Fatalf("iteration %d: tracker lost lock, error %f s", i, errSec)
		}
		tr.step(errSec)
	}

	if math.Abs(tr.periodSec-truePeriodSec) > 1e-6 {
		t.Errorf("expected period estimate near %f, got %f", truePeriodSec, tr.periodSec)
	}
}
