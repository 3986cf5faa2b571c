// ABOUTME: Tests for application wiring
// ABOUTME: Tests backend selection, grab toggling, and the engine source shim
package app

import (
	"testing"

	"github.com/spicy-kvm/spicy-kvm-go/internal/playback"
	"github.com/spicy-kvm/spicy-kvm-go/internal/ui"
)

// stubDevice satisfies playback.Device for wiring tests.
type stubDevice struct{}

func (stubDevice) PlaybackSetup(sink string, channels, sampleRate, requestedPeriodFrames int) (int, int, error) {
	return requestedPeriodFrames, 0, nil
}
func (stubDevice) PlaybackStart()                                   {}
func (stubDevice) PlaybackStop()                                    {}
func (stubDevice) PlaybackVolume(volume []uint16)                   {}
func (stubDevice) PlaybackMute(mute bool)                           {}
func (stubDevice) PlaybackLatency() int                             { return 0 }
func (stubDevice) RecordStart(source string, channels, sampleRate int) {}
func (stubDevice) RecordStop()                                      {}
func (stubDevice) RecordVolume(volume []uint16)                     {}
func (stubDevice) RecordMute(mute bool)                             {}

func TestNewWithInjectedDevice(t *testing.T) {
	a, err := New(Config{Device: stubDevice{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.engine == nil {
		t.Fatal("expected engine to be wired")
	}
}

func TestNewRejectsUnknownBackend(t *testing.T) {
	if _, err := New(Config{Backend: "bogus"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestToggleGrabSwitchesMonitor(t *testing.T) {
	var statuses []ui.StatusMsg
	grabber := &NoopGrabber{}
	a, err := New(Config{
		Device:  stubDevice{},
		Grabber: grabber,
		OnStatus: func(msg ui.StatusMsg) {
			statuses = append(statuses, msg)
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a.ToggleGrab()
	if !grabber.Grabbed() {
		t.Error("expected input grabbed after first toggle")
	}
	a.ToggleGrab()
	if grabber.Grabbed() {
		t.Error("expected input released after second toggle")
	}
	if len(statuses) != 2 {
		t.Errorf("expected 2 status updates, got %d", len(statuses))
	}
}

func TestEngineSourceBeforeWiring(t *testing.T) {
	src := &engineSource{}
	dst := []float32{1, 2, 3, 4}
	if n := src.Pull(dst, 2); n != 0 {
		t.Errorf("expected 0 frames before wiring, got %d", n)
	}
	for i, v := range dst {
		if v != 0 {
			t.Errorf("sample %d: expected zero fill, got %f", i, v)
		}
	}

	// Wired through to a real engine it forwards.
	e := playback.NewEngine(stubDevice{}, playback.Options{})
	src.set(e)
	if n := src.Pull(dst, 2); n != 0 {
		t.Errorf("expected 0 frames from a stopped engine, got %d", n)
	}
}
