// ABOUTME: Tests for TUI model and state management
// ABOUTME: Tests status updates, key handling, and sparkline rendering
package ui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestNewModel(t *testing.T) {
	model := NewModel(nil)

	if model.connected {
		t.Error("expected disconnected initially")
	}
	if model.streamState != "stop" {
		t.Errorf("expected initial stream state stop, got %s", model.streamState)
	}
}

func TestStatusMsgUpdates(t *testing.T) {
	model := NewModel(nil)

	connected := true
	grabbed := true
	updated, _ := model.Update(StatusMsg{
		Connected:   &connected,
		BridgeName:  "guest-vm",
		StreamState: "run",
		SampleRate:  48000,
		Channels:    2,
		Grabbed:     &grabbed,
		TotalMs:     23.5,
		OffsetMs:    13.5,
		DeviceMs:    10.0,
		History:     []float32{20, 22, 23.5},
	})

	m := updated.(Model)
	if !m.connected || m.bridgeName != "guest-vm" {
		t.Errorf("connection state not applied: %+v", m)
	}
	if m.streamState != "run" || m.sampleRate != 48000 {
		t.Errorf("stream state not applied: %+v", m)
	}
	if !m.grabbed {
		t.Error("grab state not applied")
	}
	if m.totalMs != 23.5 || len(m.history) != 3 {
		t.Errorf("latency state not applied: %+v", m)
	}
}

func TestQuitKeyRunsCallback(t *testing.T) {
	called := false
	model := NewModel(func() { called = true })

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Error("expected quit command")
	}
	if !called {
		t.Error("expected quit callback to run")
	}
}

func TestViewRendersLatency(t *testing.T) {
	model := NewModel(nil)
	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	updated, _ = updated.(Model).Update(StatusMsg{
		StreamState: "run",
		SampleRate:  48000,
		Channels:    2,
		TotalMs:     25.0,
		OffsetMs:    15.0,
		DeviceMs:    10.0,
		History:     []float32{10, 20, 25},
	})

	view := updated.(Model).View()
	if !strings.Contains(view, "25.00 ms total") {
		t.Errorf("expected latency line in view:\n%s", view)
	}
	if !strings.Contains(view, "48000Hz stereo") {
		t.Errorf("expected stream format in view:\n%s", view)
	}
}

func TestSparklineScalesToPeak(t *testing.T) {
	model := NewModel(nil)
	model.width = 40
	model.history = []float32{0, 12, 24}

	line := model.renderSparkline()
	if !strings.ContainsRune(line, sparkLevels[len(sparkLevels)-1]) {
		t.Errorf("expected the peak glyph in sparkline: %q", line)
	}
	if !strings.ContainsRune(line, sparkLevels[0]) {
		t.Errorf("expected the floor glyph in sparkline: %q", line)
	}
}
