// ABOUTME: Bubbletea model for the host status TUI
// ABOUTME: Shows bridge connection, stream format, grab state, and latency
package ui

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
)

// sparkLevels renders the latency graph, lowest to highest.
var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Model represents the TUI state.
type Model struct {
	connected  bool
	bridgeName string

	streamState string
	sampleRate  int
	channels    int

	grabbed bool

	totalMs  float64
	offsetMs float64
	deviceMs float64
	history  []float32

	width  int
	height int

	onQuit func()
}

// NewModel creates the initial TUI state. onQuit, when non-nil, runs on
// user exit so the app can shut down.
func NewModel(onQuit func()) Model {
	return Model{
		streamState: "stop",
		onQuit:      onQuit,
	}
}

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.onQuit != nil {
				m.onQuit()
			}
			return m, tea.Quit
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.applyStatus(msg)
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("spicy-kvm") + "\n\n")

	conn := warnStyle.Render("disconnected")
	if m.connected {
		conn = okStyle.Render("connected to " + m.bridgeName)
	}
	b.WriteString(labelStyle.Render("Bridge:  ") + conn + "\n")

	grab := "released"
	if m.grabbed {
		grab = okStyle.Render("grabbed")
	}
	b.WriteString(labelStyle.Render("Input:   ") + grab + "\n")

	if m.sampleRate > 0 {
		b.WriteString(labelStyle.Render("Stream:  ") +
			fmt.Sprintf("%s, %dHz %s\n", m.streamState, m.sampleRate, channelName(m.channels)))
	} else {
		b.WriteString(labelStyle.Render("Stream:  ") + m.streamState + "\n")
	}

	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Latency: ") +
		fmt.Sprintf("%6.2f ms total  (%.2f offset + %.2f device)\n",
			m.totalMs, m.offsetMs, m.deviceMs))
	b.WriteString(m.renderSparkline() + "\n\n")

	b.WriteString(helpStyle.Render("q: quit"))
	return b.String()
}

// renderSparkline draws the recent latency history scaled to its peak.
func (m Model) renderSparkline() string {
	width := m.width - 9
	if width < 10 {
		width = 10
	}
	if len(m.history) == 0 {
		return labelStyle.Render("         ") + strings.Repeat(" ", width)
	}

	window := m.history
	if len(window) > width {
		window = window[len(window)-width:]
	}

	var peak float32
	for _, v := range window {
		if v > peak {
			peak = v
		}
	}
	if peak <= 0 {
		peak = 1
	}

	var b strings.Builder
	b.WriteString(labelStyle.Render("         "))
	for _, v := range window {
		idx := int(v / peak * float32(len(sparkLevels)-1))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkLevels) {
			idx = len(sparkLevels) - 1
		}
		b.WriteRune(sparkLevels[idx])
	}
	return b.String()
}

// applyStatus updates model from a status message.
func (m *Model) applyStatus(msg StatusMsg) {
	if msg.Connected != nil {
		m.connected = *msg.Connected
	}
	if msg.BridgeName != "" {
		m.bridgeName = msg.BridgeName
	}
	if msg.StreamState != "" {
		m.streamState = msg.StreamState
		m.sampleRate = msg.SampleRate
		m.channels = msg.Channels
	}
	if msg.Grabbed != nil {
		m.grabbed = *msg.Grabbed
	}
	if msg.History != nil {
		m.totalMs = msg.TotalMs
		m.offsetMs = msg.OffsetMs
		m.deviceMs = msg.DeviceMs
		m.history = msg.History
	}
}

// StatusMsg updates TUI state.
type StatusMsg struct {
	Connected   *bool
	BridgeName  string
	StreamState string
	SampleRate  int
	Channels    int
	Grabbed     *bool
	TotalMs     float64
	OffsetMs    float64
	DeviceMs    float64
	History     []float32
}

func channelName(channels int) string {
	if channels == 1 {
		return "mono"
	}
	return "stereo"
}
