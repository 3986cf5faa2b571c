// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program for the host status display
package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the TUI. onQuit runs when the user exits.
func Run(onQuit func()) *tea.Program {
	return tea.NewProgram(NewModel(onQuit), tea.WithAltScreen())
}
