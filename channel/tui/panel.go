// Package tui provides the terminal chat surface.
package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/linanwx/nagochat/conversation"
)

// Panel is a composable TUI region with its own state, update logic, and view.
// The root App model orchestrates panels without knowing their internals.
type Panel interface {
	Update(tea.Msg) (Panel, tea.Cmd)
	View() string
	SetSize(width, height int)
}

// Controller is the conversation state the TUI renders and drives.
type Controller interface {
	Transcript() []conversation.Message
	Awaiting() bool
	UpdateDraft(text string)
	Submit() error
}

// LogLineMsg carries a single log line from the logger writer.
type LogLineMsg struct{ Line string }

// TranscriptMsg carries a snapshot of the conversation.
type TranscriptMsg struct {
	Messages []conversation.Message
	Awaiting bool
}

// NoticeMsg shows a transient status line under the transcript.
type NoticeMsg struct{ Text string }

// InputSubmitMsg is emitted when the user presses Enter in the input panel.
type InputSubmitMsg struct{ Text string }

// InputResetMsg clears the input panel.
type InputResetMsg struct{}

func snapshot(c Controller) TranscriptMsg {
	return TranscriptMsg{Messages: c.Transcript(), Awaiting: c.Awaiting()}
}
