package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/linanwx/nagochat/conversation"
)

const defaultLogRatio = 0.25

var separatorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

// App is the root bubbletea model. It mirrors the input into the
// conversation draft on every keystroke and submits on Enter.
type App struct {
	ctrl Controller

	logPanel   Panel
	chatPanel  Panel
	inputPanel *InputPanel

	width, height int
	logRatio      float64
}

// NewApp creates the root TUI model over ctrl.
func NewApp(ctrl Controller) *App {
	return &App{
		ctrl:       ctrl,
		logPanel:   NewLogPanel(),
		chatPanel:  NewChatPanel(),
		inputPanel: NewInputPanel("you> "),
		logRatio:   defaultLogRatio,
	}
}

func (m *App) Init() tea.Cmd {
	s := snapshot(m.ctrl)
	return func() tea.Msg { return s }
}

func (m *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.recalcLayout()
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		cmds = append(cmds, m.updateInput(msg))
		if msg.Type != tea.KeyEnter {
			m.ctrl.UpdateDraft(m.inputPanel.Value())
		}

	case InputSubmitMsg:
		switch strings.TrimSpace(msg.Text) {
		case "exit", "quit", "/exit", "/quit":
			return m, tea.Quit
		}
		cmds = append(cmds, m.submit(msg.Text))

	case LogLineMsg:
		p, cmd := m.logPanel.Update(msg)
		m.logPanel = p
		cmds = append(cmds, cmd)

	case TranscriptMsg, NoticeMsg, spinner.TickMsg:
		p, cmd := m.chatPanel.Update(msg)
		m.chatPanel = p
		cmds = append(cmds, cmd)

	default:
		// Broadcast unknown messages to input panel (e.g. blink cursor).
		cmds = append(cmds, m.updateInput(msg))
	}

	return m, tea.Batch(cmds...)
}

func (m *App) updateInput(msg tea.Msg) tea.Cmd {
	p, cmd := m.inputPanel.Update(msg)
	m.inputPanel = p.(*InputPanel)
	return cmd
}

// submit hands the input to the conversation. The input is only cleared
// when the conversation accepted it.
func (m *App) submit(text string) tea.Cmd {
	m.ctrl.UpdateDraft(text)
	err := m.ctrl.Submit()
	switch {
	case err == nil:
		if strings.TrimSpace(text) == "" {
			return nil
		}
		m.updateInput(InputResetMsg{})
		p, cmd := m.chatPanel.Update(snapshot(m.ctrl))
		m.chatPanel = p
		return cmd
	case errors.Is(err, conversation.ErrBusy):
		return notice("Still waiting for the previous reply.")
	case errors.Is(err, conversation.ErrClosed):
		return tea.Quit
	default:
		return notice(err.Error())
	}
}

func notice(text string) tea.Cmd {
	return func() tea.Msg { return NoticeMsg{Text: text} }
}

func (m *App) View() string {
	if m.width == 0 || m.height == 0 {
		return "initializing..."
	}

	sep := separatorStyle.Render(strings.Repeat("─", m.width))

	return lipgloss.JoinVertical(lipgloss.Left,
		m.logPanel.View(),
		sep,
		m.chatPanel.View(),
		sep,
		m.inputPanel.View(),
	)
}

func (m *App) recalcLayout() {
	const inputH = 1
	const sepLines = 2 // two separator lines

	usable := max(m.height-inputH-sepLines, 2)
	logH := max(int(float64(usable)*m.logRatio), 1)
	chatH := max(usable-logH, 1)

	m.logPanel.SetSize(m.width, logH)
	m.chatPanel.SetSize(m.width, chatH)
	m.inputPanel.SetSize(m.width, inputH)
}
