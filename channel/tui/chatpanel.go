package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/linanwx/nagochat/conversation"
)

var (
	userMsgStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6")) // cyan
	botMsgStyle  = lipgloss.NewStyle()
	typingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("3")) // yellow
)

// ChatPanel displays the transcript in a scrollable viewport, with a typing
// line while a reply is pending.
type ChatPanel struct {
	viewport viewport.Model
	spinner  spinner.Model

	messages []conversation.Message
	awaiting bool
	notice   string
}

// NewChatPanel creates a chat panel.
func NewChatPanel() *ChatPanel {
	vp := viewport.New(0, 0)
	vp.SetContent("")
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(typingStyle))
	return &ChatPanel{viewport: vp, spinner: sp}
}

func (p *ChatPanel) Update(msg tea.Msg) (Panel, tea.Cmd) {
	switch msg := msg.(type) {
	case TranscriptMsg:
		wasAwaiting := p.awaiting
		p.messages = msg.Messages
		p.awaiting = msg.Awaiting
		p.notice = ""
		p.refresh()
		if p.awaiting && !wasAwaiting {
			return p, p.spinner.Tick
		}
		return p, nil
	case NoticeMsg:
		p.notice = msg.Text
		p.refresh()
		return p, nil
	case spinner.TickMsg:
		if !p.awaiting {
			return p, nil
		}
		var cmd tea.Cmd
		p.spinner, cmd = p.spinner.Update(msg)
		p.refresh()
		return p, cmd
	}
	var cmd tea.Cmd
	p.viewport, cmd = p.viewport.Update(msg)
	return p, cmd
}

func (p *ChatPanel) refresh() {
	p.viewport.SetContent(p.content())
	p.viewport.GotoBottom()
}

func (p *ChatPanel) content() string {
	lines := make([]string, 0, len(p.messages)+2)
	for _, m := range p.messages {
		if m.Sender == conversation.SenderUser {
			lines = append(lines, userMsgStyle.Render("you> "+m.Text))
		} else {
			lines = append(lines, botMsgStyle.Render("bot> "+m.Text))
		}
	}
	if p.awaiting {
		lines = append(lines, p.spinner.View()+typingStyle.Render(" typing…"))
	}
	if p.notice != "" {
		lines = append(lines, noticeStyle.Render(p.notice))
	}
	return strings.Join(lines, "\n")
}

func (p *ChatPanel) View() string {
	return p.viewport.View()
}

func (p *ChatPanel) SetSize(width, height int) {
	p.viewport.Width = width
	p.viewport.Height = height
}
