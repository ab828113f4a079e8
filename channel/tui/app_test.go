package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/linanwx/nagochat/conversation"
)

type fakeController struct {
	draft      string
	transcript []conversation.Message
	awaiting   bool
	submitErr  error
	submitted  []string
}

func newFakeController() *fakeController {
	return &fakeController{transcript: []conversation.Message{
		{ID: 1, Text: "hello there", Sender: conversation.SenderAssistant},
	}}
}

func (f *fakeController) Transcript() []conversation.Message { return f.transcript }
func (f *fakeController) Awaiting() bool { return f.awaiting }
func (f *fakeController) UpdateDraft(text string) { f.draft = text }

func (f *fakeController) Submit() error {
	if f.submitErr != nil {
		return f.submitErr
	}
	if strings.TrimSpace(f.draft) == "" {
		return nil
	}
	f.submitted = append(f.submitted, f.draft)
	f.transcript = append(f.transcript, conversation.Message{
		ID: int64(len(f.transcript) + 1), Text: f.draft, Sender: conversation.SenderUser,
	})
	f.draft = ""
	f.awaiting = true
	return nil
}

func typeText(app *App, text string) {
	app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

// runCmd executes cmd, unwrapping a batch of one.
func runCmd(t *testing.T, cmd tea.Cmd) tea.Msg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		for _, c := range batch {
			if c != nil {
				return c()
			}
		}
	}
	return msg
}

// pressEnter returns the message produced by the input panel's Enter command.
func pressEnter(t *testing.T, app *App) tea.Msg {
	t.Helper()
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return runCmd(t, cmd)
}

func newSizedApp(ctrl Controller) *App {
	app := NewApp(ctrl)
	app.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	app.Update(snapshot(ctrl))
	return app
}

func TestAppMirrorsDraft(t *testing.T) {
	ctrl := newFakeController()
	app := newSizedApp(ctrl)

	typeText(app, "hi")
	if ctrl.draft != "hi" {
		t.Fatalf("draft = %q, want %q", ctrl.draft, "hi")
	}
}

func TestAppSubmit(t *testing.T) {
	ctrl := newFakeController()
	app := newSizedApp(ctrl)

	typeText(app, "what is go")
	msg := pressEnter(t, app)
	sub, ok := msg.(InputSubmitMsg)
	if !ok || sub.Text != "what is go" {
		t.Fatalf("enter message = %#v", msg)
	}
	app.Update(sub)

	if len(ctrl.submitted) != 1 || ctrl.submitted[0] != "what is go" {
		t.Fatalf("submitted = %q", ctrl.submitted)
	}
	if app.inputPanel.Value() != "" {
		t.Errorf("input not cleared: %q", app.inputPanel.Value())
	}
	view := app.View()
	for _, want := range []string{"bot> hello there", "you> what is go", "typing"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
}

func TestAppBusyKeepsInput(t *testing.T) {
	ctrl := newFakeController()
	ctrl.submitErr = conversation.ErrBusy
	app := newSizedApp(ctrl)

	typeText(app, "again")
	_, cmd := app.Update(pressEnter(t, app))
	app.Update(runCmd(t, cmd))

	if app.inputPanel.Value() != "again" {
		t.Errorf("input = %q, want kept", app.inputPanel.Value())
	}
	if !strings.Contains(app.View(), "Still waiting") {
		t.Errorf("busy notice not shown:\n%s", app.View())
	}
}

func TestAppBlankSubmitIgnored(t *testing.T) {
	ctrl := newFakeController()
	app := newSizedApp(ctrl)

	typeText(app, "   ")
	app.Update(pressEnter(t, app))
	if len(ctrl.submitted) != 0 {
		t.Fatalf("blank input submitted: %q", ctrl.submitted)
	}
	if app.inputPanel.Value() != "   " {
		t.Errorf("blank input should be left alone, got %q", app.inputPanel.Value())
	}
}

func TestAppQuitCommand(t *testing.T) {
	ctrl := newFakeController()
	app := newSizedApp(ctrl)

	typeText(app, "quit")
	_, cmd := app.Update(pressEnter(t, app))
	if _, ok := runCmd(t, cmd).(tea.QuitMsg); !ok {
		t.Fatal("quit did not produce tea.QuitMsg")
	}
	if len(ctrl.submitted) != 0 {
		t.Fatal("quit was submitted to the conversation")
	}
}

func TestLogPanelCapsLines(t *testing.T) {
	p := NewLogPanel()
	p.maxLines = 3
	p.SetSize(80, 10)
	for _, l := range []string{"a", "b", "c", "d", "level=ERROR e"} {
		p.Update(LogLineMsg{Line: l})
	}
	if len(p.lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(p.lines))
	}
	if !strings.Contains(p.lines[2], "level=ERROR e") {
		t.Fatalf("last line = %q", p.lines[2])
	}
}

func TestLogWriterDropsWhenFull(t *testing.T) {
	w := &logWriter{lines: make(chan string, 1)}
	n, err := w.Write([]byte("one\ntwo\n"))
	if err != nil || n != 8 {
		t.Fatalf("Write = %d, %v", n, err)
	}
	if got := <-w.lines; got != "one" {
		t.Fatalf("line = %q", got)
	}
	select {
	case extra := <-w.lines:
		t.Fatalf("unexpected queued line %q", extra)
	default:
	}
}
