package tui

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/linanwx/nagochat/conversation"
	"github.com/linanwx/nagochat/logger"
)

// Run shows the TUI until the user quits or ctx is done. The conversation is
// closed on return, discarding any reply still in flight.
func Run(ctx context.Context, ctrl *conversation.Controller) error {
	defer ctrl.Close()

	app := NewApp(ctrl)
	program := tea.NewProgram(app,
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)

	// Redirect logger output to the TUI log panel.
	lw := newLogWriter()
	logger.Intercept(lw)
	defer logger.Restore()

	// Listeners run under the controller's notification lock, sometimes on the
	// program's own goroutine, so they only poke the forwarder.
	updates := make(chan struct{}, 1)
	unsubscribe := ctrl.Subscribe(func(conversation.Event) {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case <-done:
				return
			case <-updates:
				program.Send(snapshot(ctrl))
			case line := <-lw.lines:
				program.Send(LogLineMsg{Line: line})
			}
		}
	}()

	logger.Info("cli channel started (TUI mode)")
	_, err := program.Run()
	if err != nil && !(errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil) {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}

const logLineBufferSize = 256

// logWriter queues log lines for the TUI. Logging can happen on the program's
// own goroutine, so writes never block; lines are dropped when the queue is
// full.
type logWriter struct {
	lines chan string
}

func newLogWriter() *logWriter {
	return &logWriter{lines: make(chan string, logLineBufferSize)}
}

func (w *logWriter) Write(p []byte) (int, error) {
	// Split on newlines in case a single write contains multiple lines.
	for _, line := range bytes.Split(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		select {
		case w.lines <- string(line):
		default:
		}
	}
	return len(p), nil
}
