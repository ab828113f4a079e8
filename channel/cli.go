package channel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/linanwx/nagochat/conversation"
	"github.com/linanwx/nagochat/logger"
)

const plainPrompt = "you> "

// RunPlain drives a conversation over line-oriented input, for stdin that is
// not a terminal. Each line is submitted and its reply printed before the
// next line is read. It returns when input ends, on exit/quit, or when ctx is
// done.
func RunPlain(ctx context.Context, ctrl *conversation.Controller, in io.Reader, out io.Writer) error {
	logger.Info("cli channel started (plain mode)")
	defer logger.Info("cli channel stopped")

	for _, m := range ctrl.Transcript() {
		fmt.Fprintf(out, "bot> %s\n\n", m.Text)
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		fmt.Fprint(out, plainPrompt)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			line = l
		}

		switch strings.TrimSpace(line) {
		case "":
			continue
		case "exit", "quit", "/exit", "/quit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		before := len(ctrl.Transcript())
		ctrl.UpdateDraft(line)
		if err := ctrl.Submit(); err != nil {
			if errors.Is(err, conversation.ErrClosed) {
				return err
			}
			fmt.Fprintf(out, "\n%v\n\n", err)
			continue
		}

		if err := waitSettled(ctx, ctrl); err != nil {
			fmt.Fprintln(out)
			return err
		}

		transcript := ctrl.Transcript()
		// Skip the echo of our own message.
		for _, m := range transcript[min(before+1, len(transcript)):] {
			if m.Sender == conversation.SenderAssistant {
				fmt.Fprintf(out, "\nbot> %s\n\n", m.Text)
			}
		}
	}
}

func waitSettled(ctx context.Context, ctrl *conversation.Controller) error {
	done := make(chan struct{})
	go func() {
		ctrl.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
