package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/linanwx/nagochat/channel"
	"github.com/linanwx/nagochat/channel/tui"
	"github.com/linanwx/nagochat/conversation"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	messageFlag string
	chatFlags   providerOverrides
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Open the chat widget in the terminal",
	Long: `Open an interactive chat in the terminal, or send a single message with -m.

A full-screen UI is used when stdin is a terminal; piped input is read line
by line. Use --provider, --model, --api-key, --api-base to override config
at runtime.

Examples:
  nagochat chat                                   # Interactive mode
  nagochat chat -m "Hello world"                  # Single message
  echo "Hi" | nagochat chat                       # Piped input
  nagochat chat --provider anthropic --api-key sk-ant-xxx -m "hi"`,
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Send a single message and print the reply")
	chatCmd.Flags().StringVar(&chatFlags.Provider, "provider", "", "Override provider (openrouter, openai, anthropic)")
	chatCmd.Flags().StringVar(&chatFlags.Model, "model", "", "Override model (e.g. openai/gpt-4o-mini)")
	chatCmd.Flags().StringVar(&chatFlags.APIKey, "api-key", "", "Override API key")
	chatCmd.Flags().StringVar(&chatFlags.APIBase, "api-base", "", "Override API base URL")
}

func runChat(cmd *cobra.Command, _ []string) error {
	cfg, err := loadChatConfig()
	if err != nil {
		return err
	}
	applyOverrides(cfg, chatFlags)

	p, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	ctrl, err := conversationFactory(cfg, p)()
	if err != nil {
		return err
	}
	defer ctrl.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if messageFlag != "" {
		reply, err := sendOnce(ctx, ctrl, messageFlag)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	}

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return tui.Run(ctx, ctrl)
	}
	return channel.RunPlain(ctx, ctrl, cmd.InOrStdin(), cmd.OutOrStdout())
}

// sendOnce submits text and returns the assistant's reply, which is the
// fallback message when the request failed.
func sendOnce(ctx context.Context, ctrl *conversation.Controller, text string) (string, error) {
	replies := make(chan string, 1)
	unsubscribe := ctrl.Subscribe(func(ev conversation.Event) {
		if ev.Kind == conversation.EventAppended && ev.Message.Sender == conversation.SenderAssistant {
			select {
			case replies <- ev.Message.Text:
			default:
			}
		}
	})
	defer unsubscribe()

	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("message is empty")
	}
	ctrl.UpdateDraft(text)
	if err := ctrl.Submit(); err != nil {
		return "", err
	}

	select {
	case reply := <-replies:
		return reply, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
