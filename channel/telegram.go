package channel

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/linanwx/nagochat/config"
	"github.com/linanwx/nagochat/logger"
	"github.com/linanwx/nagochat/render"
)

const (
	telegramMessageBufferSize = 100
	TelegramMaxMessageLength  = 4096
)

// TelegramChannel implements the Channel interface for Telegram.
type TelegramChannel struct {
	token      string
	allowedIDs map[int64]bool // Allowed user/chat IDs (empty = allow all)
	messages   chan *Message

	b         *bot.Bot
	cancel    context.CancelFunc
	startDone chan struct{}
}

// NewTelegramChannel creates a new Telegram channel from config.
// Returns nil if no token is configured.
func NewTelegramChannel(cfg *config.Config) Channel {
	token := cfg.GetTelegramToken()
	if token == "" {
		logger.Warn("Telegram token not configured, skipping Telegram channel")
		return nil
	}

	allowedIDs := make(map[int64]bool)
	for _, id := range cfg.GetTelegramAllowedIDs() {
		allowedIDs[id] = true
	}

	return &TelegramChannel{
		token:      token,
		allowedIDs: allowedIDs,
		messages:   make(chan *Message, telegramMessageBufferSize),
	}
}

func (t *TelegramChannel) Name() string { return "telegram" }

// Start connects and begins long polling.
func (t *TelegramChannel) Start(ctx context.Context) error {
	b, err := bot.New(t.token, bot.WithDefaultHandler(t.handleUpdate))
	if err != nil {
		return fmt.Errorf("telegram bot creation failed: %w", err)
	}
	t.b = b

	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram connection failed: %w", err)
	}
	logger.Info("telegram bot connected", "username", me.Username)

	startCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.startDone = make(chan struct{})

	go func() {
		defer close(t.startDone)
		t.b.Start(startCtx)
	}()

	logger.Info("telegram channel started")
	return nil
}

// Stop gracefully shuts down the channel.
func (t *TelegramChannel) Stop() error {
	if t.cancel != nil {
		t.cancel()
		<-t.startDone
		t.cancel = nil
	}
	close(t.messages)
	logger.Info("telegram channel stopped")
	return nil
}

// Send delivers a reply as Telegram HTML, falling back to plain text when
// Telegram rejects the markup.
func (t *TelegramChannel) Send(ctx context.Context, resp *Response) error {
	if t.b == nil {
		return fmt.Errorf("telegram bot not started")
	}

	chatID, err := strconv.ParseInt(resp.ReplyTo, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}

	for _, chunk := range SplitMessage(resp.Text, TelegramMaxMessageLength) {
		_, sendErr := t.b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      render.Telegram(chunk),
			ParseMode: models.ParseModeHTML,
		})
		if sendErr == nil {
			continue
		}
		logger.Warn("telegram html send failed, retrying as plain text", "chatID", chatID, "err", sendErr)
		if _, retryErr := t.b.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   chunk,
		}); retryErr != nil {
			return fmt.Errorf("telegram send error: %w", retryErr)
		}
	}
	return nil
}

// Typing shows the "typing…" chat action.
func (t *TelegramChannel) Typing(ctx context.Context, replyTo string) error {
	if t.b == nil {
		return fmt.Errorf("telegram bot not started")
	}
	chatID, err := strconv.ParseInt(replyTo, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat ID: %w", err)
	}
	_, err = t.b.SendChatAction(ctx, &bot.SendChatActionParams{
		ChatID: chatID,
		Action: models.ChatActionTyping,
	})
	return err
}

// Messages returns the incoming message channel.
func (t *TelegramChannel) Messages() <-chan *Message {
	return t.messages
}

func (t *TelegramChannel) handleUpdate(_ context.Context, _ *bot.Bot, update *models.Update) {
	msg := telegramMessage(update, t.allowedIDs)
	if msg == nil {
		return
	}
	select {
	case t.messages <- msg:
	default:
		logger.Warn("telegram message buffer full, dropping message", "chatID", msg.ReplyTo)
	}
}

// telegramMessage converts an update into a channel Message, or nil when the
// update carries no usable text or the sender is not allowed.
func telegramMessage(update *models.Update, allowedIDs map[int64]bool) *Message {
	if update == nil || update.Message == nil {
		return nil
	}
	m := update.Message

	var fromID int64
	username := ""
	if m.From != nil {
		fromID = m.From.ID
		username = m.From.Username
	}
	if len(allowedIDs) > 0 && !allowedIDs[m.Chat.ID] && !allowedIDs[fromID] {
		logger.Warn("telegram message from unauthorized user",
			"userID", fromID,
			"chatID", m.Chat.ID,
			"username", username,
		)
		return nil
	}

	text := m.Text
	if text == "" {
		text = m.Caption
	}
	if text == "" {
		return nil
	}

	chatID := strconv.FormatInt(m.Chat.ID, 10)
	metadata := map[string]string{
		"chat_id":   chatID,
		"chat_type": string(m.Chat.Type),
	}
	if cmd, ok := strings.CutPrefix(strings.TrimSpace(text), "/"); ok {
		name, _, _ := strings.Cut(cmd, " ")
		name, _, _ = strings.Cut(name, "@")
		metadata["command"] = name
	}

	return &Message{
		ID:        strconv.Itoa(m.ID),
		ChannelID: "telegram:" + chatID,
		UserID:    strconv.FormatInt(fromID, 10),
		Username:  username,
		Text:      text,
		ReplyTo:   chatID,
		Metadata:  metadata,
	}
}
