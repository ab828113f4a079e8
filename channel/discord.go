package channel

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/linanwx/nagochat/config"
	"github.com/linanwx/nagochat/logger"
)

const (
	discordMessageBufferSize = 100
	DiscordMaxMessageLength  = 2000
)

// DiscordChannel implements the Channel interface for Discord.
type DiscordChannel struct {
	token        string
	allowedUsers map[string]bool // user ID allowlist, empty = allow all
	session      *discordgo.Session
	messages     chan *Message
	stopOnce     sync.Once
}

// NewDiscordChannel creates a new Discord channel from config.
// Returns nil if no token is configured.
func NewDiscordChannel(cfg *config.Config) Channel {
	token := cfg.GetDiscordToken()
	if token == "" {
		logger.Warn("Discord token not configured, skipping Discord channel")
		return nil
	}

	allowedUsers := make(map[string]bool)
	for _, id := range cfg.GetDiscordAllowedUserIDs() {
		allowedUsers[id] = true
	}

	return &DiscordChannel{
		token:        token,
		allowedUsers: allowedUsers,
		messages:     make(chan *Message, discordMessageBufferSize),
	}
}

func (d *DiscordChannel) Name() string { return "discord" }

func (d *DiscordChannel) Start(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + d.token)
	if err != nil {
		return fmt.Errorf("discord session creation failed: %w", err)
	}

	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	dg.AddHandler(d.handleMessageCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("discord connection failed: %w", err)
	}
	d.session = dg
	logger.Info("discord bot connected", "username", dg.State.User.Username)

	logger.Info("discord channel started")
	return nil
}

func (d *DiscordChannel) Stop() error {
	d.stopOnce.Do(func() {
		if d.session != nil {
			_ = d.session.Close()
		}
		close(d.messages)
		logger.Info("discord channel stopped")
	})
	return nil
}

func (d *DiscordChannel) Send(_ context.Context, resp *Response) error {
	if d.session == nil {
		return fmt.Errorf("discord session not started")
	}
	for _, chunk := range SplitMessage(resp.Text, DiscordMaxMessageLength) {
		if _, err := d.session.ChannelMessageSend(resp.ReplyTo, chunk); err != nil {
			return fmt.Errorf("discord send error: %w", err)
		}
	}
	return nil
}

// Typing triggers Discord's typing indicator, which lasts about ten seconds
// or until the next message.
func (d *DiscordChannel) Typing(_ context.Context, replyTo string) error {
	if d.session == nil {
		return fmt.Errorf("discord session not started")
	}
	return d.session.ChannelTyping(replyTo)
}

func (d *DiscordChannel) Messages() <-chan *Message {
	return d.messages
}

func (d *DiscordChannel) handleMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.Author.ID == s.State.User.ID {
		return
	}
	if len(d.allowedUsers) > 0 && !d.allowedUsers[m.Author.ID] {
		return
	}

	text := m.Content
	for _, u := range m.Mentions {
		name := u.GlobalName
		if name == "" {
			name = u.Username
		}
		text = strings.ReplaceAll(text, "<@"+u.ID+">", "@"+name)
		text = strings.ReplaceAll(text, "<@!"+u.ID+">", "@"+name)
	}
	if text == "" {
		return
	}

	username := m.Author.GlobalName
	if username == "" {
		username = m.Author.Username
	}

	chatType := "dm"
	if m.GuildID != "" {
		chatType = "group"
	}

	msg := &Message{
		ID:        m.ID,
		ChannelID: "discord:" + m.ChannelID,
		UserID:    m.Author.ID,
		Username:  username,
		Text:      text,
		ReplyTo:   m.ChannelID,
		Metadata: map[string]string{
			"chat_id":   m.ChannelID,
			"guild_id":  m.GuildID,
			"chat_type": chatType,
		},
	}

	select {
	case d.messages <- msg:
	default:
		logger.Warn("discord message buffer full, dropping message")
	}
}
