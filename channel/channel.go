// Package channel provides the surfaces that render a conversation: bot
// channels, the web widget and the terminal.
package channel

import (
	"context"
	"fmt"
	"sort"

	"github.com/linanwx/nagochat/logger"
)

// Message represents an incoming message from a channel.
type Message struct {
	ID        string            // Unique message ID
	ChannelID string            // Conversation key (e.g., "telegram:123456")
	UserID    string            // User identifier
	Username  string            // Human-readable username
	Text      string            // Message text, untrimmed
	ReplyTo   string            // Where replies go (chat or channel id)
	Metadata  map[string]string // Channel-specific metadata
}

// Response represents a response to send back.
type Response struct {
	Text     string            // Response text (Markdown)
	ReplyTo  string            // Chat/channel ID to reply to
	Metadata map[string]string // Channel-specific options
}

// Service is anything the serve command starts and stops.
type Service interface {
	// Name returns the service name (e.g., "telegram", "web").
	Name() string

	// Start begins serving. It must not block.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the service.
	Stop() error
}

// Channel is a message-stream surface. Each ChannelID it produces is backed
// by one conversation owned by the dispatcher.
type Channel interface {
	Service

	// Send sends a response message.
	Send(ctx context.Context, resp *Response) error

	// Messages returns a channel for receiving incoming messages.
	Messages() <-chan *Message
}

// TypingNotifier is implemented by channels that can show a typing
// indicator while a reply is pending.
type TypingNotifier interface {
	Typing(ctx context.Context, replyTo string) error
}

// Manager is a registry of services.
type Manager struct {
	services map[string]Service
}

// NewManager creates a new manager.
func NewManager() *Manager {
	return &Manager{services: make(map[string]Service)}
}

// Register adds a service to the manager. Nil is silently ignored.
func (m *Manager) Register(s Service) {
	if s == nil {
		return
	}
	m.services[s.Name()] = s
	logger.Info("channel registered", "channel", s.Name())
}

// Get returns a service by name.
func (m *Manager) Get(name string) (Service, bool) {
	s, ok := m.services[name]
	return s, ok
}

// Len returns the number of registered services.
func (m *Manager) Len() int { return len(m.services) }

func (m *Manager) names() []string {
	names := make([]string, 0, len(m.services))
	for name := range m.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// StartAll starts every registered service in name order. Services started
// before a failure are stopped again.
func (m *Manager) StartAll(ctx context.Context) error {
	var started []Service
	for _, name := range m.names() {
		s := m.services[name]
		if err := s.Start(ctx); err != nil {
			for _, prev := range started {
				_ = prev.Stop()
			}
			return fmt.Errorf("start %s: %w", name, err)
		}
		started = append(started, s)
	}
	return nil
}

// StopAll stops every registered service, returning the first error.
func (m *Manager) StopAll() error {
	var firstErr error
	for _, name := range m.names() {
		if err := m.services[name].Stop(); err != nil {
			logger.Error("channel stop error", "channel", name, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// EachChannel iterates over the registered message-stream channels.
func (m *Manager) EachChannel(fn func(Channel)) {
	for _, name := range m.names() {
		if ch, ok := m.services[name].(Channel); ok {
			fn(ch)
		}
	}
}
