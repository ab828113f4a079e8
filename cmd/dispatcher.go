package cmd

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/linanwx/nagochat/channel"
	"github.com/linanwx/nagochat/conversation"
	"github.com/linanwx/nagochat/logger"
)

const (
	outboxSize = 32
	busyNotice = "Still working on your previous message, please wait."
)

// Dispatcher routes channel messages to conversations. Every ChannelID gets
// its own conversation, created on first contact and closed on shutdown.
type Dispatcher struct {
	channels *channel.Manager
	newConv  func() (*conversation.Controller, error)

	mu    sync.Mutex
	convs map[string]*botConversation
	pumps sync.WaitGroup
}

// botConversation binds a conversation to the chat it replies into.
type botConversation struct {
	ctrl        *conversation.Controller
	outbox      chan outgoing
	unsubscribe func()
}

// outgoing is either a reply to send or a typing indicator.
type outgoing struct {
	text   string
	typing bool
}

// NewDispatcher creates a new dispatcher.
func NewDispatcher(channels *channel.Manager, newConv func() (*conversation.Controller, error)) *Dispatcher {
	return &Dispatcher{
		channels: channels,
		newConv:  newConv,
		convs:    make(map[string]*botConversation),
	}
}

// Run starts a goroutine for each channel that reads messages and dispatches
// them to conversations. Blocks until ctx is cancelled, then closes every
// conversation.
func (d *Dispatcher) Run(ctx context.Context) {
	var readers sync.WaitGroup
	d.channels.EachChannel(func(ch channel.Channel) {
		readers.Add(1)
		go func() {
			defer readers.Done()
			d.processChannel(ctx, ch)
		}()
	})
	<-ctx.Done()
	readers.Wait()
	d.closeAll()
}

func (d *Dispatcher) processChannel(ctx context.Context, ch channel.Channel) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch.Messages():
			if !ok {
				return
			}
			d.dispatch(ctx, ch, msg)
		}
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ch channel.Channel, msg *channel.Message) {
	if msg == nil {
		return
	}
	logger.Debug("dispatching message",
		"channel", ch.Name(),
		"channelID", msg.ChannelID,
		"user", msg.Username,
		"text", truncate(msg.Text, 50),
	)

	conv, err := d.conversation(ctx, ch, msg)
	if err != nil {
		logger.Error("create conversation failed", "channelID", msg.ChannelID, "err", err)
		return
	}

	if msg.Metadata["command"] == "start" {
		conv.enqueue(outgoing{text: conv.ctrl.Transcript()[0].Text})
		return
	}

	conv.ctrl.UpdateDraft(msg.Text)
	switch err := conv.ctrl.Submit(); {
	case err == nil:
	case errors.Is(err, conversation.ErrBusy):
		conv.enqueue(outgoing{text: busyNotice})
	default:
		logger.Warn("submit rejected", "channelID", msg.ChannelID, "err", err)
	}
}

// conversation returns the conversation for msg.ChannelID, creating it on
// first contact.
func (d *Dispatcher) conversation(ctx context.Context, ch channel.Channel, msg *channel.Message) (*botConversation, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if conv, ok := d.convs[msg.ChannelID]; ok {
		return conv, nil
	}

	ctrl, err := d.newConv()
	if err != nil {
		return nil, err
	}
	conv := &botConversation{
		ctrl:   ctrl,
		outbox: make(chan outgoing, outboxSize),
	}
	conv.unsubscribe = ctrl.Subscribe(func(ev conversation.Event) {
		switch {
		case ev.Kind == conversation.EventAppended && ev.Message.Sender == conversation.SenderAssistant:
			conv.enqueue(outgoing{text: ev.Message.Text})
		case ev.Kind == conversation.EventState && ev.State == conversation.StateAwaiting:
			conv.enqueue(outgoing{typing: true})
		}
	})
	d.convs[msg.ChannelID] = conv

	d.pumps.Add(1)
	go func() {
		defer d.pumps.Done()
		pumpOutbox(ctx, ch, msg.ReplyTo, conv.outbox)
	}()

	logger.Info("conversation started", "channel", ch.Name(), "channelID", msg.ChannelID)
	return conv, nil
}

// enqueue never blocks; it runs inside conversation listeners.
func (c *botConversation) enqueue(out outgoing) {
	select {
	case c.outbox <- out:
	default:
		logger.Warn("outbox full, dropping message", "typing", out.typing)
	}
}

// pumpOutbox delivers queued replies in order until the outbox is closed.
func pumpOutbox(ctx context.Context, ch channel.Channel, replyTo string, outbox <-chan outgoing) {
	typer, canType := ch.(channel.TypingNotifier)
	for out := range outbox {
		if ctx.Err() != nil {
			continue
		}
		if out.typing {
			if canType {
				if err := typer.Typing(ctx, replyTo); err != nil {
					logger.Debug("typing indicator failed", "channel", ch.Name(), "err", err)
				}
			}
			continue
		}
		if strings.TrimSpace(out.text) == "" {
			continue
		}
		if err := ch.Send(ctx, &channel.Response{Text: out.text, ReplyTo: replyTo}); err != nil {
			logger.Error("send reply failed", "channel", ch.Name(), "replyTo", replyTo, "err", err)
		}
	}
}

// closeAll closes every conversation, discarding replies still in flight.
func (d *Dispatcher) closeAll() {
	d.mu.Lock()
	convs := d.convs
	d.convs = make(map[string]*botConversation)
	d.mu.Unlock()

	for _, conv := range convs {
		conv.unsubscribe()
		conv.ctrl.Close()
		conv.ctrl.Wait()
		close(conv.outbox)
	}
	d.pumps.Wait()
	logger.Info("conversations closed", "count", len(convs))
}

// Len returns the number of live conversations.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.convs)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	for maxLen > 0 && !utf8.RuneStart(s[maxLen]) {
		maxLen--
	}
	return s[:maxLen] + "..."
}
