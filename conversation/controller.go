// Package conversation owns a chat transcript and drives one completion
// request at a time.
//
// A Controller is the state behind one mounted chat surface: the transcript,
// the draft input and the idle/awaiting state. Surfaces render Transcript and
// Awaiting, and mutate only through UpdateDraft, Submit and Close.
package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/linanwx/nagochat/logger"
	"github.com/linanwx/nagochat/provider"
)

const (
	// DefaultGreeting seeds every new transcript.
	DefaultGreeting = "Hello! I am your AI assistant. How can I help you today?"
	// DefaultFallback replaces the reply when a request fails for any reason.
	DefaultFallback = "Sorry, I encountered an error. Please try again."
)

var (
	// ErrBusy is returned by Submit while a request is outstanding.
	ErrBusy = errors.New("conversation: a reply is still pending")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("conversation: controller closed")
)

// Sender tags who authored a message.
type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is one transcript entry.
type Message struct {
	ID     int64  `json:"id"`
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}

// State is the request state of a controller.
type State int

const (
	StateIdle State = iota
	StateAwaiting
)

func (s State) String() string {
	if s == StateAwaiting {
		return "awaiting"
	}
	return "idle"
}

// EventKind identifies what changed.
type EventKind int

const (
	// EventAppended carries a newly appended message.
	EventAppended EventKind = iota
	// EventState carries a state transition.
	EventState
)

// Event is delivered to subscribers after each mutation, in mutation order.
type Event struct {
	Kind    EventKind
	Message Message // set for EventAppended
	State   State   // state after the mutation
}

// Listener receives controller events. It runs on the goroutine that made the
// change, must not block for long, and must not call Submit.
type Listener func(Event)

// Options configures a Controller.
type Options struct {
	Greeting string
	Fallback string
	// Timeout bounds a single request; zero leaves it to the provider's transport.
	Timeout time.Duration
}

// Controller is safe for concurrent use.
type Controller struct {
	provider provider.Provider
	opts     Options

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	transcript []Message
	draft      string
	state      State
	lastID     int64
	closed     bool
	listeners  map[int]Listener
	nextSubID  int

	// Each mutation takes a ticket under mu; notify delivers tickets strictly
	// in order, so events reach listeners in the order the mutations happened.
	nextTicket uint64
	notifyMu   sync.Mutex
	turn       *sync.Cond
	delivered  uint64
	inflight   sync.WaitGroup
}

// New creates a controller with a transcript holding only the greeting.
func New(p provider.Provider, opts Options) *Controller {
	if opts.Greeting == "" {
		opts.Greeting = DefaultGreeting
	}
	if opts.Fallback == "" {
		opts.Fallback = DefaultFallback
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		provider:  p,
		opts:      opts,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[int]Listener),
	}
	c.turn = sync.NewCond(&c.notifyMu)
	c.transcript = []Message{{ID: c.nextIDLocked(), Text: opts.Greeting, Sender: SenderAssistant}}
	return c
}

// nextIDLocked must be called with mu held.
func (c *Controller) nextIDLocked() int64 {
	c.lastID++
	return c.lastID
}

// Transcript returns a copy of the transcript in render order.
func (c *Controller) Transcript() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.transcript))
	copy(out, c.transcript)
	return out
}

// Draft returns the current draft input.
func (c *Controller) Draft() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// State returns the current request state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Awaiting reports whether a request is outstanding.
func (c *Controller) Awaiting() bool {
	return c.State() == StateAwaiting
}

// UpdateDraft replaces the draft verbatim.
func (c *Controller) UpdateDraft(text string) {
	c.mu.Lock()
	c.draft = text
	c.mu.Unlock()
}

// Subscribe registers a listener and returns a function that removes it.
func (c *Controller) Subscribe(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSubID
	c.nextSubID++
	c.listeners[id] = l
	return func() {
		c.mu.Lock()
		delete(c.listeners, id)
		c.mu.Unlock()
	}
}

// Submit sends the draft. A draft that is empty after trimming is ignored and
// nil is returned. Otherwise the user message is appended, the draft cleared
// and the controller is awaiting by the time Submit returns; the reply (or the
// fallback message) is appended asynchronously.
func (c *Controller) Submit() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if strings.TrimSpace(c.draft) == "" {
		c.mu.Unlock()
		return nil
	}
	if c.state == StateAwaiting {
		c.mu.Unlock()
		return ErrBusy
	}

	text := c.draft
	userMsg := Message{ID: c.nextIDLocked(), Text: text, Sender: SenderUser}
	c.transcript = append(c.transcript, userMsg)
	c.draft = ""
	c.state = StateAwaiting
	c.inflight.Add(1)
	ticket, listeners := c.ticketLocked()
	c.mu.Unlock()

	logger.Debug("conversation submit", "messageID", userMsg.ID, "chars", len(text))
	c.notify(ticket, listeners,
		Event{Kind: EventAppended, Message: userMsg, State: StateAwaiting},
		Event{Kind: EventState, State: StateAwaiting},
	)

	go c.complete(text)
	return nil
}

func (c *Controller) complete(text string) {
	defer c.inflight.Done()

	ctx := c.ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	reply := c.opts.Fallback
	resp, err := c.request(ctx, text)
	if err != nil {
		logger.Error("completion request failed", "err", err)
	} else {
		reply = resp.Content
	}

	c.mu.Lock()
	if c.closed {
		c.state = StateIdle
		c.mu.Unlock()
		logger.Debug("conversation closed, discarding reply")
		return
	}
	msg := Message{ID: c.nextIDLocked(), Text: reply, Sender: SenderAssistant}
	c.transcript = append(c.transcript, msg)
	c.state = StateIdle
	ticket, listeners := c.ticketLocked()
	c.mu.Unlock()

	c.notify(ticket, listeners,
		Event{Kind: EventAppended, Message: msg, State: StateIdle},
		Event{Kind: EventState, State: StateIdle},
	)
}

// request sends only the just-submitted text, never the prior transcript.
func (c *Controller) request(ctx context.Context, text string) (resp *provider.Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("completion provider panicked", "panic", r)
			resp, err = nil, errors.New("provider panic")
		}
	}()
	if c.provider == nil {
		return nil, errors.New("no provider configured")
	}
	resp, err = c.provider.Chat(ctx, &provider.Request{
		Messages: []provider.Message{provider.UserMessage(text)},
	})
	if err == nil && resp == nil {
		err = errors.New("provider returned no response")
	}
	return resp, err
}

func (c *Controller) snapshotListenersLocked() []Listener {
	if len(c.listeners) == 0 {
		return nil
	}
	ids := make([]int, 0, len(c.listeners))
	for id := range c.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	out := make([]Listener, len(ids))
	for i, id := range ids {
		out[i] = c.listeners[id]
	}
	return out
}

func (c *Controller) ticketLocked() (uint64, []Listener) {
	ticket := c.nextTicket
	c.nextTicket++
	return ticket, c.snapshotListenersLocked()
}

// notify waits until every earlier ticket has been delivered, then delivers
// events. It must be called exactly once per ticket, with or without
// listeners, or later tickets never get their turn.
func (c *Controller) notify(ticket uint64, listeners []Listener, events ...Event) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	for c.delivered != ticket {
		c.turn.Wait()
	}
	for _, ev := range events {
		for _, l := range listeners {
			l(ev)
		}
	}
	c.delivered++
	c.turn.Broadcast()
}

// Wait blocks until every issued request has settled.
func (c *Controller) Wait() {
	c.inflight.Wait()
}

// Close detaches the controller from its surface. An outstanding request is
// cancelled and its result discarded; later Submit calls return ErrClosed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.listeners = make(map[int]Listener)
	c.mu.Unlock()
	c.cancel()
}
