package channel

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/linanwx/nagochat/conversation"
	"github.com/linanwx/nagochat/logger"
	"github.com/linanwx/nagochat/render"
)

//go:embed webui/index.html
var webIndexHTML []byte

const (
	webWriteTimeout    = 10 * time.Second
	webShutdownTimeout = 5 * time.Second
	webErrorBufferSize = 4
)

// ConversationFactory creates the conversation backing one widget mount.
type ConversationFactory func() (*conversation.Controller, error)

// WebConfig configures the web widget service.
type WebConfig struct {
	Addr            string
	NewConversation ConversationFactory
}

// WebService serves the browser chat widget. Every websocket connection is
// one mount: it gets its own conversation, closed when the socket goes away.
type WebService struct {
	addr    string
	newConv ConversationFactory

	ctx    context.Context
	cancel context.CancelFunc
	conns  sync.WaitGroup

	mu     sync.Mutex
	server *http.Server
	ln     net.Listener
}

// clientFrame is a message from the browser.
type clientFrame struct {
	Type string `json:"type"` // "draft" or "submit"
	Text string `json:"text,omitempty"`
}

// serverFrame is a message to the browser.
type serverFrame struct {
	Type     string       `json:"type"` // "snapshot" or "error"
	Messages []webMessage `json:"messages,omitempty"`
	Awaiting bool         `json:"awaiting"`
	Error    string       `json:"error,omitempty"`
}

type webMessage struct {
	ID     int64  `json:"id"`
	Sender string `json:"sender"`
	Text   string `json:"text"`
	HTML   string `json:"html"`
}

// NewWebService creates the widget service.
func NewWebService(cfg WebConfig) *WebService {
	ctx, cancel := context.WithCancel(context.Background())
	return &WebService{
		addr:    cfg.Addr,
		newConv: cfg.NewConversation,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (w *WebService) Name() string { return "web" }

// Handler returns the HTTP routes of the widget.
func (w *WebService) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", w.handleIndex)
	mux.HandleFunc("GET /ws", w.handleWS)
	return mux
}

// Start listens on the configured address and serves in the background.
func (w *WebService) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", w.addr)
	if err != nil {
		return fmt.Errorf("web listen %s: %w", w.addr, err)
	}
	server := &http.Server{
		Handler:           w.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	w.mu.Lock()
	w.ln = ln
	w.server = server
	w.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("web server error", "err", err)
		}
	}()
	logger.Info("web channel started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound listener address, or the configured one before Start.
func (w *WebService) Addr() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.ln != nil {
		return w.ln.Addr().String()
	}
	return w.addr
}

// Stop closes every open widget and shuts the server down.
func (w *WebService) Stop() error {
	w.cancel()

	w.mu.Lock()
	server := w.server
	w.mu.Unlock()

	var err error
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), webShutdownTimeout)
		defer cancel()
		err = server.Shutdown(ctx)
	}
	w.conns.Wait()
	logger.Info("web channel stopped")
	return err
}

func (w *WebService) handleIndex(rw http.ResponseWriter, _ *http.Request) {
	rw.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = rw.Write(webIndexHTML)
}

func (w *WebService) handleWS(rw http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		logger.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	if w.newConv == nil {
		conn.Close(websocket.StatusInternalError, "conversation unavailable")
		return
	}
	ctrl, err := w.newConv()
	if err != nil {
		logger.Error("create conversation failed", "err", err)
		conn.Close(websocket.StatusInternalError, "conversation unavailable")
		return
	}
	// Unmounting discards any reply still in flight.
	defer ctrl.Close()

	w.conns.Add(1)
	defer w.conns.Done()

	ctx, cancel := context.WithCancel(w.ctx)
	defer cancel()

	updates := make(chan struct{}, 1)
	poke := func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	}
	errs := make(chan string, webErrorBufferSize)

	unsubscribe := ctrl.Subscribe(func(conversation.Event) { poke() })
	defer unsubscribe()
	poke()

	remote := r.RemoteAddr
	logger.Info("web widget mounted", "remote", remote)
	defer logger.Info("web widget unmounted", "remote", remote)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		defer cancel()
		webWriteLoop(ctx, conn, ctrl, updates, errs)
	}()

	for {
		var frame clientFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if websocket.CloseStatus(err) == -1 && ctx.Err() == nil {
				logger.Debug("websocket read ended", "remote", remote, "err", err)
			}
			break
		}
		switch frame.Type {
		case "draft":
			ctrl.UpdateDraft(frame.Text)
		case "submit":
			if err := ctrl.Submit(); err != nil {
				select {
				case errs <- submitErrorText(err):
				default:
				}
			}
		default:
			logger.Debug("unknown widget frame", "type", frame.Type)
		}
	}

	cancel()
	<-writerDone
	conn.Close(websocket.StatusNormalClosure, "")
}

// webWriteLoop is the single writer of a connection. Bursts of events are
// coalesced into one snapshot.
func webWriteLoop(ctx context.Context, conn *websocket.Conn, ctrl *conversation.Controller, updates <-chan struct{}, errs <-chan string) {
	rendered := make(map[int64]string)
	for {
		var frame serverFrame
		select {
		case <-ctx.Done():
			return
		case <-updates:
			frame = snapshotFrame(ctrl, rendered)
		case msg := <-errs:
			frame = serverFrame{Type: "error", Error: msg, Awaiting: ctrl.Awaiting()}
		}

		writeCtx, cancel := context.WithTimeout(ctx, webWriteTimeout)
		err := wsjson.Write(writeCtx, conn, frame)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				logger.Warn("websocket write failed", "err", err)
			}
			return
		}
	}
}

func snapshotFrame(ctrl *conversation.Controller, rendered map[int64]string) serverFrame {
	transcript := ctrl.Transcript()
	frame := serverFrame{
		Type:     "snapshot",
		Messages: make([]webMessage, 0, len(transcript)),
		Awaiting: ctrl.Awaiting(),
	}
	for _, m := range transcript {
		h, ok := rendered[m.ID]
		if !ok {
			h = messageHTML(m)
			rendered[m.ID] = h
		}
		frame.Messages = append(frame.Messages, webMessage{
			ID:     m.ID,
			Sender: string(m.Sender),
			Text:   m.Text,
			HTML:   h,
		})
	}
	return frame
}

// messageHTML renders assistant replies as Markdown. User text is shown
// verbatim.
func messageHTML(m conversation.Message) string {
	if m.Sender != conversation.SenderAssistant {
		return html.EscapeString(m.Text)
	}
	out, err := render.HTML(m.Text)
	if err != nil {
		logger.Warn("markdown render failed", "id", m.ID, "err", err)
		return html.EscapeString(m.Text)
	}
	return out
}

func submitErrorText(err error) string {
	switch {
	case errors.Is(err, conversation.ErrBusy):
		return "Please wait for the current reply."
	case errors.Is(err, conversation.ErrClosed):
		return "This conversation has ended."
	default:
		return err.Error()
	}
}
