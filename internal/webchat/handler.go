package webchat

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/usmanalidev/demo-agent-ai/internal/conversation"
	"github.com/usmanalidev/demo-agent-ai/internal/demo"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
	"golang.org/x/net/websocket"
)

// DefaultPlaybackTimeout bounds how long the server waits for a client to
// report that an utterance finished playing.
const DefaultPlaybackTimeout = 60 * time.Second

// Handler serves the chat over WebSocket. Each connection owns one session
// and one sequencer; both are torn down when the socket closes.
type Handler struct {
	factory         *conversation.Factory
	steps           demo.StepSource
	logger          *logging.Logger
	interval        time.Duration
	playbackTimeout time.Duration
	metrics         demoMetrics

	mu      sync.RWMutex
	clients map[string]*client
}

type demoMetrics interface {
	ObserveDemo(outcome string)
}

// InboundMessage is what the browser sends.
type InboundMessage struct {
	Type        string `json:"type"` // "message", "demo", "credential", "replay", "audio_ended", "listening", "transcript", "ping"
	Text        string `json:"text,omitempty"`
	Feature     string `json:"feature,omitempty"`
	APIKey      string `json:"api_key,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
	UtteranceID string `json:"utterance_id,omitempty"`
	Supported   *bool  `json:"supported,omitempty"`
	Error       string `json:"error,omitempty"`
}

// OutboundMessage is what the server pushes to the browser.
type OutboundMessage struct {
	Type      string                  `json:"type"` // "session", "message", "state", "highlight", "demo", "audio", "notice", "draft", "pong", "error"
	SessionID string                  `json:"session_id,omitempty"`
	State     *conversation.State     `json:"state,omitempty"`
	Message   *conversation.Message   `json:"message,omitempty"`
	Status    *conversation.Status    `json:"status,omitempty"`
	Highlight *demo.Highlight         `json:"highlight,omitempty"`
	Feature   string                  `json:"feature,omitempty"`
	Notice    *conversation.Notice    `json:"notice,omitempty"`
	Utterance *conversation.Utterance `json:"utterance,omitempty"`
	Text      string                  `json:"text,omitempty"`
}

func NewHandler(factory *conversation.Factory, steps demo.StepSource, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	h := &Handler{
		factory:         factory,
		steps:           steps,
		logger:          logger,
		interval:        demo.DefaultInterval,
		playbackTimeout: DefaultPlaybackTimeout,
		clients:         make(map[string]*client),
	}
	if dm, ok := factory.Metrics.(demoMetrics); ok {
		h.metrics = dm
	}
	return h
}

func (h *Handler) WithHighlightInterval(d time.Duration) *Handler {
	if d > 0 {
		h.interval = d
	}
	return h
}

func (h *Handler) WithPlaybackTimeout(d time.Duration) *Handler {
	if d > 0 {
		h.playbackTimeout = d
	}
	return h
}

// Len returns the number of open connections.
func (h *Handler) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleWebSocket upgrades to WebSocket and runs the session loop.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(h.serveWS).ServeHTTP(w, r)
}

func (h *Handler) serveWS(conn *websocket.Conn) {
	id := uuid.NewString()
	c := newClient(conn, h.playbackTimeout, h.logger.WithSession(id))

	c.seq = demo.NewSequencer(h.steps, c.sendHighlight, c.logger).
		WithInterval(h.interval).
		WithClock(h.factory.Clock)
	if h.metrics != nil {
		c.seq.WithMetrics(h.metrics)
	}
	c.session = h.factory.New(id,
		conversation.WithObserver(c),
		conversation.WithPlayer(c),
	)

	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
		c.close()
	}()

	state := c.session.Snapshot()
	c.send(OutboundMessage{Type: "session", SessionID: id, State: &state})
	c.logger.Info("webchat: connection opened")

	for {
		var msg InboundMessage
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			c.logger.Debug("webchat: connection closed", "error", err)
			return
		}
		h.dispatch(c, msg)
	}
}

func (h *Handler) dispatch(c *client, msg InboundMessage) {
	var err error
	switch msg.Type {
	case "ping":
		c.send(OutboundMessage{Type: "pong"})
	case "message":
		err = c.session.Submit(msg.Text)
	case "demo":
		err = c.session.RequestDemo(msg.Feature)
	case "credential":
		err = c.session.SetCredential(msg.APIKey)
	case "replay":
		err = c.session.Replay(msg.MessageID)
	case "audio_ended":
		var playErr error
		if msg.Error != "" {
			playErr = errors.New(msg.Error)
		}
		c.audioEnded(msg.UtteranceID, playErr)
	case "listening":
		supported := msg.Supported == nil || *msg.Supported
		err = c.session.BeginListening(supported)
	case "transcript":
		var recErr error
		if msg.Error != "" {
			recErr = errors.New(msg.Error)
		}
		var text string
		text, err = c.session.FinishListening(msg.Text, recErr)
		if err == nil && text != "" {
			c.send(OutboundMessage{Type: "draft", Text: text})
		}
	default:
		c.send(OutboundMessage{Type: "error", Text: "unknown message type"})
		return
	}
	if text := errorText(err); text != "" {
		c.send(OutboundMessage{Type: "error", Text: text})
	}
}

// errorText maps a session error to what the client sees. Errors that
// already raised a notice, and blank input, produce nothing.
func errorText(err error) string {
	switch {
	case err == nil,
		errors.Is(err, conversation.ErrEmptyMessage),
		errors.Is(err, conversation.ErrCredentialRequired),
		errors.Is(err, conversation.ErrRecognitionUnavailable),
		errors.Is(err, conversation.ErrRecognitionFailed):
		return ""
	default:
		return err.Error()
	}
}

// Close drops every open connection. Hijacked sockets are not closed by
// http.Server.Shutdown, so the server calls this during shutdown.
func (h *Handler) Close() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		_ = c.conn.Close()
	}
}
