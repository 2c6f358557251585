package webchat

import (
	"context"
	"sync"
	"time"

	"github.com/usmanalidev/demo-agent-ai/internal/conversation"
	"github.com/usmanalidev/demo-agent-ai/internal/demo"
	"github.com/usmanalidev/demo-agent-ai/pkg/logging"
	"golang.org/x/net/websocket"
)

// client adapts one socket to the session: it is the session's Observer and
// Player, and the sequencer's sink.
type client struct {
	conn            *websocket.Conn
	playbackTimeout time.Duration
	logger          *logging.Logger
	session         *conversation.Session
	seq             *demo.Sequencer

	sendMu sync.Mutex

	mu      sync.Mutex
	waiters map[string]chan error
	done    chan struct{}
	closed  bool
}

func newClient(conn *websocket.Conn, playbackTimeout time.Duration, logger *logging.Logger) *client {
	return &client{
		conn:            conn,
		playbackTimeout: playbackTimeout,
		logger:          logger,
		waiters:         make(map[string]chan error),
		done:            make(chan struct{}),
	}
}

func (c *client) send(msg OutboundMessage) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := websocket.JSON.Send(c.conn, msg); err != nil {
		c.logger.Debug("webchat: send failed", "type", msg.Type, "error", err)
	}
}

func (c *client) MessageAppended(m conversation.Message) {
	c.send(OutboundMessage{Type: "message", Message: &m})
}

func (c *client) StatusChanged(s conversation.Status) {
	c.send(OutboundMessage{Type: "state", Status: &s})
}

func (c *client) DemoRequested(feature string) {
	c.send(OutboundMessage{Type: "demo", Feature: feature})
	c.seq.Start(feature)
}

func (c *client) Noticed(n conversation.Notice) {
	c.send(OutboundMessage{Type: "notice", Notice: &n})
}

func (c *client) sendHighlight(h demo.Highlight) {
	c.send(OutboundMessage{Type: "highlight", Highlight: &h})
}

// Play pushes the audio to the browser and waits for its audio_ended ack.
// A missing ack counts as finished once the playback timeout elapses.
func (c *client) Play(ctx context.Context, u conversation.Utterance) error {
	ack := make(chan error, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return context.Canceled
	}
	c.waiters[u.ID] = ack
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, u.ID)
		c.mu.Unlock()
	}()

	c.send(OutboundMessage{Type: "audio", Utterance: &u})

	timer := time.NewTimer(c.playbackTimeout)
	defer timer.Stop()
	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return context.Canceled
	case <-timer.C:
		c.logger.Warn("webchat: playback ack timed out", "utterance_id", u.ID)
		return nil
	}
}

// audioEnded resolves a pending Play. Unknown ids are ignored; the
// utterance may have been superseded already.
func (c *client) audioEnded(utteranceID string, err error) {
	c.mu.Lock()
	ack, ok := c.waiters[utteranceID]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ack <- err:
	default:
	}
}

func (c *client) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.done)
	c.mu.Unlock()

	c.session.Close()
	c.seq.Close()
	c.logger.Info("webchat: session closed")
}
