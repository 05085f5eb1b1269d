// Package webchat serves the dialog over websockets. Every connection is a
// visitor identified as "web:<uuid>"; visitors may resume their session by
// reconnecting with ?visitor=<uuid>.
package webchat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/m3rciful/menubot/core/dialog"
	"github.com/m3rciful/menubot/core/logger"
)

// Transport is the user id prefix for websocket visitors.
const Transport = "web"

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = 54 * time.Second
	maxFrame     = 4096
)

// ErrOffline is returned when a reply targets a visitor with no open connection.
var ErrOffline = errors.New("webchat: visitor offline")

// Dialog is the state machine fed by visitor messages.
type Dialog interface {
	HandleMessage(ctx context.Context, in dialog.Inbound) (dialog.Transition, error)
}

// Enqueuer runs jobs asynchronously in per-key order.
type Enqueuer interface {
	Enqueue(ctx context.Context, key, action string, run func(context.Context) error) error
}

type inboundFrame struct {
	Text string `json:"text"`
}

type outgoingFrame struct {
	Type      string `json:"type"`
	VisitorID string `json:"visitor_id,omitempty"`
	Text      string `json:"text,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type client struct {
	userID  string
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(frame outgoingFrame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(frame)
}

func (c *client) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Hub accepts websocket visitors and delivers dialog replies to them.
// It implements http.Handler and dialog.Sender for the "web" transport.
type Hub struct {
	dialog   Dialog
	jobs     Enqueuer
	upgrader websocket.Upgrader
	newID    func() string

	mu      sync.RWMutex
	clients map[string]*client
	closed  bool
}

// NewHub creates a hub feeding d. Replies are written through jobs when set.
func NewHub(d Dialog, jobs Enqueuer) *Hub {
	return &Hub{
		dialog: d,
		jobs:   jobs,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		newID:   uuid.NewString,
		clients: make(map[string]*client),
	}
}

// Connected returns the number of open visitor connections.
func (h *Hub) Connected() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and runs the visitor read loop.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	visitor := h.visitorID(r.URL.Query().Get("visitor"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.HTTP.Warn("websocket upgrade failed",
			slog.String("event", "ws.upgrade"),
			slog.String("err", err.Error()),
		)
		return
	}

	c := &client{userID: dialog.UserID(Transport, visitor), conn: conn}
	if !h.attach(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	defer h.detach(c)

	ctx := logger.WithUserID(context.WithoutCancel(r.Context()), c.userID)
	logger.Info(ctx, "webchat", "ws.connect", slog.String("remote", r.RemoteAddr))

	conn.SetReadLimit(maxFrame)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(done, c)

	if err := c.write(outgoingFrame{Type: "connected", VisitorID: visitor, Timestamp: time.Now().Unix()}); err != nil {
		return
	}

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn(ctx, "webchat", "ws.read.fail", slog.String("err", err.Error()))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		if kind != websocket.TextMessage {
			continue
		}

		tr, err := h.dialog.HandleMessage(ctx, dialog.Inbound{
			SenderID: c.userID,
			Text:     decodeText(data),
		})
		if err != nil {
			logger.Warn(ctx, "webchat", "ws.dialog.fail", slog.String("err", err.Error()))
			continue
		}
		logger.Debug(ctx, "webchat", "ws.message",
			slog.String("action", string(tr.Action)),
			slog.String("to", tr.To.String()),
		)
	}
}

// Send implements dialog.Sender for "web:" recipients.
func (h *Hub) Send(ctx context.Context, recipientID, text string) error {
	transport, _, ok := dialog.SplitUserID(recipientID)
	if !ok || transport != Transport {
		return fmt.Errorf("webchat: bad recipient %q: %w", recipientID, dialog.ErrNoRoute)
	}
	run := func(context.Context) error {
		h.mu.RLock()
		c := h.clients[recipientID]
		h.mu.RUnlock()
		if c == nil {
			return ErrOffline
		}
		return c.write(outgoingFrame{Type: "reply", Text: text, Timestamp: time.Now().Unix()})
	}
	if h.jobs == nil {
		return run(ctx)
	}
	return h.jobs.Enqueue(ctx, recipientID, "web.send", run)
}

// Close disconnects every visitor and refuses new connections.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.writeMu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		_ = c.conn.Close()
	}
}

// visitorID keeps a well-formed resume id and mints a new one otherwise.
func (h *Hub) visitorID(requested string) string {
	requested = strings.TrimSpace(requested)
	if requested != "" {
		if id, err := uuid.Parse(requested); err == nil {
			return id.String()
		}
	}
	return h.newID()
}

// attach registers c, replacing an older connection of the same visitor.
func (h *Hub) attach(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	prev := h.clients[c.userID]
	h.clients[c.userID] = c
	h.mu.Unlock()

	if prev != nil {
		_ = prev.conn.Close()
	}
	return true
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	if h.clients[c.userID] == c {
		delete(h.clients, c.userID)
	}
	h.mu.Unlock()
	_ = c.conn.Close()
	logger.Info(logger.WithUserID(context.Background(), c.userID), "webchat", "ws.disconnect")
}

func (h *Hub) pingLoop(done <-chan struct{}, c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}

// decodeText accepts {"text": "..."} frames and falls back to the raw payload.
func decodeText(data []byte) string {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err == nil {
		return frame.Text
	}
	return string(data)
}
