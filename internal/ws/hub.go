package ws

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	perrors "github.com/cursorshare/backend/internal/errors"
	"github.com/cursorshare/backend/internal/presence"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
)

type Options struct {
	SendBuffer      int
	MaxConnections  int // 0 means unlimited
	MaxMessageBytes int64
	WriteTimeout    time.Duration
	PongTimeout     time.Duration
	PingInterval    time.Duration
}

func DefaultOptions() Options {
	return Options{
		SendBuffer:      64,
		MaxMessageBytes: 1024,
		WriteTimeout:    10 * time.Second,
		PongTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
	}
}

// client is one connection. Local clients have no socket; their outbound
// frames go to sink instead.
type client struct {
	id   string
	conn *websocket.Conn
	sink func([]byte)
	send chan []byte

	mu           sync.Mutex
	closed       bool
	handlers     map[presence.EventName]func([]byte)
	onDisconnect []func()
}

func newClient(id string, conn *websocket.Conn, sink func([]byte), buffer int) *client {
	return &client{
		id:       id,
		conn:     conn,
		sink:     sink,
		send:     make(chan []byte, buffer),
		handlers: make(map[presence.EventName]func([]byte)),
	}
}

// Hub is the WebSocket implementation of presence.Transport. Each client has
// a buffered send channel drained by its own write goroutine, so Send never
// blocks; a client whose buffer is full is disconnected.
type Hub struct {
	log  *slog.Logger
	opts Options

	mu        sync.RWMutex
	clients   map[string]*client
	onConnect []func(string)
}

var _ presence.Transport = (*Hub)(nil)

func NewHub(log *slog.Logger, opts Options) *Hub {
	return &Hub{
		log:     log,
		opts:    opts,
		clients: make(map[string]*client),
	}
}

func (h *Hub) OnConnect(handler func(connID string)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onConnect = append(h.onConnect, handler)
}

func (h *Hub) OnMessage(connID string, event presence.EventName, handler func(payload []byte)) {
	c, ok := h.lookup(connID)
	if !ok {
		h.log.Debug("OnMessage for unknown connection", "conn_id", connID)
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.handlers[event] = handler
	}
}

func (h *Hub) OnDisconnect(connID string, handler func()) {
	c, ok := h.lookup(connID)
	if !ok {
		go handler()
		return
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		go handler()
		return
	}
	c.onDisconnect = append(c.onDisconnect, handler)
	c.mu.Unlock()
}

// Send encodes the frame and queues it without blocking.
func (h *Hub) Send(connID string, event presence.EventName, payload any) error {
	frame, err := encodeFrame(event, payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}
	c, ok := h.lookup(connID)
	if !ok {
		return perrors.ErrUnknownConnection
	}
	return h.enqueue(c, frame)
}

// Close tears the connection down asynchronously; disconnect handlers run on
// another goroutine, never on the caller's.
func (h *Hub) Close(connID string) error {
	c, ok := h.lookup(connID)
	if !ok {
		return perrors.ErrUnknownConnection
	}
	go h.disconnect(c)
	return nil
}

// Register adopts an upgraded socket. Connect handlers have returned before
// the first inbound frame is read.
func (h *Hub) Register(conn *websocket.Conn) (string, error) {
	c := newClient(uuid.NewString(), conn, nil, h.opts.SendBuffer)
	if err := h.add(c); err != nil {
		return "", err
	}
	go h.writePump(c)
	h.fireConnect(c.id)
	go h.readPump(c)
	return c.id, nil
}

// ConnectLocal attaches an in-process participant with no socket. Frames
// addressed to it are handed to sink (which may be nil) in order.
func (h *Hub) ConnectLocal(sink func(frame []byte)) (string, error) {
	c := newClient(uuid.NewString(), nil, sink, h.opts.SendBuffer)
	if err := h.add(c); err != nil {
		return "", err
	}
	go h.drainLocal(c)
	h.fireConnect(c.id)
	return c.id, nil
}

// Inject delivers an inbound event for connID as if it had been read from
// the wire. It runs the handler on the caller's goroutine.
func (h *Hub) Inject(connID string, event presence.EventName, payload any) error {
	data, err := sonic.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", event, err)
	}
	c, ok := h.lookup(connID)
	if !ok {
		return perrors.ErrUnknownConnection
	}
	h.dispatch(c, event, data)
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) Full() bool {
	if h.opts.MaxConnections <= 0 {
		return false
	}
	return h.ClientCount() >= h.opts.MaxConnections
}

func (h *Hub) IDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Keys(h.clients)
}

// Shutdown disconnects every client.
func (h *Hub) Shutdown() {
	h.mu.RLock()
	clients := lo.Values(h.clients)
	h.mu.RUnlock()
	for _, c := range clients {
		h.disconnect(c)
	}
}

func (h *Hub) add(c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.opts.MaxConnections > 0 && len(h.clients) >= h.opts.MaxConnections {
		return perrors.ErrTooManyConnections
	}
	h.clients[c.id] = c
	return nil
}

func (h *Hub) lookup(connID string) (*client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

func (h *Hub) fireConnect(connID string) {
	h.mu.RLock()
	handlers := append([]func(string){}, h.onConnect...)
	h.mu.RUnlock()
	for _, fn := range handlers {
		fn(connID)
	}
}

func (h *Hub) enqueue(c *client, frame []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return perrors.ErrConnectionClosed
	}
	select {
	case c.send <- frame:
		c.mu.Unlock()
		return nil
	default:
		c.mu.Unlock()
		h.log.Warn("Client too slow, disconnecting", "conn_id", c.id)
		go h.disconnect(c)
		return perrors.ErrSendBufferFull
	}
}

// disconnect is idempotent. It closes the send channel, forgets the client
// and runs its disconnect handlers.
func (h *Hub) disconnect(c *client) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	handlers := c.onDisconnect
	c.onDisconnect = nil
	c.mu.Unlock()

	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.log.Debug("Write failed", "conn_id", c.id, "error", err)
				h.disconnect(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(h.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.disconnect(c)
				return
			}
		}
	}
}

func (h *Hub) drainLocal(c *client) {
	for frame := range c.send {
		if c.sink != nil {
			c.sink(frame)
		}
	}
}

func (h *Hub) readPump(c *client) {
	defer h.disconnect(c)

	c.conn.SetReadLimit(h.opts.MaxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.opts.PongTimeout))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("Read failed", "conn_id", c.id, "error", err)
			}
			return
		}
		env, err := decodeFrame(frame)
		if err != nil || env.Event == "" {
			h.log.Debug("Dropping malformed frame", "conn_id", c.id)
			continue
		}
		h.dispatch(c, env.Event, env.Data)
	}
}

func (h *Hub) dispatch(c *client, event presence.EventName, payload []byte) {
	c.mu.Lock()
	handler := c.handlers[event]
	c.mu.Unlock()
	if handler == nil {
		h.log.Debug("No handler for event", "conn_id", c.id, "event", string(event))
		return
	}

	defer func() {
		if r := recover(); r != nil {
			h.log.Error("Message handler panicked", "conn_id", c.id, "event", string(event), "panic", r)
		}
	}()
	handler(payload)
}
