// Package presence tracks who is connected to the shared session and where
// their cursors are, and fans every change out to the other participants.
package presence

import (
	"log/slog"
	"sync"

	"github.com/cursorshare/backend/internal/session"
)

// ConnState is the lifecycle of one connection as seen by the Coordinator.
type ConnState int

const (
	Connecting ConnState = iota
	Active
	Closed
)

var connStateNames = map[ConnState]string{
	Connecting: "connecting",
	Active:     "active",
	Closed:     "closed",
}

func (s ConnState) String() string {
	if n, ok := connStateNames[s]; ok {
		return n
	}
	return "unknown"
}

type messageHandler func(c *Coordinator, connID string, payload []byte)

// inbound is the dispatch table for client->server events.
var inbound = map[EventName]messageHandler{
	EventCursorMove: (*Coordinator).move,
}

// Coordinator owns the registry. Every lifecycle event is handled under one
// mutex, held across the registry change and the fan-out it triggers, so
// peers observe a participant's join, moves and leave in that order.
type Coordinator struct {
	mu          sync.Mutex
	log         *slog.Logger
	transport   Transport
	registry    *session.Registry
	broadcaster *Broadcaster
	colors      ColorPolicy
	states      map[string]ConnState
}

func NewCoordinator(log *slog.Logger, transport Transport, registry *session.Registry, colors ColorPolicy) *Coordinator {
	return &Coordinator{
		log:         log,
		transport:   transport,
		registry:    registry,
		broadcaster: NewBroadcaster(log, transport, registry),
		colors:      colors,
		states:      make(map[string]ConnState),
	}
}

// Start subscribes to new connections on the transport.
func (c *Coordinator) Start() {
	c.transport.OnConnect(c.accept)
}

// accept moves a connection from Connecting to Active: color, insert,
// join fan-out, then handler registration for its messages and disconnect.
func (c *Coordinator) accept(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, known := c.states[connID]; !known {
		c.states[connID] = Connecting
	}

	p := session.Participant{
		ID:    connID,
		Color: c.colors.Assign(connID, c.registry.Colors()),
	}
	if err := c.registry.Insert(p); err != nil {
		c.log.Error("Rejecting connection", "conn_id", connID, "error", err)
		if c.states[connID] == Connecting {
			delete(c.states, connID)
		}
		if cerr := c.transport.Close(connID); cerr != nil {
			c.log.Debug("Close after rejection failed", "conn_id", connID, "error", cerr)
		}
		return
	}
	c.states[connID] = Active
	c.log.Info("Participant joined", "conn_id", connID, "color", p.Color, "count", c.registry.Len())

	c.broadcaster.Publish(session.Mutation{Kind: session.Joined, Participant: p})

	for event := range inbound {
		c.transport.OnMessage(connID, event, func(payload []byte) {
			c.handle(connID, event, payload)
		})
	}
	c.transport.OnDisconnect(connID, func() {
		c.disconnect(connID)
	})
}

func (c *Coordinator) handle(connID string, event EventName, payload []byte) {
	h, ok := inbound[event]
	if !ok {
		c.log.Debug("Dropping unknown event", "conn_id", connID, "event", string(event))
		return
	}
	h(c, connID, payload)
}

// move is the Active self-loop. Invalid payloads are dropped without a reply.
func (c *Coordinator) move(connID string, payload []byte) {
	pos, err := ParseMove(payload)
	if err != nil {
		c.log.Debug("Dropping cursor move", "conn_id", connID, "error", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.states[connID] != Active {
		c.log.Debug("Cursor move from inactive connection", "conn_id", connID)
		return
	}
	if !c.registry.UpdatePosition(connID, pos.X, pos.Y) {
		c.log.Debug("Cursor move for unknown participant", "conn_id", connID)
		return
	}
	p, _ := c.registry.Get(connID)
	c.broadcaster.Publish(session.Mutation{Kind: session.Moved, Participant: p})
}

// disconnect moves a connection to Closed. Repeated signals are no-ops.
func (c *Coordinator) disconnect(connID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.states[connID] != Active {
		return
	}
	delete(c.states, connID)

	p, ok := c.registry.Get(connID)
	if !ok || !c.registry.Remove(connID) {
		return
	}
	c.log.Info("Participant left", "conn_id", connID, "count", c.registry.Len())
	c.broadcaster.Publish(session.Mutation{Kind: session.Left, Participant: p})
}

// State reports the lifecycle state of connID. Connections that were never
// seen or have been torn down report Closed.
func (c *Coordinator) State(connID string) ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.states[connID]; ok {
		return s
	}
	return Closed
}

func (c *Coordinator) Participants() []session.Participant {
	return c.registry.Snapshot()
}

func (c *Coordinator) Count() int {
	return c.registry.Len()
}
