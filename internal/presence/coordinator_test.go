package presence_test

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"testing"

	perrors "github.com/cursorshare/backend/internal/errors"
	"github.com/cursorshare/backend/internal/mocks"
	"github.com/cursorshare/backend/internal/presence"
	"github.com/cursorshare/backend/internal/session"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// fakeTransport is an in-memory Transport that records every send and lets
// tests drive connect, message and disconnect events by hand.
type fakeTransport struct {
	mu          sync.Mutex
	onConnect   func(string)
	handlers    map[string]map[presence.EventName]func([]byte)
	disconnects map[string][]func()
	live        map[string]bool
	sent        []call
	closed      []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers:    make(map[string]map[presence.EventName]func([]byte)),
		disconnects: make(map[string][]func()),
		live:        make(map[string]bool),
	}
}

func (f *fakeTransport) OnConnect(handler func(string)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = handler
}

func (f *fakeTransport) OnMessage(connID string, event presence.EventName, handler func([]byte)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers[connID] == nil {
		f.handlers[connID] = make(map[presence.EventName]func([]byte))
	}
	f.handlers[connID][event] = handler
}

func (f *fakeTransport) OnDisconnect(connID string, handler func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects[connID] = append(f.disconnects[connID], handler)
}

func (f *fakeTransport) Send(connID string, event presence.EventName, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.live[connID] {
		return perrors.ErrUnknownConnection
	}
	f.sent = append(f.sent, call{to: connID, event: event, payload: payload})
	return nil
}

func (f *fakeTransport) Close(connID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, connID)
	return nil
}

func (f *fakeTransport) connect(id string) {
	f.mu.Lock()
	f.live[id] = true
	h := f.onConnect
	f.mu.Unlock()
	h(id)
}

func (f *fakeTransport) message(id string, event presence.EventName, raw string) {
	f.mu.Lock()
	h := f.handlers[id][event]
	f.mu.Unlock()
	if h != nil {
		h([]byte(raw))
	}
}

// drop simulates the transport losing a connection. Every registered
// disconnect handler is invoked times times to exercise duplicate signals.
func (f *fakeTransport) drop(id string, times int) {
	f.mu.Lock()
	delete(f.live, id)
	hs := append([]func(){}, f.disconnects[id]...)
	f.mu.Unlock()
	for i := 0; i < times; i++ {
		for _, h := range hs {
			h()
		}
	}
}

func (f *fakeTransport) liveIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.live))
	for id := range f.live {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// take returns and clears the recorded sends.
func (f *fakeTransport) take() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.sent
	f.sent = nil
	return out
}

func sentTo(calls []call, id string) []call {
	var out []call
	for _, c := range calls {
		if c.to == id {
			out = append(out, c)
		}
	}
	return out
}

func newCoordinator(t *testing.T) (*presence.Coordinator, *fakeTransport, *session.Registry) {
	t.Helper()
	transport := newFakeTransport()
	registry := session.NewRegistry()
	colors, err := presence.NewColorPolicy(presence.PolicyPalette, nil)
	require.NoError(t, err)
	c := presence.NewCoordinator(testLogger(), transport, registry, colors)
	c.Start()
	return c, transport, registry
}

func registryIDs(r *session.Registry) []string {
	ids := make([]string, 0, r.Len())
	for _, p := range r.Snapshot() {
		ids = append(ids, p.ID)
	}
	sort.Strings(ids)
	return ids
}

func TestCoordinator_Scenario_JoinJoinMoveLeave(t *testing.T) {
	req := require.New(t)
	c, tr, registry := newCoordinator(t)

	// A joins first and sees nobody
	tr.connect("A")
	calls := tr.take()
	req.Len(calls, 2)
	req.Equal(presence.EventWelcome, calls[0].event)
	req.Equal(presence.EventExistingUsers, calls[1].event)
	req.Empty(calls[1].payload)
	colorA := calls[0].payload.(presence.WelcomePayload).Color
	req.Equal(presence.Active, c.State("A"))

	// B joins: B gets existing-users=[A], A gets user-joined(B)
	tr.connect("B")
	calls = tr.take()
	toB := sentTo(calls, "B")
	req.Len(toB, 2)
	req.Equal(presence.EventExistingUsers, toB[1].event)
	req.Equal([]presence.UserPayload{{ID: "A", Color: colorA}}, toB[1].payload)
	colorB := toB[0].payload.(presence.WelcomePayload).Color
	req.NotEqual(colorA, colorB)
	req.Equal([]call{{"A", presence.EventUserJoined, presence.UserJoinedPayload{ID: "B", Color: colorB}}}, sentTo(calls, "A"))

	// A moves to (10,20): B gets cursor-update, A gets nothing
	tr.message("A", presence.EventCursorMove, `{"x":10,"y":20}`)
	calls = tr.take()
	req.Equal([]call{{"B", presence.EventCursorUpdate, presence.CursorUpdatePayload{ID: "A", X: 10, Y: 20}}}, calls)

	// A disconnects: B gets user-left(A)
	tr.drop("A", 1)
	calls = tr.take()
	req.Equal([]call{{"B", presence.EventUserLeft, "A"}}, calls)
	req.Equal([]string{"B"}, registryIDs(registry))
	req.Equal(presence.Closed, c.State("A"))
}

func TestCoordinator_MalformedMove(t *testing.T) {
	req := require.New(t)
	_, tr, registry := newCoordinator(t)
	tr.connect("A")
	tr.connect("B")
	tr.message("A", presence.EventCursorMove, `{"x":1,"y":2}`)
	tr.take()

	payloads := []string{
		`{"x":"abc","y":20}`,
		`{"x":5}`,
		`{"y":5}`,
		`null`,
		`[1,2]`,
		`not json`,
		`{"x":true,"y":1}`,
	}
	for _, raw := range payloads {
		tr.message("A", presence.EventCursorMove, raw)
	}

	// Then nothing was broadcast and A keeps its previous position
	req.Empty(tr.take())
	p, ok := registry.Get("A")
	req.True(ok)
	req.Equal(&session.Position{X: 1, Y: 2}, p.Position)
}

func TestCoordinator_DoubleDisconnectSendsOneUserLeft(t *testing.T) {
	req := require.New(t)
	_, tr, _ := newCoordinator(t)
	tr.connect("A")
	tr.connect("B")
	tr.take()

	// When A's disconnect is signalled twice
	tr.drop("A", 2)

	// Then B hears about it exactly once
	req.Equal([]call{{"B", presence.EventUserLeft, "A"}}, tr.take())
}

func TestCoordinator_MoveAfterDisconnectDoesNotResurrect(t *testing.T) {
	req := require.New(t)
	c, tr, registry := newCoordinator(t)
	tr.connect("A")
	tr.connect("B")

	// Given A's move handler is captured before A leaves
	tr.mu.Lock()
	lateMove := tr.handlers["A"][presence.EventCursorMove]
	tr.mu.Unlock()
	tr.drop("A", 1)
	tr.take()

	// When a late move is delivered
	lateMove([]byte(`{"x":7,"y":7}`))

	// Then A is still gone and B saw nothing
	req.Empty(tr.take())
	_, ok := registry.Get("A")
	req.False(ok)
	req.Equal(1, c.Count())
}

func TestCoordinator_DuplicateIDIsRejected(t *testing.T) {
	req := require.New(t)
	c, tr, registry := newCoordinator(t)
	tr.connect("A")
	tr.message("A", presence.EventCursorMove, `{"x":3,"y":4}`)
	before, _ := registry.Get("A")
	tr.take()

	// When the transport announces A a second time
	tr.connect("A")

	// Then the connection is closed and the registry is untouched
	req.Equal([]string{"A"}, tr.closed)
	req.Empty(tr.take())
	after, ok := registry.Get("A")
	req.True(ok)
	req.Equal(before, after)
	req.Equal(presence.Active, c.State("A"))
}

func TestCoordinator_UnknownEventIsIgnored(t *testing.T) {
	_, tr, _ := newCoordinator(t)
	tr.connect("A")
	tr.connect("B")
	tr.take()

	tr.message("A", presence.EventName("shout"), `{"x":1,"y":1}`)

	require.Empty(t, tr.take())
}

func TestCoordinator_ExistingUsersCarryPositions(t *testing.T) {
	req := require.New(t)
	_, tr, _ := newCoordinator(t)
	tr.connect("A")
	tr.message("A", presence.EventCursorMove, `{"x":-4.5,"y":0}`)
	tr.take()

	tr.connect("B")
	toB := sentTo(tr.take(), "B")

	users := toB[1].payload.([]presence.UserPayload)
	req.Len(users, 1)
	req.NotNil(users[0].X)
	req.Equal(-4.5, *users[0].X)
	req.Equal(0.0, *users[0].Y)
}

func TestCoordinator_MovesKeepOriginatorOrder(t *testing.T) {
	req := require.New(t)
	_, tr, _ := newCoordinator(t)
	tr.connect("A")
	tr.connect("B")
	tr.take()

	for i := 0; i < 20; i++ {
		tr.message("A", presence.EventCursorMove, fmt.Sprintf(`{"x":%d,"y":%d}`, i, i))
	}

	calls := tr.take()
	req.Len(calls, 20)
	for i, c := range calls {
		req.Equal(float64(i), c.payload.(presence.CursorUpdatePayload).X)
	}
}

// TestCoordinator_RandomSequences drives random join/move/leave sequences and
// checks the broadcast invariants after every step.
func TestCoordinator_RandomSequences(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed-%d", seed), func(t *testing.T) {
			req := require.New(t)
			rng := rand.New(rand.NewSource(seed))
			_, tr, registry := newCoordinator(t)
			removed := make(map[string]bool)
			next := 0

			for step := 0; step < 200; step++ {
				live := tr.liveIDs()
				switch op := rng.Intn(10); {
				case op < 3 || len(live) == 0:
					id := fmt.Sprintf("p%d", next)
					next++
					tr.connect(id)
					for _, c := range tr.take() {
						if c.event == presence.EventExistingUsers {
							for _, u := range c.payload.([]presence.UserPayload) {
								req.NotEqual(id, u.ID, "joiner listed in its own existing-users")
							}
						}
						if c.event == presence.EventUserJoined {
							req.NotEqual(id, c.to, "user-joined sent to the joiner")
						}
					}
				case op < 8:
					id := live[rng.Intn(len(live))]
					tr.message(id, presence.EventCursorMove, fmt.Sprintf(`{"x":%d,"y":%d}`, rng.Intn(1000), rng.Intn(1000)))
					for _, c := range tr.take() {
						req.Equal(presence.EventCursorUpdate, c.event)
						req.NotEqual(id, c.to, "cursor-update echoed to its originator")
					}
				default:
					id := live[rng.Intn(len(live))]
					tr.drop(id, 1+rng.Intn(2))
					removed[id] = true
					leftCount := 0
					for _, c := range tr.take() {
						req.Equal(presence.EventUserLeft, c.event)
						leftCount++
					}
					req.Equal(len(live)-1, leftCount)
				}

				// The registry always mirrors the transport's live set
				req.Equal(tr.liveIDs(), registryIDs(registry))
				for id := range removed {
					_, ok := registry.Get(id)
					req.False(ok, "removed participant %s came back", id)
				}
			}
		})
	}
}

func TestCoordinator_StartRegistersConnectHandler(t *testing.T) {
	ctrl := gomock.NewController(t)
	transport := mocks.NewMockTransport(ctrl)
	transport.EXPECT().OnConnect(gomock.Any()).Times(1)

	presence.NewCoordinator(testLogger(), transport, session.NewRegistry(), presence.HashPolicy{}).Start()
}

func TestConnStateString(t *testing.T) {
	require.Equal(t, "connecting", presence.Connecting.String())
	require.Equal(t, "active", presence.Active.String())
	require.Equal(t, "closed", presence.Closed.String())
	require.Equal(t, "unknown", presence.ConnState(7).String())
}
