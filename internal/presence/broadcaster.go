package presence

import (
	"log/slog"

	"github.com/cursorshare/backend/internal/session"
	"github.com/samber/lo"
)

// Snapshotter is the read-only view of the registry the broadcaster needs.
type Snapshotter interface {
	Snapshot() []session.Participant
}

// Broadcaster turns registry mutations into per-recipient sends. It never
// mutates the registry and a failed send only affects its own recipient.
type Broadcaster struct {
	log      *slog.Logger
	sender   Sender
	registry Snapshotter
}

func NewBroadcaster(log *slog.Logger, sender Sender, registry Snapshotter) *Broadcaster {
	return &Broadcaster{log: log, sender: sender, registry: registry}
}

var fanouts = map[session.MutationKind]func(*Broadcaster, session.Participant) int{
	session.Joined: (*Broadcaster).join,
	session.Moved:  (*Broadcaster).move,
	session.Left:   (*Broadcaster).leave,
}

// Publish performs the fan-out for m and returns how many sends succeeded.
func (b *Broadcaster) Publish(m session.Mutation) int {
	fanout, ok := fanouts[m.Kind]
	if !ok {
		b.log.Warn("No fan-out for mutation", "kind", m.Kind.String())
		return 0
	}
	return fanout(b, m.Participant)
}

// join tells the joiner who is already here, then announces the joiner to
// everyone else.
func (b *Broadcaster) join(p session.Participant) int {
	others := b.others(p.ID)

	delivered := 0
	delivered += b.send(p.ID, EventWelcome, WelcomePayload{ID: p.ID, Color: p.Color})
	delivered += b.send(p.ID, EventExistingUsers, ToUserPayloads(others))

	joined := UserJoinedPayload{ID: p.ID, Color: p.Color}
	for _, o := range others {
		delivered += b.send(o.ID, EventUserJoined, joined)
	}
	return delivered
}

// move never echoes back to the originator, which already holds its own
// position locally.
func (b *Broadcaster) move(p session.Participant) int {
	if p.Position == nil {
		b.log.Warn("Move mutation without a position", "conn_id", p.ID)
		return 0
	}
	update := CursorUpdatePayload{ID: p.ID, X: p.Position.X, Y: p.Position.Y}

	delivered := 0
	for _, o := range b.others(p.ID) {
		delivered += b.send(o.ID, EventCursorUpdate, update)
	}
	return delivered
}

func (b *Broadcaster) leave(p session.Participant) int {
	delivered := 0
	for _, o := range b.others(p.ID) {
		delivered += b.send(o.ID, EventUserLeft, p.ID)
	}
	return delivered
}

func (b *Broadcaster) others(id string) []session.Participant {
	return lo.Filter(b.registry.Snapshot(), func(o session.Participant, _ int) bool {
		return o.ID != id
	})
}

func (b *Broadcaster) send(connID string, event EventName, payload any) int {
	if err := b.sender.Send(connID, event, payload); err != nil {
		b.log.Debug("Send failed", "conn_id", connID, "event", string(event), "error", err)
		return 0
	}
	return 1
}
