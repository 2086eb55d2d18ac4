package presence

import (
	"github.com/cursorshare/backend/internal/session"
	"github.com/samber/lo"
)

type EventName string

const (
	EventCursorMove    EventName = "cursor-move"
	EventWelcome       EventName = "welcome"
	EventExistingUsers EventName = "existing-users"
	EventUserJoined    EventName = "user-joined"
	EventUserLeft      EventName = "user-left"
	EventCursorUpdate  EventName = "cursor-update"
)

// UserPayload is one entry of existing-users. X and Y are omitted until the
// participant has moved.
type UserPayload struct {
	ID    string   `json:"id"`
	Color string   `json:"color"`
	X     *float64 `json:"x,omitempty"`
	Y     *float64 `json:"y,omitempty"`
}

type UserJoinedPayload struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

// WelcomePayload tells a new connection its own identity.
type WelcomePayload struct {
	ID    string `json:"id"`
	Color string `json:"color"`
}

type CursorUpdatePayload struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// CursorMovePayload is the inbound move. Pointers let a missing coordinate be
// told apart from zero.
type CursorMovePayload struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

func ToUserPayload(p session.Participant) UserPayload {
	u := UserPayload{ID: p.ID, Color: p.Color}
	if p.Position != nil {
		u.X = lo.ToPtr(p.Position.X)
		u.Y = lo.ToPtr(p.Position.Y)
	}
	return u
}

func ToUserPayloads(participants []session.Participant) []UserPayload {
	return lo.Map(participants, func(p session.Participant, _ int) UserPayload {
		return ToUserPayload(p)
	})
}
