// Package probe is a terminal client for the presence server. State mirrors
// what a browser client keeps: everyone else's cursor, keyed by id.
package probe

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/cursorshare/backend/internal/presence"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

type Cursor struct {
	ID    string
	Color string
	X     *float64
	Y     *float64
}

type State struct {
	mu      sync.Mutex
	self    presence.WelcomePayload
	cursors map[string]Cursor
}

func NewState() *State {
	return &State{cursors: make(map[string]Cursor)}
}

// Apply folds one server event into the state. Unknown events are ignored.
func (s *State) Apply(event presence.EventName, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch event {
	case presence.EventWelcome:
		var me presence.WelcomePayload
		if err := sonic.Unmarshal(data, &me); err != nil {
			return fmt.Errorf("decoding %s: %w", event, err)
		}
		s.self = me
		delete(s.cursors, me.ID)

	case presence.EventExistingUsers:
		var users []presence.UserPayload
		if err := sonic.Unmarshal(data, &users); err != nil {
			return fmt.Errorf("decoding %s: %w", event, err)
		}
		others := lo.Filter(users, func(u presence.UserPayload, _ int) bool { return u.ID != s.self.ID })
		s.cursors = lo.SliceToMap(others, func(u presence.UserPayload) (string, Cursor) {
			return u.ID, Cursor{ID: u.ID, Color: u.Color, X: u.X, Y: u.Y}
		})

	case presence.EventUserJoined:
		var u presence.UserJoinedPayload
		if err := sonic.Unmarshal(data, &u); err != nil {
			return fmt.Errorf("decoding %s: %w", event, err)
		}
		s.cursors[u.ID] = Cursor{ID: u.ID, Color: u.Color}

	case presence.EventUserLeft:
		var id string
		if err := sonic.Unmarshal(data, &id); err != nil {
			return fmt.Errorf("decoding %s: %w", event, err)
		}
		delete(s.cursors, id)

	case presence.EventCursorUpdate:
		var u presence.CursorUpdatePayload
		if err := sonic.Unmarshal(data, &u); err != nil {
			return fmt.Errorf("decoding %s: %w", event, err)
		}
		c, ok := s.cursors[u.ID]
		if !ok {
			return nil
		}
		c.X, c.Y = lo.ToPtr(u.X), lo.ToPtr(u.Y)
		s.cursors[u.ID] = c
	}
	return nil
}

func (s *State) Self() presence.WelcomePayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.self
}

// Cursors returns the other participants sorted by id.
func (s *State) Cursors() []Cursor {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := lo.Values(s.cursors)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *State) Color(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == s.self.ID {
		return s.self.Color
	}
	return s.cursors[id].Color
}

// Render writes the presence table to w.
func (s *State) Render(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Color", "X", "Y"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	if self := s.Self(); self.ID != "" {
		table.Append([]string{self.ID + " (you)", self.Color, "", ""})
	}
	for _, c := range s.Cursors() {
		table.Append([]string{c.ID, c.Color, coord(c.X), coord(c.Y)})
	}
	table.Render()
}

func coord(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64)
}
