package session

// Position is a cursor location in client coordinates.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Participant is one connected client. ID and Color are fixed for the life of
// the connection; Position stays nil until the first accepted move.
type Participant struct {
	ID       string
	Color    string
	Position *Position
}

// Clone returns a deep copy so callers never share the stored position.
func (p Participant) Clone() Participant {
	if p.Position != nil {
		pos := *p.Position
		p.Position = &pos
	}
	return p
}
