package session

import (
	"sync"
)

// Registry holds the participants that are currently live. It performs no
// I/O. The Session Coordinator is its only writer; readers get copies.
type Registry struct {
	mu           sync.RWMutex
	participants map[string]*Participant
}

func NewRegistry() *Registry {
	return &Registry{
		participants: make(map[string]*Participant),
	}
}

func (r *Registry) Insert(p Participant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[p.ID]; ok {
		return &DuplicateIDError{ID: p.ID}
	}
	stored := p.Clone()
	r.participants[p.ID] = &stored
	return nil
}

// Remove reports whether a participant was actually removed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[id]; !ok {
		return false
	}
	delete(r.participants, id)
	return true
}

// UpdatePosition is a no-op returning false when id is not registered, so a
// move delivered after a disconnect cannot bring the participant back.
func (r *Registry) UpdatePosition(id string, x, y float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.participants[id]
	if !ok {
		return false
	}
	p.Position = &Position{X: x, Y: y}
	return true
}

func (r *Registry) Get(id string) (Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	if !ok {
		return Participant{}, false
	}
	return p.Clone(), true
}

// Snapshot returns copies of every participant. Order is unspecified.
func (r *Registry) Snapshot() []Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]Participant, 0, len(r.participants))
	for _, p := range r.participants {
		result = append(result, p.Clone())
	}
	return result
}

// Colors returns the colors held by live participants, one entry per participant.
func (r *Registry) Colors() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	result := make([]string, 0, len(r.participants))
	for _, p := range r.participants {
		result = append(result, p.Color)
	}
	return result
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.participants)
}
