package session

// MutationKind classifies a registry change that peers must hear about.
type MutationKind int

const (
	Joined MutationKind = iota // participant inserted
	Moved                      // position updated
	Left                       // participant removed
)

var mutationNames = map[MutationKind]string{
	Joined: "joined",
	Moved:  "moved",
	Left:   "left",
}

func (k MutationKind) String() string {
	if s, ok := mutationNames[k]; ok {
		return s
	}
	return "unknown"
}

// Mutation is the outcome of a successful registry change.
type Mutation struct {
	Kind        MutationKind
	Participant Participant // snapshot after the change (before it, for Left)
}
