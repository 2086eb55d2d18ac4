package session

import "fmt"

// DuplicateIDError is returned by Registry.Insert when the ID is already live.
type DuplicateIDError struct {
	ID string
}

func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("participant %q already registered", e.ID)
}
