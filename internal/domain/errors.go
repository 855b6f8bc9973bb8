package domain

import "fmt"

// ErrNotFound is returned when a referenced entity does not exist.
type ErrNotFound struct {
	Entity string
	Key    string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.Key)
}

// ErrCapReached is returned when a conditional clutch-counter increment
// affects no row because the player already holds the per-season maximum.
type ErrCapReached struct {
	SpeciesID int64
	Max       int
}

func (e ErrCapReached) Error() string {
	return fmt.Sprintf("clutch cap of %d reached for species %d", e.Max, e.SpeciesID)
}

// ErrForbidden is returned when a player attempts an operation reserved for
// another identity, e.g. closing a nest they did not create.
type ErrForbidden struct {
	PlayerID int64
	Action   string
}

func (e ErrForbidden) Error() string {
	return fmt.Sprintf("player %d may not %s", e.PlayerID, e.Action)
}

// ErrPrecondition is returned when an operation's required state is not yet
// in place, e.g. hatching before the mother position is recorded.
type ErrPrecondition struct {
	Reason string
}

func (e ErrPrecondition) Error() string {
	return e.Reason
}
