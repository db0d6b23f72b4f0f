package models

// transitions is the only place allowed status changes are defined. Every
// status write in the repository layer is checked against it.
var transitions = map[Status][]Status{
	StatusPending:    {StatusApproved, StatusEscrowHeld, StatusCancelled},
	StatusApproved:   {StatusEscrowHeld, StatusCancelled},
	StatusEscrowHeld: {StatusCompleted, StatusDisputed, StatusRefunded},
	StatusDisputed:   {StatusCompleted, StatusRefunded},
	StatusCompleted:  nil,
	StatusRefunded:   nil,
	StatusCancelled:  nil,
}

// CanTransition reports whether a transaction may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTransitions returns a copy of the statuses reachable from s.
func AllowedTransitions(s Status) []Status {
	out := make([]Status, len(transitions[s]))
	copy(out, transitions[s])
	return out
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return len(transitions[s]) == 0
}

var escrowTransitions = map[EscrowStatus][]EscrowStatus{
	EscrowHeld: {EscrowReleased, EscrowRefunded},
}

// CanTransitionEscrow reports whether an escrow account may change status.
// Released and refunded accounts are final.
func CanTransitionEscrow(from, to EscrowStatus) bool {
	for _, s := range escrowTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
