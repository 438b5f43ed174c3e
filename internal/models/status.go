package models

import "fmt"

type Status string

const (
	StatusCreated    Status = "created"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusDelivered  Status = "delivered"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

func (s Status) IsValid() bool {
	switch s {
	case StatusCreated, StatusQueued, StatusProcessing, StatusSent,
		StatusDelivered, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible. failed is not
// terminal here because a retry may re-queue it; budget exhaustion is enforced
// by the retry use case, not the state machine.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

// transitions is the full set of legal status moves. Anything outside this
// table is rejected loudly, never coerced.
var transitions = map[Status][]Status{
	StatusCreated:    {StatusQueued, StatusCancelled},
	StatusQueued:     {StatusProcessing, StatusCancelled},
	StatusProcessing: {StatusSent, StatusFailed},
	StatusSent:       {StatusDelivered},
	StatusDelivered:  {},
	StatusFailed:     {StatusCreated, StatusQueued},
	StatusCancelled:  {StatusQueued},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// TransitionTo applies a status change, enforcing the transition table and
// stamping UpdatedAt. On rejection the record is left untouched.
func (n *Notification) TransitionTo(next Status) error {
	if !next.IsValid() {
		return TransitionError(fmt.Sprintf("unknown status %q", next))
	}
	if !n.Status.CanTransitionTo(next) {
		return TransitionError(fmt.Sprintf("cannot transition from %s to %s", n.Status, next))
	}
	n.Status = next
	n.UpdatedAt = nowUTC()
	return nil
}
