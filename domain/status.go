package domain

// Status is the closed set of reservation lifecycle states.
type Status string

const (
	StatusPending    Status = "pending"
	StatusConfirmed  Status = "confirmed"
	StatusCheckedIn  Status = "checkedIn"
	StatusCheckedOut Status = "checkedOut"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusDisputed   Status = "disputed"
)

// transitions is the full state machine. Disputed exits only through the
// administrative override; completed and cancelled are terminal.
var transitions = map[Status][]Status{
	StatusPending:    {StatusConfirmed, StatusCancelled},
	StatusConfirmed:  {StatusCheckedIn, StatusCancelled, StatusDisputed},
	StatusCheckedIn:  {StatusCheckedOut, StatusDisputed},
	StatusCheckedOut: {StatusCompleted, StatusDisputed},
	StatusDisputed:   {StatusCancelled, StatusCompleted},
	StatusCompleted:  {},
	StatusCancelled:  {},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Active statuses count against spot capacity.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCheckedIn
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Consumed reports whether the parking service has already been used,
// which forfeits any refund.
func (s Status) Consumed() bool {
	switch s {
	case StatusCheckedIn, StatusCheckedOut, StatusCompleted:
		return true
	}
	return false
}

// ActiveStatuses is the status class used for capacity snapshots.
var ActiveStatuses = []Status{StatusPending, StatusConfirmed, StatusCheckedIn}

// FilterSources keeps only the candidates the transition table allows to
// move to next. Store implementations run every compare-and-set through it,
// so a transition absent from the table can never be applied no matter what
// expected-status list a caller passes.
func FilterSources(candidates []Status, next Status) []Status {
	var out []Status
	for _, s := range candidates {
		if s.CanTransitionTo(next) {
			out = append(out, s)
		}
	}
	return out
}
