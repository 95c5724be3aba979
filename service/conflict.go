package service

import (
	"time"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

// CheckConflicts is the admission-control core: a capacity check over
// overlapping active reservations followed by a buffer check against
// adjacent ones. It must run against a consistent snapshot, with the
// subsequent insert atomic with it; the engine guarantees that by holding
// the spot's lock across snapshot, check and insert.
//
// excludeID skips one reservation, for reschedule flows.
func CheckConflicts(candidate domain.Window, capacity int, existing []*domain.Reservation, excludeID string, buffer time.Duration) error {
	overlapping := 0
	for _, ex := range existing {
		if skip(ex, excludeID) {
			continue
		}
		if ex.Window.Overlaps(candidate) {
			overlapping++
		}
	}
	if overlapping >= capacity {
		return domain.ErrFullyBooked.WithReason("%d of %d concurrent reservations already taken", overlapping, capacity)
	}

	for _, ex := range existing {
		if skip(ex, excludeID) || ex.Window.Overlaps(candidate) {
			continue
		}
		// Back-to-back (zero gap) is allowed; anything between zero and
		// the buffer is not.
		var gap time.Duration
		if !ex.Window.Start.Before(candidate.End) {
			gap = ex.Window.Start.Sub(candidate.End)
		} else {
			gap = candidate.Start.Sub(ex.Window.End)
		}
		if gap > 0 && gap < buffer {
			return domain.ErrInsufficientBuffer.WithReason("only %s before an adjacent reservation, %s required", gap, buffer)
		}
	}
	return nil
}

func skip(r *domain.Reservation, excludeID string) bool {
	if !r.Status.Active() {
		return true
	}
	return excludeID != "" && r.ID.Hex() == excludeID
}
