package domain

import "context"

// StatusUpdate is applied as one atomic compare-and-set together with the
// status change, so a money delta can never land without its transition.
type StatusUpdate struct {
	To           Status
	CheckIn      *CheckInRecord
	CheckOut     *CheckOutRecord
	Cancellation *CancellationRecord
	Dispute      *DisputeRecord
	Overtime     *MoneyDelta
}

type ReservationStore interface {
	// Insert persists a new reservation. Implementations may return
	// ErrConflict when a storage-level uniqueness guard detects a lost
	// admission race.
	Insert(ctx context.Context, reservation *Reservation) (*Reservation, error)

	Get(ctx context.Context, id string) (*Reservation, error)

	// ListActiveBySpot returns reservations in an active status at the
	// spot. The hint narrows the scan to windows that could overlap it.
	ListActiveBySpot(ctx context.Context, spotID string, hint Window) ([]*Reservation, error)

	ListBySeeker(ctx context.Context, seekerID string) ([]*Reservation, error)
	ListBySpot(ctx context.Context, spotID string) ([]*Reservation, error)

	// UpdateStatus performs the precondition check and mutation as one
	// compare-and-set: the update applies only while the current status is
	// one of from. ErrInvalidState is returned otherwise, ErrNotFound when
	// the reservation does not exist.
	UpdateStatus(ctx context.Context, id string, from []Status, update StatusUpdate) (*Reservation, error)
}
