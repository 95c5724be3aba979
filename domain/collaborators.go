package domain

import "context"

// SpotCatalog is the read-only view of the spot inventory owned by an
// external service. The core holds spot ids, never live references.
type SpotCatalog interface {
	GetSpot(ctx context.Context, spotID string) (*Spot, error)
}

// TrustNotifier receives fire-and-forget terminal-booking notifications
// used for trust-score recomputation. Failures must never roll back the
// reservation state change.
type TrustNotifier interface {
	BookingTerminal(ctx context.Context, userID string, outcome string) error
}

// AuditTrail records every transition. The reservation record remains the
// system of record; append failures are logged, not propagated. The trail is
// read back for refund and dispute handling.
type AuditTrail interface {
	Append(ctx context.Context, event *BookingEvent) error
	ListByReservation(ctx context.Context, reservationID string) ([]*BookingEvent, error)
}
