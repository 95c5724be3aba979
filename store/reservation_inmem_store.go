package store

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

// ReservationInMemStore keeps reservations in process memory behind one
// RWMutex. It backs tests and embedded use; the engine's per-spot locking
// provides the admission atomicity, the store only has to be consistent.
type ReservationInMemStore struct {
	mu   sync.RWMutex
	byID map[string]*domain.Reservation
}

func NewReservationInMemStore() *ReservationInMemStore {
	return &ReservationInMemStore{byID: make(map[string]*domain.Reservation)}
}

var _ domain.ReservationStore = (*ReservationInMemStore)(nil)

func (store *ReservationInMemStore) Insert(_ context.Context, reservation *domain.Reservation) (*domain.Reservation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	if reservation.ID.IsZero() {
		reservation.ID = primitive.NewObjectID()
	}
	id := reservation.ID.Hex()
	if _, exists := store.byID[id]; exists {
		return nil, domain.ErrConflict
	}
	store.byID[id] = clone(reservation)
	return clone(reservation), nil
}

func (store *ReservationInMemStore) Get(_ context.Context, id string) (*domain.Reservation, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	reservation, ok := store.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return clone(reservation), nil
}

func (store *ReservationInMemStore) ListActiveBySpot(_ context.Context, spotID string, hint domain.Window) ([]*domain.Reservation, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	var out []*domain.Reservation
	for _, reservation := range store.byID {
		if reservation.SpotID != spotID || !reservation.Status.Active() {
			continue
		}
		if !hint.Start.IsZero() && !hint.End.IsZero() && !reservation.Window.Overlaps(hint) {
			continue
		}
		out = append(out, clone(reservation))
	}
	return out, nil
}

func (store *ReservationInMemStore) ListBySeeker(_ context.Context, seekerID string) ([]*domain.Reservation, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	var out []*domain.Reservation
	for _, reservation := range store.byID {
		if reservation.SeekerID == seekerID {
			out = append(out, clone(reservation))
		}
	}
	return out, nil
}

func (store *ReservationInMemStore) ListBySpot(_ context.Context, spotID string) ([]*domain.Reservation, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	var out []*domain.Reservation
	for _, reservation := range store.byID {
		if reservation.SpotID == spotID {
			out = append(out, clone(reservation))
		}
	}
	return out, nil
}

func (store *ReservationInMemStore) UpdateStatus(_ context.Context, id string, from []domain.Status, update domain.StatusUpdate) (*domain.Reservation, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	reservation, ok := store.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}

	allowed := false
	for _, status := range domain.FilterSources(from, update.To) {
		if reservation.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, domain.ErrInvalidState
	}

	reservation.Status = update.To
	if update.CheckIn != nil {
		reservation.CheckIn = update.CheckIn
	}
	if update.CheckOut != nil {
		reservation.CheckOut = update.CheckOut
	}
	if update.Cancellation != nil {
		reservation.Cancellation = update.Cancellation
	}
	if update.Dispute != nil {
		reservation.Dispute = update.Dispute
	}
	if update.Overtime != nil {
		reservation.Overtime = update.Overtime
	}
	return clone(reservation), nil
}

func clone(r *domain.Reservation) *domain.Reservation {
	copied := *r
	if r.CheckIn != nil {
		record := *r.CheckIn
		copied.CheckIn = &record
	}
	if r.CheckOut != nil {
		record := *r.CheckOut
		copied.CheckOut = &record
	}
	if r.Cancellation != nil {
		record := *r.Cancellation
		copied.Cancellation = &record
	}
	if r.Dispute != nil {
		record := *r.Dispute
		copied.Dispute = &record
	}
	if r.Overtime != nil {
		record := *r.Overtime
		copied.Overtime = &record
	}
	return &copied
}
