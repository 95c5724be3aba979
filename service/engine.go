package service

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

// BookingEngine owns the reservation state machine. It is the only
// component that mutates reservation state; the policies it calls are pure.
type BookingEngine struct {
	store    domain.ReservationStore
	spots    domain.SpotCatalog
	audit    domain.AuditTrail
	trust    domain.TrustNotifier
	cfg      Config
	clock    Clock
	locks    *spotLocks
	validate *validator.Validate
	tracer   trace.Tracer
	logger   *logrus.Logger
}

func NewBookingEngine(store domain.ReservationStore, spots domain.SpotCatalog, audit domain.AuditTrail, trust domain.TrustNotifier, cfg Config, clock Clock, tracer trace.Tracer, logger *logrus.Logger) *BookingEngine {
	return &BookingEngine{
		store:    store,
		spots:    spots,
		audit:    audit,
		trust:    trust,
		cfg:      cfg,
		clock:    clock,
		locks:    newSpotLocks(),
		validate: validator.New(),
		tracer:   tracer,
		logger:   logger,
	}
}

type ReserveRequest struct {
	SpotID   string         `json:"spotId" validate:"required"`
	SeekerID string         `json:"seekerId" validate:"required"`
	Window   domain.Window  `json:"window"`
	Vehicle  domain.Vehicle `json:"vehicle"`
}

// Evidence accompanies check-in and check-out; photos are opaque references
// into the external photo store.
type Evidence struct {
	Photos []string `json:"photos"`
	Notes  string   `json:"notes"`
}

// Quote prices a window against a tariff without side effects.
func (e *BookingEngine) Quote(ctx context.Context, tariff domain.Tariff, window domain.Window) (*Quote, error) {
	_, span := e.tracer.Start(ctx, "BookingEngine.Quote")
	defer span.End()

	quote, err := CalculateQuote(tariff, window, e.cfg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return quote, nil
}

// Reserve runs schedule validation, conflict resolution and pricing, then
// atomically inserts a pending reservation. The admission snapshot and the
// insert happen under the spot's lock, so two racing requests for the same
// spot cannot both pass the capacity check. The spot lookup is the only
// external call and happens strictly before the critical section.
func (e *BookingEngine) Reserve(ctx context.Context, req ReserveRequest) (*domain.Reservation, *Quote, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.Reserve")
	defer span.End()

	if err := e.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, domain.ErrInvalidRequest.WithReason("%s", err)
	}
	now := e.clock.Now()
	if !req.Window.End.After(req.Window.Start) {
		return nil, nil, domain.ErrInvalidWindow
	}
	if !req.Window.Start.After(now) {
		return nil, nil, domain.ErrInvalidWindow.WithReason("startTime must be in the future")
	}

	spot, err := e.spots.GetSpot(ctx, req.SpotID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}
	if spot.Status != domain.SpotActive {
		return nil, nil, domain.ErrSpotInactive
	}

	if err := CheckSchedule(spot.Windows, req.Window); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	quote, err := CalculateQuote(spot.Tariff, req.Window, e.cfg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	reservation, err := e.reserveLocked(ctx, req, spot, quote, now)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, nil, err
	}

	e.appendAudit(ctx, &domain.BookingEvent{
		ReservationID: reservation.ID.Hex(),
		SpotID:        reservation.SpotID,
		SeekerID:      reservation.SeekerID,
		Type:          "reservation_created",
		ToStatus:      domain.StatusPending,
		Amount:        reservation.Money.TotalAmount,
		At:            now,
	})
	return reservation, quote, nil
}

// reserveLocked is the admission critical section: snapshot, conflict check
// and insert under the spot's lock, nothing else. The audit append happens
// after the lock is released, so a slow audit node never stalls admissions.
func (e *BookingEngine) reserveLocked(ctx context.Context, req ReserveRequest, spot *domain.Spot, quote *Quote, now time.Time) (*domain.Reservation, error) {
	lock := e.locks.forSpot(req.SpotID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	reservation, err := e.admit(ctx, req, spot, quote, now)
	if errors.Is(err, domain.ErrConflict) {
		// Lost the race to a storage-level uniqueness guard; one fresh
		// admission check before surfacing the loss as fully booked.
		reservation, err = e.admit(ctx, req, spot, quote, now)
		if errors.Is(err, domain.ErrConflict) {
			err = domain.ErrFullyBooked
		}
	}
	return reservation, err
}

// admit runs the snapshot, conflict check and insert. Callers must hold the
// spot's lock.
func (e *BookingEngine) admit(ctx context.Context, req ReserveRequest, spot *domain.Spot, quote *Quote, now time.Time) (*domain.Reservation, error) {
	// The snapshot is widened by the buffer so adjacent reservations that
	// only matter for the gap check are part of it.
	hint := domain.Window{
		Start: req.Window.Start.Add(-e.cfg.Buffer),
		End:   req.Window.End.Add(e.cfg.Buffer),
	}
	existing, err := e.store.ListActiveBySpot(ctx, req.SpotID, hint)
	if err != nil {
		return nil, err
	}
	if err := CheckConflicts(req.Window, spot.Capacity, existing, "", e.cfg.Buffer); err != nil {
		return nil, err
	}

	return e.store.Insert(ctx, &domain.Reservation{
		ID:        primitive.NewObjectID(),
		SpotID:    req.SpotID,
		SeekerID:  req.SeekerID,
		HostID:    spot.HostID,
		Window:    req.Window,
		Vehicle:   req.Vehicle,
		Tariff:    spot.Tariff,
		Money:     quote.Money,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	})
}

// Confirm acknowledges payment. It is idempotent: confirming an already
// confirmed reservation reports the same outcome, so retried webhooks are
// harmless.
func (e *BookingEngine) Confirm(ctx context.Context, id string) (*domain.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.Confirm")
	defer span.End()

	updated, err := e.store.UpdateStatus(ctx, id, []domain.Status{domain.StatusPending}, domain.StatusUpdate{To: domain.StatusConfirmed})
	if errors.Is(err, domain.ErrInvalidState) {
		current, getErr := e.store.Get(ctx, id)
		if getErr != nil {
			return nil, getErr
		}
		if current.Status == domain.StatusConfirmed {
			return current, nil
		}
		err = domain.ErrInvalidState.WithReason("cannot confirm a %s reservation", current.Status)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.appendAudit(ctx, &domain.BookingEvent{
		ReservationID: id,
		SpotID:        updated.SpotID,
		SeekerID:      updated.SeekerID,
		Type:          "payment_confirmed",
		FromStatus:    domain.StatusPending,
		ToStatus:      domain.StatusConfirmed,
		Amount:        updated.Money.TotalAmount,
		At:            e.clock.Now(),
	})
	return updated, nil
}

// HandlePaymentCaptured adapts the external gateway signal. A confirmation
// for an unknown or already settled reservation is logged and dropped; it
// must never crash the engine or corrupt state.
func (e *BookingEngine) HandlePaymentCaptured(ctx context.Context, id string) error {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.HandlePaymentCaptured")
	defer span.End()

	_, err := e.Confirm(ctx, id)
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrInvalidState) {
		e.logger.WithFields(logrus.Fields{"reservationId": id}).Warnf("dropping payment signal: %s", err)
		return nil
	}
	return err
}

// CheckIn validates the arrival window. A too-late arrival is a no-show:
// the reservation auto-cancels with the full amount forfeited, a
// side-effecting rejection rather than a pure check.
func (e *BookingEngine) CheckIn(ctx context.Context, id string, now time.Time, evidence Evidence) (*domain.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.CheckIn")
	defer span.End()

	reservation, err := e.store.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if reservation.Status != domain.StatusConfirmed {
		return nil, domain.ErrInvalidState.WithReason("cannot check in a %s reservation", reservation.Status)
	}

	assessment, err := AssessCheckIn(now, reservation.Window.Start, e.cfg)
	if errors.Is(err, domain.ErrNoShow) {
		if cancelErr := e.cancelNoShow(ctx, reservation, now); cancelErr != nil {
			span.SetStatus(codes.Error, cancelErr.Error())
			return nil, cancelErr
		}
		return nil, err
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	updated, err := e.store.UpdateStatus(ctx, id, []domain.Status{domain.StatusConfirmed}, domain.StatusUpdate{
		To: domain.StatusCheckedIn,
		CheckIn: &domain.CheckInRecord{
			At:          now,
			Photos:      evidence.Photos,
			Notes:       evidence.Notes,
			IsLate:      assessment.IsLate,
			MinutesLate: assessment.MinutesLate,
		},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.appendAudit(ctx, &domain.BookingEvent{
		ReservationID: id,
		SpotID:        updated.SpotID,
		SeekerID:      updated.SeekerID,
		Type:          "checked_in",
		FromStatus:    domain.StatusConfirmed,
		ToStatus:      domain.StatusCheckedIn,
		At:            now,
	})
	return updated, nil
}

func (e *BookingEngine) cancelNoShow(ctx context.Context, reservation *domain.Reservation, now time.Time) error {
	id := reservation.ID.Hex()
	_, err := e.store.UpdateStatus(ctx, id, []domain.Status{domain.StatusConfirmed}, domain.StatusUpdate{
		To: domain.StatusCancelled,
		Cancellation: &domain.CancellationRecord{
			Reason:  "no-show",
			ActorID: "system",
			At:      now,
			Forfeiture: &domain.MoneyDelta{
				Amount:       reservation.Money.TotalAmount,
				PlatformFee:  reservation.Money.PlatformFee,
				HostEarnings: reservation.Money.HostEarnings,
				Reason:       "no-show",
				At:           now,
			},
		},
	})
	if err != nil {
		return err
	}

	// Penalty event: the full amount is forfeited.
	e.appendAudit(ctx, &domain.BookingEvent{
		ReservationID: id,
		SpotID:        reservation.SpotID,
		SeekerID:      reservation.SeekerID,
		Type:          "no_show_cancelled",
		FromStatus:    domain.StatusConfirmed,
		ToStatus:      domain.StatusCancelled,
		Amount:        reservation.Money.TotalAmount,
		Reason:        "no-show",
		At:            now,
	})
	e.notifyTerminal(ctx, reservation.SeekerID, "no_show")
	return nil
}

// CheckOut closes the parking session, computing the overtime surcharge
// when the seeker leaves past the reserved end. The money delta and the
// state change persist as a single compare-and-set.
func (e *BookingEngine) CheckOut(ctx context.Context, id string, now time.Time, evidence Evidence) (*domain.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.CheckOut")
	defer span.End()

	reservation, err := e.store.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if reservation.Status != domain.StatusCheckedIn {
		return nil, domain.ErrInvalidState.WithReason("cannot check out a %s reservation", reservation.Status)
	}
	if reservation.CheckIn == nil {
		return nil, domain.ErrNotCheckedIn
	}
	if now.Before(reservation.CheckIn.At) {
		return nil, domain.ErrInvalidWindow.WithReason("check-out cannot precede check-in")
	}

	update := domain.StatusUpdate{
		To: domain.StatusCheckedOut,
		CheckOut: &domain.CheckOutRecord{
			At:     now,
			Photos: evidence.Photos,
			Notes:  evidence.Notes,
		},
	}
	overtime := AssessOvertime(now, reservation.Window.End, reservation.Tariff.HourlyRate, e.cfg)
	if overtime != nil {
		update.CheckOut.OvertimeHours = overtime.Hours
		update.CheckOut.OvertimeCharge = overtime.Charge
		update.Overtime = &domain.MoneyDelta{
			Amount:       overtime.Charge,
			PlatformFee:  overtime.PlatformFee,
			HostEarnings: overtime.HostEarnings,
			Reason:       "overtime",
			At:           now,
		}
	}

	updated, err := e.store.UpdateStatus(ctx, id, []domain.Status{domain.StatusCheckedIn}, update)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	event := &domain.BookingEvent{
		ReservationID: id,
		SpotID:        updated.SpotID,
		SeekerID:      updated.SeekerID,
		Type:          "checked_out",
		FromStatus:    domain.StatusCheckedIn,
		ToStatus:      domain.StatusCheckedOut,
		At:            now,
	}
	if overtime != nil {
		event.Amount = overtime.Charge
		event.Reason = "overtime"
	}
	e.appendAudit(ctx, event)
	return updated, nil
}

// Cancel applies the refund policy and transitions to cancelled. Only
// pending and confirmed reservations may be cancelled; the compare-and-set
// keeps a concurrent check-in from racing the cancellation.
func (e *BookingEngine) Cancel(ctx context.Context, id, actorID, reason string, now time.Time) (*domain.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.Cancel")
	defer span.End()

	reservation, err := e.store.Get(ctx, id)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if reservation.Status != domain.StatusPending && reservation.Status != domain.StatusConfirmed {
		return nil, domain.ErrInvalidState.WithReason("cannot cancel a %s reservation", reservation.Status)
	}

	decision := RefundFor(reservation.Status, now, reservation.Window.Start, reservation.Money.TotalAmount, e.cfg)

	updated, err := e.store.UpdateStatus(ctx, id, []domain.Status{domain.StatusPending, domain.StatusConfirmed}, domain.StatusUpdate{
		To: domain.StatusCancelled,
		Cancellation: &domain.CancellationRecord{
			Reason:        reason,
			ActorID:       actorID,
			At:            now,
			RefundPercent: decision.Percent,
			RefundAmount:  decision.Amount,
		},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.appendAudit(ctx, &domain.BookingEvent{
		ReservationID: id,
		SpotID:        updated.SpotID,
		SeekerID:      updated.SeekerID,
		Type:          "cancelled",
		FromStatus:    reservation.Status,
		ToStatus:      domain.StatusCancelled,
		Amount:        decision.Amount,
		Reason:        decision.Reason,
		At:            now,
	})
	e.notifyTerminal(ctx, updated.SeekerID, "cancelled")
	return updated, nil
}

// RaiseDispute freezes the reservation. Resolution is an external
// administrative process; until then no further transitions apply.
func (e *BookingEngine) RaiseDispute(ctx context.Context, id, actorID, reason string) (*domain.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.RaiseDispute")
	defer span.End()

	from := []domain.Status{domain.StatusConfirmed, domain.StatusCheckedIn, domain.StatusCheckedOut}
	now := e.clock.Now()
	updated, err := e.store.UpdateStatus(ctx, id, from, domain.StatusUpdate{
		To: domain.StatusDisputed,
		Dispute: &domain.DisputeRecord{
			Reason:   reason,
			RaisedBy: actorID,
			RaisedAt: now,
		},
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.appendAudit(ctx, &domain.BookingEvent{
		ReservationID: id,
		SpotID:        updated.SpotID,
		SeekerID:      updated.SeekerID,
		Type:          "disputed",
		ToStatus:      domain.StatusDisputed,
		Reason:        reason,
		At:            now,
	})
	return updated, nil
}

// ResolveDispute is the administrative override out of the frozen state.
// The admin supplies the outcome; the engine invents no resolution policy.
func (e *BookingEngine) ResolveDispute(ctx context.Context, id, adminID string, outcome domain.Status) (*domain.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.ResolveDispute")
	defer span.End()

	if !outcome.Terminal() {
		return nil, domain.ErrInvalidRequest.WithReason("dispute outcome must be cancelled or completed, got %s", outcome)
	}

	now := e.clock.Now()
	updated, err := e.store.UpdateStatus(ctx, id, []domain.Status{domain.StatusDisputed}, domain.StatusUpdate{To: outcome})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.appendAudit(ctx, &domain.BookingEvent{
		ReservationID: id,
		SpotID:        updated.SpotID,
		SeekerID:      updated.SeekerID,
		Type:          "dispute_resolved",
		FromStatus:    domain.StatusDisputed,
		ToStatus:      outcome,
		Reason:        "resolved by " + adminID,
		At:            now,
	})
	e.notifyTerminal(ctx, updated.SeekerID, string(outcome))
	return updated, nil
}

// Complete finalizes a checked-out reservation once the external payout
// holdback has elapsed.
func (e *BookingEngine) Complete(ctx context.Context, id string) (*domain.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.Complete")
	defer span.End()

	updated, err := e.store.UpdateStatus(ctx, id, []domain.Status{domain.StatusCheckedOut}, domain.StatusUpdate{To: domain.StatusCompleted})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	e.appendAudit(ctx, &domain.BookingEvent{
		ReservationID: id,
		SpotID:        updated.SpotID,
		SeekerID:      updated.SeekerID,
		Type:          "completed",
		FromStatus:    domain.StatusCheckedOut,
		ToStatus:      domain.StatusCompleted,
		At:            e.clock.Now(),
	})
	e.notifyTerminal(ctx, updated.SeekerID, "completed")
	return updated, nil
}

func (e *BookingEngine) GetReservation(ctx context.Context, id string) (*domain.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.GetReservation")
	defer span.End()
	return e.store.Get(ctx, id)
}

func (e *BookingEngine) ListBySeeker(ctx context.Context, seekerID string) ([]*domain.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.ListBySeeker")
	defer span.End()
	return e.store.ListBySeeker(ctx, seekerID)
}

// ReservationTrail returns the recorded event history of a reservation, the
// evidence base for refund and dispute decisions.
func (e *BookingEngine) ReservationTrail(ctx context.Context, id string) ([]*domain.BookingEvent, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.ReservationTrail")
	defer span.End()
	return e.audit.ListByReservation(ctx, id)
}

func (e *BookingEngine) ListBySpot(ctx context.Context, spotID string) ([]*domain.Reservation, error) {
	ctx, span := e.tracer.Start(ctx, "BookingEngine.ListBySpot")
	defer span.End()
	return e.store.ListBySpot(ctx, spotID)
}

func (e *BookingEngine) appendAudit(ctx context.Context, event *domain.BookingEvent) {
	if err := e.audit.Append(ctx, event); err != nil {
		e.logger.WithFields(logrus.Fields{"reservationId": event.ReservationID, "type": event.Type}).Warnf("audit append failed: %s", err)
	}
}

// notifyTerminal fires the trust-score recompute hook. Failures are logged
// and never roll back the state change that triggered them.
func (e *BookingEngine) notifyTerminal(ctx context.Context, userID, outcome string) {
	if err := e.trust.BookingTerminal(ctx, userID, outcome); err != nil {
		e.logger.WithFields(logrus.Fields{"userId": userID, "outcome": outcome}).Warnf("trust notification failed: %s", err)
	}
}
