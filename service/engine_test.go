package service

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/ijatinydv/ParkEase-sub000/domain"
	"github.com/ijatinydv/ParkEase-sub000/store"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type MockSpotCatalog struct {
	mock.Mock
}

func (m *MockSpotCatalog) GetSpot(_ context.Context, spotID string) (*domain.Spot, error) {
	args := m.Called(spotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Spot), args.Error(1)
}

type recordingAudit struct {
	mu     sync.Mutex
	events []*domain.BookingEvent
}

func (a *recordingAudit) Append(_ context.Context, event *domain.BookingEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, event)
	return nil
}

func (a *recordingAudit) ListByReservation(_ context.Context, reservationID string) ([]*domain.BookingEvent, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*domain.BookingEvent
	for _, event := range a.events {
		if event.ReservationID == reservationID {
			out = append(out, event)
		}
	}
	return out, nil
}

func (a *recordingAudit) typesSeen() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var types []string
	for _, event := range a.events {
		types = append(types, event.Type)
	}
	return types
}

type recordingTrust struct {
	mu       sync.Mutex
	outcomes []string
}

func (n *recordingTrust) BookingTerminal(_ context.Context, _ string, outcome string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.outcomes = append(n.outcomes, outcome)
	return nil
}

func allWeekWindows() []domain.WeeklyWindow {
	windows := make([]domain.WeeklyWindow, 7)
	for day := 0; day < 7; day++ {
		windows[day] = domain.WeeklyWindow{Day: time.Weekday(day), Start: "00:00", End: "24:00"}
	}
	return windows
}

func testSpot(capacity int) *domain.Spot {
	return &domain.Spot{
		ID:       "spot-1",
		HostID:   "host-1",
		Tariff:   domain.Tariff{HourlyRate: 50, DailyRate: 200},
		Capacity: capacity,
		Windows:  allWeekWindows(),
		Status:   domain.SpotActive,
	}
}

type engineFixture struct {
	engine  *BookingEngine
	store   *store.ReservationInMemStore
	catalog *MockSpotCatalog
	audit   *recordingAudit
	trust   *recordingTrust
	start   time.Time
}

func newFixture(t *testing.T, spot *domain.Spot) *engineFixture {
	t.Helper()

	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	clock := fixedClock{now: start.Add(-48 * time.Hour)}

	catalog := &MockSpotCatalog{}
	if spot != nil {
		catalog.On("GetSpot", spot.ID).Return(spot, nil)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	reservations := store.NewReservationInMemStore()
	audit := &recordingAudit{}
	trust := &recordingTrust{}

	engine := NewBookingEngine(
		reservations,
		catalog,
		audit,
		trust,
		DefaultConfig(),
		clock,
		trace.NewNoopTracerProvider().Tracer("test"),
		logger,
	)
	return &engineFixture{
		engine:  engine,
		store:   reservations,
		catalog: catalog,
		audit:   audit,
		trust:   trust,
		start:   start,
	}
}

func (f *engineFixture) reserveRequest(w domain.Window) ReserveRequest {
	return ReserveRequest{
		SpotID:   "spot-1",
		SeekerID: "seeker-1",
		Window:   w,
		Vehicle:  domain.Vehicle{LicensePlate: "KA-01-1234", Make: "Honda", Color: "blue"},
	}
}

func TestReserveCreatesPendingReservation(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, quote, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, reservation.Status)
	assert.Equal(t, "host-1", reservation.HostID)
	assert.Equal(t, int64(100), reservation.Money.BaseAmount)
	assert.Equal(t, int64(15), reservation.Money.PlatformFee)
	assert.Equal(t, int64(3), reservation.Money.Tax)
	assert.Equal(t, int64(103), reservation.Money.TotalAmount)
	assert.Equal(t, int64(85), reservation.Money.HostEarnings)
	assert.Equal(t, reservation.Money, quote.Money)
	assert.Contains(t, f.audit.typesSeen(), "reservation_created")
}

func TestReserveRejectsInactiveSpot(t *testing.T) {
	spot := testSpot(1)
	spot.Status = domain.SpotInactive
	f := newFixture(t, spot)

	_, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	assert.ErrorIs(t, err, domain.ErrSpotInactive)
}

func TestReserveRejectsWindowInThePast(t *testing.T) {
	f := newFixture(t, testSpot(1))

	past := f.start.Add(-72 * time.Hour)
	_, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(past, 2*time.Hour)))
	assert.ErrorIs(t, err, domain.ErrInvalidWindow)
}

func TestReserveRejectsMissingVehicle(t *testing.T) {
	f := newFixture(t, testSpot(1))

	req := f.reserveRequest(window(f.start, 2*time.Hour))
	req.Vehicle.LicensePlate = ""
	_, _, err := f.engine.Reserve(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestReserveOutOfSchedule(t *testing.T) {
	spot := testSpot(1)
	spot.Windows = []domain.WeeklyWindow{{Day: time.Monday, Start: "08:00", End: "12:00"}}
	f := newFixture(t, spot)

	_, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 4*time.Hour)))
	assert.ErrorIs(t, err, domain.ErrOutOfSchedule)
}

func TestReserveEnforcesBuffer(t *testing.T) {
	f := newFixture(t, testSpot(1))

	_, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)

	// Ten minutes after the first reservation ends: inside the buffer.
	_, _, err = f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start.Add(2*time.Hour+10*time.Minute), time.Hour)))
	assert.ErrorIs(t, err, domain.ErrInsufficientBuffer)

	_, _, err = f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start.Add(2*time.Hour+15*time.Minute), time.Hour)))
	assert.NoError(t, err)
}

func TestReserveCapacityRace(t *testing.T) {
	f := newFixture(t, testSpot(1))

	const racers = 16
	errs := make(chan error, racers)
	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	successes := 0
	for err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, domain.ErrFullyBooked)
		}
	}
	assert.Equal(t, 1, successes)
}

func TestConfirmIsIdempotent(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)
	id := reservation.ID.Hex()

	first, err := f.engine.Confirm(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, first.Status)

	second, err := f.engine.Confirm(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, second.Status)
}

func TestConfirmAfterCancellationFails(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)
	id := reservation.ID.Hex()

	_, err = f.engine.Cancel(context.Background(), id, "seeker-1", "change of plans", f.start.Add(-30*time.Hour))
	require.NoError(t, err)

	_, err = f.engine.Confirm(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestHandlePaymentCapturedUnknownIDIsDropped(t *testing.T) {
	f := newFixture(t, testSpot(1))

	err := f.engine.HandlePaymentCaptured(context.Background(), "650000000000000000000000")
	assert.NoError(t, err)
}

func TestHandlePaymentCapturedConfirms(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)

	require.NoError(t, f.engine.HandlePaymentCaptured(context.Background(), reservation.ID.Hex()))

	current, err := f.engine.GetReservation(context.Background(), reservation.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, domain.StatusConfirmed, current.Status)
}

func TestCheckInRequiresConfirmation(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)

	_, err = f.engine.CheckIn(context.Background(), reservation.ID.Hex(), f.start, Evidence{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestCheckInLateIsFlagged(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)
	id := reservation.ID.Hex()
	_, err = f.engine.Confirm(context.Background(), id)
	require.NoError(t, err)

	updated, err := f.engine.CheckIn(context.Background(), id, f.start.Add(45*time.Minute), Evidence{Photos: []string{"p1"}})
	require.NoError(t, err)
	require.NotNil(t, updated.CheckIn)
	assert.True(t, updated.CheckIn.IsLate)
	assert.Equal(t, 45, updated.CheckIn.MinutesLate)
}

func TestCheckInNoShowAutoCancels(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)
	id := reservation.ID.Hex()
	_, err = f.engine.Confirm(context.Background(), id)
	require.NoError(t, err)

	_, err = f.engine.CheckIn(context.Background(), id, f.start.Add(2*time.Hour), Evidence{})
	assert.ErrorIs(t, err, domain.ErrNoShow)

	current, err := f.engine.GetReservation(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCancelled, current.Status)
	require.NotNil(t, current.Cancellation)
	assert.Equal(t, "no-show", current.Cancellation.Reason)
	assert.Equal(t, int64(0), current.Cancellation.RefundAmount)
	require.NotNil(t, current.Cancellation.Forfeiture)
	assert.Equal(t, int64(103), current.Cancellation.Forfeiture.Amount)
	assert.Equal(t, int64(15), current.Cancellation.Forfeiture.PlatformFee)
	assert.Equal(t, int64(85), current.Cancellation.Forfeiture.HostEarnings)
	assert.Contains(t, f.audit.typesSeen(), "no_show_cancelled")
	assert.Contains(t, f.trust.outcomes, "no_show")
}

func TestCheckOutOnPendingFails(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)

	_, err = f.engine.CheckOut(context.Background(), reservation.ID.Hex(), f.start.Add(2*time.Hour), Evidence{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestLifecycleWithOvertime(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)
	id := reservation.ID.Hex()

	_, err = f.engine.Confirm(context.Background(), id)
	require.NoError(t, err)
	_, err = f.engine.CheckIn(context.Background(), id, f.start, Evidence{})
	require.NoError(t, err)

	end := f.start.Add(2 * time.Hour)
	checkedOut, err := f.engine.CheckOut(context.Background(), id, end.Add(100*time.Minute), Evidence{})
	require.NoError(t, err)

	require.NotNil(t, checkedOut.CheckOut)
	assert.Equal(t, 2, checkedOut.CheckOut.OvertimeHours)
	assert.Equal(t, int64(150), checkedOut.CheckOut.OvertimeCharge)
	require.NotNil(t, checkedOut.Overtime)
	assert.Equal(t, int64(150), checkedOut.Overtime.Amount)
	assert.Equal(t, int64(22), checkedOut.Overtime.PlatformFee)
	assert.Equal(t, int64(128), checkedOut.Overtime.HostEarnings)
	// The original quote is untouched by the overtime delta.
	assert.Equal(t, int64(103), checkedOut.Money.TotalAmount)

	completed, err := f.engine.Complete(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, completed.Status)
	assert.Contains(t, f.trust.outcomes, "completed")
}

func TestCheckOutWithinWindowHasNoOvertime(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)
	id := reservation.ID.Hex()

	_, err = f.engine.Confirm(context.Background(), id)
	require.NoError(t, err)
	_, err = f.engine.CheckIn(context.Background(), id, f.start, Evidence{})
	require.NoError(t, err)

	checkedOut, err := f.engine.CheckOut(context.Background(), id, f.start.Add(90*time.Minute), Evidence{})
	require.NoError(t, err)
	assert.Nil(t, checkedOut.Overtime)
	assert.Equal(t, 0, checkedOut.CheckOut.OvertimeHours)
}

func TestCancelAppliesRefundPolicy(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)
	id := reservation.ID.Hex()
	_, err = f.engine.Confirm(context.Background(), id)
	require.NoError(t, err)

	cancelled, err := f.engine.Cancel(context.Background(), id, "seeker-1", "change of plans", f.start.Add(-10*time.Hour))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Cancellation)
	assert.Equal(t, 50, cancelled.Cancellation.RefundPercent)
	// 50% of 103 rounds half-to-even to 52.
	assert.Equal(t, int64(52), cancelled.Cancellation.RefundAmount)
	assert.Contains(t, f.trust.outcomes, "cancelled")
}

func TestDisputeFreezesReservation(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)
	id := reservation.ID.Hex()
	_, err = f.engine.Confirm(context.Background(), id)
	require.NoError(t, err)

	disputed, err := f.engine.RaiseDispute(context.Background(), id, "host-1", "vehicle mismatch")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDisputed, disputed.Status)

	_, err = f.engine.Cancel(context.Background(), id, "seeker-1", "never mind", f.start.Add(-30*time.Hour))
	assert.ErrorIs(t, err, domain.ErrInvalidState)
	_, err = f.engine.CheckIn(context.Background(), id, f.start, Evidence{})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	resolved, err := f.engine.ResolveDispute(context.Background(), id, "admin-1", domain.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, resolved.Status)
}

func TestReserveHonorsCancelledContext(t *testing.T) {
	f := newFixture(t, testSpot(1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := f.engine.Reserve(ctx, f.reserveRequest(window(f.start, 2*time.Hour)))
	assert.ErrorIs(t, err, context.Canceled)

	listed, err := f.store.ListBySpot(context.Background(), "spot-1")
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestReservationTrail(t *testing.T) {
	f := newFixture(t, testSpot(1))

	reservation, _, err := f.engine.Reserve(context.Background(), f.reserveRequest(window(f.start, 2*time.Hour)))
	require.NoError(t, err)
	id := reservation.ID.Hex()
	_, err = f.engine.Confirm(context.Background(), id)
	require.NoError(t, err)

	events, err := f.engine.ReservationTrail(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "reservation_created", events[0].Type)
	assert.Equal(t, "payment_confirmed", events[1].Type)
}

// gateAudit blocks its first Append until released; later appends return
// immediately.
type gateAudit struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (a *gateAudit) Append(context.Context, *domain.BookingEvent) error {
	gated := false
	a.once.Do(func() { gated = true })
	if gated {
		close(a.entered)
		<-a.release
	}
	return nil
}

func (a *gateAudit) ListByReservation(context.Context, string) ([]*domain.BookingEvent, error) {
	return nil, nil
}

func TestReserveAppendsAuditOutsideAdmissionLock(t *testing.T) {
	start := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	spot := testSpot(1)
	catalog := &MockSpotCatalog{}
	catalog.On("GetSpot", spot.ID).Return(spot, nil)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	audit := &gateAudit{entered: make(chan struct{}), release: make(chan struct{})}

	engine := NewBookingEngine(
		store.NewReservationInMemStore(),
		catalog,
		audit,
		&recordingTrust{},
		DefaultConfig(),
		fixedClock{now: start.Add(-48 * time.Hour)},
		trace.NewNoopTracerProvider().Tracer("test"),
		logger,
	)
	request := func(seekerID string, w domain.Window) ReserveRequest {
		return ReserveRequest{
			SpotID:   "spot-1",
			SeekerID: seekerID,
			Window:   w,
			Vehicle:  domain.Vehicle{LicensePlate: "KA-01-1234"},
		}
	}

	firstDone := make(chan error, 1)
	go func() {
		_, _, err := engine.Reserve(context.Background(), request("seeker-1", window(start, time.Hour)))
		firstDone <- err
	}()
	<-audit.entered

	// The first reservation is committed and its audit append is still in
	// flight; a second admission for the same spot must not wait on it.
	secondDone := make(chan error, 1)
	go func() {
		_, _, err := engine.Reserve(context.Background(), request("seeker-2", window(start.Add(2*time.Hour), time.Hour)))
		secondDone <- err
	}()

	select {
	case err := <-secondDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("second reservation blocked behind the in-flight audit append")
	}

	close(audit.release)
	assert.NoError(t, <-firstDone)
}

func TestResolveDisputeRejectsBogusOutcome(t *testing.T) {
	f := newFixture(t, testSpot(1))

	_, err := f.engine.ResolveDispute(context.Background(), "650000000000000000000000", "admin-1", domain.StatusCheckedIn)
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}
