package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type SpotStatus string

const (
	SpotActive   SpotStatus = "active"
	SpotInactive SpotStatus = "inactive"
	SpotPending  SpotStatus = "pending"
)

// Tariff holds a spot's rates in the smallest currency unit.
type Tariff struct {
	HourlyRate int64 `bson:"hourlyRate" json:"hourlyRate" validate:"gt=0"`
	DailyRate  int64 `bson:"dailyRate" json:"dailyRate" validate:"gt=0"`
}

// WeeklyWindow is one availability window of a spot, in local wall clock.
// Start and End are "HH:MM"; End may be "24:00" for windows running to midnight.
type WeeklyWindow struct {
	Day   time.Weekday `bson:"day" json:"day"`
	Start string       `bson:"start" json:"start"`
	End   string       `bson:"end" json:"end"`
}

// Spot is read-only to the booking core; it is owned by the spot catalog.
type Spot struct {
	ID       string         `json:"id"`
	HostID   string         `json:"hostId"`
	Tariff   Tariff         `json:"tariff"`
	Capacity int            `json:"capacity"`
	Windows  []WeeklyWindow `json:"availabilityWindows"`
	Status   SpotStatus     `json:"status"`
}

// Window is a half-open booking interval [Start, End).
type Window struct {
	Start time.Time `bson:"startTime" json:"startTime"`
	End   time.Time `bson:"endTime" json:"endTime"`
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Overlaps reports whether two half-open intervals intersect.
func (w Window) Overlaps(other Window) bool {
	return w.Start.Before(other.End) && w.End.After(other.Start)
}

type Vehicle struct {
	LicensePlate string `bson:"licensePlate" json:"licensePlate" validate:"required"`
	Make         string `bson:"make,omitempty" json:"make"`
	Model        string `bson:"model,omitempty" json:"model"`
	Color        string `bson:"color,omitempty" json:"color"`
}

// Money is the breakdown of a booking quote, immutable once paid.
// Overtime is appended as a separate delta, never folded into these totals.
type Money struct {
	BaseAmount   int64 `bson:"baseAmount" json:"baseAmount"`
	PlatformFee  int64 `bson:"platformFee" json:"platformFee"`
	Tax          int64 `bson:"tax" json:"tax"`
	TotalAmount  int64 `bson:"totalAmount" json:"totalAmount"`
	HostEarnings int64 `bson:"hostEarnings" json:"hostEarnings"`
}

// MoneyDelta is an addition to the original quote (overtime surcharge).
type MoneyDelta struct {
	Amount       int64     `bson:"amount" json:"amount"`
	PlatformFee  int64     `bson:"platformFee" json:"platformFee"`
	HostEarnings int64     `bson:"hostEarnings" json:"hostEarnings"`
	Reason       string    `bson:"reason" json:"reason"`
	At           time.Time `bson:"at" json:"at"`
}

type CheckInRecord struct {
	At          time.Time `bson:"at" json:"at"`
	Photos      []string  `bson:"photos,omitempty" json:"photos"`
	Notes       string    `bson:"notes,omitempty" json:"notes"`
	IsLate      bool      `bson:"isLate" json:"isLate"`
	MinutesLate int       `bson:"minutesLate,omitempty" json:"minutesLate"`
}

type CheckOutRecord struct {
	At             time.Time `bson:"at" json:"at"`
	Photos         []string  `bson:"photos,omitempty" json:"photos"`
	Notes          string    `bson:"notes,omitempty" json:"notes"`
	OvertimeHours  int       `bson:"overtimeHours,omitempty" json:"overtimeHours"`
	OvertimeCharge int64     `bson:"overtimeCharge,omitempty" json:"overtimeCharge"`
}

type CancellationRecord struct {
	Reason        string    `bson:"reason" json:"reason"`
	ActorID       string    `bson:"actorId" json:"actorId"`
	At            time.Time `bson:"at" json:"at"`
	RefundPercent int       `bson:"refundPercent" json:"refundPercent"`
	RefundAmount  int64     `bson:"refundAmount" json:"refundAmount"`
	// Forfeiture carries the fee/host split of a no-show penalty, where the
	// full amount is kept.
	Forfeiture *MoneyDelta `bson:"forfeiture,omitempty" json:"forfeiture,omitempty"`
}

type DisputeRecord struct {
	Reason   string    `bson:"reason" json:"reason"`
	RaisedBy string    `bson:"raisedBy" json:"raisedBy"`
	RaisedAt time.Time `bson:"raisedAt" json:"raisedAt"`
}

// Reservation is the core entity. It is never deleted, only terminally
// marked or frozen, so the trail stays available for refunds and trust
// scoring.
type Reservation struct {
	ID           primitive.ObjectID  `bson:"_id" json:"id"`
	SpotID       string              `bson:"spotId" json:"spotId"`
	SeekerID     string              `bson:"seekerId" json:"seekerId"`
	HostID       string              `bson:"hostId" json:"hostId"`
	Window       Window              `bson:"window,inline" json:"window"`
	Vehicle      Vehicle             `bson:"vehicle" json:"vehicle"`
	Tariff       Tariff              `bson:"tariff" json:"tariff"`
	Money        Money               `bson:"money" json:"money"`
	Status       Status              `bson:"status" json:"status"`
	CheckIn      *CheckInRecord      `bson:"checkIn,omitempty" json:"checkIn,omitempty"`
	CheckOut     *CheckOutRecord     `bson:"checkOut,omitempty" json:"checkOut,omitempty"`
	Cancellation *CancellationRecord `bson:"cancellation,omitempty" json:"cancellation,omitempty"`
	Dispute      *DisputeRecord      `bson:"dispute,omitempty" json:"dispute,omitempty"`
	Overtime     *MoneyDelta         `bson:"overtime,omitempty" json:"overtime,omitempty"`
	CreatedAt    time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt    time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// BookingEvent is one row of the append-only audit trail.
type BookingEvent struct {
	ReservationID string    `json:"reservationId"`
	SpotID        string    `json:"spotId"`
	SeekerID      string    `json:"seekerId"`
	Type          string    `json:"type"`
	FromStatus    Status    `json:"fromStatus"`
	ToStatus      Status    `json:"toStatus"`
	Amount        int64     `json:"amount"`
	Reason        string    `json:"reason"`
	At            time.Time `json:"at"`
}
