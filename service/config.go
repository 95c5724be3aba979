package service

import "time"

// RefundTier maps a minimum number of hours before start to a refund
// percentage. Tiers are evaluated in order, largest threshold first.
type RefundTier struct {
	HoursBefore int
	Percent     int
}

// Config carries every policy knob of the booking core. It is injected at
// engine construction; pure functions never read ambient environment.
type Config struct {
	// FeeRate is the platform's cut of the base amount.
	FeeRate float64
	// TaxRate applies to the platform fee only, not the host's share.
	TaxRate float64
	// Buffer is the minimum idle gap between reservations at one spot.
	Buffer time.Duration
	// CheckInEarly is how long before startTime check-in opens.
	CheckInEarly time.Duration
	// CheckInLate is how long after startTime check-in stays open.
	CheckInLate time.Duration
	// LateGrace is how far past startTime an arrival is still on time.
	LateGrace time.Duration
	// OvertimeMultiplier scales the hourly rate for overtime billing.
	OvertimeMultiplier float64
	RefundTiers        []RefundTier
}

func DefaultConfig() Config {
	return Config{
		FeeRate:            0.15,
		TaxRate:            0.18,
		Buffer:             15 * time.Minute,
		CheckInEarly:       30 * time.Minute,
		CheckInLate:        60 * time.Minute,
		LateGrace:          30 * time.Minute,
		OvertimeMultiplier: 1.5,
		RefundTiers: []RefundTier{
			{HoursBefore: 24, Percent: 100},
			{HoursBefore: 12, Percent: 75},
			{HoursBefore: 2, Percent: 50},
		},
	}
}

// Clock abstracts time for testability of the time-dependent policies.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }
