package service

import (
	"fmt"
	"math"
	"time"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

// RefundDecision is the outcome of the cancellation refund policy. A reason
// accompanies every outcome for audit and display.
type RefundDecision struct {
	Percent int
	Amount  int64
	Reason  string
}

// RefundFor applies the step function of hours-until-start. Once the
// service has been consumed (checked in or later) nothing is refunded.
// Percentages are non-increasing as the start time approaches.
func RefundFor(status domain.Status, now, start time.Time, total int64, cfg Config) RefundDecision {
	if status.Consumed() {
		return RefundDecision{Reason: "service already consumed, no refund"}
	}

	until := start.Sub(now)
	for _, tier := range cfg.RefundTiers {
		if until >= time.Duration(tier.HoursBefore)*time.Hour {
			return RefundDecision{
				Percent: tier.Percent,
				Amount:  roundHalfEven(float64(total) * float64(tier.Percent) / 100),
				Reason:  fmt.Sprintf("cancelled at least %dh before start, %d%% refund", tier.HoursBefore, tier.Percent),
			}
		}
	}
	return RefundDecision{Reason: "cancelled too close to start, no refund"}
}

// CheckInAssessment is the outcome of an accepted check-in attempt.
type CheckInAssessment struct {
	IsLate      bool
	MinutesLate int
}

// AssessCheckIn validates the arrival time against the check-in window
// [start-CheckInEarly, start+CheckInLate]. Arrivals past LateGrace are
// accepted but flagged late; arrivals past the window are a no-show, which
// the engine turns into an auto-cancellation with full forfeiture.
func AssessCheckIn(now, start time.Time, cfg Config) (CheckInAssessment, error) {
	earliest := start.Add(-cfg.CheckInEarly)
	latest := start.Add(cfg.CheckInLate)

	if now.Before(earliest) {
		return CheckInAssessment{}, domain.ErrTooEarly.WithReason("check-in opens at %s", earliest.Format(time.RFC3339))
	}
	if now.After(latest) {
		return CheckInAssessment{}, domain.ErrNoShow.WithReason("check-in closed at %s", latest.Format(time.RFC3339))
	}
	if now.After(start.Add(cfg.LateGrace)) {
		return CheckInAssessment{
			IsLate:      true,
			MinutesLate: int(math.Ceil(now.Sub(start).Minutes())),
		}, nil
	}
	return CheckInAssessment{}, nil
}

// OvertimeCharge is the surcharge for checking out past the reserved end,
// split between platform and host exactly like the original quote. It is
// appended to the reservation as a delta, never folded into the paid totals.
type OvertimeCharge struct {
	Hours        int
	Rate         int64
	Charge       int64
	PlatformFee  int64
	HostEarnings int64
}

// AssessOvertime returns nil when checkout happened within the reserved
// window.
func AssessOvertime(checkout, end time.Time, hourlyRate int64, cfg Config) *OvertimeCharge {
	if !checkout.After(end) {
		return nil
	}
	hours := ceilHours(checkout.Sub(end))
	rate := roundHalfEven(float64(hourlyRate) * cfg.OvertimeMultiplier)
	charge := int64(hours) * rate
	fee := roundHalfEven(float64(charge) * cfg.FeeRate)
	return &OvertimeCharge{
		Hours:        hours,
		Rate:         rate,
		Charge:       charge,
		PlatformFee:  fee,
		HostEarnings: charge - fee,
	}
}
