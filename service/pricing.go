package service

import (
	"math"
	"time"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

const (
	MethodHourly = "hourly"
	MethodDaily  = "daily"

	// A booking of six hours or more switches to daily-block pricing,
	// which is cheaper for the buyer. One daily block covers six hours.
	dailyBlockHours = 6
)

// Quote is a pricing computation result, not yet committed to a reservation.
type Quote struct {
	Hours  int          `json:"hours"`
	Days   int          `json:"days"`
	Method string       `json:"method"`
	Money  domain.Money `json:"money"`
}

// CalculateQuote prices a window against a spot tariff. It is pure and
// fails only on a malformed window.
func CalculateQuote(tariff domain.Tariff, window domain.Window, cfg Config) (*Quote, error) {
	if !window.End.After(window.Start) {
		return nil, domain.ErrInvalidWindow
	}

	hours := ceilHours(window.Duration())

	quote := &Quote{Hours: hours, Method: MethodHourly}
	var base int64
	if hours >= dailyBlockHours {
		quote.Method = MethodDaily
		quote.Days = hours / dailyBlockHours
		remaining := hours % dailyBlockHours
		base = int64(quote.Days)*tariff.DailyRate + int64(remaining)*tariff.HourlyRate
	} else {
		base = int64(hours) * tariff.HourlyRate
	}

	fee := roundHalfEven(float64(base) * cfg.FeeRate)
	tax := roundHalfEven(float64(fee) * cfg.TaxRate)

	quote.Money = domain.Money{
		BaseAmount:   base,
		PlatformFee:  fee,
		Tax:          tax,
		TotalAmount:  base + tax,
		HostEarnings: base - fee,
	}
	return quote, nil
}

func ceilHours(d time.Duration) int {
	hours := int(d / time.Hour)
	if d%time.Hour != 0 {
		hours++
	}
	return hours
}

// roundHalfEven rounds at the smallest currency unit without the
// compounding bias of half-up rounding across many bookings.
func roundHalfEven(x float64) int64 {
	return int64(math.RoundToEven(x))
}
