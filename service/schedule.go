package service

import (
	"time"

	"github.com/ijatinydv/ParkEase-sub000/domain"
)

const minutesPerDay = 24 * 60

// parseTimeOfDay converts "HH:MM" to minutes since midnight. "24:00" is
// accepted for windows running to the end of the day.
func parseTimeOfDay(s string) (int, error) {
	if s == "24:00" {
		return minutesPerDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// CheckSchedule verifies that the requested window fits the spot's weekly
// availability. Every calendar day the booking touches must carry a window
// covering the portion of the booking that falls on that day; cross-midnight
// bookings therefore need compatible windows on both days.
func CheckSchedule(windows []domain.WeeklyWindow, w domain.Window) error {
	if !w.End.After(w.Start) {
		return domain.ErrInvalidWindow
	}

	firstDay := startOfDay(w.Start)
	lastDay := startOfDay(w.End)
	if minuteOfDay(w.End) == 0 {
		// Ending exactly at midnight does not touch the next day.
		lastDay = lastDay.AddDate(0, 0, -1)
	}

	for day := firstDay; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		from := 0
		to := minutesPerDay
		if day.Equal(firstDay) {
			from = minuteOfDay(w.Start)
		}
		if day.Equal(lastDay) && minuteOfDay(w.End) != 0 {
			to = minuteOfDay(w.End)
		}
		if err := checkDay(windows, day.Weekday(), from, to); err != nil {
			return err
		}
	}
	return nil
}

func checkDay(windows []domain.WeeklyWindow, weekday time.Weekday, from, to int) error {
	covered := false
	for _, win := range windows {
		if win.Day != weekday {
			continue
		}
		covered = true
		winStart, err := parseTimeOfDay(win.Start)
		if err != nil {
			continue
		}
		winEnd, err := parseTimeOfDay(win.End)
		if err != nil {
			continue
		}
		if from >= winStart && to <= winEnd {
			return nil
		}
	}
	if !covered {
		return domain.ErrOutOfSchedule.WithReason("spot is not available on %s", weekday)
	}
	return domain.ErrOutOfSchedule.WithReason("requested time falls outside available hours on %s", weekday)
}
