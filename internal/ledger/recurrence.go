package ledger

import (
	"time"

	"github.com/dvloznov/welth/internal/domain"
)

// NextRecurringDate adds exactly one unit of the interval to date. Month and
// year arithmetic clamps to the last valid day of the target month rather
// than overflowing: Jan 31 + 1 month is Feb 28 (or 29 in a leap year), not
// Mar 3. This is the documented rollover policy for the whole ledger.
func NextRecurringDate(date time.Time, interval domain.RecurringInterval) time.Time {
	switch interval {
	case domain.IntervalDaily:
		return date.AddDate(0, 0, 1)
	case domain.IntervalWeekly:
		return date.AddDate(0, 0, 7)
	case domain.IntervalMonthly:
		return addMonthsClamped(date, 1)
	case domain.IntervalYearly:
		return addMonthsClamped(date, 12)
	default:
		return date
	}
}

// addMonthsClamped advances t by months, clamping the day of month to the
// target month's length. time.AddDate would normalize Jan 31 + 1 month to
// Mar 3; money schedules expect end-of-month behavior instead.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()

	m := int(month) + months
	year += (m - 1) / 12
	month = time.Month((m-1)%12 + 1)

	if max := daysInMonth(year, month); day > max {
		day = max
	}

	return time.Date(year, month, day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// daysInMonth returns the number of days in the given month.
func daysInMonth(year int, month time.Month) int {
	// Day 0 of the next month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
