// Package reports derives read-only views of guest registrations: recency
// windows, history search, grouping, summaries and spreadsheet exports.
package reports

import (
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
)

// Window names a fixed recency bucket.
type Window string

const (
	WindowDaily      Window = "daily"
	WindowWeekly     Window = "weekly"
	WindowMonthly    Window = "monthly"
	WindowQuarterly  Window = "quarterly"
	WindowSemiannual Window = "semiannual"
	WindowNineMonth  Window = "nineMonth"
	WindowYearly     Window = "yearly"
)

const day = 24 * time.Hour

var windowDays = map[Window]int{
	WindowDaily:      1,
	WindowWeekly:     7,
	WindowMonthly:    30,
	WindowQuarterly:  90,
	WindowSemiannual: 180,
	WindowNineMonth:  270,
	WindowYearly:     365,
}

// Windows lists the recency buckets in display order.
var Windows = []Window{
	WindowDaily,
	WindowWeekly,
	WindowMonthly,
	WindowQuarterly,
	WindowSemiannual,
	WindowNineMonth,
	WindowYearly,
}

// ParseWindow validates a window name.
func ParseWindow(raw string) (Window, bool) {
	window := Window(raw)
	_, ok := windowDays[window]
	return window, ok
}

// Days returns the bucket bound in days.
func (w Window) Days() (int, bool) {
	days, ok := windowDays[w]
	return days, ok
}

// FilterByRecency keeps guests whose age at now is at most the window bound.
// An unknown window keeps every guest. Order is preserved.
func FilterByRecency(guests []state.GuestRecord, window Window, now time.Time) []state.GuestRecord {
	days, ok := window.Days()
	if !ok {
		return append([]state.GuestRecord{}, guests...)
	}
	bound := time.Duration(days) * day
	filtered := make([]state.GuestRecord, 0, len(guests))
	for _, guest := range guests {
		if now.Sub(guest.Timestamp) <= bound {
			filtered = append(filtered, guest)
		}
	}
	return filtered
}
