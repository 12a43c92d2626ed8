package reports

import (
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/registry"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
)

// PurposeCount is one bar of the purpose histogram.
type PurposeCount struct {
	Purpose state.Purpose `json:"purpose"`
	Count   int           `json:"count"`
}

// Summary is the report rendered for one recency window.
type Summary struct {
	Window      Window              `json:"window"`
	GeneratedAt time.Time           `json:"generatedAt"`
	Total       int                 `json:"total"`
	Purposes    []PurposeCount      `json:"purposes"`
	AlertCount  int                 `json:"alertCount"`
	Guests      []state.GuestRecord `json:"guests"`
}

// Summarize filters guests by window and tallies purposes and automated alerts.
// The alert count covers the whole log, not just the window.
func Summarize(current state.ApplicationState, window Window, now time.Time) Summary {
	guests := FilterByRecency(current.Guests, window, now)

	purposes := make([]PurposeCount, 0, len(state.Purposes))
	for _, purpose := range state.Purposes {
		count := 0
		for _, guest := range guests {
			if guest.Purpose == purpose {
				count++
			}
		}
		purposes = append(purposes, PurposeCount{Purpose: purpose, Count: count})
	}

	return Summary{
		Window:      window,
		GeneratedAt: now.UTC(),
		Total:       len(guests),
		Purposes:    purposes,
		AlertCount:  CountAlerts(current.Messages),
		Guests:      guests,
	}
}

// CountAlerts counts messages synthesized by the watchlist alert path.
func CountAlerts(messages []state.LogMessage) int {
	count := 0
	for _, message := range messages {
		if message.Sender == registry.SystemBotSender {
			count++
		}
	}
	return count
}
