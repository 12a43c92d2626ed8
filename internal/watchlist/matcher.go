// Package watchlist decides whether a guest name matches a watchlist entry.
package watchlist

import (
	"strings"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	"golang.org/x/text/cases"
)

// NormalizeName trims surrounding whitespace and folds case.
func NormalizeName(name string) string {
	return cases.Fold().String(strings.TrimSpace(name))
}

// Match scans entries in order and returns the first whose full name equals the
// candidate after normalization. Entries are newest-first, so duplicates resolve
// to the most recently added entry.
func Match(name string, entries []state.WatchlistEntry) (state.WatchlistEntry, bool) {
	candidate := NormalizeName(name)
	for _, entry := range entries {
		if NormalizeName(entry.FullName) == candidate {
			return entry, true
		}
	}
	return state.WatchlistEntry{}, false
}
