package reports

import (
	"strings"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	"golang.org/x/text/cases"
)

// Grouping selects how guests are bucketed in the police overview.
type Grouping string

const (
	GroupingNone   Grouping = "all"
	GroupingOrigin Grouping = "hotel"
	GroupingDate   Grouping = "date"
)

const dateLayout = "2006-01-02"

// GuestGroup is one bucket of the police overview.
type GuestGroup struct {
	Key    string              `json:"key"`
	Guests []state.GuestRecord `json:"guests"`
}

// SearchByName keeps guests whose full name contains query under Unicode case folding.
// A blank query keeps every guest.
func SearchByName(guests []state.GuestRecord, query string) []state.GuestRecord {
	folder := cases.Fold()
	needle := folder.String(strings.TrimSpace(query))
	if needle == "" {
		return append([]state.GuestRecord{}, guests...)
	}
	matched := make([]state.GuestRecord, 0, len(guests))
	for _, guest := range guests {
		if strings.Contains(folder.String(guest.FullName), needle) {
			matched = append(matched, guest)
		}
	}
	return matched
}

// Group buckets guests by origin name or by UTC calendar date. Groups appear in
// first-seen order and keep the incoming guest order.
func Group(guests []state.GuestRecord, grouping Grouping) []GuestGroup {
	var keyOf func(state.GuestRecord) string
	switch grouping {
	case GroupingOrigin:
		keyOf = func(guest state.GuestRecord) string { return guest.OriginName }
	case GroupingDate:
		keyOf = func(guest state.GuestRecord) string { return guest.Timestamp.UTC().Format(dateLayout) }
	default:
		return []GuestGroup{{Key: string(GroupingNone), Guests: append([]state.GuestRecord{}, guests...)}}
	}

	indexByKey := make(map[string]int)
	groups := make([]GuestGroup, 0)
	for _, guest := range guests {
		key := keyOf(guest)
		index, ok := indexByKey[key]
		if !ok {
			index = len(groups)
			indexByKey[key] = index
			groups = append(groups, GuestGroup{Key: key})
		}
		groups[index].Guests = append(groups[index].Guests, guest)
	}
	return groups
}
