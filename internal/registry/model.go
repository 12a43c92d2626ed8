package registry

import (
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
)

const (
	// SystemBotSender identifies log messages synthesized on a watchlist match.
	SystemBotSender = "SEC-AUTO-BOT"
	// SystemBotRole is the role attributed to synthesized alerts.
	SystemBotRole = state.RolePolice

	// FallbackOriginName is used when a registration happens without a hotel profile.
	FallbackOriginName = "Local Node"
	// FallbackOriginAddress is used when a registration happens without a hotel profile.
	FallbackOriginAddress = "Benishangul Region"
	// FallbackReceptionSender names reception chat messages sent without a hotel profile.
	FallbackReceptionSender = "Authorized Node"
	// DefaultAgencyName names police chat messages unless configured otherwise.
	DefaultAgencyName = "Security Command"
	// WatchlistAttribution is recorded as AddedBy on entries added through the console.
	WatchlistAttribution = "HQ"
)

// GuestDraft carries the operator-supplied fields of a registration.
type GuestDraft struct {
	FullName       string
	Nationality    string
	OriginLocation string
	Purpose        state.Purpose
	BedNumber      string
	IDPhoto        string
	PermitPhoto    string
}

// RegistrationOutcome distinguishes the two successful registration results.
type RegistrationOutcome string

const (
	// OutcomeSuccess means the guest was recorded without a watchlist match.
	OutcomeSuccess RegistrationOutcome = "success"
	// OutcomeAlert means the guest matched the watchlist and an alert was logged.
	OutcomeAlert RegistrationOutcome = "alert"
)

// RegistrationResult is returned by Register.
type RegistrationResult struct {
	Guest   state.GuestRecord
	Alert   *state.LogMessage
	Match   *state.WatchlistEntry
	Outcome RegistrationOutcome
}

// WatchlistDraft carries the fields of a new watchlist entry.
type WatchlistDraft struct {
	FullName    string
	Description string
	Photo       string
}

// ChangeKind names the part of the application state a mutation touched.
type ChangeKind string

const (
	ChangeGuests    ChangeKind = "guests"
	ChangeWatchlist ChangeKind = "watchlist"
	ChangeMessages  ChangeKind = "messages"
	ChangeSession   ChangeKind = "session"
	ChangeLanguage  ChangeKind = "language"
)

// ChangeEvent is published after a mutation has been persisted.
type ChangeEvent struct {
	Kinds     []ChangeKind
	Timestamp time.Time
}
