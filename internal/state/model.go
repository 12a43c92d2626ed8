package state

import (
	"strings"
	"time"
)

// Language enumerates the console display languages.
type Language string

const (
	// LanguageAmharic is the default console language.
	LanguageAmharic Language = "am"
	// LanguageEnglish is the alternate console language.
	LanguageEnglish Language = "en"
)

// ParseLanguage validates raw input and returns a Language.
func ParseLanguage(raw string) (Language, bool) {
	switch Language(strings.ToLower(strings.TrimSpace(raw))) {
	case LanguageAmharic:
		return LanguageAmharic, true
	case LanguageEnglish:
		return LanguageEnglish, true
	default:
		return "", false
	}
}

// Role enumerates the two actor roles of the console.
type Role string

const (
	// RoleReception registers guests on behalf of a lodging establishment.
	RoleReception Role = "reception"
	// RolePolice reviews registrations and maintains the watchlist.
	RolePolice Role = "police"
)

// Purpose enumerates the declared purposes of a guest stay.
type Purpose string

const (
	PurposeVisit          Purpose = "visit"
	PurposeBusiness       Purpose = "business"
	PurposeHealth         Purpose = "health"
	PurposePersonal       Purpose = "personal"
	PurposeGovernmentWork Purpose = "governmentWork"
	PurposeOthers         Purpose = "others"
)

// Purposes lists every purpose in display order.
var Purposes = []Purpose{
	PurposeVisit,
	PurposeBusiness,
	PurposeHealth,
	PurposePersonal,
	PurposeGovernmentWork,
	PurposeOthers,
}

// ParsePurpose maps raw input onto a Purpose. Blank input selects PurposeVisit.
func ParsePurpose(raw string) (Purpose, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return PurposeVisit, true
	}
	for _, purpose := range Purposes {
		if strings.EqualFold(trimmed, string(purpose)) {
			return purpose, true
		}
	}
	return "", false
}

// GuestStatus tracks delivery of a registration to the authority.
type GuestStatus string

const (
	GuestStatusSent     GuestStatus = "sent"
	GuestStatusReceived GuestStatus = "received"
)

// HotelProfile identifies the registering establishment.
type HotelProfile struct {
	Name             string `json:"name"`
	Address          string `json:"address"`
	ReceptionistName string `json:"receptionistName"`
	Phone            string `json:"phone"`
}

// Complete reports whether every profile field carries a non-blank value.
func (p HotelProfile) Complete() bool {
	return strings.TrimSpace(p.Name) != "" &&
		strings.TrimSpace(p.Address) != "" &&
		strings.TrimSpace(p.ReceptionistName) != "" &&
		strings.TrimSpace(p.Phone) != ""
}

// Session is the currently logged-in console user.
type Session struct {
	Username     string        `json:"username"`
	Role         Role          `json:"role"`
	HotelProfile *HotelProfile `json:"hotelProfile,omitempty"`
}

// GuestRecord is an immutable registration; only Status may change.
type GuestRecord struct {
	ID             string      `json:"id"`
	OriginID       string      `json:"originId"`
	OriginName     string      `json:"originName"`
	FullName       string      `json:"fullName"`
	Nationality    string      `json:"nationality"`
	OriginLocation string      `json:"originLocation"`
	Purpose        Purpose     `json:"purpose"`
	BedNumber      string      `json:"bedNumber"`
	IDPhoto        string      `json:"idPhoto"`
	PermitPhoto    string      `json:"permitPhoto,omitempty"`
	Timestamp      time.Time   `json:"timestamp"`
	Status         GuestStatus `json:"status"`
}

// WatchlistEntry is a name the authority wants flagged on registration.
type WatchlistEntry struct {
	ID          string    `json:"id"`
	FullName    string    `json:"fullName"`
	Description string    `json:"description"`
	AddedBy     string    `json:"addedBy"`
	Timestamp   time.Time `json:"timestamp"`
	Photo       string    `json:"photo,omitempty"`
}

// LogMessage is one entry of the shared communication log.
type LogMessage struct {
	ID         string    `json:"id"`
	Sender     string    `json:"sender"`
	SenderRole Role      `json:"senderRole"`
	Text       string    `json:"text"`
	Timestamp  time.Time `json:"timestamp"`
}

// ApplicationState is the single persisted aggregate. Every slice is newest-first.
type ApplicationState struct {
	Language  Language         `json:"language"`
	Session   *Session         `json:"session"`
	Guests    []GuestRecord    `json:"guests"`
	Watchlist []WatchlistEntry `json:"watchlist"`
	Messages  []LogMessage     `json:"messages"`
}

const (
	seedWatchlistID          = "1"
	seedWatchlistName        = "Sample Wanted Name"
	seedWatchlistDescription = "Testing matching system"
	seedWatchlistAddedBy     = "Police Admin"
)

// Default returns the state used when nothing has been stored yet.
func Default(now time.Time) ApplicationState {
	return ApplicationState{
		Language: LanguageAmharic,
		Session:  nil,
		Guests:   []GuestRecord{},
		Watchlist: []WatchlistEntry{
			{
				ID:          seedWatchlistID,
				FullName:    seedWatchlistName,
				Description: seedWatchlistDescription,
				AddedBy:     seedWatchlistAddedBy,
				Timestamp:   now.UTC(),
			},
		},
		Messages: []LogMessage{},
	}
}

// Clone returns a copy whose slices and session can be modified without
// touching the receiver.
func (s ApplicationState) Clone() ApplicationState {
	cloned := ApplicationState{
		Language:  s.Language,
		Guests:    cloneSlice(s.Guests),
		Watchlist: cloneSlice(s.Watchlist),
		Messages:  cloneSlice(s.Messages),
	}
	if s.Session != nil {
		session := *s.Session
		if s.Session.HotelProfile != nil {
			profile := *s.Session.HotelProfile
			session.HotelProfile = &profile
		}
		cloned.Session = &session
	}
	return cloned
}

func cloneSlice[T any](source []T) []T {
	if source == nil {
		return nil
	}
	return append(make([]T, 0, len(source)), source...)
}
