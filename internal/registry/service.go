package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/session"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/watchlist"
	"go.uber.org/zap"
)

var (
	// ErrInvalidCredentials indicates the identity/secret pair was not recognised.
	ErrInvalidCredentials = errors.New("registry: invalid credentials")
	// ErrNoSession indicates the operation needs a logged-in user.
	ErrNoSession = errors.New("registry: no active session")
	// ErrRoleNotPermitted indicates the session role may not perform the operation.
	ErrRoleNotPermitted = errors.New("registry: role not permitted")
	// ErrIncompleteProfile indicates a hotel profile submission left a field blank.
	ErrIncompleteProfile = errors.New("registry: incomplete hotel profile")
	// ErrEmptyMessage indicates a chat message without text.
	ErrEmptyMessage = errors.New("registry: empty message")
	// ErrInvalidWatchlistEntry indicates a watchlist entry without a name.
	ErrInvalidWatchlistEntry = errors.New("registry: invalid watchlist entry")
	// ErrInvalidLanguage indicates an unsupported display language.
	ErrInvalidLanguage = errors.New("registry: invalid language")

	errMissingStore         = errors.New("state store is required")
	errMissingIDProvider    = errors.New("id provider is required")
	errMissingAuthenticator = errors.New("authenticator is required")
	errMissingProfiles      = errors.New("profile store is required")
	noOpLogger              = zap.NewNop()
)

type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew      = "registry.service.new"
	opLogin           = "registry.login"
	opLogout          = "registry.logout"
	opSubmitProfile   = "registry.submit_profile"
	opSetLanguage     = "registry.set_language"
	opRegister        = "registry.register"
	opAppendMessage   = "registry.append_message"
	opAddWatchlist    = "registry.add_watchlist_entry"
	reasonSaveFailed  = "save_failed"
	reasonIDFailed    = "id_generation_failed"
	reasonProfileLoad = "profile_lookup_failed"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// StateStore persists the whole application state.
type StateStore interface {
	Load(ctx context.Context) (state.ApplicationState, error)
	Save(ctx context.Context, current state.ApplicationState) error
}

// IDProvider issues identifiers for new records.
type IDProvider interface {
	NewID() (string, error)
}

// Authenticator resolves fixed console credentials to a role.
type Authenticator interface {
	Authenticate(identity, secret string) (state.Role, bool)
}

// ProfileStore remembers hotel profiles across logins.
type ProfileStore interface {
	ProfileFor(ctx context.Context, username string) (*state.HotelProfile, error)
	RememberProfile(ctx context.Context, username string, profile state.HotelProfile) error
}

// Notifier receives change events after each persisted mutation.
type Notifier interface {
	Notify(event ChangeEvent)
}

type ServiceConfig struct {
	Store         StateStore
	Authenticator Authenticator
	Profiles      ProfileStore
	IDProvider    IDProvider
	Notifier      Notifier
	Clock         func() time.Time
	Logger        *zap.Logger
	AgencyName    string
}

// Service owns the single ApplicationState and applies every mutation to it.
// Each mutation is computed on a copy, persisted, and only then committed, so
// callers never observe a state that was not saved.
type Service struct {
	mu            sync.RWMutex
	current       state.ApplicationState
	store         StateStore
	authenticator Authenticator
	profiles      ProfileStore
	idProvider    IDProvider
	notifier      Notifier
	clock         func() time.Time
	logger        *zap.Logger
	agencyName    string
}

// NewService loads the persisted state and returns a ready Service. A corrupt
// stored document is returned as an error.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, newServiceError(opServiceNew, "missing_store", errMissingStore)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}
	if cfg.Authenticator == nil {
		return nil, newServiceError(opServiceNew, "missing_authenticator", errMissingAuthenticator)
	}
	if cfg.Profiles == nil {
		return nil, newServiceError(opServiceNew, "missing_profile_store", errMissingProfiles)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	agencyName := strings.TrimSpace(cfg.AgencyName)
	if agencyName == "" {
		agencyName = DefaultAgencyName
	}

	loaded, err := cfg.Store.Load(ctx)
	if err != nil {
		logger.Error("registry service error",
			zap.String("operation", opServiceNew),
			zap.String("reason", "state_load_failed"),
			zap.Error(err))
		return nil, newServiceError(opServiceNew, "state_load_failed", err)
	}

	return &Service{
		current:       loaded,
		store:         cfg.Store,
		authenticator: cfg.Authenticator,
		profiles:      cfg.Profiles,
		idProvider:    cfg.IDProvider,
		notifier:      cfg.Notifier,
		clock:         clock,
		logger:        logger,
		agencyName:    agencyName,
	}, nil
}

// Snapshot returns a copy of the current application state.
func (s *Service) Snapshot() state.ApplicationState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.Clone()
}

// Session returns a copy of the active session, or nil when logged out.
func (s *Service) Session() *state.Session {
	return s.Snapshot().Session
}

// Gate returns the gate state of the active session.
func (s *Service) Gate() session.GateState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return session.Resolve(s.current.Session)
}

// Guests returns the guest records, newest-first.
func (s *Service) Guests() []state.GuestRecord {
	return s.Snapshot().Guests
}

// Watchlist returns the watchlist entries, newest-first.
func (s *Service) Watchlist() []state.WatchlistEntry {
	return s.Snapshot().Watchlist
}

// Messages returns the communication log, newest-first.
func (s *Service) Messages() []state.LogMessage {
	return s.Snapshot().Messages
}

// Login checks the credentials and starts a session. A reception account picks
// up its remembered hotel profile when one exists. The previous session, if any,
// is replaced.
func (s *Service) Login(ctx context.Context, username, secret string) (state.Session, session.GateState, error) {
	role, ok := s.authenticator.Authenticate(username, secret)
	if !ok {
		s.loggerOrDefault().Info("login rejected", zap.String("username", strings.TrimSpace(username)))
		return state.Session{}, session.GateUnauthenticated, newServiceError(opLogin, "invalid_credentials", ErrInvalidCredentials)
	}

	started := state.Session{Username: strings.TrimSpace(username), Role: role}
	if role == state.RoleReception {
		profile, err := s.profiles.ProfileFor(ctx, started.Username)
		if err != nil {
			s.logError(opLogin, reasonProfileLoad, err, zap.String("username", started.Username))
			return state.Session{}, session.GateUnauthenticated, newServiceError(opLogin, reasonProfileLoad, err)
		}
		started.HotelProfile = profile
	}

	err := s.mutate(ctx, opLogin, func(next *state.ApplicationState) ([]ChangeKind, error) {
		active := started
		if started.HotelProfile != nil {
			profile := *started.HotelProfile
			active.HotelProfile = &profile
		}
		next.Session = &active
		return []ChangeKind{ChangeSession}, nil
	})
	if err != nil {
		return state.Session{}, session.GateUnauthenticated, err
	}
	return started, session.Resolve(&started), nil
}

// Logout clears the session; guests, watchlist and messages are kept.
func (s *Service) Logout(ctx context.Context) error {
	return s.mutate(ctx, opLogout, func(next *state.ApplicationState) ([]ChangeKind, error) {
		next.Session = nil
		return []ChangeKind{ChangeSession}, nil
	})
}

// SubmitProfile sets the hotel profile of the active reception session. It
// serves both the first-time setup and later updates from the settings view.
// A profile with any blank field is rejected without mutating state.
func (s *Service) SubmitProfile(ctx context.Context, profile state.HotelProfile) (session.GateState, error) {
	normalized := state.HotelProfile{
		Name:             strings.TrimSpace(profile.Name),
		Address:          strings.TrimSpace(profile.Address),
		ReceptionistName: strings.TrimSpace(profile.ReceptionistName),
		Phone:            strings.TrimSpace(profile.Phone),
	}

	err := s.mutate(ctx, opSubmitProfile, func(next *state.ApplicationState) ([]ChangeKind, error) {
		if next.Session == nil {
			return nil, newServiceError(opSubmitProfile, "no_session", ErrNoSession)
		}
		if next.Session.Role != state.RoleReception {
			return nil, newServiceError(opSubmitProfile, "role_not_permitted", ErrRoleNotPermitted)
		}
		if !normalized.Complete() {
			return nil, newServiceError(opSubmitProfile, "incomplete_profile", ErrIncompleteProfile)
		}
		// The per-account copy is what survives logout, so it is written
		// before the session changes.
		if err := s.profiles.RememberProfile(ctx, next.Session.Username, normalized); err != nil {
			s.logError(opSubmitProfile, "profile_remember_failed", err, zap.String("username", next.Session.Username))
			return nil, newServiceError(opSubmitProfile, "profile_remember_failed", fmt.Errorf("%w: %v", state.ErrUnavailable, err))
		}
		assigned := normalized
		next.Session.HotelProfile = &assigned
		return []ChangeKind{ChangeSession}, nil
	})
	return s.Gate(), err
}

// SetLanguage switches the console display language.
func (s *Service) SetLanguage(ctx context.Context, language state.Language) error {
	if language != state.LanguageAmharic && language != state.LanguageEnglish {
		return newServiceError(opSetLanguage, "invalid_language", ErrInvalidLanguage)
	}
	return s.mutate(ctx, opSetLanguage, func(next *state.ApplicationState) ([]ChangeKind, error) {
		next.Language = language
		return []ChangeKind{ChangeLanguage}, nil
	})
}

// Register records a guest, checks the name against the watchlist and, on a
// match, logs exactly one alert message. The guest and the alert are persisted
// together before Register returns.
func (s *Service) Register(ctx context.Context, draft GuestDraft) (RegistrationResult, error) {
	guestID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opRegister, reasonIDFailed, err)
		return RegistrationResult{}, newServiceError(opRegister, reasonIDFailed, err)
	}

	purpose := draft.Purpose
	if purpose == "" {
		purpose = state.PurposeVisit
	}

	var result RegistrationResult
	err = s.mutate(ctx, opRegister, func(next *state.ApplicationState) ([]ChangeKind, error) {
		kinds := []ChangeKind{ChangeGuests}
		originName, originAddress := resolveOrigin(next.Session)
		now := s.clock().UTC()

		guest := state.GuestRecord{
			ID:             guestID,
			OriginID:       originName,
			OriginName:     originName,
			FullName:       draft.FullName,
			Nationality:    draft.Nationality,
			OriginLocation: draft.OriginLocation,
			Purpose:        purpose,
			BedNumber:      draft.BedNumber,
			IDPhoto:        draft.IDPhoto,
			PermitPhoto:    draft.PermitPhoto,
			Timestamp:      now,
			Status:         state.GuestStatusSent,
		}
		result = RegistrationResult{Guest: guest, Outcome: OutcomeSuccess}

		if entry, matched := watchlist.Match(guest.FullName, next.Watchlist); matched {
			alertID, err := s.idProvider.NewID()
			if err != nil {
				s.logError(opRegister, reasonIDFailed, err)
				return nil, newServiceError(opRegister, reasonIDFailed, err)
			}
			alert := state.LogMessage{
				ID:         alertID,
				Sender:     SystemBotSender,
				SenderRole: SystemBotRole,
				Text:       composeAlertText(next.Language, guest, originAddress),
				Timestamp:  now,
			}
			appendLog(next, alert)
			result.Alert = &alert
			result.Match = &entry
			result.Outcome = OutcomeAlert
			kinds = append(kinds, ChangeMessages)
		}

		next.Guests = prepend(next.Guests, guest)
		return kinds, nil
	})
	if err != nil {
		return RegistrationResult{}, err
	}

	if result.Outcome == OutcomeAlert {
		s.loggerOrDefault().Warn("watchlist match on registration",
			zap.String("guest_id", result.Guest.ID),
			zap.String("watchlist_id", result.Match.ID),
			zap.String("origin", result.Guest.OriginName))
	} else {
		s.loggerOrDefault().Info("guest registered",
			zap.String("guest_id", result.Guest.ID),
			zap.String("origin", result.Guest.OriginName))
	}
	return result, nil
}

// AppendMessage adds an operator-authored message to the communication log.
func (s *Service) AppendMessage(ctx context.Context, text string) (state.LogMessage, error) {
	if strings.TrimSpace(text) == "" {
		return state.LogMessage{}, newServiceError(opAppendMessage, "empty_message", ErrEmptyMessage)
	}
	messageID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAppendMessage, reasonIDFailed, err)
		return state.LogMessage{}, newServiceError(opAppendMessage, reasonIDFailed, err)
	}

	var appended state.LogMessage
	err = s.mutate(ctx, opAppendMessage, func(next *state.ApplicationState) ([]ChangeKind, error) {
		sender, role := s.resolveSender(next.Session)
		appended = state.LogMessage{
			ID:         messageID,
			Sender:     sender,
			SenderRole: role,
			Text:       text,
			Timestamp:  s.clock().UTC(),
		}
		appendLog(next, appended)
		return []ChangeKind{ChangeMessages}, nil
	})
	if err != nil {
		return state.LogMessage{}, err
	}
	return appended, nil
}

// AddWatchlistEntry prepends a new entry to the watchlist. Only police sessions
// may add entries.
func (s *Service) AddWatchlistEntry(ctx context.Context, draft WatchlistDraft) (state.WatchlistEntry, error) {
	if strings.TrimSpace(draft.FullName) == "" {
		return state.WatchlistEntry{}, newServiceError(opAddWatchlist, "missing_full_name", ErrInvalidWatchlistEntry)
	}
	entryID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opAddWatchlist, reasonIDFailed, err)
		return state.WatchlistEntry{}, newServiceError(opAddWatchlist, reasonIDFailed, err)
	}

	var added state.WatchlistEntry
	err = s.mutate(ctx, opAddWatchlist, func(next *state.ApplicationState) ([]ChangeKind, error) {
		if next.Session == nil {
			return nil, newServiceError(opAddWatchlist, "no_session", ErrNoSession)
		}
		if next.Session.Role != state.RolePolice {
			return nil, newServiceError(opAddWatchlist, "role_not_permitted", ErrRoleNotPermitted)
		}
		added = state.WatchlistEntry{
			ID:          entryID,
			FullName:    draft.FullName,
			Description: draft.Description,
			AddedBy:     WatchlistAttribution,
			Timestamp:   s.clock().UTC(),
			Photo:       draft.Photo,
		}
		next.Watchlist = prepend(next.Watchlist, added)
		return []ChangeKind{ChangeWatchlist}, nil
	})
	if err != nil {
		return state.WatchlistEntry{}, err
	}
	return added, nil
}

// mutate applies change to a copy of the current state, persists the copy and
// commits it. Nothing is committed when change or the save fails.
func (s *Service) mutate(ctx context.Context, operation string, change func(next *state.ApplicationState) ([]ChangeKind, error)) error {
	s.mu.Lock()
	next := s.current.Clone()
	kinds, err := change(&next)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.mu.Unlock()
		s.logError(operation, reasonSaveFailed, err)
		return newServiceError(operation, reasonSaveFailed, err)
	}
	s.current = next
	s.mu.Unlock()

	if s.notifier != nil && len(kinds) > 0 {
		s.notifier.Notify(ChangeEvent{Kinds: kinds, Timestamp: s.clock().UTC()})
	}
	return nil
}

func (s *Service) resolveSender(current *state.Session) (string, state.Role) {
	if current == nil {
		return s.agencyName, state.RolePolice
	}
	if current.Role == state.RoleReception {
		if current.HotelProfile != nil && current.HotelProfile.Name != "" {
			return current.HotelProfile.Name, state.RoleReception
		}
		return FallbackReceptionSender, state.RoleReception
	}
	return s.agencyName, current.Role
}

func resolveOrigin(current *state.Session) (string, string) {
	name, address := FallbackOriginName, FallbackOriginAddress
	if current == nil || current.HotelProfile == nil {
		return name, address
	}
	if current.HotelProfile.Name != "" {
		name = current.HotelProfile.Name
	}
	if current.HotelProfile.Address != "" {
		address = current.HotelProfile.Address
	}
	return name, address
}

// appendLog is the single write path into the communication log. The log is
// kept newest-first.
func appendLog(next *state.ApplicationState, message state.LogMessage) {
	next.Messages = prepend(next.Messages, message)
}

func prepend[T any](items []T, item T) []T {
	result := make([]T, 0, len(items)+1)
	result = append(result, item)
	return append(result, items...)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil {
		return noOpLogger
	}
	if s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("registry service error", attrs...)
}
