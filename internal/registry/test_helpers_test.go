package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
)

var errSaveRefused = errors.New("disk full")

type memoryStore struct {
	mu       sync.Mutex
	stored   *state.ApplicationState
	saves    int
	failSave bool
	loadErr  error
}

func (m *memoryStore) Load(context.Context) (state.ApplicationState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return state.ApplicationState{}, m.loadErr
	}
	if m.stored == nil {
		return state.Default(time.Unix(1700000000, 0)), nil
	}
	return m.stored.Clone(), nil
}

func (m *memoryStore) Save(_ context.Context, current state.ApplicationState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errSaveRefused
	}
	saved := current.Clone()
	m.stored = &saved
	m.saves++
	return nil
}

func (m *memoryStore) snapshot(t *testing.T) state.ApplicationState {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stored == nil {
		t.Fatalf("expected state to have been saved")
	}
	return m.stored.Clone()
}

type sequentialIDs struct {
	mu   sync.Mutex
	next int
}

func (s *sequentialIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	return fmt.Sprintf("id-%d", s.next), nil
}

type stubAuthenticator struct{}

func (stubAuthenticator) Authenticate(identity, secret string) (state.Role, bool) {
	switch {
	case identity == "reception" && secret == "1234":
		return state.RoleReception, true
	case identity == "police" && secret == "police@1234":
		return state.RolePolice, true
	default:
		return "", false
	}
}

type memoryProfiles struct {
	mu          sync.Mutex
	profiles    map[string]state.HotelProfile
	rememberErr error
}

func (m *memoryProfiles) ProfileFor(_ context.Context, username string) (*state.HotelProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile, ok := m.profiles[username]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (m *memoryProfiles) RememberProfile(_ context.Context, username string, profile state.HotelProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rememberErr != nil {
		return m.rememberErr
	}
	if m.profiles == nil {
		m.profiles = make(map[string]state.HotelProfile)
	}
	m.profiles[username] = profile
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *recordingNotifier) Notify(event ChangeEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *recordingNotifier) all() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ChangeEvent(nil), r.events...)
}

type testHarness struct {
	service  *Service
	store    *memoryStore
	profiles *memoryProfiles
	notifier *recordingNotifier
}

func newHarness(t *testing.T, store *memoryStore) testHarness {
	t.Helper()
	if store == nil {
		store = &memoryStore{}
	}
	profiles := &memoryProfiles{}
	notifier := &recordingNotifier{}
	service, err := NewService(context.Background(), ServiceConfig{
		Store:         store,
		Authenticator: stubAuthenticator{},
		Profiles:      profiles,
		IDProvider:    &sequentialIDs{},
		Notifier:      notifier,
		Clock: func() time.Time {
			return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)
		},
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return testHarness{service: service, store: store, profiles: profiles, notifier: notifier}
}

var nodeAProfile = state.HotelProfile{
	Name:             "Node A",
	Address:          "Region X",
	ReceptionistName: "Desk Clerk",
	Phone:            "0911000000",
}

func mustLoginReady(t *testing.T, service *Service, username, secret string) {
	t.Helper()
	ctx := context.Background()
	if _, _, err := service.Login(ctx, username, secret); err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if username == "reception" && service.Session().HotelProfile == nil {
		if _, err := service.SubmitProfile(ctx, nodeAProfile); err != nil {
			t.Fatalf("profile submission failed: %v", err)
		}
	}
}
