package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/accounts"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/auth"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/database"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/registry"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var harnessNow = time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC)

type consoleHarness struct {
	handler  http.Handler
	registry *registry.Service
	tokens   *auth.TokenIssuer
	realtime *RealtimeDispatcher
	db       *gorm.DB
}

type harnessOption func(*Dependencies)

func withLogger(logger *zap.Logger) harnessOption {
	return func(deps *Dependencies) {
		deps.Logger = logger
	}
}

func withTokenManager(manager SessionTokenManager) harnessOption {
	return func(deps *Dependencies) {
		deps.TokenManager = manager
	}
}

func withAllowedOrigins(origins ...string) harnessOption {
	return func(deps *Dependencies) {
		deps.AllowedOrigins = origins
	}
}

func newConsoleHarness(t *testing.T, options ...harnessOption) consoleHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "console.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	clock := func() time.Time { return harnessNow }

	store, err := state.NewStore(state.StoreConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	profiles, err := accounts.NewService(accounts.ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to create profile service: %v", err)
	}
	authenticator, err := accounts.NewAuthenticator([]accounts.Credential{
		{Username: "reception", Secret: "1234", Role: state.RoleReception},
		{Username: "police", Secret: "police@1234", Role: state.RolePolice},
	}, accounts.Argon2idParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16})
	if err != nil {
		t.Fatalf("failed to create authenticator: %v", err)
	}
	tokens, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte("test-secret"),
		Issuer:        "guestwatch-auth",
		Audience:      "guestwatch-api",
		TokenTTL:      time.Hour,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to create token issuer: %v", err)
	}
	realtime := NewRealtimeDispatcher()

	service, err := registry.NewService(context.Background(), registry.ServiceConfig{
		Store:         store,
		Authenticator: authenticator,
		Profiles:      profiles,
		IDProvider:    registry.NewUUIDProvider(),
		Notifier:      realtime,
		Clock:         clock,
	})
	if err != nil {
		t.Fatalf("failed to create registry service: %v", err)
	}

	deps := Dependencies{
		Registry:     service,
		TokenManager: tokens,
		Realtime:     realtime,
		Clock:        clock,
	}
	for _, option := range options {
		option(&deps)
	}
	handler, err := NewHTTPHandler(deps)
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return consoleHarness{handler: handler, registry: service, tokens: tokens, realtime: realtime, db: db}
}

func (h consoleHarness) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}
	request := httptest.NewRequest(method, path, reader)
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	h.handler.ServeHTTP(recorder, request)
	return recorder
}

func (h consoleHarness) login(t *testing.T, username, password string) loginResponsePayload {
	t.Helper()
	recorder := h.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": password})
	if recorder.Code != http.StatusOK {
		t.Fatalf("login for %s failed: %d %s", username, recorder.Code, recorder.Body.String())
	}
	var response loginResponsePayload
	decodeBody(t, recorder, &response)
	return response
}

func (h consoleHarness) loginReception(t *testing.T) string {
	t.Helper()
	response := h.login(t, "reception", "1234")
	recorder := h.do(t, http.MethodPost, "/profile", response.AccessToken, map[string]string{
		"name":             "Node A",
		"address":          "Region X",
		"receptionistName": "Desk Clerk",
		"phone":            "0911000000",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("profile setup failed: %d %s", recorder.Code, recorder.Body.String())
	}
	return response.AccessToken
}

func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
}

func errorCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var payload struct {
		Error string `json:"error"`
	}
	decodeBody(t, recorder, &payload)
	return payload.Error
}
