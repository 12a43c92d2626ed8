package server

import (
	"bytes"
	"encoding/csv"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/auth"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/registry"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/reports"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/session"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err == nil {
		t.Fatalf("expected missing registry to be rejected")
	}
}

func TestLoginRejectsInvalidCredentials(t *testing.T) {
	harness := newConsoleHarness(t)

	recorder := harness.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "reception", "password": "wrong"})
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", recorder.Code)
	}
	if code := errorCode(t, recorder); code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %q", code)
	}
	if harness.registry.Session() != nil {
		t.Fatalf("expected no session after failed login")
	}

	recorder = harness.do(t, http.MethodPost, "/auth/login", "", map[string]string{"password": "1234"})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing username, got %d", recorder.Code)
	}
}

// refusingTokenManager validates like the real issuer but cannot sign.
type refusingTokenManager struct {
	*auth.TokenIssuer
}

func (refusingTokenManager) IssueSessionToken(string, state.Role) (string, int64, error) {
	return "", 0, errors.New("signing key unavailable")
}

func TestLoginEndsSessionWhenTokenIssueFails(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	refusing := newConsoleHarness(t, withLogger(zap.New(core)), withTokenManager(refusingTokenManager{}))

	recorder := refusing.do(t, http.MethodPost, "/auth/login", "", map[string]string{"username": "reception", "password": "1234"})
	if recorder.Code != http.StatusInternalServerError || errorCode(t, recorder) != "token_issue_failed" {
		t.Fatalf("expected token_issue_failed, got %d %s", recorder.Code, recorder.Body.String())
	}
	if refusing.registry.Session() != nil {
		t.Fatalf("expected the untokened session to be ended, got %#v", refusing.registry.Session())
	}
	if refusing.registry.Gate() != session.GateUnauthenticated {
		t.Fatalf("expected unauthenticated gate, got %s", refusing.registry.Gate())
	}
	if recorded.FilterMessage("failed to issue session token").Len() != 1 {
		t.Fatalf("expected token failure to be logged, got %v", recorded.All())
	}
}

func TestLogoutLogsSessionUser(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	harness := newConsoleHarness(t, withLogger(zap.New(core)))
	response := harness.login(t, "police", "police@1234")

	recorder := harness.do(t, http.MethodPost, "/auth/logout", response.AccessToken, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", recorder.Code)
	}
	entries := recorded.FilterMessage("session ended").All()
	if len(entries) != 1 {
		t.Fatalf("expected one logout entry, got %d", len(entries))
	}
	if username := entries[0].ContextMap()["username"]; username != "police" {
		t.Fatalf("expected logout to name the session user, got %v", username)
	}
}

func TestReceptionMustCompleteProfileBeforeRegistering(t *testing.T) {
	harness := newConsoleHarness(t)

	response := harness.login(t, "reception", "1234")
	if response.Gate != session.GateIncompleteProfile {
		t.Fatalf("expected incomplete_profile gate, got %s", response.Gate)
	}
	if response.TokenType != "Bearer" || response.AccessToken == "" {
		t.Fatalf("unexpected token response: %#v", response)
	}

	recorder := harness.do(t, http.MethodPost, "/guests", response.AccessToken, map[string]string{"fullName": "Someone"})
	if recorder.Code != http.StatusForbidden || errorCode(t, recorder) != "profile_incomplete" {
		t.Fatalf("expected profile_incomplete, got %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = harness.do(t, http.MethodPost, "/profile", response.AccessToken, map[string]string{"name": "Node A"})
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder) != "incomplete_profile" {
		t.Fatalf("expected incomplete_profile, got %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = harness.do(t, http.MethodPost, "/profile", response.AccessToken, map[string]string{
		"name":             "Node A",
		"address":          "Region X",
		"receptionistName": "Desk Clerk",
		"phone":            "0911000000",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected profile setup to succeed, got %d %s", recorder.Code, recorder.Body.String())
	}
	var payload sessionResponsePayload
	decodeBody(t, recorder, &payload)
	if payload.Gate != session.GateReady || payload.Session == nil || payload.Session.HotelProfile == nil {
		t.Fatalf("expected ready session with profile, got %#v", payload)
	}
}

func TestRegisterGuestRaisesWatchlistAlert(t *testing.T) {
	harness := newConsoleHarness(t)
	token := harness.loginReception(t)

	recorder := harness.do(t, http.MethodPost, "/guests", token, map[string]string{
		"fullName":  "sample wanted name",
		"bedNumber": "12",
		"purpose":   "business",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d %s", recorder.Code, recorder.Body.String())
	}
	var result registrationResponsePayload
	decodeBody(t, recorder, &result)
	if result.Outcome != registry.OutcomeAlert || result.Alert == nil {
		t.Fatalf("expected alert outcome, got %#v", result)
	}
	for _, fragment := range []string{"Node A", "12", "Region X"} {
		if !strings.Contains(result.Alert.Text, fragment) {
			t.Fatalf("expected alert text to contain %q, got %q", fragment, result.Alert.Text)
		}
	}
	if result.Guest.OriginName != "Node A" || result.Guest.Purpose != state.PurposeBusiness {
		t.Fatalf("unexpected guest record: %#v", result.Guest)
	}

	recorder = harness.do(t, http.MethodGet, "/messages", token, nil)
	var messages struct {
		Messages []state.LogMessage `json:"messages"`
	}
	decodeBody(t, recorder, &messages)
	if len(messages.Messages) != 1 || messages.Messages[0].Sender != registry.SystemBotSender {
		t.Fatalf("expected one bot alert in the log, got %#v", messages.Messages)
	}
}

func TestRegisterGuestValidatesPayload(t *testing.T) {
	harness := newConsoleHarness(t)
	token := harness.loginReception(t)

	recorder := harness.do(t, http.MethodPost, "/guests", token, map[string]string{"fullName": "Guest", "purpose": "tourism"})
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder) != "invalid_purpose" {
		t.Fatalf("expected invalid_purpose, got %d %s", recorder.Code, recorder.Body.String())
	}
	recorder = harness.do(t, http.MethodPost, "/guests", token, map[string]string{"fullName": "  "})
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder) != "invalid_request" {
		t.Fatalf("expected invalid_request, got %d %s", recorder.Code, recorder.Body.String())
	}
	if len(harness.registry.Guests()) != 0 {
		t.Fatalf("expected rejected payloads to leave guests untouched")
	}
}

func TestListGuestsSearchesAndGroups(t *testing.T) {
	harness := newConsoleHarness(t)
	token := harness.loginReception(t)

	for _, name := range []string{"Abebe Kebede", "Almaz Tesfaye", "Kebede Worku"} {
		recorder := harness.do(t, http.MethodPost, "/guests", token, map[string]string{"fullName": name})
		if recorder.Code != http.StatusCreated {
			t.Fatalf("failed to register %s: %d", name, recorder.Code)
		}
	}

	recorder := harness.do(t, http.MethodGet, "/guests?q=kebede", token, nil)
	var listed struct {
		Guests []state.GuestRecord `json:"guests"`
	}
	decodeBody(t, recorder, &listed)
	if len(listed.Guests) != 2 || listed.Guests[0].FullName != "Kebede Worku" {
		t.Fatalf("unexpected search result: %#v", listed.Guests)
	}

	recorder = harness.do(t, http.MethodGet, "/guests?group=hotel", token, nil)
	var grouped struct {
		Groups []reports.GuestGroup `json:"groups"`
	}
	decodeBody(t, recorder, &grouped)
	if len(grouped.Groups) != 1 || grouped.Groups[0].Key != "Node A" || len(grouped.Groups[0].Guests) != 3 {
		t.Fatalf("unexpected grouping: %#v", grouped.Groups)
	}

	recorder = harness.do(t, http.MethodGet, "/guests?group=nationality", token, nil)
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder) != "invalid_grouping" {
		t.Fatalf("expected invalid_grouping, got %d", recorder.Code)
	}
}

func TestSingleSessionInvalidatesEarlierTokens(t *testing.T) {
	harness := newConsoleHarness(t)
	receptionToken := harness.loginReception(t)

	police := harness.login(t, "police", "police@1234")
	if police.Gate != session.GateReady {
		t.Fatalf("expected police to land in ready, got %s", police.Gate)
	}

	recorder := harness.do(t, http.MethodGet, "/messages", receptionToken, nil)
	if recorder.Code != http.StatusUnauthorized || errorCode(t, recorder) != "session_inactive" {
		t.Fatalf("expected session_inactive for replaced session, got %d %s", recorder.Code, recorder.Body.String())
	}

	recorder = harness.do(t, http.MethodPost, "/auth/logout", police.AccessToken, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected logout to succeed, got %d", recorder.Code)
	}
	recorder = harness.do(t, http.MethodGet, "/session", police.AccessToken, nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected token to be rejected after logout, got %d", recorder.Code)
	}
}

func TestRemembersProfileAcrossLogins(t *testing.T) {
	harness := newConsoleHarness(t)
	token := harness.loginReception(t)

	if recorder := harness.do(t, http.MethodPost, "/auth/logout", token, nil); recorder.Code != http.StatusNoContent {
		t.Fatalf("expected logout to succeed, got %d", recorder.Code)
	}
	response := harness.login(t, "reception", "1234")
	if response.Gate != session.GateReady {
		t.Fatalf("expected remembered profile to make the session ready, got %s", response.Gate)
	}
	if response.Session.HotelProfile == nil || response.Session.HotelProfile.Name != "Node A" {
		t.Fatalf("expected remembered profile, got %#v", response.Session.HotelProfile)
	}

	recorder := harness.do(t, http.MethodPut, "/profile", response.AccessToken, map[string]string{
		"name":             "Node B",
		"address":          "Region Y",
		"receptionistName": "Night Clerk",
		"phone":            "0922000000",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected profile update to succeed, got %d %s", recorder.Code, recorder.Body.String())
	}
	if harness.registry.Session().HotelProfile.Name != "Node B" {
		t.Fatalf("expected updated profile in session")
	}
}

func TestRoleRestrictedRoutes(t *testing.T) {
	harness := newConsoleHarness(t)
	police := harness.login(t, "police", "police@1234")

	recorder := harness.do(t, http.MethodPost, "/guests", police.AccessToken, map[string]string{"fullName": "Guest"})
	if recorder.Code != http.StatusForbidden || errorCode(t, recorder) != "role_not_permitted" {
		t.Fatalf("expected police registration to be forbidden, got %d", recorder.Code)
	}

	recorder = harness.do(t, http.MethodPost, "/watchlist", police.AccessToken, map[string]string{"fullName": "Wanted Person", "description": "warrant"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected watchlist add to succeed, got %d %s", recorder.Code, recorder.Body.String())
	}
	var entry state.WatchlistEntry
	decodeBody(t, recorder, &entry)
	if entry.AddedBy != registry.WatchlistAttribution || entry.FullName != "Wanted Person" {
		t.Fatalf("unexpected watchlist entry: %#v", entry)
	}

	recorder = harness.do(t, http.MethodPost, "/watchlist", police.AccessToken, map[string]string{"fullName": " "})
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder) != "invalid_watchlist_entry" {
		t.Fatalf("expected invalid_watchlist_entry, got %d", recorder.Code)
	}

	receptionToken := harness.loginReception(t)
	recorder = harness.do(t, http.MethodPost, "/watchlist", receptionToken, map[string]string{"fullName": "Someone"})
	if recorder.Code != http.StatusForbidden {
		t.Fatalf("expected reception watchlist add to be forbidden, got %d", recorder.Code)
	}

	recorder = harness.do(t, http.MethodGet, "/watchlist", receptionToken, nil)
	var listed struct {
		Watchlist []state.WatchlistEntry `json:"watchlist"`
	}
	decodeBody(t, recorder, &listed)
	if len(listed.Watchlist) != 2 || listed.Watchlist[0].FullName != "Wanted Person" {
		t.Fatalf("expected newest watchlist entry first, got %#v", listed.Watchlist)
	}
}

func TestChatMessages(t *testing.T) {
	harness := newConsoleHarness(t)
	token := harness.loginReception(t)

	recorder := harness.do(t, http.MethodPost, "/messages", token, map[string]string{"text": "   "})
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder) != "empty_message" {
		t.Fatalf("expected empty_message, got %d", recorder.Code)
	}

	recorder = harness.do(t, http.MethodPost, "/messages", token, map[string]string{"text": "room 4 checked out"})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("expected message to be accepted, got %d", recorder.Code)
	}
	var message state.LogMessage
	decodeBody(t, recorder, &message)
	if message.Sender != "Node A" || message.SenderRole != state.RoleReception {
		t.Fatalf("unexpected attribution: %#v", message)
	}
}

func TestLanguageToggle(t *testing.T) {
	harness := newConsoleHarness(t)

	recorder := harness.do(t, http.MethodPut, "/language", "", map[string]string{"language": "en"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected language switch to succeed, got %d", recorder.Code)
	}
	if harness.registry.Snapshot().Language != state.LanguageEnglish {
		t.Fatalf("expected english language")
	}

	recorder = harness.do(t, http.MethodPut, "/language", "", map[string]string{"language": "fr"})
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder) != "invalid_language" {
		t.Fatalf("expected invalid_language, got %d", recorder.Code)
	}
}

func TestReportsRenderSummaryAndExports(t *testing.T) {
	harness := newConsoleHarness(t)
	token := harness.loginReception(t)
	harness.do(t, http.MethodPost, "/guests", token, map[string]string{"fullName": "Sample Wanted Name", "bedNumber": "3"})
	harness.do(t, http.MethodPost, "/guests", token, map[string]string{"fullName": "Almaz Tesfaye", "purpose": "health"})

	recorder := harness.do(t, http.MethodGet, "/reports/weekly", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected summary, got %d", recorder.Code)
	}
	var summary reports.Summary
	decodeBody(t, recorder, &summary)
	if summary.Total != 2 || summary.AlertCount != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}

	recorder = harness.do(t, http.MethodGet, "/reports/weekly?format=csv", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected csv export, got %d", recorder.Code)
	}
	if disposition := recorder.Header().Get("Content-Disposition"); !strings.Contains(disposition, "Begu_Engeda_Report_weekly.csv") {
		t.Fatalf("unexpected content disposition %q", disposition)
	}
	rows, err := csv.NewReader(bytes.NewReader(recorder.Body.Bytes())).ReadAll()
	if err != nil {
		t.Fatalf("failed to parse csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header and two rows, got %d", len(rows))
	}

	recorder = harness.do(t, http.MethodGet, "/reports/monthly?format=xlsx", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected xlsx export, got %d", recorder.Code)
	}
	workbook, err := excelize.OpenReader(bytes.NewReader(recorder.Body.Bytes()))
	if err != nil {
		t.Fatalf("failed to open workbook: %v", err)
	}
	defer workbook.Close()

	recorder = harness.do(t, http.MethodGet, "/reports/hourly", token, nil)
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder) != "invalid_window" {
		t.Fatalf("expected invalid_window, got %d", recorder.Code)
	}
	var rejected struct {
		Windows []reports.Window `json:"windows"`
	}
	decodeBody(t, recorder, &rejected)
	if len(rejected.Windows) != 7 || rejected.Windows[0] != reports.WindowDaily || rejected.Windows[6] != reports.WindowYearly {
		t.Fatalf("expected supported windows in display order, got %v", rejected.Windows)
	}
	recorder = harness.do(t, http.MethodGet, "/reports/weekly?format=pdf", token, nil)
	if recorder.Code != http.StatusBadRequest || errorCode(t, recorder) != "invalid_format" {
		t.Fatalf("expected invalid_format, got %d", recorder.Code)
	}
}

func TestAuthorizeRequestLogsRejectedTokens(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	harness := newConsoleHarness(t, withLogger(zap.New(core)))

	recorder := harness.do(t, http.MethodGet, "/session", "", nil)
	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", recorder.Code)
	}

	recorder = harness.do(t, http.MethodGet, "/session", "not-a-jwt", nil)
	if recorder.Code != http.StatusUnauthorized || errorCode(t, recorder) != "unauthorized" {
		t.Fatalf("expected unauthorized for malformed token, got %d", recorder.Code)
	}
	if recorded.FilterMessage("token validation failed").Len() != 1 {
		t.Fatalf("expected token validation failure to be logged, got %v", recorded.All())
	}

	token, _, err := harness.tokens.IssueSessionToken("reception", state.RoleReception)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	recorder = harness.do(t, http.MethodGet, "/session", token, nil)
	if recorder.Code != http.StatusUnauthorized || errorCode(t, recorder) != "session_inactive" {
		t.Fatalf("expected session_inactive without login, got %d", recorder.Code)
	}
	if recorded.FilterMessage("token presented for inactive session").Len() != 1 {
		t.Fatalf("expected inactive session to be logged")
	}
}
