package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/guestwatch/internal/auth"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/registry"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/reports"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/session"
	"github.com/MarcoPoloResearchLab/guestwatch/internal/state"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	usernameContextKey = "guestwatch_username"
	roleContextKey     = "guestwatch_role"

	accessTokenQueryParameter = "access_token"
	xlsxContentType           = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var (
	errMissingRegistry      = errors.New("registry service dependency required")
	errMissingTokenManager  = errors.New("token manager dependency required")
	errMissingRealtime      = errors.New("realtime dispatcher dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// SessionTokenManager issues and validates the bearer tokens handed out at login.
type SessionTokenManager interface {
	IssueSessionToken(username string, role state.Role) (string, int64, error)
	ValidateToken(token string) (auth.SessionClaims, error)
}

type Dependencies struct {
	Registry       *registry.Service
	TokenManager   SessionTokenManager
	Realtime       *RealtimeDispatcher
	Logger         *zap.Logger
	Clock          func() time.Time
	AllowedOrigins []string
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Realtime == nil {
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:  origins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Disposition"},
		MaxAge:        12 * time.Hour,
	}))

	handler := &httpHandler{
		registry: deps.Registry,
		tokens:   deps.TokenManager,
		realtime: deps.Realtime,
		logger:   logger,
		clock:    clock,
	}

	router.POST("/auth/login", handler.handleLogin)
	router.PUT("/language", handler.handleSetLanguage)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/auth/logout", handler.handleLogout)
	protected.GET("/session", handler.handleSession)
	protected.GET("/events", handler.handleEvents)
	protected.POST("/profile", requireRole(state.RoleReception), handler.handleSubmitProfile(http.StatusCreated))

	ready := protected.Group("/")
	ready.Use(handler.requireReady)
	ready.PUT("/profile", requireRole(state.RoleReception), handler.handleSubmitProfile(http.StatusOK))
	ready.POST("/guests", requireRole(state.RoleReception), handler.handleRegisterGuest)
	ready.GET("/guests", handler.handleListGuests)
	ready.GET("/watchlist", handler.handleListWatchlist)
	ready.POST("/watchlist", requireRole(state.RolePolice), handler.handleAddWatchlistEntry)
	ready.GET("/messages", handler.handleListMessages)
	ready.POST("/messages", handler.handleAppendMessage)
	ready.GET("/reports/:window", handler.handleReport)

	return router, nil
}

type httpHandler struct {
	registry *registry.Service
	tokens   SessionTokenManager
	realtime *RealtimeDispatcher
	logger   *zap.Logger
	clock    func() time.Time
}

type loginRequestPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponsePayload struct {
	AccessToken string            `json:"access_token"`
	ExpiresIn   int64             `json:"expires_in"`
	TokenType   string            `json:"token_type"`
	Session     state.Session     `json:"session"`
	Gate        session.GateState `json:"gate"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Username) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	started, gate, err := h.registry.Login(c.Request.Context(), request.Username, request.Password)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	token, expiresIn, err := h.tokens.IssueSessionToken(started.Username, started.Role)
	if err != nil {
		h.logger.Error("failed to issue session token", zap.String("username", started.Username), zap.Error(err))
		// Nobody holds a token for the new session, so it is ended again.
		if logoutErr := h.registry.Logout(c.Request.Context()); logoutErr != nil {
			h.logger.Error("failed to end untokened session", zap.String("username", started.Username), zap.Error(logoutErr))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		Session:     started,
		Gate:        gate,
	})
}

func (h *httpHandler) handleLogout(c *gin.Context) {
	if err := h.registry.Logout(c.Request.Context()); err != nil {
		h.writeServiceError(c, err)
		return
	}
	h.logger.Info("session ended", zap.String("username", c.GetString(usernameContextKey)))
	c.Status(http.StatusNoContent)
}

type sessionResponsePayload struct {
	Session  *state.Session    `json:"session"`
	Gate     session.GateState `json:"gate"`
	Language state.Language    `json:"language"`
}

func (h *httpHandler) handleSession(c *gin.Context) {
	snapshot := h.registry.Snapshot()
	c.JSON(http.StatusOK, sessionResponsePayload{
		Session:  snapshot.Session,
		Gate:     session.Resolve(snapshot.Session),
		Language: snapshot.Language,
	})
}

type profileRequestPayload struct {
	Name             string `json:"name"`
	Address          string `json:"address"`
	ReceptionistName string `json:"receptionistName"`
	Phone            string `json:"phone"`
}

func (h *httpHandler) handleSubmitProfile(successStatus int) gin.HandlerFunc {
	return func(c *gin.Context) {
		var request profileRequestPayload
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
			return
		}
		gate, err := h.registry.SubmitProfile(c.Request.Context(), state.HotelProfile{
			Name:             request.Name,
			Address:          request.Address,
			ReceptionistName: request.ReceptionistName,
			Phone:            request.Phone,
		})
		if err != nil {
			h.writeServiceError(c, err)
			return
		}
		c.JSON(successStatus, sessionResponsePayload{
			Session:  h.registry.Session(),
			Gate:     gate,
			Language: h.registry.Snapshot().Language,
		})
	}
}

type languageRequestPayload struct {
	Language string `json:"language"`
}

func (h *httpHandler) handleSetLanguage(c *gin.Context) {
	var request languageRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	language, ok := state.ParseLanguage(request.Language)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_language"})
		return
	}
	if err := h.registry.SetLanguage(c.Request.Context(), language); err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"language": language})
}

type guestRequestPayload struct {
	FullName       string `json:"fullName"`
	Nationality    string `json:"nationality"`
	OriginLocation string `json:"originLocation"`
	Purpose        string `json:"purpose"`
	BedNumber      string `json:"bedNumber"`
	IDPhoto        string `json:"idPhoto"`
	PermitPhoto    string `json:"permitPhoto"`
}

type registrationResponsePayload struct {
	Guest   state.GuestRecord            `json:"guest"`
	Alert   *state.LogMessage            `json:"alert,omitempty"`
	Match   *state.WatchlistEntry        `json:"match,omitempty"`
	Outcome registry.RegistrationOutcome `json:"outcome"`
}

func (h *httpHandler) handleRegisterGuest(c *gin.Context) {
	var request guestRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.FullName) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	purpose, ok := state.ParsePurpose(request.Purpose)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_purpose"})
		return
	}

	result, err := h.registry.Register(c.Request.Context(), registry.GuestDraft{
		FullName:       request.FullName,
		Nationality:    request.Nationality,
		OriginLocation: request.OriginLocation,
		Purpose:        purpose,
		BedNumber:      request.BedNumber,
		IDPhoto:        request.IDPhoto,
		PermitPhoto:    request.PermitPhoto,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, registrationResponsePayload{
		Guest:   result.Guest,
		Alert:   result.Alert,
		Match:   result.Match,
		Outcome: result.Outcome,
	})
}

func (h *httpHandler) handleListGuests(c *gin.Context) {
	guests := reports.SearchByName(h.registry.Guests(), c.Query("q"))

	rawGrouping := strings.TrimSpace(c.Query("group"))
	if rawGrouping == "" {
		c.JSON(http.StatusOK, gin.H{"guests": guests})
		return
	}
	grouping, ok := parseGrouping(rawGrouping)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_grouping"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": reports.Group(guests, grouping)})
}

func (h *httpHandler) handleListWatchlist(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"watchlist": h.registry.Watchlist()})
}

type watchlistRequestPayload struct {
	FullName    string `json:"fullName"`
	Description string `json:"description"`
	Photo       string `json:"photo"`
}

func (h *httpHandler) handleAddWatchlistEntry(c *gin.Context) {
	var request watchlistRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	entry, err := h.registry.AddWatchlistEntry(c.Request.Context(), registry.WatchlistDraft{
		FullName:    request.FullName,
		Description: request.Description,
		Photo:       request.Photo,
	})
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *httpHandler) handleListMessages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"messages": h.registry.Messages()})
}

type messageRequestPayload struct {
	Text string `json:"text"`
}

func (h *httpHandler) handleAppendMessage(c *gin.Context) {
	var request messageRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	message, err := h.registry.AppendMessage(c.Request.Context(), request.Text)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (h *httpHandler) handleReport(c *gin.Context) {
	window, ok := reports.ParseWindow(c.Param("window"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_window", "windows": reports.Windows})
		return
	}
	summary := reports.Summarize(h.registry.Snapshot(), window, h.clock())

	format := strings.ToLower(strings.TrimSpace(c.DefaultQuery("format", "json")))
	switch format {
	case "json":
		c.JSON(http.StatusOK, summary)
	case "csv":
		payload, err := reports.ExportCSV(summary.Guests)
		if err != nil {
			h.logger.Error("failed to export csv report", zap.String("window", string(window)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
			return
		}
		writeAttachment(c, reports.ExportFileName(window, format), "text/csv; charset=utf-8", payload)
	case "xlsx":
		payload, err := reports.ExportXLSX(summary.Guests)
		if err != nil {
			h.logger.Error("failed to export xlsx report", zap.String("window", string(window)), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export_failed"})
			return
		}
		writeAttachment(c, reports.ExportFileName(window, format), xlsxContentType, payload)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_format"})
	}
}

type realtimePayload struct {
	Kinds     []string `json:"kinds"`
	Timestamp int64    `json:"timestamp_s"`
	Source    string   `json:"source"`
}

func (h *httpHandler) handleEvents(c *gin.Context) {
	ctx := c.Request.Context()
	stream, cleanup := h.realtime.Subscribe(ctx)
	defer cleanup()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(realtimeHeartbeatInterval)
	defer heartbeat.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case message, ok := <-stream:
			if !ok {
				return false
			}
			c.SSEvent(message.EventType, realtimePayload{
				Kinds:     message.Kinds,
				Timestamp: message.Timestamp.Unix(),
				Source:    realtimeSourceBackend,
			})
			return true
		case tick := <-heartbeat.C:
			c.SSEvent(realtimeEventHeartbeat, realtimePayload{
				Timestamp: tick.Unix(),
				Source:    realtimeSourceBackend,
			})
			return true
		}
	})
}

// authorizeRequest accepts a bearer token from the Authorization header, or from
// the access_token query parameter for event streams opened by EventSource. A
// valid token is honoured only while its subject holds the active session.
func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, err := extractToken(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	active := h.registry.Session()
	if active == nil || active.Username != claims.Subject || active.Role != claims.Role {
		h.logger.Info("token presented for inactive session", zap.String("subject", claims.Subject))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "session_inactive"})
		return
	}
	c.Set(usernameContextKey, claims.Subject)
	c.Set(roleContextKey, string(claims.Role))
	c.Next()
}

func (h *httpHandler) requireReady(c *gin.Context) {
	if !session.Ready(h.registry.Session()) {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "profile_incomplete"})
		return
	}
	c.Next()
}

func requireRole(role state.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if state.Role(c.GetString(roleContextKey)) != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "role_not_permitted"})
			return
		}
		c.Next()
	}
}

func (h *httpHandler) writeServiceError(c *gin.Context, err error) {
	status, code := classifyServiceError(err)
	if status >= http.StatusInternalServerError {
		fields := []zap.Field{zap.String("path", c.FullPath()), zap.Error(err)}
		if username := c.GetString(usernameContextKey); username != "" {
			fields = append(fields, zap.String("username", username))
		}
		var serviceErr *registry.ServiceError
		if errors.As(err, &serviceErr) {
			fields = append(fields, zap.String("code", serviceErr.Code()))
		}
		h.logger.Error("request failed", fields...)
	}
	c.JSON(status, gin.H{"error": code})
}

func classifyServiceError(err error) (int, string) {
	switch {
	case errors.Is(err, registry.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, registry.ErrNoSession):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, registry.ErrRoleNotPermitted):
		return http.StatusForbidden, "role_not_permitted"
	case errors.Is(err, registry.ErrIncompleteProfile):
		return http.StatusBadRequest, "incomplete_profile"
	case errors.Is(err, registry.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, registry.ErrInvalidWatchlistEntry):
		return http.StatusBadRequest, "invalid_watchlist_entry"
	case errors.Is(err, registry.ErrInvalidLanguage):
		return http.StatusBadRequest, "invalid_language"
	case errors.Is(err, state.ErrUnavailable):
		return http.StatusServiceUnavailable, "storage_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func extractToken(c *gin.Context) (string, error) {
	header := c.GetHeader("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, "Bearer ") {
			return "", errInvalidAuthorization
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" {
			return "", errInvalidAuthorization
		}
		return token, nil
	}
	token := strings.TrimSpace(c.Query(accessTokenQueryParameter))
	if token == "" {
		return "", errInvalidAuthorization
	}
	return token, nil
}

func parseGrouping(raw string) (reports.Grouping, bool) {
	switch reports.Grouping(strings.ToLower(raw)) {
	case reports.GroupingNone:
		return reports.GroupingNone, true
	case reports.GroupingOrigin:
		return reports.GroupingOrigin, true
	case reports.GroupingDate:
		return reports.GroupingDate, true
	default:
		return "", false
	}
}

func writeAttachment(c *gin.Context, fileName, contentType string, payload []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, contentType, payload)
}
