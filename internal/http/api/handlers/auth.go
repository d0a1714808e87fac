package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/red-ai/redterm/internal/authz"
	"github.com/red-ai/redterm/internal/chat"
	"github.com/red-ai/redterm/internal/device"
	"github.com/red-ai/redterm/internal/models"
	"github.com/red-ai/redterm/internal/quota"
	"github.com/red-ai/redterm/internal/roster"
	"github.com/red-ai/redterm/internal/security"
)

// AuthHandler manages login, registration, and session lifecycle endpoints.
type AuthHandler struct {
	engine  *authz.Engine
	devices *device.Provider
	roster  *roster.Store
	quota   *quota.Tracker
	chat    *chat.Service
	jwtCfg  security.TokenConfig
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(engine *authz.Engine, devices *device.Provider, rosterStore *roster.Store, tracker *quota.Tracker, chatService *chat.Service, jwtCfg security.TokenConfig) *AuthHandler {
	return &AuthHandler{
		engine:  engine,
		devices: devices,
		roster:  rosterStore,
		quota:   tracker,
		chat:    chatService,
		jwtCfg:  jwtCfg,
	}
}

// credentialsRequest defines the request body for login and registration.
type credentialsRequest struct {
	Username string `json:"username"`
}

// Login authenticates an identity for this device and opens a conversation.
func (h *AuthHandler) Login(c *gin.Context) {
	var body credentialsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	deviceID, errDevice := h.devices.GetOrCreate(c.Request.Context())
	if errDevice != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "device identity unavailable"})
		return
	}

	decision, errLogin := h.engine.Login(c.Request.Context(), body.Username, deviceID)
	if errLogin != nil {
		c.JSON(AuthStatus(errLogin), gin.H{"error": errLogin.Error()})
		return
	}
	h.completeLogin(c, decision)
}

// Register creates a free-trial account bound to this device and logs it in.
func (h *AuthHandler) Register(c *gin.Context) {
	var body credentialsRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	deviceID, errDevice := h.devices.GetOrCreate(c.Request.Context())
	if errDevice != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "device identity unavailable"})
		return
	}

	decision, errRegister := h.engine.RegisterFreeTrial(c.Request.Context(), body.Username, deviceID)
	if errRegister != nil {
		c.JSON(AuthStatus(errRegister), gin.H{"error": errRegister.Error()})
		return
	}
	h.completeLogin(c, decision)
}

// Resume refreshes an authenticated session. The middleware has already
// revalidated the identity; a conversation lost to a restart is reopened.
func (h *AuthHandler) Resume(c *gin.Context) {
	username, class := sessionIdentity(c)

	transcript, errTranscript := h.chat.Transcript(username)
	if errTranscript != nil {
		transcript = h.chat.StartSession(username, class)
	}
	h.respondSession(c, http.StatusOK, authz.Decision{Username: username, Class: class}, "", transcript)
}

// Logout closes the identity's conversation. The session token simply stops
// being presented.
func (h *AuthHandler) Logout(c *gin.Context) {
	username, _ := sessionIdentity(c)
	h.chat.EndSession(username)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// completeLogin opens the conversation, mints the session token, and writes
// the full session payload.
func (h *AuthHandler) completeLogin(c *gin.Context, decision authz.Decision) {
	transcript := h.chat.StartSession(decision.Username, decision.Class)

	token, errToken := security.CreateToken(decision, h.jwtCfg)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "mint session token failed"})
		return
	}
	h.respondSession(c, http.StatusOK, decision, token, transcript)
}

// respondSession writes the session payload: identity, quota state, and the
// current transcript. The token field is omitted when empty.
func (h *AuthHandler) respondSession(c *gin.Context, status int, decision authz.Decision, token string, transcript []models.Message) {
	subject, errSubject := sessionSubject(c.Request.Context(), h.roster, h.engine.Config(), decision.Username)
	if errSubject != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load profile failed"})
		return
	}
	used, errUsed := h.quota.Used(c.Request.Context(), decision.Username)
	if errUsed != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load quota failed"})
		return
	}

	payload := gin.H{
		"username": decision.Username,
		"class":    decision.Class.String(),
		"quota": gin.H{
			"used":      used,
			"limit":     h.quota.Limit(),
			"unlimited": h.quota.Exempt(subject),
		},
		"messages": transcript,
	}
	if token != "" {
		payload["token"] = token
	}
	c.JSON(status, payload)
}

// sessionSubject builds the quota subject for an identity: reserved names
// have no roster entry, members carry their unlimited flag.
func sessionSubject(ctx context.Context, rosterStore *roster.Store, cfg authz.Config, username string) (quota.Subject, error) {
	subject := quota.Subject{Username: username}
	if cfg.IsReserved(username) {
		return subject, nil
	}
	entry, errFind := rosterStore.Find(ctx, username)
	if errFind != nil {
		return subject, errFind
	}
	if entry != nil {
		subject.Unlimited = entry.IsUnlimited
	}
	return subject, nil
}
