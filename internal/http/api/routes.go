// Package api wires the HTTP surface: route registration and the session
// middleware shared by the authenticated endpoints.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/red-ai/redterm/internal/admin"
	"github.com/red-ai/redterm/internal/authz"
	"github.com/red-ai/redterm/internal/chat"
	"github.com/red-ai/redterm/internal/device"
	"github.com/red-ai/redterm/internal/http/api/handlers"
	"github.com/red-ai/redterm/internal/quota"
	"github.com/red-ai/redterm/internal/ratelimit"
	"github.com/red-ai/redterm/internal/roster"
	"github.com/red-ai/redterm/internal/security"
	"gorm.io/gorm"
)

// Deps carries the constructed services the routes operate on.
type Deps struct {
	DB     *gorm.DB
	Engine *authz.Engine
	Device *device.Provider
	Roster *roster.Store
	Quota  *quota.Tracker
	Admin  *admin.Manager
	Chat   *chat.Service
	JWT    security.TokenConfig

	// Limiter throttles login and registration attempts per client address.
	// A nil limiter or non-positive limit disables throttling.
	Limiter    ratelimit.Limiter
	LoginLimit int
}

// RegisterRoutes registers all routes, middleware, and handlers.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	v1 := r.Group("/v1")

	authHandler := handlers.NewAuthHandler(deps.Engine, deps.Device, deps.Roster, deps.Quota, deps.Chat, deps.JWT)
	throttled := v1.Group("")
	throttled.Use(loginRateLimitMiddleware(deps.Limiter, deps.LoginLimit))
	throttled.POST("/auth/login", authHandler.Login)
	throttled.POST("/auth/register", authHandler.Register)

	authed := v1.Group("")
	authed.Use(sessionAuthMiddleware(deps))

	authed.POST("/auth/resume", authHandler.Resume)
	authed.POST("/auth/logout", authHandler.Logout)

	chatHandler := handlers.NewChatHandler(deps.Chat, deps.Roster, deps.Quota, deps.Engine.Config())
	authed.GET("/chat/messages", chatHandler.Transcript)
	authed.POST("/chat/messages", chatHandler.Send)
	authed.POST("/chat/clear", chatHandler.Clear)
	authed.GET("/quota", chatHandler.Quota)

	adminOnly := authed.Group("/admin")
	adminOnly.Use(superAdminMiddleware())

	userHandler := handlers.NewUserHandler(deps.Admin)
	adminOnly.GET("/users", userHandler.List)
	adminOnly.POST("/users", userHandler.Create)
	adminOnly.GET("/users/:username", userHandler.Get)
	adminOnly.PUT("/users/:username", userHandler.Update)
	adminOnly.POST("/users/:username/toggle-active", userHandler.ToggleActive)
	adminOnly.POST("/users/:username/unlink-device", userHandler.UnlinkDevice)
	adminOnly.POST("/users/:username/delete-request", userHandler.RequestDelete)
	adminOnly.DELETE("/users/:username", userHandler.ConfirmDelete)
}

// loginRateLimitMiddleware throttles credential attempts per client address
// over a one-minute window.
func loginRateLimitMiddleware(limiter ratelimit.Limiter, limit int) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil || limit <= 0 {
			c.Next()
			return
		}
		result, errAllow := limiter.Allow(c.Request.Context(), "login:"+c.ClientIP(), limit, time.Minute, time.Now())
		if errAllow != nil {
			// Throttling is advisory; an unavailable backend must not block
			// logins.
			c.Next()
			return
		}
		if !result.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many attempts"})
			return
		}
		c.Next()
	}
}

// sessionAuthMiddleware validates the bearer session token and re-checks the
// identity against the roster so administrative changes take effect on the
// next request.
func sessionAuthMiddleware(deps Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.VerifyToken(token, deps.JWT)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		deviceID, errDevice := deps.Device.GetOrCreate(c.Request.Context())
		if errDevice != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "device identity unavailable"})
			return
		}

		decision, errAuth := deps.Engine.Revalidate(c.Request.Context(), claims.Username, deviceID)
		if errAuth != nil {
			c.AbortWithStatusJSON(handlers.AuthStatus(errAuth), gin.H{"error": errAuth.Error()})
			return
		}

		c.Set(handlers.ContextUsername, decision.Username)
		c.Set(handlers.ContextClass, decision.Class)
		c.Next()
	}
}

// superAdminMiddleware restricts a group to the administrator identity.
func superAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		class, ok := c.Get(handlers.ContextClass)
		if !ok || class.(authz.IdentityClass) != authz.ClassSuperAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "administrator access required"})
			return
		}
		c.Next()
	}
}
