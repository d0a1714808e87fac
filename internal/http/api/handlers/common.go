// Package handlers implements the HTTP endpoint handlers.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/red-ai/redterm/internal/admin"
	"github.com/red-ai/redterm/internal/authz"
	"github.com/red-ai/redterm/internal/chat"
)

// Context keys set by the session middleware.
const (
	ContextUsername = "sessionUsername"
	ContextClass    = "sessionClass"
)

// AuthStatus maps an authorization failure to its HTTP status.
func AuthStatus(err error) int {
	var deviceErr *authz.DeviceAlreadyRegisteredError
	switch {
	case errors.Is(err, authz.ErrAccessDenied):
		return http.StatusUnauthorized
	case errors.Is(err, authz.ErrAccountInactive),
		errors.Is(err, authz.ErrSubscriptionExpired),
		errors.Is(err, authz.ErrDeviceLocked):
		return http.StatusForbidden
	case errors.Is(err, authz.ErrUsernameTaken), errors.As(err, &deviceErr):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// adminStatus maps a management failure to its HTTP status.
func adminStatus(err error) int {
	switch {
	case errors.Is(err, admin.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, admin.ErrDuplicateUser):
		return http.StatusConflict
	case errors.Is(err, admin.ErrReservedIdentity), errors.Is(err, admin.ErrBadConfirmation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// chatStatus maps a conversation failure to its HTTP status.
func chatStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrQuotaExhausted):
		return http.StatusTooManyRequests
	case errors.Is(err, chat.ErrSessionBusy):
		return http.StatusConflict
	case errors.Is(err, chat.ErrNoSession):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// sessionIdentity reads the authenticated identity from the request context.
func sessionIdentity(c *gin.Context) (string, authz.IdentityClass) {
	username, _ := c.Get(ContextUsername)
	class, _ := c.Get(ContextClass)
	name, _ := username.(string)
	cls, _ := class.(authz.IdentityClass)
	return name, cls
}
