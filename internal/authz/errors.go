package authz

import (
	"errors"
	"fmt"
)

// Login and registration failure taxonomy. All of these surface as short
// user-visible messages near the login form; none are fatal.
var (
	// ErrAccessDenied indicates an identity unknown to the roster.
	ErrAccessDenied = errors.New("access denied")
	// ErrAccountInactive indicates an administratively deactivated account.
	ErrAccountInactive = errors.New("account inactive")
	// ErrSubscriptionExpired indicates an account whose expiry is in the past.
	ErrSubscriptionExpired = errors.New("subscription expired")
	// ErrDeviceLocked indicates an account bound to a different device.
	ErrDeviceLocked = errors.New("locked to another device")
	// ErrUsernameTaken indicates a registration collision with roster or reserved names.
	ErrUsernameTaken = errors.New("username taken")
)

// DeviceAlreadyRegisteredError rejects a free registration because another
// active account already claimed the requesting device. It names the
// blocking account so the user can recover it.
type DeviceAlreadyRegisteredError struct {
	Username string // Account already bound to the device.
}

// Error implements the error interface.
func (e *DeviceAlreadyRegisteredError) Error() string {
	return fmt.Sprintf("device already registered (%s)", e.Username)
}
