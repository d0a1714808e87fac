package models

import "time"

// AuthUser is one roster entry. The roster is persisted as a single JSON
// array of these records, so field shapes (absent vs null vs false) must
// survive a save/load round trip unchanged.
type AuthUser struct {
	Username    string  `json:"username"`              // Unique login name, case-sensitive.
	IsUnlimited bool    `json:"isUnlimited"`           // Bypasses the message quota.
	ExpiryDate  *int64  `json:"expiryDate"`            // Epoch millis; nil means permanent.
	IsActive    bool    `json:"isActive"`              // Administrative kill switch.
	CreatedAt   int64   `json:"createdAt"`             // Epoch millis at creation.
	DeviceID    *string `json:"deviceId,omitempty"`    // Bound device; absent means unclaimed.
	IsFreeTrial *bool   `json:"isFreeTrial,omitempty"` // Self-registered trial account marker.
}

// Expired reports whether the entry carries an expiry in the past.
func (u *AuthUser) Expired(now time.Time) bool {
	return u.ExpiryDate != nil && *u.ExpiryDate < now.UnixMilli()
}

// DeviceLinked reports whether the entry is bound to a device.
func (u *AuthUser) DeviceLinked() bool {
	return u.DeviceID != nil && *u.DeviceID != ""
}

// FreeTrial reports whether the entry was self-registered as a free trial.
func (u *AuthUser) FreeTrial() bool {
	return u.IsFreeTrial != nil && *u.IsFreeTrial
}
