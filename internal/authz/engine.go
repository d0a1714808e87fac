// Package authz evaluates login attempts and free-trial registrations
// against the roster, the system-reserved identities, and the device-lock
// rules.
package authz

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/red-ai/redterm/internal/models"
	"github.com/red-ai/redterm/internal/roster"
)

// IdentityClass describes the privilege tier of an authenticated identity.
type IdentityClass int

// Identity classes, in ascending privilege order.
const (
	// ClassMember is a regular roster account.
	ClassMember IdentityClass = iota
	// ClassVIP is the reserved always-unlimited identity.
	ClassVIP
	// ClassSuperAdmin is the reserved administrator identity.
	ClassSuperAdmin
)

// String returns the wire name of the class.
func (c IdentityClass) String() string {
	switch c {
	case ClassSuperAdmin:
		return "super-admin"
	case ClassVIP:
		return "vip"
	default:
		return "member"
	}
}

// Config holds the injected authorization parameters: the reserved
// identities living outside the roster and the free-trial duration.
type Config struct {
	SuperAdmin string // Reserved administrator username.
	VIP        string // Reserved VIP username.
	TrialDays  int    // Free-trial lifetime in days.
}

// IsReserved reports whether username matches a reserved identity.
func (c Config) IsReserved(username string) bool {
	return username != "" && (username == c.SuperAdmin || username == c.VIP)
}

// classOf returns the identity class for username.
func (c Config) classOf(username string) IdentityClass {
	switch username {
	case c.SuperAdmin:
		return ClassSuperAdmin
	case c.VIP:
		return ClassVIP
	default:
		return ClassMember
	}
}

// Decision is the outcome of a successful authorization step.
type Decision struct {
	Username string        // Authenticated identity.
	Class    IdentityClass // Privilege tier.

	// BindDevice is the optional roster-mutation command produced by a first
	// login of an unclaimed account: the caller must persist the binding of
	// the current device before completing the login.
	BindDevice bool
}

// Evaluate runs the login state machine over a roster snapshot. Checks apply
// in strict order and the first match wins: reserved identity, roster miss,
// inactive, expired, device mismatch. It is a pure function; the returned
// decision carries any required roster mutation instead of applying it.
func Evaluate(cfg Config, users []models.AuthUser, username, deviceID string, now time.Time) (Decision, error) {
	if cfg.IsReserved(username) {
		return Decision{Username: username, Class: cfg.classOf(username)}, nil
	}

	var entry *models.AuthUser
	for i := range users {
		if users[i].Username == username {
			entry = &users[i]
			break
		}
	}
	if entry == nil {
		return Decision{}, ErrAccessDenied
	}
	if !entry.IsActive {
		return Decision{}, ErrAccountInactive
	}
	if entry.Expired(now) {
		return Decision{}, ErrSubscriptionExpired
	}
	if entry.DeviceLinked() {
		if *entry.DeviceID != deviceID {
			return Decision{}, ErrDeviceLocked
		}
		return Decision{Username: username, Class: ClassMember}, nil
	}
	return Decision{Username: username, Class: ClassMember, BindDevice: true}, nil
}

// Engine applies the authorization rules against the persisted roster.
type Engine struct {
	cfg     Config
	roster  *roster.Store
	nowFunc func() time.Time
}

// NewEngine constructs an Engine over the given roster store.
func NewEngine(cfg Config, rosterStore *roster.Store) *Engine {
	return &Engine{cfg: cfg, roster: rosterStore, nowFunc: time.Now}
}

// Config returns the injected authorization parameters.
func (e *Engine) Config() Config { return e.cfg }

// Login evaluates a login attempt for the device presenting deviceID. A
// first login of an unclaimed account persists the device binding before the
// decision is returned.
func (e *Engine) Login(ctx context.Context, username, deviceID string) (Decision, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Decision{}, ErrAccessDenied
	}

	users, errLoad := e.roster.Load(ctx)
	if errLoad != nil {
		return Decision{}, errLoad
	}
	decision, errEval := Evaluate(e.cfg, users, username, deviceID, e.nowFunc())
	if errEval != nil {
		return Decision{}, errEval
	}
	if decision.BindDevice {
		if errBind := e.bindDevice(ctx, username, deviceID); errBind != nil {
			return Decision{}, errBind
		}
	}
	return decision, nil
}

// Revalidate re-checks an already-authenticated identity against the
// persisted roster, so administrative changes made elsewhere take effect on
// the next session resume. It never claims a device; the binding step is a
// login-only transition.
func (e *Engine) Revalidate(ctx context.Context, username, deviceID string) (Decision, error) {
	if e.cfg.IsReserved(username) {
		return Decision{Username: username, Class: e.cfg.classOf(username)}, nil
	}

	entry, errFind := e.roster.Find(ctx, username)
	if errFind != nil {
		return Decision{}, errFind
	}
	if entry == nil {
		return Decision{}, ErrAccessDenied
	}
	if !entry.IsActive {
		return Decision{}, ErrAccountInactive
	}
	if entry.Expired(e.nowFunc()) {
		return Decision{}, ErrSubscriptionExpired
	}
	if entry.DeviceLinked() && *entry.DeviceID != deviceID {
		return Decision{}, ErrDeviceLocked
	}
	return Decision{Username: username, Class: ClassMember}, nil
}

// RegisterFreeTrial creates a self-service trial account bound to the
// requesting device. It enforces one free account per device: registration
// fails while any other active roster entry holds the device.
func (e *Engine) RegisterFreeTrial(ctx context.Context, username, deviceID string) (Decision, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return Decision{}, ErrUsernameTaken
	}
	if e.cfg.IsReserved(username) {
		return Decision{}, ErrUsernameTaken
	}

	now := e.nowFunc()
	expiry := now.Add(time.Duration(e.cfg.TrialDays) * 24 * time.Hour).UnixMilli()
	trial := true

	_, errUpdate := e.roster.Update(ctx, func(users []models.AuthUser) ([]models.AuthUser, error) {
		// The name collision is checked across the whole roster before the
		// device scan so the reported error does not depend on entry order.
		for i := range users {
			if users[i].Username == username {
				return nil, ErrUsernameTaken
			}
		}
		for i := range users {
			if users[i].IsActive && users[i].DeviceLinked() && *users[i].DeviceID == deviceID {
				return nil, &DeviceAlreadyRegisteredError{Username: users[i].Username}
			}
		}
		return append(users, models.AuthUser{
			Username:    username,
			IsUnlimited: false,
			ExpiryDate:  &expiry,
			IsActive:    true,
			CreatedAt:   now.UnixMilli(),
			DeviceID:    &deviceID,
			IsFreeTrial: &trial,
		}), nil
	})
	if errUpdate != nil {
		return Decision{}, errUpdate
	}
	return Decision{Username: username, Class: ClassMember}, nil
}

// bindDevice claims the current device for an unclaimed roster entry.
func (e *Engine) bindDevice(ctx context.Context, username, deviceID string) error {
	_, errUpdate := e.roster.Update(ctx, func(users []models.AuthUser) ([]models.AuthUser, error) {
		for i := range users {
			if users[i].Username != username {
				continue
			}
			if users[i].DeviceLinked() {
				// Another session claimed the entry between evaluation and
				// apply; honor the lock.
				if *users[i].DeviceID != deviceID {
					return nil, ErrDeviceLocked
				}
				return users, nil
			}
			id := deviceID
			users[i].DeviceID = &id
			return users, nil
		}
		return nil, ErrAccessDenied
	})
	if errUpdate != nil {
		return fmt.Errorf("bind device for %s: %w", username, errUpdate)
	}
	return nil
}
