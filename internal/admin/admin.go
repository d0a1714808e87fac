// Package admin implements the account-management surface available to the
// administrator identity: creating, editing, listing, and deleting roster
// accounts.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/red-ai/redterm/internal/authz"
	"github.com/red-ai/redterm/internal/models"
	"github.com/red-ai/redterm/internal/quota"
	"github.com/red-ai/redterm/internal/roster"
)

// Management failure taxonomy.
var (
	// ErrReservedIdentity rejects operations that target a reserved username.
	ErrReservedIdentity = errors.New("reserved identity")
	// ErrDuplicateUser rejects a creation colliding with an existing account.
	ErrDuplicateUser = errors.New("user already exists")
	// ErrUserNotFound indicates the named account is not on the roster.
	ErrUserNotFound = errors.New("user not found")
	// ErrBadConfirmation rejects a deletion whose token does not match the
	// pending request.
	ErrBadConfirmation = errors.New("bad delete confirmation")
)

// Status filter values for ListUsers.
const (
	StatusAll      = "all"
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Plan filter values for ListUsers.
const (
	PlanAll  = "all"
	PlanFree = "free"
	PlanPaid = "paid"
)

// Sort orders for ListUsers.
const (
	SortNewest   = "newest"
	SortOldest   = "oldest"
	SortUsername = "username"
	SortExpiry   = "expiry"
)

// ListOptions narrows and orders the account listing.
type ListOptions struct {
	Query  string // Case-insensitive username substring.
	Status string // StatusAll, StatusActive, or StatusInactive.
	Plan   string // PlanAll, PlanFree, or PlanPaid.
	Sort   string // SortNewest, SortOldest, SortUsername, or SortExpiry.
}

// UserDetail is a roster entry enriched with its consumed-message count.
type UserDetail struct {
	models.AuthUser
	MessagesUsed int `json:"messagesUsed"`
}

// Manager performs roster mutations on behalf of the administrator. Every
// write goes through the roster store's single mutation surface; deletions
// additionally garbage-collect the account's quota counter.
type Manager struct {
	cfg     authz.Config
	roster  *roster.Store
	quota   *quota.Tracker
	nowFunc func() time.Time

	mu      sync.Mutex
	pending map[string]string // username -> confirmation token
}

// NewManager constructs a Manager over the given roster and quota stores.
func NewManager(cfg authz.Config, rosterStore *roster.Store, tracker *quota.Tracker) *Manager {
	return &Manager{
		cfg:     cfg,
		roster:  rosterStore,
		quota:   tracker,
		nowFunc: time.Now,
		pending: make(map[string]string),
	}
}

// AddUser creates a new active roster account. A positive durationDays puts
// the expiry that many days out; anything else grants a permanent subscription.
// The account starts without a device; the first successful login claims one.
func (m *Manager) AddUser(ctx context.Context, username string, isUnlimited bool, durationDays *int) (*models.AuthUser, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, errors.New("admin: empty username")
	}
	if m.cfg.IsReserved(username) {
		return nil, ErrReservedIdentity
	}

	now := m.nowFunc()
	entry := models.AuthUser{
		Username:    username,
		IsUnlimited: isUnlimited,
		ExpiryDate:  expiryFrom(now, durationDays),
		IsActive:    true,
		CreatedAt:   now.UnixMilli(),
	}

	_, errUpdate := m.roster.Update(ctx, func(users []models.AuthUser) ([]models.AuthUser, error) {
		for i := range users {
			if users[i].Username == username {
				return nil, ErrDuplicateUser
			}
		}
		return append(users, entry), nil
	})
	if errUpdate != nil {
		return nil, errUpdate
	}
	return &entry, nil
}

// UpdateUser changes an account's plan: the unlimited flag and a freshly
// computed expiry. Identity, device binding, and activation state are not
// touched here.
func (m *Manager) UpdateUser(ctx context.Context, username string, isUnlimited bool, durationDays *int) (*models.AuthUser, error) {
	expiry := expiryFrom(m.nowFunc(), durationDays)

	var updated *models.AuthUser
	_, errUpdate := m.roster.Update(ctx, func(users []models.AuthUser) ([]models.AuthUser, error) {
		for i := range users {
			if users[i].Username != username {
				continue
			}
			users[i].IsUnlimited = isUnlimited
			users[i].ExpiryDate = expiry
			entry := users[i]
			updated = &entry
			return users, nil
		}
		return nil, ErrUserNotFound
	})
	if errUpdate != nil {
		return nil, errUpdate
	}
	return updated, nil
}

// ToggleActive flips an account between active and deactivated and returns
// the new state. Deactivation revokes access on the next login or resume.
func (m *Manager) ToggleActive(ctx context.Context, username string) (bool, error) {
	var active bool
	_, errUpdate := m.roster.Update(ctx, func(users []models.AuthUser) ([]models.AuthUser, error) {
		for i := range users {
			if users[i].Username != username {
				continue
			}
			users[i].IsActive = !users[i].IsActive
			active = users[i].IsActive
			return users, nil
		}
		return nil, ErrUserNotFound
	})
	if errUpdate != nil {
		return false, errUpdate
	}
	return active, nil
}

// UnlinkDevice releases an account's device binding so the next login can
// claim a new device.
func (m *Manager) UnlinkDevice(ctx context.Context, username string) error {
	_, errUpdate := m.roster.Update(ctx, func(users []models.AuthUser) ([]models.AuthUser, error) {
		for i := range users {
			if users[i].Username != username {
				continue
			}
			users[i].DeviceID = nil
			return users, nil
		}
		return nil, ErrUserNotFound
	})
	return errUpdate
}

// RequestDelete starts a two-phase deletion and returns the confirmation
// token the caller must echo back. A repeated request replaces the previous
// token.
func (m *Manager) RequestDelete(ctx context.Context, username string) (string, error) {
	entry, errFind := m.roster.Find(ctx, username)
	if errFind != nil {
		return "", errFind
	}
	if entry == nil {
		return "", ErrUserNotFound
	}

	token := uuid.NewString()
	m.mu.Lock()
	m.pending[username] = token
	m.mu.Unlock()
	return token, nil
}

// ConfirmDelete completes a pending deletion. The account leaves the roster
// and its quota counter is removed so a later account with the same name
// starts fresh.
func (m *Manager) ConfirmDelete(ctx context.Context, username, token string) error {
	m.mu.Lock()
	want, ok := m.pending[username]
	m.mu.Unlock()
	if !ok || want != token {
		return ErrBadConfirmation
	}

	_, errUpdate := m.roster.Update(ctx, func(users []models.AuthUser) ([]models.AuthUser, error) {
		for i := range users {
			if users[i].Username == username {
				return append(users[:i], users[i+1:]...), nil
			}
		}
		return nil, ErrUserNotFound
	})
	if errUpdate != nil {
		return errUpdate
	}

	m.mu.Lock()
	delete(m.pending, username)
	m.mu.Unlock()

	if errClear := m.quota.Clear(ctx, username); errClear != nil {
		return fmt.Errorf("admin: clear counter for %s: %w", username, errClear)
	}
	return nil
}

// GetUser returns a single account with its consumed-message count.
func (m *Manager) GetUser(ctx context.Context, username string) (*UserDetail, error) {
	entry, errFind := m.roster.Find(ctx, username)
	if errFind != nil {
		return nil, errFind
	}
	if entry == nil {
		return nil, ErrUserNotFound
	}
	used, errUsed := m.quota.Used(ctx, username)
	if errUsed != nil {
		return nil, errUsed
	}
	return &UserDetail{AuthUser: *entry, MessagesUsed: used}, nil
}

// ListUsers returns the roster narrowed and ordered per opts. Zero-valued
// option fields behave as "all" and SortNewest.
func (m *Manager) ListUsers(ctx context.Context, opts ListOptions) ([]models.AuthUser, error) {
	users, errLoad := m.roster.Load(ctx)
	if errLoad != nil {
		return nil, errLoad
	}

	query := strings.ToLower(strings.TrimSpace(opts.Query))
	filtered := make([]models.AuthUser, 0, len(users))
	for _, u := range users {
		if query != "" && !strings.Contains(strings.ToLower(u.Username), query) {
			continue
		}
		switch opts.Status {
		case StatusActive:
			if !u.IsActive {
				continue
			}
		case StatusInactive:
			if u.IsActive {
				continue
			}
		}
		switch opts.Plan {
		case PlanFree:
			if !u.FreeTrial() {
				continue
			}
		case PlanPaid:
			if u.FreeTrial() {
				continue
			}
		}
		filtered = append(filtered, u)
	}

	sortUsers(filtered, opts.Sort)
	return filtered, nil
}

// sortUsers orders the slice in place. Expiry order puts permanent accounts
// last; the default is newest first.
func sortUsers(users []models.AuthUser, order string) {
	switch order {
	case SortOldest:
		sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt < users[j].CreatedAt })
	case SortUsername:
		sort.SliceStable(users, func(i, j int) bool {
			return strings.ToLower(users[i].Username) < strings.ToLower(users[j].Username)
		})
	case SortExpiry:
		sort.SliceStable(users, func(i, j int) bool {
			a, b := users[i].ExpiryDate, users[j].ExpiryDate
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return *a < *b
			}
		})
	default:
		sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt > users[j].CreatedAt })
	}
}

// expiryFrom turns an optional day count into an absolute expiry timestamp.
// Only a positive count sets an expiry; nil or a non-positive count grants a
// permanent subscription.
func expiryFrom(now time.Time, durationDays *int) *int64 {
	if durationDays == nil || *durationDays <= 0 {
		return nil
	}
	expiry := now.Add(time.Duration(*durationDays) * 24 * time.Hour).UnixMilli()
	return &expiry
}
