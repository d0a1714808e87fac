// Package roster owns the authoritative list of authorized accounts. All
// reads go against the persisted representation and every mutation is a
// compute-new-full-roster-then-save, so concurrent writers degrade to
// last-write-wins rather than partial state.
package roster

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/red-ai/redterm/internal/models"
	"github.com/red-ai/redterm/internal/store"

	log "github.com/sirupsen/logrus"
)

// Storage keys for the roster. The legacy key held a bare list of usernames
// and is migrated once, then kept as a read-only fallback.
const (
	rosterKey       = "authorized_users_v2"
	legacyRosterKey = "authorized_users"
)

// Store reads and writes the persisted roster.
type Store struct {
	records *store.RecordStore

	mu sync.Mutex
}

// NewStore constructs a roster Store.
func NewStore(records *store.RecordStore) *Store {
	return &Store{records: records}
}

// Load reads the current roster from storage. A missing current-schema record
// triggers a one-time migration of the legacy username list; malformed stored
// data yields an empty roster rather than an error so corrupt local state
// can never block the login surface.
func (s *Store) Load(ctx context.Context) ([]models.AuthUser, error) {
	if s == nil || s.records == nil {
		return nil, fmt.Errorf("roster: store not initialized")
	}

	var users []models.AuthUser
	found, errGet := s.records.Get(ctx, rosterKey, &users)
	if errGet != nil {
		var decodeErr *store.DecodeError
		if errors.As(errGet, &decodeErr) {
			log.WithError(decodeErr).Warn("roster: malformed stored roster, treating as empty")
			return []models.AuthUser{}, nil
		}
		return nil, errGet
	}
	if found {
		if users == nil {
			users = []models.AuthUser{}
		}
		return users, nil
	}
	return s.migrateLegacy(ctx)
}

// Save atomically replaces the persisted roster with users.
func (s *Store) Save(ctx context.Context, users []models.AuthUser) error {
	if s == nil || s.records == nil {
		return fmt.Errorf("roster: store not initialized")
	}
	if users == nil {
		users = []models.AuthUser{}
	}
	return s.records.Set(ctx, rosterKey, users)
}

// Update applies fn to the current roster and persists the result as a
// single full write. It is the one mutation surface every roster change
// routes through.
func (s *Store) Update(ctx context.Context, fn func([]models.AuthUser) ([]models.AuthUser, error)) ([]models.AuthUser, error) {
	if fn == nil {
		return nil, fmt.Errorf("roster: nil update func")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	users, errLoad := s.Load(ctx)
	if errLoad != nil {
		return nil, errLoad
	}
	updated, errApply := fn(users)
	if errApply != nil {
		return nil, errApply
	}
	if errSave := s.Save(ctx, updated); errSave != nil {
		return nil, errSave
	}
	return updated, nil
}

// Find returns a copy of the roster entry for username, if present.
func (s *Store) Find(ctx context.Context, username string) (*models.AuthUser, error) {
	users, errLoad := s.Load(ctx)
	if errLoad != nil {
		return nil, errLoad
	}
	for i := range users {
		if users[i].Username == username {
			entry := users[i]
			return &entry, nil
		}
	}
	return nil, nil
}

// migrateLegacy synthesizes current-schema entries from the legacy bare
// username list and persists them under the current key. The legacy record
// itself is never rewritten.
func (s *Store) migrateLegacy(ctx context.Context) ([]models.AuthUser, error) {
	var names []string
	found, errGet := s.records.Get(ctx, legacyRosterKey, &names)
	if errGet != nil {
		var decodeErr *store.DecodeError
		if errors.As(errGet, &decodeErr) {
			log.WithError(decodeErr).Warn("roster: malformed legacy roster, treating as empty")
			return []models.AuthUser{}, nil
		}
		return nil, errGet
	}
	if !found {
		return []models.AuthUser{}, nil
	}

	now := time.Now().UnixMilli()
	migrated := make([]models.AuthUser, 0, len(names))
	for _, name := range names {
		migrated = append(migrated, models.AuthUser{
			Username:    name,
			IsUnlimited: false,
			ExpiryDate:  nil,
			IsActive:    true,
			CreatedAt:   now,
		})
	}
	if errSave := s.Save(ctx, migrated); errSave != nil {
		return nil, errSave
	}
	log.Infof("roster: migrated %d legacy entries", len(migrated))
	return migrated, nil
}
