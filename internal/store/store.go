package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/red-ai/redterm/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DecodeError reports a stored value that could not be decoded into the
// requested shape. Callers that tolerate corrupt local state can match it
// with errors.As and fall back to a default.
type DecodeError struct {
	Key string // Storage key that failed to decode.
	Err error  // Underlying unmarshal error.
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	return fmt.Sprintf("record store: decode %s: %v", e.Key, e.Err)
}

// Unwrap returns the underlying unmarshal error.
func (e *DecodeError) Unwrap() error { return e.Err }

// RecordStore persists JSON values under opaque string keys via GORM. Every
// write replaces the whole value for its key, so readers never observe a
// partially updated record.
type RecordStore struct {
	db *gorm.DB

	mu sync.Mutex
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Get loads the value stored under key into out. It reports false when no
// record exists for the key.
func (s *RecordStore) Get(ctx context.Context, key string, out any) (bool, error) {
	if s == nil || s.db == nil {
		return false, fmt.Errorf("record store: not initialized")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return false, fmt.Errorf("record store: missing key")
	}

	var record models.Record
	errFind := s.db.WithContext(ctx).Where("key = ?", key).First(&record).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("record store: get %s: %w", key, errFind)
	}
	if errUnmarshal := json.Unmarshal(record.Value, out); errUnmarshal != nil {
		return false, &DecodeError{Key: key, Err: errUnmarshal}
	}
	return true, nil
}

// Set upserts the JSON encoding of value under key.
func (s *RecordStore) Set(ctx context.Context, key string, value any) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("record store: not initialized")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("record store: missing key")
	}

	payload, errMarshal := json.Marshal(value)
	if errMarshal != nil {
		return fmt.Errorf("record store: encode %s: %w", key, errMarshal)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record := models.Record{
		Key:       key,
		Value:     datatypes.JSON(payload),
		UpdatedAt: time.Now().UTC(),
	}
	if errUpsert := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&record).Error; errUpsert != nil {
		return fmt.Errorf("record store: upsert %s: %w", key, errUpsert)
	}
	return nil
}

// Remove deletes the record stored under key. Removing an absent key is a
// no-op.
func (s *RecordStore) Remove(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("record store: not initialized")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("record store: missing key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if errDelete := s.db.WithContext(ctx).Where("key = ?", key).Delete(&models.Record{}).Error; errDelete != nil {
		return fmt.Errorf("record store: remove %s: %w", key, errDelete)
	}
	return nil
}
