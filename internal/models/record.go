package models

import (
	"time"

	"gorm.io/datatypes"
)

// Record is one persisted key-value entry. The device identifier, the roster
// blob, and per-user message counters are each stored under their own key.
type Record struct {
	Key       string         `gorm:"primaryKey;type:text"`    // Storage key.
	Value     datatypes.JSON `gorm:"not null"`                // JSON-encoded value.
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime"` // Last write timestamp.
}
