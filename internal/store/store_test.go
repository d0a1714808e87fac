package store

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/red-ai/redterm/internal/models"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *RecordStore {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Record{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewRecordStore(conn)
}

func TestRecordStore_GetMissingKey(t *testing.T) {
	s := newTestStore(t)

	var out string
	found, err := s.Get(context.Background(), "absent", &out)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if found {
		t.Fatalf("expected missing key to report found=false")
	}
}

func TestRecordStore_SetOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if errSet := s.Set(ctx, "greeting", "hello"); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if errSet := s.Set(ctx, "greeting", "world"); errSet != nil {
		t.Fatalf("set again: %v", errSet)
	}

	var out string
	found, errGet := s.Get(ctx, "greeting", &out)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if !found || out != "world" {
		t.Fatalf("expected found=true value=%q, got found=%v value=%q", "world", found, out)
	}
}

func TestRecordStore_RemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if errSet := s.Set(ctx, "counter", 3); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}
	if errRemove := s.Remove(ctx, "counter"); errRemove != nil {
		t.Fatalf("remove: %v", errRemove)
	}
	if errRemove := s.Remove(ctx, "counter"); errRemove != nil {
		t.Fatalf("remove absent: %v", errRemove)
	}

	var out int
	found, errGet := s.Get(ctx, "counter", &out)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if found {
		t.Fatalf("expected removed key to be absent")
	}
}

func TestRecordStore_DecodeMismatchSurfacesError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if errSet := s.Set(ctx, "roster", "not-an-array"); errSet != nil {
		t.Fatalf("set: %v", errSet)
	}

	var out []models.AuthUser
	if _, errGet := s.Get(ctx, "roster", &out); errGet == nil {
		t.Fatalf("expected decode error for mismatched shape")
	}
}
