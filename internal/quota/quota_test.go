package quota

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/red-ai/redterm/internal/models"
	"github.com/red-ai/redterm/internal/store"
	"gorm.io/gorm"
)

func newTestTracker(t *testing.T, limit int) *Tracker {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Record{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	reserved := func(name string) bool { return name == "root-admin" }
	return NewTracker(store.NewRecordStore(conn), limit, reserved)
}

func TestTracker_CountsUpToLimit(t *testing.T) {
	tracker := newTestTracker(t, 10)
	ctx := context.Background()
	subject := Subject{Username: "nora"}

	for i := 0; i < 10; i++ {
		reached, errCheck := tracker.IsLimitReached(ctx, subject)
		if errCheck != nil {
			t.Fatalf("check %d: %v", i, errCheck)
		}
		if reached {
			t.Fatalf("limit reached after %d messages", i)
		}
		if errRecord := tracker.RecordUsage(ctx, subject); errRecord != nil {
			t.Fatalf("record %d: %v", i, errRecord)
		}
	}

	reached, errCheck := tracker.IsLimitReached(ctx, subject)
	if errCheck != nil {
		t.Fatalf("final check: %v", errCheck)
	}
	if !reached {
		t.Fatalf("expected limit reached after 10 messages")
	}

	remaining, errRemaining := tracker.Remaining(ctx, subject)
	if errRemaining != nil {
		t.Fatalf("remaining: %v", errRemaining)
	}
	if remaining != 0 {
		t.Fatalf("expected 0 remaining, got %d", remaining)
	}

	// The counter must not move past the cap when the caller honors the
	// hard stop.
	used, errUsed := tracker.Used(ctx, "nora")
	if errUsed != nil {
		t.Fatalf("used: %v", errUsed)
	}
	if used != 10 {
		t.Fatalf("expected counter at 10, got %d", used)
	}
}

func TestTracker_ExemptSubjectsNeverCount(t *testing.T) {
	tracker := newTestTracker(t, 2)
	ctx := context.Background()

	cases := []Subject{
		{Username: "root-admin"},           // reserved identity
		{Username: "vip", Unlimited: true}, // roster unlimited flag
	}
	for _, subject := range cases {
		for i := 0; i < 5; i++ {
			if errRecord := tracker.RecordUsage(ctx, subject); errRecord != nil {
				t.Fatalf("record for %s: %v", subject.Username, errRecord)
			}
		}
		reached, errCheck := tracker.IsLimitReached(ctx, subject)
		if errCheck != nil {
			t.Fatalf("check for %s: %v", subject.Username, errCheck)
		}
		if reached {
			t.Fatalf("exempt subject %s reported limit reached", subject.Username)
		}
		used, errUsed := tracker.Used(ctx, subject.Username)
		if errUsed != nil {
			t.Fatalf("used for %s: %v", subject.Username, errUsed)
		}
		if used != 0 {
			t.Fatalf("expected counter untouched for %s, got %d", subject.Username, used)
		}
	}
}

func TestTracker_ClearRemovesCounter(t *testing.T) {
	tracker := newTestTracker(t, 10)
	ctx := context.Background()
	subject := Subject{Username: "nora"}

	if errRecord := tracker.RecordUsage(ctx, subject); errRecord != nil {
		t.Fatalf("record: %v", errRecord)
	}
	if errClear := tracker.Clear(ctx, "nora"); errClear != nil {
		t.Fatalf("clear: %v", errClear)
	}
	used, errUsed := tracker.Used(ctx, "nora")
	if errUsed != nil {
		t.Fatalf("used: %v", errUsed)
	}
	if used != 0 {
		t.Fatalf("expected cleared counter, got %d", used)
	}
}
