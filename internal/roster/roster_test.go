package roster

import (
	"context"
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/red-ai/redterm/internal/models"
	"github.com/red-ai/redterm/internal/store"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) (*Store, *store.RecordStore) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Record{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	records := store.NewRecordStore(conn)
	return NewStore(records), records
}

func TestLoad_EmptyStorage(t *testing.T) {
	s, _ := newTestStore(t)

	users, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(users) != 0 {
		t.Fatalf("expected empty roster, got %d entries", len(users))
	}
}

func TestSaveLoad_RoundTripPreservesOptionalFields(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	expiry := time.Now().Add(72 * time.Hour).UnixMilli()
	device := "device-1"
	trial := true
	users := []models.AuthUser{
		{Username: "plain", IsActive: true, CreatedAt: 1000},
		{Username: "vip", IsUnlimited: true, IsActive: true, CreatedAt: 2000},
		{Username: "trial", ExpiryDate: &expiry, IsActive: true, CreatedAt: 3000, DeviceID: &device, IsFreeTrial: &trial},
	}

	if errSave := s.Save(ctx, users); errSave != nil {
		t.Fatalf("save: %v", errSave)
	}
	loaded, errLoad := s.Load(ctx)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if !reflect.DeepEqual(users, loaded) {
		t.Fatalf("round trip mismatch:\nsaved  %+v\nloaded %+v", users, loaded)
	}

	// save(load()) must not change the persisted representation.
	if errSave := s.Save(ctx, loaded); errSave != nil {
		t.Fatalf("save loaded: %v", errSave)
	}
	again, errAgain := s.Load(ctx)
	if errAgain != nil {
		t.Fatalf("load again: %v", errAgain)
	}
	if !reflect.DeepEqual(loaded, again) {
		t.Fatalf("expected save(load()) to be a no-op")
	}
}

func TestSerializedShape_AbsentVsNull(t *testing.T) {
	users := []models.AuthUser{{Username: "plain", IsActive: true, CreatedAt: 1}}
	payload, errMarshal := json.Marshal(users)
	if errMarshal != nil {
		t.Fatalf("marshal: %v", errMarshal)
	}
	var raw []map[string]json.RawMessage
	if errUnmarshal := json.Unmarshal(payload, &raw); errUnmarshal != nil {
		t.Fatalf("unmarshal: %v", errUnmarshal)
	}
	if string(raw[0]["expiryDate"]) != "null" {
		t.Fatalf("expected expiryDate to serialize as null, got %s", raw[0]["expiryDate"])
	}
	if _, present := raw[0]["deviceId"]; present {
		t.Fatalf("expected unset deviceId to stay absent")
	}
	if _, present := raw[0]["isFreeTrial"]; present {
		t.Fatalf("expected unset isFreeTrial to stay absent")
	}
}

func TestLoad_MigratesLegacyUsernameList(t *testing.T) {
	s, records := newTestStore(t)
	ctx := context.Background()

	if errSet := records.Set(ctx, legacyRosterKey, []string{"alice", "bob"}); errSet != nil {
		t.Fatalf("seed legacy: %v", errSet)
	}

	users, errLoad := s.Load(ctx)
	if errLoad != nil {
		t.Fatalf("load: %v", errLoad)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 migrated entries, got %d", len(users))
	}
	for _, u := range users {
		if u.IsUnlimited || !u.IsActive || u.ExpiryDate != nil || u.CreatedAt == 0 {
			t.Fatalf("unexpected migrated entry: %+v", u)
		}
	}

	// Migration persists under the current key and leaves the legacy record alone.
	var current []models.AuthUser
	if found, errGet := records.Get(ctx, rosterKey, &current); errGet != nil || !found {
		t.Fatalf("expected migrated roster persisted, found=%v err=%v", found, errGet)
	}
	var legacy []string
	if found, errGet := records.Get(ctx, legacyRosterKey, &legacy); errGet != nil || !found || len(legacy) != 2 {
		t.Fatalf("expected legacy record untouched, found=%v err=%v legacy=%v", found, errGet, legacy)
	}
}

func TestLoad_MalformedRosterYieldsEmpty(t *testing.T) {
	s, records := newTestStore(t)
	ctx := context.Background()

	if errSet := records.Set(ctx, rosterKey, "definitely-not-a-roster"); errSet != nil {
		t.Fatalf("seed malformed: %v", errSet)
	}

	users, errLoad := s.Load(ctx)
	if errLoad != nil {
		t.Fatalf("expected malformed roster to be swallowed, got %v", errLoad)
	}
	if len(users) != 0 {
		t.Fatalf("expected empty roster, got %d entries", len(users))
	}
}

func TestUpdate_AppliesAndPersists(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if errSave := s.Save(ctx, []models.AuthUser{{Username: "alice", IsActive: true, CreatedAt: 1}}); errSave != nil {
		t.Fatalf("save: %v", errSave)
	}

	_, errUpdate := s.Update(ctx, func(users []models.AuthUser) ([]models.AuthUser, error) {
		for i := range users {
			if users[i].Username == "alice" {
				users[i].IsActive = false
			}
		}
		return users, nil
	})
	if errUpdate != nil {
		t.Fatalf("update: %v", errUpdate)
	}

	entry, errFind := s.Find(ctx, "alice")
	if errFind != nil {
		t.Fatalf("find: %v", errFind)
	}
	if entry == nil || entry.IsActive {
		t.Fatalf("expected alice deactivated, got %+v", entry)
	}
}
