package repo

import (
	"context"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/carevue/go-adherence-backend/internal/domain"
)

func newSessionRepoDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:sessionrepo_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func TestCreateAndGetSession(t *testing.T) {
	db := newSessionRepoDB(t)
	ctx := context.Background()

	s, err := CreateSession(ctx, db, "p1", "2024-03-01", "2024-03-30", "America/Denver")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if s.ID == "" || !s.Active || s.FirstUseDate != nil {
		t.Fatalf("unexpected session: %+v", s)
	}

	got, err := GetSession(ctx, db, s.ID)
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.PatientID != "p1" || got.Timezone != "America/Denver" {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}

	if _, err := GetSession(ctx, db, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetActiveSession(t *testing.T) {
	db := newSessionRepoDB(t)
	ctx := context.Background()

	if _, err := GetActiveSession(ctx, db, "p1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound with no sessions, got %v", err)
	}

	s, _ := CreateSession(ctx, db, "p1", "2024-03-01", "2024-03-30", "UTC")
	active, err := GetActiveSession(ctx, db, "p1")
	if err != nil {
		t.Fatalf("GetActiveSession: %v", err)
	}
	if active.ID != s.ID {
		t.Fatalf("wrong active session: %+v", active)
	}

	if err := DeactivateSession(ctx, db, s.ID); err != nil {
		t.Fatalf("DeactivateSession: %v", err)
	}
	if _, err := GetActiveSession(ctx, db, "p1"); err != ErrNotFound {
		t.Fatalf("deactivated session still reported active: %v", err)
	}
}

func TestDeactivateSession_MissingVsIdempotent(t *testing.T) {
	db := newSessionRepoDB(t)
	ctx := context.Background()

	if err := DeactivateSession(ctx, db, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	s, _ := CreateSession(ctx, db, "p1", "2024-03-01", "2024-03-30", "UTC")
	if err := DeactivateSession(ctx, db, s.ID); err != nil {
		t.Fatalf("first deactivate: %v", err)
	}
	// Ending an already-ended session is a no-op, not an error.
	if err := DeactivateSession(ctx, db, s.ID); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
}

func TestSetFirstUseDate_SetsOnce(t *testing.T) {
	db := newSessionRepoDB(t)
	ctx := context.Background()

	s, _ := CreateSession(ctx, db, "p1", "2024-03-01", "2024-03-30", "UTC")
	if err := SetFirstUseDate(ctx, db, s.ID, "2024-03-02"); err != nil {
		t.Fatalf("SetFirstUseDate: %v", err)
	}
	// Second call targets an already-set row; the NULL guard makes it a no-op.
	if err := SetFirstUseDate(ctx, db, s.ID, "2024-03-09"); err != nil {
		t.Fatalf("SetFirstUseDate (second): %v", err)
	}

	got, _ := GetSession(ctx, db, s.ID)
	if got.FirstUseDate == nil || *got.FirstUseDate != "2024-03-02" {
		t.Fatalf("first_use_date = %v, want 2024-03-02", got.FirstUseDate)
	}
}

func TestListSessionsPage_NewestFirst(t *testing.T) {
	db := newSessionRepoDB(t)
	ctx := context.Background()

	for _, d := range []string{"2024-01-01", "2024-02-01", "2024-03-01"} {
		s, err := CreateSession(ctx, db, "p1", d, d, "UTC")
		if err != nil {
			t.Fatalf("seed %s: %v", d, err)
		}
		_ = DeactivateSession(ctx, db, s.ID)
	}

	total, err := CountSessions(ctx, db, "p1")
	if err != nil || total != 3 {
		t.Fatalf("CountSessions = %d, %v", total, err)
	}
	page, err := ListSessionsPage(ctx, db, "p1", 0, 2)
	if err != nil {
		t.Fatalf("ListSessionsPage: %v", err)
	}
	if len(page) != 2 || page[0].StartDate != "2024-03-01" || page[1].StartDate != "2024-02-01" {
		t.Fatalf("unexpected page order: %+v", page)
	}
}

func TestEnabledSlotConfigs(t *testing.T) {
	db := newSessionRepoDB(t)
	ctx := context.Background()

	cfg := domain.SlotConfig{
		ID:        uuid.NewString(),
		PatientID: "p1",
		Slot:      domain.SlotNoon,
		Enabled:   false,
		TimeOfDay: "12:30",
	}
	if err := db.Create(&cfg).Error; err != nil {
		t.Fatalf("seed slot config: %v", err)
	}

	m, err := EnabledSlotConfigs(ctx, db, "p1")
	if err != nil {
		t.Fatalf("EnabledSlotConfigs: %v", err)
	}
	if len(m) != 1 || m[domain.SlotNoon].TimeOfDay != "12:30" || m[domain.SlotNoon].Enabled {
		t.Fatalf("unexpected config map: %+v", m)
	}

	empty, err := EnabledSlotConfigs(ctx, db, "nobody")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty map for unknown patient: %+v, %v", empty, err)
	}
}
