package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/carevue/go-adherence-backend/internal/domain"
	"github.com/carevue/go-adherence-backend/internal/repo"
)

func newSvcDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:svc_%s?mode=memory&cache=shared", uuid.NewString())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// sessionRepoShim adapts the repo free functions to the SessionRepo
// interface, mirroring the production wiring.
type sessionRepoShim struct{}

func (sessionRepoShim) CreateSession(ctx context.Context, db *gorm.DB, patientID, startDate, endDate, timezone string) (*domain.MedicationSession, error) {
	return repo.CreateSession(ctx, db, patientID, startDate, endDate, timezone)
}
func (sessionRepoShim) GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.MedicationSession, error) {
	return repo.GetSession(ctx, db, id)
}
func (sessionRepoShim) GetActiveSession(ctx context.Context, db *gorm.DB, patientID string) (*domain.MedicationSession, error) {
	return repo.GetActiveSession(ctx, db, patientID)
}
func (sessionRepoShim) DeactivateSession(ctx context.Context, db *gorm.DB, id string) error {
	return repo.DeactivateSession(ctx, db, id)
}
func (sessionRepoShim) CountSessions(ctx context.Context, db *gorm.DB, patientID string) (int64, error) {
	return repo.CountSessions(ctx, db, patientID)
}
func (sessionRepoShim) ListSessionsPage(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.MedicationSession, error) {
	return repo.ListSessionsPage(ctx, db, patientID, offset, limit)
}
func (sessionRepoShim) EnabledSlotConfigs(ctx context.Context, db *gorm.DB, patientID string) (map[domain.Slot]domain.SlotConfig, error) {
	return repo.EnabledSlotConfigs(ctx, db, patientID)
}
func (sessionRepoShim) BulkInsertRecords(ctx context.Context, db *gorm.DB, records []domain.TrackingRecord) error {
	return repo.BulkInsertRecords(ctx, db, records)
}
func (sessionRepoShim) ListGrid(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.TrackingRecord, error) {
	return repo.ListGrid(ctx, db, sessionID)
}

// failingGridRepo fails grid materialization to prove the session row rolls
// back with it.
type failingGridRepo struct{ sessionRepoShim }

func (failingGridRepo) BulkInsertRecords(context.Context, *gorm.DB, []domain.TrackingRecord) error {
	return errors.New("disk full")
}

func TestSessionStart_MaterializesFullGrid(t *testing.T) {
	db := newSvcDB(t)
	svc := NewSessionService(db, sessionRepoShim{})
	ctx := context.Background()

	sess, err := svc.Start(ctx, "p1", "2024-03-01", "America/Denver", domain.AllSlots)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.EndDate != "2024-03-30" {
		t.Fatalf("end date = %s, want 2024-03-30", sess.EndDate)
	}

	n, err := repo.CountRecords(ctx, db, sess.ID)
	if err != nil {
		t.Fatalf("CountRecords: %v", err)
	}
	if n != 30*4 {
		t.Fatalf("grid size = %d, want 120", n)
	}

	_, cells, err := svc.Grid(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	for _, c := range cells {
		if c.Status != domain.StatusPending || c.DoseCount != 0 {
			t.Fatalf("cell not materialized pending: %+v", c)
		}
	}
}

func TestSessionStart_AtomicWithGrid(t *testing.T) {
	db := newSvcDB(t)
	svc := NewSessionService(db, failingGridRepo{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, "p1", "2024-03-01", "UTC", domain.AllSlots); err == nil {
		t.Fatalf("expected Start to fail with broken grid insert")
	}

	// The session row must have rolled back with the grid.
	var n int64
	if err := db.Model(&domain.MedicationSession{}).Where("patient_id = ?", "p1").Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("found %d session rows after failed materialization, want 0", n)
	}
}

func TestSessionStart_ConflictOnActive(t *testing.T) {
	db := newSvcDB(t)
	svc := NewSessionService(db, sessionRepoShim{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, "p1", "2024-03-01", "UTC", domain.AllSlots); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	_, err := svc.Start(ctx, "p1", "2024-04-01", "UTC", domain.AllSlots)
	if !errors.Is(err, ErrActiveSessionExists) {
		t.Fatalf("expected ErrActiveSessionExists, got %v", err)
	}

	// Another patient is unaffected.
	if _, err := svc.Start(ctx, "p2", "2024-03-01", "UTC", domain.AllSlots); err != nil {
		t.Fatalf("other patient Start: %v", err)
	}
}

func TestSessionStart_Validation(t *testing.T) {
	db := newSvcDB(t)
	svc := NewSessionService(db, sessionRepoShim{})
	ctx := context.Background()

	if _, err := svc.Start(ctx, " ", "2024-03-01", "UTC", nil); !errors.Is(err, ErrInvalidPatient) {
		t.Fatalf("blank patient: %v", err)
	}
	if _, err := svc.Start(ctx, "p1", "March 1", "UTC", nil); !errors.Is(err, ErrInvalidDate) {
		t.Fatalf("bad date: %v", err)
	}
	if _, err := svc.Start(ctx, "p1", "2024-03-01", "Mars/Base", nil); !errors.Is(err, ErrInvalidTimezone) {
		t.Fatalf("bad zone: %v", err)
	}
	if _, err := svc.Start(ctx, "p1", "2024-03-01", "UTC", []domain.Slot{"brunch"}); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("bad slot: %v", err)
	}
}

func TestSessionStart_SlotConfigDefaults(t *testing.T) {
	db := newSvcDB(t)
	svc := NewSessionService(db, sessionRepoShim{})
	ctx := context.Background()

	// Disable noon and move morning to 07:30 for this patient.
	for _, cfg := range []domain.SlotConfig{
		{ID: uuid.NewString(), PatientID: "p1", Slot: domain.SlotNoon, Enabled: false, TimeOfDay: "12:00"},
		{ID: uuid.NewString(), PatientID: "p1", Slot: domain.SlotMorning, Enabled: true, TimeOfDay: "07:30"},
	} {
		if err := db.Create(&cfg).Error; err != nil {
			t.Fatalf("seed config: %v", err)
		}
	}

	sess, err := svc.Start(ctx, "p1", "2024-03-01", "UTC", nil) // nil: config decides
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, cells, err := svc.Grid(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Grid: %v", err)
	}
	if len(cells) != 30*3 {
		t.Fatalf("grid size = %d, want 90 (noon disabled)", len(cells))
	}
	for _, c := range cells {
		if c.Slot == domain.SlotNoon {
			t.Fatalf("disabled slot materialized: %+v", c)
		}
		if c.Slot == domain.SlotMorning && c.SlotTime != "07:30" {
			t.Fatalf("morning override not applied: %+v", c)
		}
		if c.Slot == domain.SlotEvening && c.SlotTime != "20:00" {
			t.Fatalf("default time not applied: %+v", c)
		}
	}
}

func TestSessionEnd_KeepsHistory(t *testing.T) {
	db := newSvcDB(t)
	svc := NewSessionService(db, sessionRepoShim{})
	ctx := context.Background()

	sess, _ := svc.Start(ctx, "p1", "2024-03-01", "UTC", []domain.Slot{domain.SlotMorning})
	if err := svc.End(ctx, sess.ID); err != nil {
		t.Fatalf("End: %v", err)
	}

	got, cells, err := svc.Grid(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Grid after End: %v", err)
	}
	if got.Active {
		t.Fatalf("session still active after End")
	}
	if len(cells) != 30 {
		t.Fatalf("history lost: %d cells", len(cells))
	}

	if err := svc.End(ctx, "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionListPage(t *testing.T) {
	db := newSvcDB(t)
	svc := NewSessionService(db, sessionRepoShim{})
	ctx := context.Background()

	for _, d := range []string{"2024-01-01", "2024-02-01"} {
		s, err := svc.Start(ctx, "p1", d, "UTC", []domain.Slot{domain.SlotMorning})
		if err != nil {
			t.Fatalf("Start %s: %v", d, err)
		}
		if err := svc.End(ctx, s.ID); err != nil {
			t.Fatalf("End: %v", err)
		}
	}

	items, total, err := svc.ListPage(ctx, "p1", 0, 0) // defaults applied
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if total != 2 || len(items) != 2 || items[0].StartDate != "2024-02-01" {
		t.Fatalf("unexpected page: total=%d items=%+v", total, items)
	}

	empty, total, err := svc.ListPage(ctx, "nobody", 1, 10)
	if err != nil || total != 0 || len(empty) != 0 {
		t.Fatalf("expected empty page: %v %d %+v", err, total, empty)
	}
}
