// Package services – SessionService
//
// This file implements the SessionService, which manages the lifecycle of
// medication-observation sessions. Starting a session materializes the full
// 30-day × slot grid of pending tracking records in the same transaction as
// the session row itself, so a session with a partial grid cannot exist.
// Ending a session only clears the active flag; the grid stays as history.
//
// Service-level errors (e.g. ErrActiveSessionExists, ErrSessionNotFound)
// are returned for predictable cases so handlers can map them to HTTP
// results consistently.
package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/carevue/go-adherence-backend/internal/domain"
	"github.com/carevue/go-adherence-backend/internal/repo"
	"github.com/carevue/go-adherence-backend/internal/schedule"
)

// SessionRepo defines the repository contract required by SessionService.
// Implementations are responsible for persistence of session aggregates.
type SessionRepo interface {
	// CreateSession inserts a new session row.
	CreateSession(ctx context.Context, db *gorm.DB, patientID, startDate, endDate, timezone string) (*domain.MedicationSession, error)

	// GetSession fetches a session by ID.
	GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.MedicationSession, error)

	// GetActiveSession returns the patient's active session, if any.
	GetActiveSession(ctx context.Context, db *gorm.DB, patientID string) (*domain.MedicationSession, error)

	// DeactivateSession clears the active flag.
	DeactivateSession(ctx context.Context, db *gorm.DB, id string) error

	// CountSessions returns the total number of sessions for pagination.
	CountSessions(ctx context.Context, db *gorm.DB, patientID string) (int64, error)

	// ListSessionsPage returns a page of the patient's sessions.
	ListSessionsPage(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.MedicationSession, error)

	// EnabledSlotConfigs returns the patient's slot overrides keyed by slot.
	EnabledSlotConfigs(ctx context.Context, db *gorm.DB, patientID string) (map[domain.Slot]domain.SlotConfig, error)

	// BulkInsertRecords materializes grid cells (all-or-nothing inside the
	// caller's transaction).
	BulkInsertRecords(ctx context.Context, db *gorm.DB, records []domain.TrackingRecord) error

	// ListGrid returns every cell of a session in display order.
	ListGrid(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.TrackingRecord, error)
}

// SessionService provides session-level operations: starting and ending
// observation windows, reading the grid, and paging session history.
type SessionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the session repository used by this service.
	Repo SessionRepo
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, r SessionRepo) *SessionService {
	return &SessionService{DB: db, Repo: r}
}

// Start opens a new 30-day observation window for the patient and
// materializes one pending tracking record per (date, enabled slot) cell.
//
// Slot resolution: when enabledSlots is empty, the patient's slot
// configuration decides (canonical slots minus explicitly disabled ones);
// when the caller names slots, that set is authoritative. Slot times come
// from the configuration override when present, otherwise the canonical
// default, and are frozen onto the cells at materialization.
//
// Fails with ErrActiveSessionExists when the patient already has an active
// session; ending the prior window first is the caller's policy decision.
func (s *SessionService) Start(ctx context.Context, patientID, startDate, timezone string, enabledSlots []domain.Slot) (*domain.MedicationSession, error) {
	if strings.TrimSpace(patientID) == "" {
		return nil, ErrInvalidPatient
	}
	if _, err := time.Parse(domain.DateLayout, startDate); err != nil {
		return nil, ErrInvalidDate
	}
	if _, err := schedule.LoadZone(timezone); err != nil {
		return nil, ErrInvalidTimezone
	}

	cfgs, err := s.Repo.EnabledSlotConfigs(ctx, s.DB, patientID)
	if err != nil {
		return nil, err
	}

	slots, err := resolveSlots(enabledSlots, cfgs)
	if err != nil {
		return nil, err
	}

	cells, err := schedule.ExpandWindow(startDate, slots)
	if err != nil {
		return nil, ErrInvalidDate
	}
	endDate, err := schedule.WindowEnd(startDate)
	if err != nil {
		return nil, ErrInvalidDate
	}

	var created *domain.MedicationSession
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The duplicate-active check runs inside the transaction so two
		// concurrent Start calls cannot both pass it.
		if _, err := s.Repo.GetActiveSession(ctx, tx, patientID); err == nil {
			return ErrActiveSessionExists
		} else if !errors.Is(err, repo.ErrNotFound) {
			return err
		}

		sess, err := s.Repo.CreateSession(ctx, tx, patientID, startDate, endDate, timezone)
		if err != nil {
			return err
		}

		records := make([]domain.TrackingRecord, 0, len(cells))
		for _, c := range cells {
			records = append(records, repo.NewRecord(sess.ID, c.Date, c.Slot, slotTime(c.Slot, cfgs)))
		}
		if err := s.Repo.BulkInsertRecords(ctx, tx, records); err != nil {
			return err
		}

		created = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// End deactivates a session. Tracking records are untouched; they remain
// readable as history. Ending an already-ended session succeeds.
func (s *SessionService) End(ctx context.Context, sessionID string) error {
	err := s.Repo.DeactivateSession(ctx, s.DB, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrSessionNotFound
	}
	return err
}

// Grid returns the session row together with its full cell grid in display
// order (date, then slot time).
func (s *SessionService) Grid(ctx context.Context, sessionID string) (*domain.MedicationSession, []domain.TrackingRecord, error) {
	sess, err := s.Repo.GetSession(ctx, s.DB, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	cells, err := s.Repo.ListGrid(ctx, s.DB, sessionID)
	if err != nil {
		return nil, nil, err
	}
	return sess, cells, nil
}

// ListPage returns a page of the patient's sessions, newest first.
// It applies defaults for invalid page/pageSize and returns total count.
func (s *SessionService) ListPage(ctx context.Context, patientID string, page, pageSize int) ([]domain.MedicationSession, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountSessions(ctx, s.DB, patientID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.MedicationSession{}, 0, nil
	}

	items, err := s.Repo.ListSessionsPage(ctx, s.DB, patientID, offset, pageSize)
	return items, total, err
}

// resolveSlots decides which slots a new session materializes. An explicit
// caller set wins; otherwise the configuration's disabled flags filter the
// canonical set.
func resolveSlots(requested []domain.Slot, cfgs map[domain.Slot]domain.SlotConfig) ([]domain.Slot, error) {
	if len(requested) > 0 {
		for _, sl := range requested {
			if !sl.Valid() {
				return nil, ErrInvalidSlot
			}
		}
		return requested, nil
	}
	out := make([]domain.Slot, 0, len(domain.AllSlots))
	for _, sl := range domain.AllSlots {
		if cfg, ok := cfgs[sl]; ok && !cfg.Enabled {
			continue
		}
		out = append(out, sl)
	}
	if len(out) == 0 {
		return nil, ErrInvalidSlot
	}
	return out, nil
}

// slotTime returns the local "HH:MM" a slot is due at for this patient.
func slotTime(sl domain.Slot, cfgs map[domain.Slot]domain.SlotConfig) string {
	if cfg, ok := cfgs[sl]; ok && cfg.TimeOfDay != "" {
		return cfg.TimeOfDay
	}
	return sl.DefaultTime()
}
