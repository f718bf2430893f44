// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// MedicationSession model.
//
// The repository follows a "thin" approach: it performs persistence and
// simple query composition, leaving business rules (single-active-session,
// grid atomicity, dose transitions) to the services package.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carevue/go-adherence-backend/internal/domain"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// CreateSession inserts a new session row. Callers are expected to run it
// inside a transaction together with the grid materialization.
func CreateSession(ctx context.Context, db *gorm.DB, patientID, startDate, endDate, timezone string) (*domain.MedicationSession, error) {
	s := &domain.MedicationSession{
		ID:        uuid.NewString(),
		PatientID: patientID,
		StartDate: startDate,
		EndDate:   endDate,
		Timezone:  timezone,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	return s, db.WithContext(ctx).Create(s).Error
}

// GetSession fetches a session by ID.
func GetSession(ctx context.Context, db *gorm.DB, id string) (*domain.MedicationSession, error) {
	var s domain.MedicationSession
	err := db.WithContext(ctx).Where("id = ?", id).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetActiveSession returns the patient's active session, or ErrNotFound.
func GetActiveSession(ctx context.Context, db *gorm.DB, patientID string) (*domain.MedicationSession, error) {
	var s domain.MedicationSession
	err := db.WithContext(ctx).
		Where("patient_id = ? AND active = ?", patientID, true).
		First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// DeactivateSession clears the active flag. Returns ErrNotFound when the
// session does not exist; deactivating an already-inactive session is a
// no-op success (the end state is the same).
func DeactivateSession(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Model(&domain.MedicationSession{}).
		Where("id = ?", id).
		Update("active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish "missing" from "already inactive".
		var n int64
		if err := db.WithContext(ctx).Model(&domain.MedicationSession{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return ErrNotFound
		}
	}
	return nil
}

// SetFirstUseDate stamps the session's first-use date, once. The guard on
// NULL makes the write a no-op for every recording after the first, so
// concurrent recorders cannot move an already-set date.
func SetFirstUseDate(ctx context.Context, db *gorm.DB, id, date string) error {
	return db.WithContext(ctx).
		Model(&domain.MedicationSession{}).
		Where("id = ? AND first_use_date IS NULL", id).
		Update("first_use_date", date).Error
}

// CountSessions returns the total number of sessions for a patient.
func CountSessions(ctx context.Context, db *gorm.DB, patientID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.MedicationSession{}).
		Where("patient_id = ?", patientID).
		Count(&total).Error
	return total, err
}

// ListSessionsPage returns a page of the patient's sessions, newest first.
func ListSessionsPage(ctx context.Context, db *gorm.DB, patientID string, offset, limit int) ([]domain.MedicationSession, error) {
	var out []domain.MedicationSession
	err := db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Order("start_date DESC, id DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// EnabledSlotConfigs returns the patient's slot configuration keyed by slot.
// Patients without override rows get an empty map; the service fills in the
// canonical defaults.
func EnabledSlotConfigs(ctx context.Context, db *gorm.DB, patientID string) (map[domain.Slot]domain.SlotConfig, error) {
	var rows []domain.SlotConfig
	if err := db.WithContext(ctx).Where("patient_id = ?", patientID).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[domain.Slot]domain.SlotConfig, len(rows))
	for _, r := range rows {
		out[r.Slot] = r
	}
	return out, nil
}
