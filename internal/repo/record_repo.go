// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// TrackingRecord model, including the conditional single-statement updates
// the dose recorder and the sweeper rely on.
//
// Concurrency discipline: every mutation of an existing cell is one guarded
// UPDATE whose WHERE clause re-checks the state the caller computed from.
// When the guard fails (RowsAffected == 0) the caller re-reads and retries;
// a fetch-compute-write round trip without the guard is exactly the lost-
// update bug class this layer exists to rule out.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/carevue/go-adherence-backend/internal/domain"
)

// ErrStale indicates a guarded update found the row changed since it was
// read. The caller should re-read the cell and retry the transition.
var ErrStale = errors.New("stale record state")

// NewRecord builds (but does not persist) a pending cell.
func NewRecord(sessionID, date string, slot domain.Slot, slotTime string) domain.TrackingRecord {
	return domain.TrackingRecord{
		ID:            uuid.NewString(),
		SessionID:     sessionID,
		ScheduledDate: date,
		Slot:          slot,
		SlotTime:      slotTime,
		Status:        domain.StatusPending,
		DoseCount:     0,
		CreatedAt:     time.Now().UTC(),
	}
}

// BulkInsertRecords inserts the full grid in batches. Run inside the same
// transaction as CreateSession: a session with a partial grid violates the
// materialization invariant, so both must commit or neither.
func BulkInsertRecords(ctx context.Context, db *gorm.DB, records []domain.TrackingRecord) error {
	if len(records) == 0 {
		return nil
	}
	return db.WithContext(ctx).CreateInBatches(records, 120).Error
}

// GetCell fetches the unique (session, date, slot) record, or ErrNotFound
// when the date/slot is outside the session's materialized window.
func GetCell(ctx context.Context, db *gorm.DB, sessionID, date string, slot domain.Slot) (*domain.TrackingRecord, error) {
	var rec domain.TrackingRecord
	err := db.WithContext(ctx).
		Where("session_id = ? AND scheduled_date = ? AND slot = ?", sessionID, date, slot).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetRecord loads a tracking record by primary key.
func GetRecord(ctx context.Context, db *gorm.DB, id string) (*domain.TrackingRecord, error) {
	var rec domain.TrackingRecord
	err := db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListGrid returns every cell of a session ordered by date then slot time.
func ListGrid(ctx context.Context, db *gorm.DB, sessionID string) ([]domain.TrackingRecord, error) {
	var out []domain.TrackingRecord
	err := db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("scheduled_date ASC, slot_time ASC, slot ASC").
		Find(&out).Error
	return out, err
}

// ApplyDose advances a cell by one recorded dose with a compare-and-swap on
// the state the recorder read. The guard (id, status, dose_count) serializes
// concurrent recorders on the same cell, so dose_count ends up equal to the
// number of successful applications no matter the interleaving. The status
// check also covers the sweeper: pending -> missed keeps dose_count at 0, so
// a recorder that read pending must fail its write and recompute against the
// miss rather than silently erase it. taken_at always takes the newest
// observation; notes are overwritten only when the recorder supplied any.
func ApplyDose(ctx context.Context, db *gorm.DB, recordID string, fromStatus domain.RecordStatus, fromCount int, next domain.RecordStatus, observedAt time.Time, notes string) error {
	fields := map[string]any{
		"status":     next,
		"dose_count": fromCount + 1,
		"taken_at":   observedAt.UTC(),
		"updated_at": time.Now().UTC(),
	}
	if notes != "" {
		fields["notes"] = notes
	}
	res := db.WithContext(ctx).
		Model(&domain.TrackingRecord{}).
		Where("id = ? AND status = ? AND dose_count = ?", recordID, fromStatus, fromCount).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// MarkMissed transitions a cell to missed iff it is still pending with no
// recorded dose at write time. A benign guard failure (the recorder got
// there first) is reported as ErrStale so the sweeper can skip the cell.
func MarkMissed(ctx context.Context, db *gorm.DB, recordID string) error {
	res := db.WithContext(ctx).
		Model(&domain.TrackingRecord{}).
		Where("id = ? AND status = ? AND dose_count = 0", recordID, domain.StatusPending).
		Updates(map[string]any{
			"status":     domain.StatusMissed,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStale
	}
	return nil
}

// PendingCell is a sweeper work item: a pending cell joined with its
// session's timezone so due time can be computed without a second query.
type PendingCell struct {
	RecordID      string
	SessionID     string
	ScheduledDate string
	Slot          domain.Slot
	SlotTime      string
	Timezone      string
}

// ListPendingThrough returns the pending cells of active sessions whose
// scheduled date is on or before maxDate (a coarse civil-date bound; the
// caller applies the precise due-time + grace check per cell in the
// session's own zone).
func ListPendingThrough(ctx context.Context, db *gorm.DB, maxDate string) ([]PendingCell, error) {
	var out []PendingCell
	err := db.WithContext(ctx).
		Model(&domain.TrackingRecord{}).
		Select("tracking_records.id AS record_id, tracking_records.session_id, tracking_records.scheduled_date, tracking_records.slot, tracking_records.slot_time, medication_sessions.timezone").
		Joins("JOIN medication_sessions ON medication_sessions.id = tracking_records.session_id").
		Where("tracking_records.status = ? AND medication_sessions.active = ? AND tracking_records.scheduled_date <= ?",
			domain.StatusPending, true, maxDate).
		Order("tracking_records.scheduled_date ASC, tracking_records.slot_time ASC").
		Scan(&out).Error
	return out, err
}

// CountRecords returns the number of cells materialized for a session.
func CountRecords(ctx context.Context, db *gorm.DB, sessionID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.TrackingRecord{}).
		Where("session_id = ?", sessionID).
		Count(&total).Error
	return total, err
}
