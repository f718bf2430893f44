// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the read-only aggregation queries the
// adherence statistics are computed from. Each function is context-aware
// and performs no mutation.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/carevue/go-adherence-backend/internal/domain"
)

// StatusCount is one (slot, status) bucket of an aggregation query.
type StatusCount struct {
	Slot   domain.Slot
	Status domain.RecordStatus
	N      int64
}

// SlotStatusCounts groups a session's cells by (slot, status). Slots with
// no cells in a status simply have no row; the aggregator treats absent
// buckets as zero.
func SlotStatusCounts(ctx context.Context, db *gorm.DB, sessionID string) ([]StatusCount, error) {
	var out []StatusCount
	err := db.WithContext(ctx).
		Model(&domain.TrackingRecord{}).
		Select("slot, status, COUNT(*) AS n").
		Where("session_id = ?", sessionID).
		Group("slot, status").
		Scan(&out).Error
	return out, err
}

// RangeStatusCounts groups all of a patient's cells scheduled within
// [from, to] (inclusive, civil dates) by (slot, status), across sessions.
func RangeStatusCounts(ctx context.Context, db *gorm.DB, patientID, from, to string) ([]StatusCount, error) {
	var out []StatusCount
	err := db.WithContext(ctx).
		Model(&domain.TrackingRecord{}).
		Select("tracking_records.slot, tracking_records.status, COUNT(*) AS n").
		Joins("JOIN medication_sessions ON medication_sessions.id = tracking_records.session_id").
		Where("medication_sessions.patient_id = ? AND tracking_records.scheduled_date BETWEEN ? AND ?",
			patientID, from, to).
		Group("tracking_records.slot, tracking_records.status").
		Scan(&out).Error
	return out, err
}
