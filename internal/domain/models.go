// Package domain defines the persistence models for medication-adherence
// sessions and their per-dose tracking records. These types are mapped with
// GORM and form the core data layer of the adherence engine.
package domain

import (
	"time"
)

// DateLayout is the storage format for patient-local calendar dates.
// Dates are stored as plain YYYY-MM-DD strings (no time, no zone) so that
// "day 12 of the session" means the same thing regardless of DST shifts;
// all instant fields remain UTC.
const DateLayout = "2006-01-02"

// WindowDays is the fixed length of an observation window in calendar days.
const WindowDays = 30

// MedicationSession represents one 30-day medication-observation window for
// a single patient. At most one session per patient may be active at any
// time; starting a new one requires the prior one to be ended first.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - PatientID: identifier of the observed patient; indexed for retrieval.
//   - StartDate / EndDate: patient-local calendar dates (YYYY-MM-DD);
//     EndDate is always StartDate + 29 days.
//   - Timezone: IANA zone identifier (e.g. "America/Denver") used for all
//     local-time projection of this session's records.
//   - Active: whether the session is the patient's current window. Sessions
//     are deactivated, never deleted; inactive sessions are history.
//   - FirstUseDate: scheduled date of the first recorded dose, set once.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
type MedicationSession struct {
	ID           string    `json:"id"             gorm:"type:char(36);primaryKey"`
	PatientID    string    `json:"patient_id"     gorm:"type:varchar(64);not null;index:idx_patient_sessions"`
	StartDate    string    `json:"start_date"     gorm:"type:char(10);not null"`
	EndDate      string    `json:"end_date"       gorm:"type:char(10);not null"`
	Timezone     string    `json:"timezone"       gorm:"type:varchar(64);not null"`
	Active       bool      `json:"active"         gorm:"not null;default:true;index:idx_patient_active"`
	FirstUseDate *string   `json:"first_use_date,omitempty" gorm:"type:char(10)"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for MedicationSession.
func (MedicationSession) TableName() string { return "medication_sessions" }

// TrackingRecord is one cell of a session's dose grid: the unique
// (session, scheduled date, slot) unit. The full grid is materialized when
// the session starts, so a missing row is never a valid state; every cell
// a dose could land on already exists as `pending`.
//
// Fields:
//   - ID: UUID primary key (char(36)); the composite business key is the
//     unique index (session_id, scheduled_date, slot).
//   - SlotTime: the slot's local time-of-day ("HH:MM") captured at
//     materialization, so later changes to the patient's slot overrides
//     never move cells of an already-running session.
//   - Status: closed enumeration, see status.go for the transition rules.
//   - DoseCount: number of recordings applied to this cell; monotonically
//     non-decreasing, 0 iff Status is pending or missed.
//   - TakenAt: UTC instant of the most recent recording (latest wins for
//     display; DoseCount keeps the full tally).
//   - Notes: optional free text attached by the most recent recorder.
//   - Session: FK association, cells are cascade-deleted with the session.
type TrackingRecord struct {
	ID            string       `json:"id"             gorm:"type:char(36);primaryKey"`
	SessionID     string       `json:"session_id"     gorm:"type:char(36);not null;uniqueIndex:ux_session_cell,priority:1;index"`
	ScheduledDate string       `json:"scheduled_date" gorm:"type:char(10);not null;uniqueIndex:ux_session_cell,priority:2"`
	Slot          Slot         `json:"slot"           gorm:"type:varchar(16);not null;uniqueIndex:ux_session_cell,priority:3;check:slot IN ('morning','noon','afternoon','evening')"`
	SlotTime      string       `json:"slot_time"      gorm:"type:char(5);not null"`
	Status        RecordStatus `json:"status"         gorm:"type:varchar(16);not null;default:'pending';check:status IN ('pending','taken','overtaken','missed')"`
	DoseCount     int          `json:"dose_count"     gorm:"not null;default:0"`
	TakenAt       *time.Time   `json:"taken_at,omitempty"`
	Notes         string       `json:"notes,omitempty" gorm:"type:text"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`

	Session MedicationSession `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for TrackingRecord.
func (TrackingRecord) TableName() string { return "tracking_records" }

// SlotConfig is a per-patient override of the canonical dosing slots: it can
// disable a slot entirely or move its time-of-day. Rows are owned by the
// patient-profile collaborator; the engine only reads them at session start
// to decide which slots to materialize and at what local time.
type SlotConfig struct {
	ID        string    `json:"id"          gorm:"type:char(36);primaryKey"`
	PatientID string    `json:"patient_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_patient_slot,priority:1"`
	Slot      Slot      `json:"slot"        gorm:"type:varchar(16);not null;uniqueIndex:ux_patient_slot,priority:2"`
	// Enabled has no column default on purpose: with one, GORM drops an
	// explicit false from the INSERT and the row comes back enabled.
	Enabled   bool      `json:"enabled"     gorm:"not null"`
	TimeOfDay string    `json:"time_of_day" gorm:"type:char(5);not null"` // "HH:MM", patient-local
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for SlotConfig.
func (SlotConfig) TableName() string { return "slot_configs" }
