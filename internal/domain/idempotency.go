// Package domain defines the core persistence models for the adherence
// engine. These types are used by GORM for database schema mapping and are
// shared across the repository and service layers.
package domain

import "time"

// Idempotency represents a recorded result of a previously processed
// dose-recording request, keyed by (user_id, session_id, key). Device hubs
// and caregiver apps retry POSTs on flaky links; replaying the stored result
// instead of re-executing keeps transport retries from ever reaching the
// dose engine twice. The engine's own conditional updates remain the source
// of truth; this table only short-circuits exact replays.
type Idempotency struct {
	ID        string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_session_key,priority:1"`
	SessionID string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_session_key,priority:2"`
	Key       string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_session_key,priority:3"`
	RecordID  string    `gorm:"type:TEXT NOT NULL"`
	Status    int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
