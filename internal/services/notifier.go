// Package services – change notification.
//
// Dose transitions that matter clinically (a cell going missed, or a dose
// recorded more than once) are announced to an external notification
// collaborator, which owns delivery to family contacts. The engine only
// emits the event; it never blocks on, retries, or observes delivery.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/carevue/go-adherence-backend/internal/domain"
)

// ChangeEvent describes one tracking-record transition worth announcing.
type ChangeEvent struct {
	SessionID     string
	PatientID     string
	ScheduledDate string
	Slot          domain.Slot
	Status        domain.RecordStatus
	DoseCount     int
	At            time.Time // UTC
}

// Notifier receives record-change events. Implementations must be safe for
// concurrent use and should return quickly; the engine invokes them on a
// separate goroutine and ignores the outcome.
type Notifier interface {
	RecordChanged(ctx context.Context, ev ChangeEvent)
}

// NopNotifier discards all events. Used when no notification collaborator
// is wired (tests, local development).
type NopNotifier struct{}

// RecordChanged implements Notifier.
func (NopNotifier) RecordChanged(context.Context, ChangeEvent) {}

// LogNotifier writes each event as a structured log line. It doubles as the
// default "collaborator" in single-process deployments where the paging
// system tails logs.
type LogNotifier struct{}

// RecordChanged implements Notifier.
func (LogNotifier) RecordChanged(_ context.Context, ev ChangeEvent) {
	log.Info().
		Str("session_id", ev.SessionID).
		Str("patient_id", ev.PatientID).
		Str("date", ev.ScheduledDate).
		Str("slot", string(ev.Slot)).
		Str("status", string(ev.Status)).
		Int("dose_count", ev.DoseCount).
		Time("at", ev.At).
		Msg("record_changed")
}

// notify dispatches fire-and-forget: a nil notifier is a no-op, and the
// event is delivered on its own goroutine detached from the request's
// cancellation.
func notify(n Notifier, ev ChangeEvent) {
	if n == nil {
		return
	}
	go n.RecordChanged(context.Background(), ev)
}
