// Package services – DoseService
//
// This file implements the dose recorder, the concurrency-critical piece of
// the engine. Two caregivers, or a bluetooth hub callback and a manual
// entry, can report the same dose near-simultaneously; recording must apply
// every one of those events to the cell exactly once. The recorder never
// does an unguarded read-then-write: each attempt re-reads the cell,
// computes the transition, and lands it with a compare-and-swap on the
// current dose count. A lost race is retried against fresh state, up to a
// configured budget.
package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/carevue/go-adherence-backend/internal/domain"
	"github.com/carevue/go-adherence-backend/internal/repo"
)

// DoseService applies "dose taken" events to tracking-record cells.
type DoseService struct {
	// DB is the database handle used for all recording operations.
	DB *gorm.DB
	// Retries bounds the optimistic-concurrency loop per call. Values < 1
	// are treated as the default of 3.
	Retries int
	// Notifier receives overtake events (fire-and-forget). May be nil.
	Notifier Notifier
}

// Record applies one dose event to the cell (sessionID, date, slot).
//
// Transition semantics:
//   - pending   → taken, dose_count 1
//   - taken     → overtaken, dose_count +1
//   - overtaken → overtaken, dose_count +1
//   - missed    → overtaken, dose_count +1 (late dose kept as a correction;
//     the elapsed miss window stays visible)
//
// taken_at is overwritten with observedAt on every successful recording
// (latest observation wins for display); dose_count always accumulates.
// The session's first-use date is stamped by the first successful recording
// anywhere in the grid.
//
// Under concurrent calls against the same cell the final dose_count equals
// the number of successful Record calls, regardless of interleaving. When
// the retry budget is exhausted the call fails with ErrContention; the
// cell is still consistent, this attempt simply was not applied.
func (s *DoseService) Record(ctx context.Context, sessionID, date string, slot domain.Slot, observedAt time.Time, notes string) (*domain.TrackingRecord, error) {
	if !slot.Valid() {
		return nil, ErrInvalidSlot
	}
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, ErrInvalidDate
	}
	if observedAt.IsZero() {
		observedAt = time.Now().UTC()
	}

	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	budget := s.Retries
	if budget < 1 {
		budget = 3
	}

	for attempt := 0; attempt < budget; attempt++ {
		cell, err := repo.GetCell(ctx, s.DB, sessionID, date, slot)
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrCellNotFound
		}
		if err != nil {
			return nil, err
		}

		next, err := cell.Status.NextOnDose()
		if err != nil {
			return nil, err
		}

		err = repo.ApplyDose(ctx, s.DB, cell.ID, cell.Status, cell.DoseCount, next, observedAt, notes)
		if errors.Is(err, repo.ErrStale) {
			recordContention.Inc()
			continue
		}
		if err != nil {
			return nil, err
		}

		if sess.FirstUseDate == nil {
			// One-shot, guarded on NULL in the store; losing this race to a
			// concurrent recorder is fine.
			if err := repo.SetFirstUseDate(ctx, s.DB, sessionID, date); err != nil {
				return nil, err
			}
		}

		applied := *cell
		applied.Status = next
		applied.DoseCount = cell.DoseCount + 1
		at := observedAt.UTC()
		applied.TakenAt = &at
		if notes != "" {
			applied.Notes = notes
		}

		dosesRecorded.WithLabelValues(string(next)).Inc()
		if next == domain.StatusOvertaken {
			notify(s.Notifier, ChangeEvent{
				SessionID:     sessionID,
				PatientID:     sess.PatientID,
				ScheduledDate: date,
				Slot:          slot,
				Status:        next,
				DoseCount:     applied.DoseCount,
				At:            at,
			})
		}
		return &applied, nil
	}

	return nil, ErrContention
}
