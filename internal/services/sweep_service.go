// Package services – SweepService
//
// The missed-dose sweeper is the only writer that moves cells to `missed`.
// It runs on a fixed tick, finds pending cells whose due time plus grace
// has elapsed in their session's own timezone, and lands each transition
// with the same conditional-update discipline as the dose recorder: a cell
// is only marked missed if it is still pending with a zero dose count at
// write time, so a dose recorded in the same instant always wins.
package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/carevue/go-adherence-backend/internal/domain"
	"github.com/carevue/go-adherence-backend/internal/repo"
	"github.com/carevue/go-adherence-backend/internal/schedule"
)

// SweepService periodically transitions elapsed, unfulfilled cells to missed.
type SweepService struct {
	// DB is the database handle used by sweep passes.
	DB *gorm.DB
	// Grace is how long past a slot's due time a cell may stay pending.
	Grace time.Duration
	// Interval is the tick between passes in Run.
	Interval time.Duration
	// Notifier receives missed events (fire-and-forget). May be nil.
	Notifier Notifier

	// now is a test seam; defaults to time.Now.
	now func() time.Time
}

// clock returns the sweeper's time source.
func (s *SweepService) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// SweepOnce runs a single pass and returns the number of cells marked
// missed. Passes are idempotent: a second run with no new doses finds
// nothing left to transition. Per-cell failures are logged and skipped;
// the cell is simply retried on the next tick.
func (s *SweepService) SweepOnce(ctx context.Context) (int, error) {
	now := s.clock().UTC()

	// Coarse civil-date bound: zones ahead of UTC can have cells due on
	// "tomorrow's" UTC date, so over-fetch by a day and let the precise
	// per-zone check below decide.
	maxDate := now.AddDate(0, 0, 1).Format(domain.DateLayout)

	cells, err := repo.ListPendingThrough(ctx, s.DB, maxDate)
	if err != nil {
		return 0, err
	}

	swept := 0
	for _, c := range cells {
		due, err := schedule.SlotDue(c.ScheduledDate, c.SlotTime, c.Timezone)
		if err != nil {
			log.Warn().Err(err).
				Str("record_id", c.RecordID).
				Str("session_id", c.SessionID).
				Msg("sweep: cannot compute due time")
			continue
		}
		if !now.After(due.Add(s.Grace)) {
			continue
		}

		err = repo.MarkMissed(ctx, s.DB, c.RecordID)
		if err == repo.ErrStale {
			// A dose landed between the read and this write. Not a miss.
			continue
		}
		if err != nil {
			log.Warn().Err(err).
				Str("record_id", c.RecordID).
				Msg("sweep: mark missed failed, will retry next pass")
			continue
		}

		swept++
		sweepTransitions.Inc()
		notify(s.Notifier, ChangeEvent{
			SessionID:     c.SessionID,
			ScheduledDate: c.ScheduledDate,
			Slot:          c.Slot,
			Status:        domain.StatusMissed,
			DoseCount:     0,
			At:            now,
		})
	}

	// Reuse the tick for idempotency-record housekeeping.
	if n, err := repo.PurgeExpiredIdempotency(ctx, s.DB, now); err != nil {
		log.Warn().Err(err).Msg("sweep: idempotency purge failed")
	} else if n > 0 {
		log.Debug().Int64("purged", n).Msg("sweep: expired idempotency records purged")
	}

	sweepPasses.Inc()
	return swept, nil
}

// Run executes SweepOnce on every tick until ctx is cancelled. A pass runs
// immediately on start so a restarted service does not wait a full interval
// to catch up.
func (s *SweepService) Run(ctx context.Context) {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	tick := time.NewTicker(interval)
	defer tick.Stop()

	for {
		swept, err := s.SweepOnce(ctx)
		if err != nil {
			log.Error().Err(err).Msg("sweep pass failed")
		} else {
			log.Info().Int("swept", swept).Msg("sweep pass complete")
		}

		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}
