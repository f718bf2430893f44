// Package services – AdherenceService
//
// Read-only statistics over tracking records. Percentages exclude pending
// cells from the denominator: a session on day 3 of 30 is judged on the
// doses that have come due, not on the three weeks that have not happened
// yet.
package services

import (
	"context"
	"sort"
	"time"

	"gorm.io/gorm"

	"github.com/carevue/go-adherence-backend/internal/domain"
	"github.com/carevue/go-adherence-backend/internal/repo"
)

// SlotStats is the per-slot breakdown of a session (or range) of cells.
// SuccessRate is taken / (taken + overtaken + missed) as a percentage, and
// 0 when no cell is past pending yet.
type SlotStats struct {
	Slot        domain.Slot `json:"slot,omitempty"`
	Taken       int64       `json:"taken"`
	Overtaken   int64       `json:"overtaken"`
	Missed      int64       `json:"missed"`
	Pending     int64       `json:"pending"`
	SuccessRate float64     `json:"success_rate"`
}

// SessionStats is the full adherence report: every slot plus the rollup.
type SessionStats struct {
	SessionID string      `json:"session_id,omitempty"`
	PatientID string      `json:"patient_id,omitempty"`
	Slots     []SlotStats `json:"slots"`
	Overall   SlotStats   `json:"overall"`
}

// AdherenceService computes adherence statistics. It never mutates state.
type AdherenceService struct {
	// DB is the database handle used for aggregation queries.
	DB *gorm.DB
}

// ForSession computes per-slot and rolled-up statistics for one session.
func (s *AdherenceService) ForSession(ctx context.Context, sessionID string) (*SessionStats, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID)
	if err == repo.ErrNotFound {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := repo.SlotStatusCounts(ctx, s.DB, sessionID)
	if err != nil {
		return nil, err
	}

	stats := buildStats(rows)
	stats.SessionID = sessionID
	stats.PatientID = sess.PatientID
	return stats, nil
}

// ForRange computes the same statistics for all of a patient's cells
// scheduled within [from, to], across sessions.
func (s *AdherenceService) ForRange(ctx context.Context, patientID, from, to string) (*SessionStats, error) {
	ft, err := time.Parse(domain.DateLayout, from)
	if err != nil {
		return nil, ErrInvalidRange
	}
	tt, err := time.Parse(domain.DateLayout, to)
	if err != nil {
		return nil, ErrInvalidRange
	}
	if tt.Before(ft) {
		return nil, ErrInvalidRange
	}

	rows, err := repo.RangeStatusCounts(ctx, s.DB, patientID, from, to)
	if err != nil {
		return nil, err
	}

	stats := buildStats(rows)
	stats.PatientID = patientID
	return stats, nil
}

// buildStats folds (slot, status) buckets into per-slot entries plus the
// overall rollup, computing the pending-exclusive success rate for each.
func buildStats(rows []repo.StatusCount) *SessionStats {
	bySlot := map[domain.Slot]*SlotStats{}
	for _, r := range rows {
		st, ok := bySlot[r.Slot]
		if !ok {
			st = &SlotStats{Slot: r.Slot}
			bySlot[r.Slot] = st
		}
		switch r.Status {
		case domain.StatusTaken:
			st.Taken += r.N
		case domain.StatusOvertaken:
			st.Overtaken += r.N
		case domain.StatusMissed:
			st.Missed += r.N
		case domain.StatusPending:
			st.Pending += r.N
		}
	}

	out := &SessionStats{Slots: make([]SlotStats, 0, len(bySlot))}
	for _, st := range bySlot {
		st.SuccessRate = successRate(st.Taken, st.Overtaken, st.Missed)
		out.Overall.Taken += st.Taken
		out.Overall.Overtaken += st.Overtaken
		out.Overall.Missed += st.Missed
		out.Overall.Pending += st.Pending
		out.Slots = append(out.Slots, *st)
	}
	sort.Slice(out.Slots, func(i, j int) bool {
		return out.Slots[i].Slot.Order() < out.Slots[j].Slot.Order()
	})
	out.Overall.SuccessRate = successRate(out.Overall.Taken, out.Overall.Overtaken, out.Overall.Missed)
	return out
}

// successRate returns 100*taken/(taken+overtaken+missed), and 0 for an
// empty denominator rather than dividing by zero.
func successRate(taken, overtaken, missed int64) float64 {
	denom := taken + overtaken + missed
	if denom == 0 {
		return 0
	}
	return 100 * float64(taken) / float64(denom)
}
