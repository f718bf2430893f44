// Package schedule contains the pure scheduling primitives of the adherence
// engine: expanding a session's observation window into its (date, slot)
// grid, and projecting stored UTC instants into patient-local wall time.
// Nothing in this package performs I/O or touches the database.
package schedule

import (
	"fmt"
	"sort"
	"time"

	"github.com/carevue/go-adherence-backend/internal/domain"
)

// CellKey identifies one cell of a session grid: a patient-local calendar
// date (YYYY-MM-DD) and a dosing slot.
type CellKey struct {
	Date string
	Slot domain.Slot
}

// ExpandWindow expands a session start date into the full ordered grid of
// cells: exactly domain.WindowDays consecutive calendar days times the
// enabled slots, ordered by date then slot time. Deterministic given its
// inputs; duplicate slots in the input are collapsed.
//
// Returns an error when startDate is not a valid YYYY-MM-DD date, when no
// slot is enabled, or when any slot is outside the canonical set.
func ExpandWindow(startDate string, enabled []domain.Slot) ([]CellKey, error) {
	start, err := time.Parse(domain.DateLayout, startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start date %q: %w", startDate, err)
	}

	slots, err := normalizeSlots(enabled)
	if err != nil {
		return nil, err
	}

	out := make([]CellKey, 0, domain.WindowDays*len(slots))
	for day := 0; day < domain.WindowDays; day++ {
		date := start.AddDate(0, 0, day).Format(domain.DateLayout)
		for _, sl := range slots {
			out = append(out, CellKey{Date: date, Slot: sl})
		}
	}
	return out, nil
}

// WindowEnd returns the last covered date of a window starting at startDate
// (start + 29 days for the fixed 30-day window).
func WindowEnd(startDate string) (string, error) {
	start, err := time.Parse(domain.DateLayout, startDate)
	if err != nil {
		return "", fmt.Errorf("invalid start date %q: %w", startDate, err)
	}
	return start.AddDate(0, 0, domain.WindowDays-1).Format(domain.DateLayout), nil
}

// normalizeSlots dedupes and chronologically orders the enabled slot set.
func normalizeSlots(enabled []domain.Slot) ([]domain.Slot, error) {
	seen := make(map[domain.Slot]struct{}, len(enabled))
	slots := make([]domain.Slot, 0, len(enabled))
	for _, sl := range enabled {
		if !sl.Valid() {
			return nil, fmt.Errorf("unknown slot %q", string(sl))
		}
		if _, dup := seen[sl]; dup {
			continue
		}
		seen[sl] = struct{}{}
		slots = append(slots, sl)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("no slots enabled")
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Order() < slots[j].Order() })
	return slots, nil
}
