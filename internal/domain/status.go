// Package domain defines the core persistence models for the adherence
// engine. This file models the tracking-record status as a closed
// enumeration with an explicit transition function, so illegal state moves
// are impossible to construct rather than merely discouraged.
package domain

import "fmt"

// RecordStatus is the lifecycle state of a tracking-record cell.
//
// Allowed transitions:
//
//	pending   → taken      (first recorded dose)
//	pending   → missed     (sweeper, due time + grace elapsed)
//	taken     → overtaken  (additional recorded dose)
//	overtaken → overtaken  (further recorded doses)
//	missed    → overtaken  (late dose accepted after the miss was recorded)
//
// A status never regresses: in particular a late dose on a missed cell
// becomes overtaken, not taken, so the elapsed miss window stays visible in
// history.
type RecordStatus string

const (
	StatusPending   RecordStatus = "pending"
	StatusTaken     RecordStatus = "taken"
	StatusOvertaken RecordStatus = "overtaken"
	StatusMissed    RecordStatus = "missed"
)

// Valid reports whether s is a member of the closed status set.
func (s RecordStatus) Valid() bool {
	switch s {
	case StatusPending, StatusTaken, StatusOvertaken, StatusMissed:
		return true
	}
	return false
}

// Sweepable reports whether a cell in this status can still be swept to
// missed. Only pending cells can; everything else is settled history.
func (s RecordStatus) Sweepable() bool { return s == StatusPending }

// NextOnDose returns the status a cell moves to when one more dose is
// recorded against it. The transition is total over the valid status set:
// every cell state accepts a dose (a late dose on a missed cell is an
// overtake-style correction, a safety signal rather than an error).
func (s RecordStatus) NextOnDose() (RecordStatus, error) {
	switch s {
	case StatusPending:
		return StatusTaken, nil
	case StatusTaken, StatusOvertaken, StatusMissed:
		return StatusOvertaken, nil
	}
	return "", fmt.Errorf("invalid record status %q", string(s))
}

// Slot is one of the four canonical daily dosing times. Slots are reference
// data: sessions only materialize cells for slots enabled for the patient.
type Slot string

const (
	SlotMorning   Slot = "morning"
	SlotNoon      Slot = "noon"
	SlotAfternoon Slot = "afternoon"
	SlotEvening   Slot = "evening"
)

// AllSlots lists the canonical slots in chronological order.
var AllSlots = []Slot{SlotMorning, SlotNoon, SlotAfternoon, SlotEvening}

// defaultSlotTimes holds the canonical local time-of-day per slot, used when
// no per-patient override exists.
var defaultSlotTimes = map[Slot]string{
	SlotMorning:   "08:00",
	SlotNoon:      "12:00",
	SlotAfternoon: "16:00",
	SlotEvening:   "20:00",
}

// Valid reports whether sl is a member of the closed slot set.
func (sl Slot) Valid() bool {
	_, ok := defaultSlotTimes[sl]
	return ok
}

// DefaultTime returns the canonical "HH:MM" local time for the slot, or ""
// for an unknown slot.
func (sl Slot) DefaultTime() string { return defaultSlotTimes[sl] }

// Order returns the chronological rank of the slot (morning first). Unknown
// slots sort last.
func (sl Slot) Order() int {
	for i, s := range AllSlots {
		if s == sl {
			return i
		}
	}
	return len(AllSlots)
}
