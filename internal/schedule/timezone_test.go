package schedule

import (
	"testing"
	"time"
)

func TestLocalClock_Denver(t *testing.T) {
	// 15:05 UTC on 2024-01-15 is 08:05 in Denver (MST, UTC-7).
	utc := time.Date(2024, 1, 15, 15, 5, 0, 0, time.UTC)
	got, err := LocalClock(utc, "America/Denver")
	if err != nil {
		t.Fatalf("LocalClock: %v", err)
	}
	if got != "08:05 AM" {
		t.Fatalf("LocalClock = %q, want %q", got, "08:05 AM")
	}
}

func TestLocalDate_CrossesMidnight(t *testing.T) {
	// 03:00 UTC is still the previous evening in Denver.
	utc := time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC)
	got, err := LocalDate(utc, "America/Denver")
	if err != nil {
		t.Fatalf("LocalDate: %v", err)
	}
	if got != "2024-01-15" {
		t.Fatalf("LocalDate = %q, want 2024-01-15", got)
	}
}

func TestSlotDue(t *testing.T) {
	due, err := SlotDue("2024-01-15", "08:00", "America/Denver")
	if err != nil {
		t.Fatalf("SlotDue: %v", err)
	}
	want := time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("SlotDue = %v, want %v", due, want)
	}
}

func TestSlotDue_DST(t *testing.T) {
	// After the March 2024 DST shift Denver is UTC-6.
	due, err := SlotDue("2024-03-15", "08:00", "America/Denver")
	if err != nil {
		t.Fatalf("SlotDue: %v", err)
	}
	want := time.Date(2024, 3, 15, 14, 0, 0, 0, time.UTC)
	if !due.Equal(want) {
		t.Fatalf("SlotDue = %v, want %v", due, want)
	}
}

func TestLoadZone_Errors(t *testing.T) {
	if _, err := LoadZone(""); err == nil {
		t.Fatalf("expected error for empty zone")
	}
	if _, err := LoadZone("Mars/Olympus_Mons"); err == nil {
		t.Fatalf("expected error for unknown zone")
	}
	if _, err := SlotDue("2024-01-15", "8am", "America/Denver"); err == nil {
		t.Fatalf("expected error for malformed time-of-day")
	}
}
