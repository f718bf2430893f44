package services

import (
	"context"
	"testing"
	"time"

	"github.com/carevue/go-adherence-backend/internal/domain"
	"github.com/carevue/go-adherence-backend/internal/repo"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestSweepOnce_MarksElapsedPendingMissed(t *testing.T) {
	db := newSvcDB(t)
	sessSvc := NewSessionService(db, sessionRepoShim{})
	sess := startTestSession(t, sessSvc, "p1") // morning 08:00, evening 20:00, Denver
	ctx := context.Background()

	// Day 1 evening due 2024-03-02T03:00Z (Denver is UTC-7); two hours past
	// due plus the 2h grace has elapsed at 07:01Z.
	now := time.Date(2024, 3, 2, 7, 1, 0, 0, time.UTC)
	sweeper := &SweepService{DB: db, Grace: 2 * time.Hour, now: fixedClock(now)}

	swept, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	// Day 1 morning and evening both elapsed; nothing else.
	if swept != 2 {
		t.Fatalf("swept = %d, want 2", swept)
	}

	cell, _ := repo.GetCell(ctx, db, sess.ID, "2024-03-01", domain.SlotEvening)
	if cell.Status != domain.StatusMissed || cell.DoseCount != 0 {
		t.Fatalf("unexpected cell after sweep: %+v", cell)
	}

	// Day 2 morning (due 15:00Z) is still in the future.
	cell, _ = repo.GetCell(ctx, db, sess.ID, "2024-03-02", domain.SlotMorning)
	if cell.Status != domain.StatusPending {
		t.Fatalf("future cell swept: %+v", cell)
	}
}

func TestSweepOnce_RespectsGrace(t *testing.T) {
	db := newSvcDB(t)
	sessSvc := NewSessionService(db, sessionRepoShim{})
	_ = startTestSession(t, sessSvc, "p1")
	ctx := context.Background()

	// Morning due 15:00Z; one hour past due but grace is two hours.
	now := time.Date(2024, 3, 1, 16, 0, 0, 0, time.UTC)
	sweeper := &SweepService{DB: db, Grace: 2 * time.Hour, now: fixedClock(now)}

	swept, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if swept != 0 {
		t.Fatalf("swept = %d inside grace window, want 0", swept)
	}
}

func TestSweepOnce_Idempotent(t *testing.T) {
	db := newSvcDB(t)
	sessSvc := NewSessionService(db, sessionRepoShim{})
	_ = startTestSession(t, sessSvc, "p1")
	ctx := context.Background()

	now := time.Date(2024, 3, 2, 7, 1, 0, 0, time.UTC)
	sweeper := &SweepService{DB: db, Grace: 2 * time.Hour, now: fixedClock(now)}

	first, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if first == 0 {
		t.Fatalf("first pass swept nothing")
	}
	second, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if second != 0 {
		t.Fatalf("second pass swept %d, want 0 (not idempotent)", second)
	}
}

func TestSweepOnce_NeverMarksRecordedCell(t *testing.T) {
	db := newSvcDB(t)
	sessSvc := NewSessionService(db, sessionRepoShim{})
	sess := startTestSession(t, sessSvc, "p1")
	doseSvc := &DoseService{DB: db}
	ctx := context.Background()

	// Dose lands before the sweep's conditional write.
	if _, err := doseSvc.Record(ctx, sess.ID, "2024-03-01", domain.SlotMorning, time.Date(2024, 3, 1, 15, 5, 0, 0, time.UTC), ""); err != nil {
		t.Fatalf("Record: %v", err)
	}

	now := time.Date(2024, 3, 2, 7, 1, 0, 0, time.UTC)
	sweeper := &SweepService{DB: db, Grace: 2 * time.Hour, now: fixedClock(now)}
	if _, err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	cell, _ := repo.GetCell(ctx, db, sess.ID, "2024-03-01", domain.SlotMorning)
	if cell.Status != domain.StatusTaken || cell.DoseCount != 1 {
		t.Fatalf("recorded cell regressed: %+v", cell)
	}
}

func TestSweep_ThenLateDoseBecomesOvertaken(t *testing.T) {
	db := newSvcDB(t)
	sessSvc := NewSessionService(db, sessionRepoShim{})
	sess := startTestSession(t, sessSvc, "p1")
	doseSvc := &DoseService{DB: db}
	ctx := context.Background()

	now := time.Date(2024, 3, 2, 7, 1, 0, 0, time.UTC)
	sweeper := &SweepService{DB: db, Grace: 2 * time.Hour, now: fixedClock(now)}
	if _, err := sweeper.SweepOnce(ctx); err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	// Late recording on the now-missed cell: overtaken, not taken, so the
	// miss stays visible in history.
	rec, err := doseSvc.Record(ctx, sess.ID, "2024-03-01", domain.SlotMorning, now, "found the pillbox")
	if err != nil {
		t.Fatalf("late Record: %v", err)
	}
	if rec.Status != domain.StatusOvertaken || rec.DoseCount != 1 {
		t.Fatalf("late dose result: %+v", rec)
	}
}

func TestSweepOnce_EmitsMissedEvents(t *testing.T) {
	db := newSvcDB(t)
	sessSvc := NewSessionService(db, sessionRepoShim{})
	_ = startTestSession(t, sessSvc, "p1")
	ctx := context.Background()

	n := &captureNotifier{}
	now := time.Date(2024, 3, 2, 7, 1, 0, 0, time.UTC)
	sweeper := &SweepService{DB: db, Grace: 2 * time.Hour, Notifier: n, now: fixedClock(now)}

	swept, err := sweeper.SweepOnce(ctx)
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if len(n.snapshot()) == swept {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected %d missed events, got %d", swept, len(n.snapshot()))
		}
		time.Sleep(10 * time.Millisecond)
	}
	for _, ev := range n.snapshot() {
		if ev.Status != domain.StatusMissed || ev.DoseCount != 0 {
			t.Fatalf("unexpected event: %+v", ev)
		}
	}
}

func TestSweepRun_StopsOnCancel(t *testing.T) {
	db := newSvcDB(t)
	sweeper := &SweepService{DB: db, Grace: time.Hour, Interval: 10 * time.Millisecond}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop on cancel")
	}
}
