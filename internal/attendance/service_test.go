package attendance

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/events"
	"github.com/celerix-dev/celerix-staffing/pkg/engine"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/sirupsen/logrus"
)

var testDefaults = StaffDefaults{HourlyRate: 1200, SavingsGoal: 50000, CurrentSavings: 15000}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func newTestService(t *testing.T) (*Service, *engine.MemStore, *clock, *events.Recorder, string) {
	t.Helper()
	store := engine.NewMemStore(nil, nil)
	staff, err := store.Insert(context.Background(), schema.CollectionStaff, recordstore.Record{
		"name":       "山田 太郎",
		"department": "フロント",
	})
	if err != nil {
		t.Fatal(err)
	}

	rec := &events.Recorder{}
	svc := NewService(store, rec, logrus.New(), time.UTC, testDefaults)
	c := &clock{t: at("09:00")}
	svc.now = c.Now
	return svc, store, c, rec, staff.ID()
}

func TestService_FullDay(t *testing.T) {
	ctx := context.Background()
	svc, store, c, rec, staffID := newTestService(t)

	v, err := svc.Today(ctx, staffID)
	if err != nil {
		t.Fatalf("Today failed: %v", err)
	}
	if v.State != StateNotStarted || v.Record != nil {
		t.Fatalf("Expected not_started, got %+v", v)
	}
	if v.Staff.HourlyRate != 1200 || v.Savings.Total != 15000 {
		t.Errorf("Defaults not applied: %+v", v.Staff)
	}

	v, err = svc.Apply(ctx, staffID, ActionClockIn, ActionOptions{})
	if err != nil {
		t.Fatalf("clock-in failed: %v", err)
	}
	if v.State != StateClockedIn || v.Record.ID == "" || v.Record.Date != "2026-10-16" {
		t.Fatalf("Unexpected clock-in view: %+v", v.Record)
	}
	if v.Record.WorkLocation != "フロント" || v.Record.StaffName != "山田 太郎" {
		t.Errorf("Expected department as location and denormalized name: %+v", v.Record)
	}
	if v.Message == "" {
		t.Error("Expected a greeting")
	}

	c.Set(at("12:00"))
	if _, err := svc.Apply(ctx, staffID, ActionStartBreak, ActionOptions{}); err != nil {
		t.Fatalf("start-break failed: %v", err)
	}
	c.Set(at("12:15"))
	v, _ = svc.Today(ctx, staffID)
	if v.State != StateOnBreak || v.ElapsedMinutes != 180 {
		t.Errorf("On break: state %s elapsed %d", v.State, v.ElapsedMinutes)
	}

	c.Set(at("12:30"))
	svc.Apply(ctx, staffID, ActionEndBreak, ActionOptions{})
	c.Set(at("18:00"))
	v, err = svc.Apply(ctx, staffID, ActionClockOut, ActionOptions{})
	if err != nil {
		t.Fatalf("clock-out failed: %v", err)
	}
	if v.State != StateClockedOut || v.ElapsedText != "8時間30分" || v.Earnings != 10200 {
		t.Errorf("Unexpected end of day: state %s elapsed %s earnings %d", v.State, v.ElapsedText, v.Earnings)
	}

	all, _ := store.FindMany(ctx, schema.CollectionAttendances, recordstore.Query{})
	if len(all) != 1 {
		t.Errorf("Expected one record for the day, got %d", len(all))
	}
	if got := len(rec.Events); got != 4 {
		t.Errorf("Expected 4 events, got %d", got)
	}
}

func TestService_RejectedTransitionWritesNothing(t *testing.T) {
	ctx := context.Background()
	svc, store, _, rec, staffID := newTestService(t)

	_, err := svc.Apply(ctx, staffID, ActionClockOut, ActionOptions{})
	if !errors.Is(err, ErrTransitionRejected) {
		t.Fatalf("Expected ErrTransitionRejected, got %v", err)
	}
	all, _ := store.FindMany(ctx, schema.CollectionAttendances, recordstore.Query{})
	if len(all) != 0 || len(rec.Events) != 0 {
		t.Errorf("Rejected action wrote %d records, %d events", len(all), len(rec.Events))
	}
}

func TestService_UnknownStaff(t *testing.T) {
	svc, _, _, _, _ := newTestService(t)
	_, err := svc.Apply(context.Background(), "ghost", ActionClockIn, ActionOptions{})
	if !errors.Is(err, ErrStaffNotFound) {
		t.Errorf("Expected ErrStaffNotFound, got %v", err)
	}
}

func TestService_NewDayNewRecord(t *testing.T) {
	ctx := context.Background()
	svc, store, c, _, staffID := newTestService(t)

	svc.Apply(ctx, staffID, ActionClockIn, ActionOptions{})
	c.Set(at("18:00"))
	svc.Apply(ctx, staffID, ActionClockOut, ActionOptions{})

	c.Set(at("09:00").AddDate(0, 0, 1))
	v, _ := svc.Today(ctx, staffID)
	if v.State != StateNotStarted {
		t.Fatalf("Expected a fresh day, got %s", v.State)
	}
	v, err := svc.Apply(ctx, staffID, ActionClockIn, ActionOptions{WorkLocation: "ゲレンデ"})
	if err != nil {
		t.Fatal(err)
	}
	if v.Record.Date != "2026-10-17" || v.Record.WorkLocation != "ゲレンデ" {
		t.Errorf("Unexpected new day record: %+v", v.Record)
	}
	all, _ := store.FindMany(ctx, schema.CollectionAttendances, recordstore.Query{})
	if len(all) != 2 {
		t.Errorf("Expected 2 records, got %d", len(all))
	}
}

func TestService_ConcurrentClockInCreatesOneRecord(t *testing.T) {
	ctx := context.Background()
	svc, store, _, _, staffID := newTestService(t)

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Apply(ctx, staffID, ActionClockIn, ActionOptions{})
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	ok := 0
	for err := range results {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, ErrTransitionRejected):
			t.Errorf("Unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Errorf("Expected exactly one successful clock-in, got %d", ok)
	}
	all, _ := store.FindMany(ctx, schema.CollectionAttendances, recordstore.Query{})
	if len(all) != 1 {
		t.Errorf("Expected 1 record, got %d", len(all))
	}
}

func TestService_Correct(t *testing.T) {
	ctx := context.Background()
	svc, _, c, rec, staffID := newTestService(t)

	if _, err := svc.Correct(ctx, staffID, "clock_in", "08:00"); !errors.Is(err, recordstore.ErrNotFound) {
		t.Errorf("Expected ErrNotFound without a record, got %v", err)
	}

	svc.Apply(ctx, staffID, ActionClockIn, ActionOptions{})
	c.Set(at("10:00"))

	v, err := svc.Correct(ctx, staffID, "clock_in", "08:00")
	if err != nil {
		t.Fatalf("Correct failed: %v", err)
	}
	if !v.Record.ClockInTime.Equal(at("08:00")) || v.State != StateClockedIn || v.ElapsedMinutes != 120 {
		t.Errorf("Unexpected corrected view: %+v", v)
	}

	again, _ := svc.Correct(ctx, staffID, "clock_in", "08:00")
	if !again.Record.ClockInTime.Equal(*v.Record.ClockInTime) {
		t.Error("Correct is not idempotent through the store")
	}
	if rec.Types()[len(rec.Events)-1] != events.AttendanceCorrected {
		t.Errorf("Expected a correction event, got %v", rec.Types())
	}
}

func TestKeyedMutex_ReleasesEntries(t *testing.T) {
	var k keyedMutex
	unlock := k.Lock("a")
	unlock()
	if len(k.locks) != 0 {
		t.Errorf("Expected no entries, got %d", len(k.locks))
	}
}
