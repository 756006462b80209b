package seed

import (
	"context"
	"testing"
	"time"

	"github.com/celerix-dev/celerix-staffing/internal/dashboard"
	"github.com/celerix-dev/celerix-staffing/pkg/engine"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/celerix-dev/celerix-staffing/pkg/sdk"
)

func TestRun(t *testing.T) {
	ctx := context.Background()
	store := engine.NewMemStore(nil, nil)
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

	res, err := Run(ctx, store, Options{Staff: 5, Applications: 8, Days: 7, Seed: 42, Now: now})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if res.Staff != 5 || res.Applications != 8 {
		t.Errorf("Unexpected result: %+v", res)
	}

	apps, err := sdk.FindMany[schema.Application](ctx, store, schema.CollectionApplications, recordstore.Query{})
	if err != nil || len(apps) != 8 {
		t.Fatalf("Expected 8 applications, got %d (%v)", len(apps), err)
	}
	for _, a := range apps {
		if !a.Status.Valid() {
			t.Errorf("Seeded invalid status %q", a.Status)
		}
	}

	recs, err := sdk.FindMany[schema.AttendanceRecord](ctx, store, schema.CollectionAttendances, recordstore.Query{})
	if err != nil || len(recs) != res.Attendances {
		t.Fatalf("Expected %d attendances, got %d (%v)", res.Attendances, len(recs), err)
	}
	for _, r := range recs {
		if r.Status != schema.AttendanceClockedOut || r.Date >= "2026-10-16" || r.Date < "2026-10-09" {
			t.Errorf("Unexpected seeded record: %+v", r)
		}
		if h, ok := dashboard.CompletedHours(r); !ok || h < 5 || h > 11 {
			t.Errorf("Implausible shift of %.1fh on %s", h, r.Date)
		}
	}
}

func TestRun_Deterministic(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)
	names := func() []string {
		store := engine.NewMemStore(nil, nil)
		Run(ctx, store, Options{Staff: 3, Seed: 7, Now: now})
		staff, _ := sdk.FindMany[schema.Staff](ctx, store, schema.CollectionStaff, recordstore.Query{
			Order: &recordstore.Order{Field: "employee_id"},
		})
		var out []string
		for _, s := range staff {
			out = append(out, s.Name)
		}
		return out
	}
	a, b := names(), names()
	if len(a) != 3 || a[0] != b[0] || a[2] != b[2] {
		t.Errorf("Same seed produced different staff: %v vs %v", a, b)
	}
}
