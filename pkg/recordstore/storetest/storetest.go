// Package storetest checks that a recordstore.Store backend honours the
// record-store contract. Backend packages call Run from their tests.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
)

// Run exercises store against the contract. Collections used are the
// staffing collections; the store must accept their fields.
func Run(t *testing.T, store recordstore.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("InsertStampsRecord", func(t *testing.T) {
		rec, err := store.Insert(ctx, "staff", recordstore.Record{"name": "山田 太郎", "hourly_rate": 1200})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if rec.ID() == "" {
			t.Fatal("Insert did not assign an id")
		}
		created, _ := rec[recordstore.FieldCreatedAt].(string)
		if created == "" || rec[recordstore.FieldUpdatedAt] != created {
			t.Errorf("Insert timestamps: created %v updated %v", rec[recordstore.FieldCreatedAt], rec[recordstore.FieldUpdatedAt])
		}
		if rec["hourly_rate"] != float64(1200) {
			t.Errorf("Expected numeric field as float64 1200, got %#v", rec["hourly_rate"])
		}
	})

	t.Run("FindOneNotFound", func(t *testing.T) {
		_, err := store.FindOne(ctx, "attendances", recordstore.Where(recordstore.Eq("staff_id", "nobody")))
		if !errors.Is(err, recordstore.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateUnknownID", func(t *testing.T) {
		_, err := store.Update(ctx, "attendances", "missing", recordstore.Record{"status": "clocked_in"})
		if !errors.Is(err, recordstore.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UpdateMergesAndClears", func(t *testing.T) {
		rec, err := store.Insert(ctx, "attendances", recordstore.Record{
			"staff_id":       "s-contract",
			"date":           "2026-10-16",
			"status":         "clocked_out",
			"clock_out_time": "2026-10-16T18:00:00Z",
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		updated, err := store.Update(ctx, "attendances", rec.ID(), recordstore.Record{
			"status":         "clocked_in",
			"clock_out_time": nil,
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated["status"] != "clocked_in" || updated["date"] != "2026-10-16" {
			t.Errorf("Update did not merge: %v", updated)
		}
		if updated["clock_out_time"] != nil {
			t.Errorf("Update did not clear clock_out_time: %v", updated["clock_out_time"])
		}
		if updated[recordstore.FieldCreatedAt] != rec[recordstore.FieldCreatedAt] {
			t.Errorf("Update changed created_at")
		}

		got, err := store.FindOne(ctx, "attendances", recordstore.Where(
			recordstore.Eq("staff_id", "s-contract"), recordstore.Eq("date", "2026-10-16"),
		))
		if err != nil {
			t.Fatalf("FindOne failed: %v", err)
		}
		if got.ID() != rec.ID() || got["status"] != "clocked_in" {
			t.Errorf("FindOne returned %v", got)
		}
	})

	t.Run("FindManyRangeAndOrder", func(t *testing.T) {
		for _, d := range []string{"2026-09-30", "2026-10-11", "2026-10-14", "2026-10-17", "2026-10-18"} {
			if _, err := store.Insert(ctx, "attendances", recordstore.Record{"staff_id": "s-range", "date": d}); err != nil {
				t.Fatalf("Insert failed: %v", err)
			}
		}
		recs, err := store.FindMany(ctx, "attendances", recordstore.Query{
			Filter: recordstore.Where(
				recordstore.Eq("staff_id", "s-range"),
				recordstore.Gte("date", "2026-10-11"),
				recordstore.Lte("date", "2026-10-17"),
			),
			Order: &recordstore.Order{Field: "date", Desc: true},
		})
		if err != nil {
			t.Fatalf("FindMany failed: %v", err)
		}
		if len(recs) != 3 {
			t.Fatalf("Expected 3 records, got %d", len(recs))
		}
		if recs[0]["date"] != "2026-10-17" || recs[1]["date"] != "2026-10-14" || recs[2]["date"] != "2026-10-11" {
			t.Errorf("Unexpected order: %v %v %v", recs[0]["date"], recs[1]["date"], recs[2]["date"])
		}
	})

	t.Run("RejectsBadFieldNames", func(t *testing.T) {
		_, err := store.FindMany(ctx, "staff", recordstore.Query{
			Filter: recordstore.Where(recordstore.Eq("name; drop table staff", "x")),
		})
		if !errors.Is(err, recordstore.ErrInvalidField) {
			t.Errorf("Expected ErrInvalidField, got %v", err)
		}
	})

	t.Run("RejectsBadCollectionNames", func(t *testing.T) {
		for _, name := range []string{"../escaped", "staff/../../x", "Staff", ""} {
			if _, err := store.Insert(ctx, name, recordstore.Record{"name": "x"}); !errors.Is(err, recordstore.ErrInvalidField) {
				t.Errorf("Insert into %q: expected ErrInvalidField, got %v", name, err)
			}
			if _, err := store.FindMany(ctx, name, recordstore.Query{}); !errors.Is(err, recordstore.ErrInvalidField) {
				t.Errorf("FindMany on %q: expected ErrInvalidField, got %v", name, err)
			}
			if _, err := store.Update(ctx, name, "a1", recordstore.Record{"name": "y"}); !errors.Is(err, recordstore.ErrInvalidField) {
				t.Errorf("Update in %q: expected ErrInvalidField, got %v", name, err)
			}
		}
	})

	if restorer, ok := store.(recordstore.Restorer); ok {
		t.Run("RestoreKeepsIdentity", func(t *testing.T) {
			rec := recordstore.Record{
				"id":         "restored-1",
				"name":       "佐藤 花子",
				"created_at": "2025-04-01T09:00:00.000Z",
				"updated_at": "2025-04-02T09:00:00.000Z",
			}
			if err := restorer.Restore(ctx, "staff", rec); err != nil {
				t.Fatalf("Restore failed: %v", err)
			}
			// A second restore replaces rather than duplicates.
			rec["name"] = "佐藤 花子 (2)"
			if err := restorer.Restore(ctx, "staff", rec); err != nil {
				t.Fatalf("Second restore failed: %v", err)
			}
			got, err := store.FindOne(ctx, "staff", recordstore.Where(recordstore.Eq("id", "restored-1")))
			if err != nil {
				t.Fatalf("FindOne failed: %v", err)
			}
			if got["created_at"] != "2025-04-01T09:00:00.000Z" || got["name"] != "佐藤 花子 (2)" {
				t.Errorf("Restore mismatch: %v", got)
			}
		})
	}
}
