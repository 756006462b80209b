package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/celerix-dev/celerix-staffing/pkg/engine"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/recordstore/storetest"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(DriverSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStore_Contract(t *testing.T) {
	storetest.Run(t, newTestStore(t))
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "")
	if !errors.Is(err, ErrUnknownDriver) {
		t.Errorf("Expected ErrUnknownDriver, got %v", err)
	}
}

func TestSQLStore_TypedRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	handler := "佐藤"
	fields, err := recordstore.Encode(schema.Application{
		FromID:         "camp-1",
		Name:           "山田 太郎",
		Status:         schema.StatusSubmitted,
		PersonInCharge: &handler,
	})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	delete(fields, "id")
	delete(fields, "created_at")
	delete(fields, "updated_at")

	rec, err := s.Insert(ctx, schema.CollectionApplications, fields)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := s.FindOne(ctx, schema.CollectionApplications, recordstore.Where(recordstore.Eq("id", rec.ID())))
	if err != nil {
		t.Fatalf("FindOne failed: %v", err)
	}
	app, err := recordstore.Decode[schema.Application](got)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if app.Name != "山田 太郎" || app.Handler() != "佐藤" || app.Status != schema.StatusSubmitted {
		t.Errorf("Unexpected application: %+v", app)
	}
	if app.InterviewDate != nil {
		t.Errorf("Expected no interview date, got %v", *app.InterviewDate)
	}
	if app.CreatedAt.IsZero() {
		t.Error("created_at did not decode")
	}
}

func TestSQLStore_UnknownCollection(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Insert(context.Background(), "no_such_table", recordstore.Record{"x": 1}); err == nil {
		t.Error("Expected an error for a missing table")
	}
	if _, err := s.FindMany(context.Background(), "bad name", recordstore.Query{}); !errors.Is(err, recordstore.ErrInvalidField) {
		t.Errorf("Expected ErrInvalidField for collection name, got %v", err)
	}
}

func TestMigrate_EmbeddedToSQL(t *testing.T) {
	ctx := context.Background()
	src := engine.NewMemStore(nil, nil)
	dst := newTestStore(t)

	s, _ := src.Insert(ctx, schema.CollectionStaff, recordstore.Record{"name": "田中", "department": "フロント"})
	src.Insert(ctx, schema.CollectionAttendances, recordstore.Record{"staff_id": s.ID(), "date": "2026-10-16", "status": "clocked_in"})

	n, err := engine.Migrate(ctx, src, dst, schema.Collections...)
	if err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 records migrated, got %d", n)
	}

	got, err := dst.FindOne(ctx, schema.CollectionStaff, recordstore.Where(recordstore.Eq("id", s.ID())))
	if err != nil {
		t.Fatalf("Migrated staff missing: %v", err)
	}
	if got["created_at"] != s["created_at"] {
		t.Errorf("created_at changed: %v vs %v", got["created_at"], s["created_at"])
	}
}
