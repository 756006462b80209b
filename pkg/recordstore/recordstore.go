// Package recordstore defines the contract between the staffing services and
// whatever holds their records: the embedded engine, a SQL database or a
// remote store daemon.
package recordstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches a lookup.
	ErrNotFound = errors.New("not found")
	// ErrInvalidField is returned when a filter or order names a field that is not a plain identifier.
	ErrInvalidField = errors.New("invalid field name")
)

// Reserved field names maintained by every backend.
const (
	FieldID        = "id"
	FieldCreatedAt = "created_at"
	FieldUpdatedAt = "updated_at"
)

// TimestampLayout is the layout of store-generated timestamps. The fixed
// fraction width keeps lexicographic order equal to chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp formats t the way backends stamp created_at and updated_at.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Record is a single document in a collection.
type Record map[string]any

// ID returns the record identifier, or "" when absent.
func (r Record) ID() string {
	id, _ := r[FieldID].(string)
	return id
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// --- Functional Interfaces (Interface Segregation) ---

// Reader defines the query operations.
type Reader interface {
	// FindOne returns the first record matching filter, or ErrNotFound.
	FindOne(ctx context.Context, collection string, filter Filter) (Record, error)
	// FindMany returns all records matching q.Filter, sorted by q.Order.
	FindMany(ctx context.Context, collection string, q Query) ([]Record, error)
}

// Writer defines the mutating operations. There is no delete.
type Writer interface {
	// Insert stores fields as a new record and returns it with id and timestamps set.
	Insert(ctx context.Context, collection string, fields Record) (Record, error)
	// Update merges partial into the record with the given id. A nil value clears the field.
	Update(ctx context.Context, collection, id string, partial Record) (Record, error)
}

// Restorer writes a complete record verbatim, keeping its id and timestamps.
// It is used by migrations and backups.
type Restorer interface {
	Restore(ctx context.Context, collection string, rec Record) error
}

// Store is the primary interface for interacting with a record store.
type Store interface {
	Reader
	Writer
}
