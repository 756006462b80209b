// Package sqlstore is the SQL backend of the record store, built on gorm.
// Collections map to tables created by AutoMigrate from the schema types.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/celerix-dev/celerix-staffing/pkg/schema"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// ErrUnknownDriver is returned by Open for drivers other than postgres and sqlite.
var ErrUnknownDriver = errors.New("unknown sql driver")

// Store implements the record-store contract on a gorm connection.
type Store struct {
	db    *gorm.DB
	now   func() time.Time
	newID func() string
}

// Open connects with the named driver and migrates the staffing tables.
func Open(driver, dsn string) (*Store, error) {
	var dialector gorm.Dialector
	switch driver {
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	case DriverSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	if driver == DriverPostgres {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	return New(db)
}

// New wraps an open gorm connection and migrates the staffing tables.
func New(db *gorm.DB) (*Store, error) {
	if err := db.AutoMigrate(&schema.Staff{}, &schema.Application{}, &schema.AttendanceRecord{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	logrus.Info("sql record store migrated")
	return &Store{db: db, now: time.Now, newID: uuid.NewString}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) table(ctx context.Context, collection string) (*gorm.DB, error) {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return nil, err
	}
	return s.db.WithContext(ctx).Table(collection), nil
}

func (s *Store) FindOne(ctx context.Context, collection string, filter recordstore.Filter) (recordstore.Record, error) {
	recs, err := s.find(ctx, collection, recordstore.Query{Filter: filter}, 1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, recordstore.ErrNotFound
	}
	return recs[0], nil
}

func (s *Store) FindMany(ctx context.Context, collection string, q recordstore.Query) ([]recordstore.Record, error) {
	return s.find(ctx, collection, q, 0)
}

func (s *Store) find(ctx context.Context, collection string, q recordstore.Query, limit int) ([]recordstore.Record, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	tx, err := s.table(ctx, collection)
	if err != nil {
		return nil, err
	}

	for _, c := range q.Filter {
		col := clause.Column{Name: c.Field}
		switch c.Op {
		case recordstore.OpEq:
			tx = tx.Where(clause.Eq{Column: col, Value: c.Value})
		case recordstore.OpGte:
			tx = tx.Where(clause.Gte{Column: col, Value: c.Value})
		case recordstore.OpLte:
			tx = tx.Where(clause.Lte{Column: col, Value: c.Value})
		}
	}
	if q.Order != nil {
		tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: q.Order.Field}, Desc: q.Order.Desc})
	}
	tx = tx.Order(clause.OrderByColumn{Column: clause.Column{Name: recordstore.FieldCreatedAt}})
	if limit > 0 {
		tx = tx.Limit(limit)
	}

	var rows []map[string]any
	if err := tx.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find in %s: %w", collection, err)
	}

	out := make([]recordstore.Record, 0, len(rows))
	for _, row := range rows {
		rec, err := recordstore.Normalize(row)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Insert(ctx context.Context, collection string, fields recordstore.Record) (recordstore.Record, error) {
	rec, err := recordstore.Normalize(fields)
	if err != nil {
		return nil, err
	}
	stamp := recordstore.Timestamp(s.now())
	rec[recordstore.FieldID] = s.newID()
	rec[recordstore.FieldCreatedAt] = stamp
	rec[recordstore.FieldUpdatedAt] = stamp

	tx, err := s.table(ctx, collection)
	if err != nil {
		return nil, err
	}
	if err := tx.Create(columns(rec)).Error; err != nil {
		return nil, fmt.Errorf("insert into %s: %w", collection, err)
	}
	return rec, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, partial recordstore.Record) (recordstore.Record, error) {
	patch, err := recordstore.Normalize(partial)
	if err != nil {
		return nil, err
	}
	delete(patch, recordstore.FieldID)
	delete(patch, recordstore.FieldCreatedAt)
	patch[recordstore.FieldUpdatedAt] = recordstore.Timestamp(s.now())

	tx, err := s.table(ctx, collection)
	if err != nil {
		return nil, err
	}
	res := tx.Where(clause.Eq{Column: clause.Column{Name: recordstore.FieldID}, Value: id}).Updates(columns(patch))
	if res.Error != nil {
		return nil, fmt.Errorf("update %s/%s: %w", collection, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, recordstore.ErrNotFound
	}
	return s.FindOne(ctx, collection, recordstore.Where(recordstore.Eq(recordstore.FieldID, id)))
}

// Restore upserts rec by id, keeping its timestamps.
func (s *Store) Restore(ctx context.Context, collection string, rec recordstore.Record) error {
	norm, err := recordstore.Normalize(rec)
	if err != nil {
		return err
	}
	if norm.ID() == "" {
		return errors.New("record has no id")
	}

	row := columns(norm)
	updates := make([]string, 0, len(row))
	for col := range row {
		if col != recordstore.FieldID {
			updates = append(updates, col)
		}
	}
	sort.Strings(updates)

	tx, err := s.table(ctx, collection)
	if err != nil {
		return err
	}
	err = tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: recordstore.FieldID}},
		DoUpdates: clause.AssignmentColumns(updates),
	}).Create(row).Error
	if err != nil {
		return fmt.Errorf("restore %s/%s: %w", collection, norm.ID(), err)
	}
	return nil
}

// columns converts a record into the plain map gorm expects, validating keys
// since they become column names.
func columns(rec recordstore.Record) map[string]any {
	out := make(map[string]any, len(rec))
	for k, v := range rec {
		if recordstore.ValidateField(k) != nil {
			continue
		}
		out[k] = v
	}
	return out
}
