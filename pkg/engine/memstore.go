package engine

import (
	"context"
	"sync"
	"time"

	"github.com/celerix-dev/celerix-staffing/pkg/recordstore"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MemStore is the thread-safe embedded record store.
type MemStore struct {
	mu sync.RWMutex
	// Structure: [collection][id]record
	data      map[string]map[string]recordstore.Record
	persister *Persistence
	wg        sync.WaitGroup
	seq       uint64

	now   func() time.Time
	newID func() string
}

// NewMemStore initializes a store.
// It accepts existing data (from LoadAll) and an optional persister.
func NewMemStore(initialData map[string]map[string]recordstore.Record, p *Persistence) *MemStore {
	if initialData == nil {
		initialData = make(map[string]map[string]recordstore.Record)
	}
	return &MemStore{
		data:      initialData,
		persister: p,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Wait waits for all background persistence tasks to complete.
func (m *MemStore) Wait() {
	m.wg.Wait()
}

// Close flushes pending persistence. The store stays usable.
func (m *MemStore) Close() error {
	m.Wait()
	return nil
}

// --- Interface Implementation ---

func (m *MemStore) FindOne(ctx context.Context, collection string, filter recordstore.Filter) (recordstore.Record, error) {
	recs, err := m.FindMany(ctx, collection, recordstore.Query{Filter: filter})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

func (m *MemStore) FindMany(_ context.Context, collection string, q recordstore.Query) ([]recordstore.Record, error) {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	out := make([]recordstore.Record, 0)
	for _, rec := range m.data[collection] {
		if q.Filter.Match(rec) {
			out = append(out, rec.Clone())
		}
	}
	m.mu.RUnlock()

	// Map iteration is random; settle on insertion order before applying the caller's order.
	recordstore.Sort(out, &recordstore.Order{Field: recordstore.FieldCreatedAt})
	recordstore.Sort(out, q.Order)
	return out, nil
}

func (m *MemStore) Insert(_ context.Context, collection string, fields recordstore.Record) (recordstore.Record, error) {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return nil, err
	}
	rec, err := recordstore.Normalize(fields)
	if err != nil {
		return nil, err
	}
	stamp := recordstore.Timestamp(m.now())
	rec[recordstore.FieldID] = m.newID()
	rec[recordstore.FieldCreatedAt] = stamp
	rec[recordstore.FieldUpdatedAt] = stamp

	m.mu.Lock()
	m.put(collection, rec)
	snapshot, seq := m.snapshot(collection)
	m.mu.Unlock()

	m.persist(collection, snapshot, seq)
	return rec.Clone(), nil
}

func (m *MemStore) Update(_ context.Context, collection, id string, partial recordstore.Record) (recordstore.Record, error) {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return nil, err
	}
	patch, err := recordstore.Normalize(partial)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	rec, ok := m.data[collection][id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrNotFound
	}
	for k, v := range patch {
		if k == recordstore.FieldID || k == recordstore.FieldCreatedAt {
			continue
		}
		rec[k] = v
	}
	rec[recordstore.FieldUpdatedAt] = recordstore.Timestamp(m.now())
	out := rec.Clone()
	snapshot, seq := m.snapshot(collection)
	m.mu.Unlock()

	m.persist(collection, snapshot, seq)
	return out, nil
}

// Restore stores rec as-is, replacing any record with the same id.
func (m *MemStore) Restore(_ context.Context, collection string, rec recordstore.Record) error {
	if err := recordstore.ValidateCollection(collection); err != nil {
		return err
	}
	norm, err := recordstore.Normalize(rec)
	if err != nil {
		return err
	}
	if norm.ID() == "" {
		return ErrMissingID
	}

	m.mu.Lock()
	m.put(collection, norm)
	snapshot, seq := m.snapshot(collection)
	m.mu.Unlock()

	m.persist(collection, snapshot, seq)
	return nil
}

// Collections lists the collections currently holding records.
func (m *MemStore) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var list []string
	for name := range m.data {
		list = append(list, name)
	}
	return list
}

// put must be called while holding m.mu.Lock.
func (m *MemStore) put(collection string, rec recordstore.Record) {
	if m.data[collection] == nil {
		m.data[collection] = make(map[string]recordstore.Record)
	}
	m.data[collection][rec.ID()] = rec
}

// copyCollection creates a copy of a collection safe to save in the background.
// It MUST be called while holding m.mu.Lock or m.mu.RLock.
func (m *MemStore) copyCollection(collection string) map[string]recordstore.Record {
	original, ok := m.data[collection]
	if !ok {
		return nil
	}
	out := make(map[string]recordstore.Record, len(original))
	for id, rec := range original {
		out[id] = rec.Clone()
	}
	return out
}

// snapshot copies a collection and numbers the copy so that a slow
// background save can never overwrite a newer one.
// It MUST be called while holding m.mu.Lock.
func (m *MemStore) snapshot(collection string) (map[string]recordstore.Record, uint64) {
	m.seq++
	return m.copyCollection(collection), m.seq
}

func (m *MemStore) persist(collection string, snapshot map[string]recordstore.Record, seq uint64) {
	if m.persister == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.persister.SaveCollection(collection, snapshot, seq); err != nil {
			logrus.WithError(err).WithField("collection", collection).Warn("persisting collection failed")
		}
	}()
}
