// Package memory is an in-process document store used for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"plugin/backend/services/marketplace/internal/store"
)

// Store keeps documents in maps guarded by one mutex, so every write is atomic and every
// query sees a consistent view.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string]store.Document
	hub         *store.Hub
	now         func() time.Time
	newID       func() string
}

// New returns an empty store.
func New(logger *zap.Logger) *Store {
	s := &Store{
		collections: make(map[string]map[string]store.Document),
		now:         time.Now,
		newID:       uuid.NewString,
	}
	s.hub = store.NewHub(s.Query, logger)
	return s
}

var _ store.Store = (*Store)(nil)

// Get returns a copy of the document.
func (s *Store) Get(ctx context.Context, collection, id string) (store.Document, error) {
	if err := ctx.Err(); err != nil {
		return store.Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return store.Document{}, store.ErrNotFound
	}
	return clone(doc), nil
}

// Set writes fields, replacing the document unless merge is set.
func (s *Store) Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := store.Normalize(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	coll := s.collection(collection)
	doc, ok := coll[id]
	if !ok || !merge {
		doc = store.Document{ID: id, Data: map[string]any{}}
	}
	for k, v := range data {
		doc.Data[k] = v
	}
	doc.UpdatedAt = s.now()
	coll[id] = doc
	s.mu.Unlock()

	s.hub.Notify(collection)
	return nil
}

// SetIf merges fields only when every cond holds on the current document.
func (s *Store) SetIf(ctx context.Context, collection, id string, conds []store.Where, fields map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := store.Normalize(fields)
	if err != nil {
		return err
	}

	s.mu.Lock()
	coll := s.collection(collection)
	doc, ok := coll[id]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}
	for _, cond := range conds {
		if !cond.Matches(doc.Data) {
			s.mu.Unlock()
			return store.ErrPreconditionFailed
		}
	}
	for k, v := range data {
		doc.Data[k] = v
	}
	doc.UpdatedAt = s.now()
	coll[id] = doc
	s.mu.Unlock()

	s.hub.Notify(collection)
	return nil
}

// Add stores a new document under a generated id.
func (s *Store) Add(ctx context.Context, collection string, fields map[string]any) (string, error) {
	id := s.newID()
	if err := s.Set(ctx, collection, id, fields, false); err != nil {
		return "", err
	}
	return id, nil
}

// Increment adds delta to a numeric field in place. A missing field counts as zero.
func (s *Store) Increment(ctx context.Context, collection, id, field string, delta int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	coll := s.collection(collection)
	doc, ok := coll[id]
	if !ok {
		s.mu.Unlock()
		return store.ErrNotFound
	}

	var current float64
	switch v := doc.Data[field].(type) {
	case nil:
	case float64:
		current = v
	default:
		s.mu.Unlock()
		return store.ErrNotNumeric
	}
	doc.Data[field] = current + float64(delta)
	doc.UpdatedAt = s.now()
	coll[id] = doc
	s.mu.Unlock()

	s.hub.Notify(collection)
	return nil
}

// Delete removes the document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	_, existed := s.collections[collection][id]
	delete(s.collections[collection], id)
	s.mu.Unlock()

	if existed {
		s.hub.Notify(collection)
	}
	return nil
}

// Query returns matching documents ordered by id.
func (s *Store) Query(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]store.Document, 0)
	for _, doc := range s.collections[collection] {
		if filter.Matches(doc) {
			out = append(out, clone(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Subscribe delivers the matching set now and after every change to collection.
func (s *Store) Subscribe(ctx context.Context, collection string, filter store.Filter, fn func(store.Snapshot)) (store.CancelFunc, error) {
	return s.hub.Subscribe(ctx, collection, filter, fn)
}

// Subscriptions returns the number of live subscriptions.
func (s *Store) Subscriptions() int {
	return s.hub.Active()
}

// Close stops every subscription.
func (s *Store) Close() {
	s.hub.Close()
}

func (s *Store) collection(name string) map[string]store.Document {
	coll, ok := s.collections[name]
	if !ok {
		coll = make(map[string]store.Document)
		s.collections[name] = coll
	}
	return coll
}

func clone(doc store.Document) store.Document {
	data := make(map[string]any, len(doc.Data))
	for k, v := range doc.Data {
		data[k] = v
	}
	return store.Document{ID: doc.ID, Data: data, UpdatedAt: doc.UpdatedAt}
}
