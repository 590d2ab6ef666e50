// Package store defines the document store the marketplace persists to and the snapshot
// subscription model built on top of it.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"plugin/backend/services/marketplace/internal/apperr"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = fmt.Errorf("store: document %w", apperr.ErrNotFound)
	// ErrPreconditionFailed is returned by SetIf when a guard does not hold.
	ErrPreconditionFailed = errors.New("store: precondition failed")
	// ErrNotNumeric is returned by Increment when the target field holds a non-number.
	ErrNotNumeric = fmt.Errorf("store: field is not numeric: %w", apperr.ErrValidation)
	// ErrClosed is returned by Subscribe after the store shut down.
	ErrClosed = errors.New("store: closed")
)

// Document is one stored record. Data never contains the id.
type Document struct {
	ID        string
	Data      map[string]any
	UpdatedAt time.Time
}

// Where is an equality predicate on a top-level field, compared on its text form. With Absent
// set it instead requires the field to be missing or null.
type Where struct {
	Field  string
	Value  string
	Absent bool
}

// Missing builds a predicate that holds while field is unset.
func Missing(field string) Where {
	return Where{Field: field, Absent: true}
}

// Matches reports whether data satisfies the predicate.
func (w Where) Matches(data map[string]any) bool {
	v, ok := data[w.Field]
	if w.Absent {
		return !ok || v == nil
	}
	if !ok || v == nil {
		return false
	}
	return textValue(v) == w.Value
}

// Filter selects documents within a collection.
type Filter struct {
	ID    string
	Where []Where
}

// Matches reports whether doc passes every predicate.
func (f Filter) Matches(doc Document) bool {
	if f.ID != "" && doc.ID != f.ID {
		return false
	}
	for _, w := range f.Where {
		if !w.Matches(doc.Data) {
			return false
		}
	}
	return true
}

// Eq builds a single-field filter.
func Eq(field, value string) Filter {
	return Filter{Where: []Where{{Field: field, Value: value}}}
}

// And appends another predicate.
func (f Filter) And(field, value string) Filter {
	where := make([]Where, len(f.Where), len(f.Where)+1)
	copy(where, f.Where)
	f.Where = append(where, Where{Field: field, Value: value})
	return f
}

// Snapshot is a full result set pushed to a subscriber. Err is set when the refresh failed.
type Snapshot struct {
	Documents []Document
	Err       error
}

// CancelFunc stops a subscription. It is safe to call more than once.
type CancelFunc func()

// Store is the persistence boundary.
type Store interface {
	Get(ctx context.Context, collection, id string) (Document, error)
	Set(ctx context.Context, collection, id string, fields map[string]any, merge bool) error
	SetIf(ctx context.Context, collection, id string, conds []Where, fields map[string]any) error
	Add(ctx context.Context, collection string, fields map[string]any) (string, error)
	Increment(ctx context.Context, collection, id, field string, delta int64) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, filter Filter) ([]Document, error)
	Subscribe(ctx context.Context, collection string, filter Filter, fn func(Snapshot)) (CancelFunc, error)
}

// Feed carries "collection changed" signals between processes sharing one store.
type Feed interface {
	Publish(ctx context.Context, collection string) error
	Listen(ctx context.Context, fn func(collection string)) error
}

// textValue renders v the way Postgres renders data->>field.
func textValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(raw)
}

// Normalize deep-copies fields through the JSON encoding so stored values have the same shapes
// regardless of backend (strings, float64, bool, []any, map[string]any).
func Normalize(fields map[string]any) (map[string]any, error) {
	if fields == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("store: encode fields: %w", err)
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("store: encode fields: %w", err)
	}
	delete(out, "id")
	return out, nil
}
