// Package repository maps marketplace entities onto store collections and exposes typed
// snapshot subscriptions.
package repository

import (
	"errors"

	"plugin/backend/services/marketplace/internal/store"
)

const (
	CollectionUsers       = "users"
	CollectionChargers    = "chargers"
	CollectionBookings    = "bookings"
	CollectionCredentials = "credentials"
)

// ErrStatusChanged is returned when a guarded status write lost a race.
var ErrStatusChanged = errors.New("repository: status changed concurrently")

// decodeAll decodes every document it can. Undecodable documents are reported through the
// joined error instead of being dropped silently.
func decodeAll[T any](docs []store.Document, decode func(id string, data map[string]any) (T, error)) ([]T, error) {
	out := make([]T, 0, len(docs))
	var errs []error
	for _, doc := range docs {
		v, err := decode(doc.ID, doc.Data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, v)
	}
	return out, errors.Join(errs...)
}
