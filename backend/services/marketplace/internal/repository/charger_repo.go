package repository

import (
	"context"
	"errors"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/store"
)

// ChargerRepository persists chargers.
type ChargerRepository struct {
	store store.Store
}

// NewChargerRepository returns repository instance.
func NewChargerRepository(s store.Store) *ChargerRepository {
	return &ChargerRepository{store: s}
}

// Create stores c and assigns its id.
func (r *ChargerRepository) Create(ctx context.Context, c *models.Charger) error {
	doc, err := models.EncodeCharger(*c)
	if err != nil {
		return err
	}
	id, err := r.store.Add(ctx, CollectionChargers, doc)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// Get fetches a charger by id.
func (r *ChargerRepository) Get(ctx context.Context, id string) (models.Charger, error) {
	doc, err := r.store.Get(ctx, CollectionChargers, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Charger{}, apperr.NotFound("charger", id)
		}
		return models.Charger{}, err
	}
	return models.DecodeCharger(doc.ID, doc.Data)
}

// Update merges fields into the charger.
func (r *ChargerRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	return r.store.Set(ctx, CollectionChargers, id, fields, true)
}

// Delete removes the charger.
func (r *ChargerRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollectionChargers, id)
}

// ListByHost returns the host's chargers.
func (r *ChargerRepository) ListByHost(ctx context.Context, hostID string) ([]models.Charger, error) {
	return r.list(ctx, store.Eq("hostId", hostID))
}

// ListAvailable returns chargers whose status is available.
func (r *ChargerRepository) ListAvailable(ctx context.Context) ([]models.Charger, error) {
	return r.list(ctx, availableFilter())
}

// SubscribeHostChargers pushes the host's chargers on every change.
func (r *ChargerRepository) SubscribeHostChargers(ctx context.Context, hostID string, fn func([]models.Charger, error)) (store.CancelFunc, error) {
	return r.subscribe(ctx, store.Eq("hostId", hostID), fn)
}

// SubscribeAvailableChargers pushes every available charger on every change.
func (r *ChargerRepository) SubscribeAvailableChargers(ctx context.Context, fn func([]models.Charger, error)) (store.CancelFunc, error) {
	return r.subscribe(ctx, availableFilter(), fn)
}

func (r *ChargerRepository) subscribe(ctx context.Context, filter store.Filter, fn func([]models.Charger, error)) (store.CancelFunc, error) {
	return r.store.Subscribe(ctx, CollectionChargers, filter, func(snap store.Snapshot) {
		if snap.Err != nil {
			fn(nil, snap.Err)
			return
		}
		fn(decodeAll(snap.Documents, models.DecodeCharger))
	})
}

func (r *ChargerRepository) list(ctx context.Context, filter store.Filter) ([]models.Charger, error) {
	docs, err := r.store.Query(ctx, CollectionChargers, filter)
	if err != nil {
		return nil, err
	}
	return decodeAll(docs, models.DecodeCharger)
}

func availableFilter() store.Filter {
	return store.Eq("status", string(models.ChargerAvailable))
}
