package repository

import (
	"context"
	"errors"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/store"
)

const creditsField = "greenCredits"

// UserRepository persists user accounts.
type UserRepository struct {
	store store.Store
}

// NewUserRepository returns repository instance.
func NewUserRepository(s store.Store) *UserRepository {
	return &UserRepository{store: s}
}

// Create writes the user document under u.ID.
func (r *UserRepository) Create(ctx context.Context, u models.User) error {
	doc, err := models.EncodeUser(u)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, CollectionUsers, u.ID, doc, false)
}

// Get fetches a user by id.
func (r *UserRepository) Get(ctx context.Context, id string) (models.User, error) {
	doc, err := r.store.Get(ctx, CollectionUsers, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.User{}, apperr.NotFound("user", id)
		}
		return models.User{}, err
	}
	return models.DecodeUser(doc.ID, doc.Data)
}

// AddRole grants role if the user does not hold it yet.
func (r *UserRepository) AddRole(ctx context.Context, id string, role models.Role) (models.User, error) {
	u, err := r.Get(ctx, id)
	if err != nil {
		return models.User{}, err
	}
	if u.HasRole(role) {
		return u, nil
	}
	u.Roles = append(u.Roles, role)
	if err := r.store.Set(ctx, CollectionUsers, id, map[string]any{"roles": u.Roles}, true); err != nil {
		return models.User{}, err
	}
	return u, nil
}

// IncrementCredits atomically adds delta to the user's balance.
func (r *UserRepository) IncrementCredits(ctx context.Context, id string, delta int) error {
	err := r.store.Increment(ctx, CollectionUsers, id, creditsField, int64(delta))
	if errors.Is(err, store.ErrNotFound) {
		return apperr.NotFound("user", id)
	}
	return err
}
