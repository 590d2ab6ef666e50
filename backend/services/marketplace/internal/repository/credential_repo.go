package repository

import (
	"context"
	"errors"

	"plugin/backend/services/marketplace/internal/apperr"
	"plugin/backend/services/marketplace/internal/models"
	"plugin/backend/services/marketplace/internal/store"
)

// ErrCredentialNotFound is returned when no login exists for an email.
var ErrCredentialNotFound = errors.New("repository: credential not found")

// CredentialRepository persists login records.
type CredentialRepository struct {
	store store.Store
}

// NewCredentialRepository returns repository instance.
func NewCredentialRepository(s store.Store) *CredentialRepository {
	return &CredentialRepository{store: s}
}

// Create writes the credential under its email.
func (r *CredentialRepository) Create(ctx context.Context, c models.Credential) error {
	if c.Email == "" {
		return apperr.Validation("email is required")
	}
	doc, err := models.EncodeCredential(c)
	if err != nil {
		return err
	}
	return r.store.Set(ctx, CollectionCredentials, c.Email, doc, false)
}

// GetByEmail fetches the credential for email.
func (r *CredentialRepository) GetByEmail(ctx context.Context, email string) (models.Credential, error) {
	doc, err := r.store.Get(ctx, CollectionCredentials, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return models.Credential{}, ErrCredentialNotFound
		}
		return models.Credential{}, err
	}
	return models.DecodeCredential(doc.ID, doc.Data)
}
