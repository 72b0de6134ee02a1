package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

// CredentialRepository persists identity records in the credentials
// collection. It models the hosted auth provider's user entries.
type CredentialRepository struct {
	store docstore.Store
}

// NewCredentialRepository constructs the repository.
func NewCredentialRepository(store docstore.Store) *CredentialRepository {
	return &CredentialRepository{store: store}
}

// FindByID returns one credential, docstore.ErrNotFound when absent.
func (r *CredentialRepository) FindByID(ctx context.Context, id string) (*models.Credential, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionCredentials, id)
	if err != nil {
		if err == docstore.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find credential: %w", err)
	}
	var cred models.Credential
	if err := doc.Decode(&cred); err != nil {
		return nil, fmt.Errorf("decode credential %s: %w", id, err)
	}
	return &cred, nil
}

// FindByEmail returns the credential registered for email, or
// docstore.ErrNotFound.
func (r *CredentialRepository) FindByEmail(ctx context.Context, email string) (*models.Credential, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionCredentials, docstore.Eq("email", email))
	if err != nil {
		return nil, fmt.Errorf("find credential by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, docstore.ErrNotFound
	}
	var cred models.Credential
	if err := docs[0].Decode(&cred); err != nil {
		return nil, fmt.Errorf("decode credential %s: %w", docs[0].ID, err)
	}
	return &cred, nil
}

// Create inserts a new credential and fills in the generated id.
func (r *CredentialRepository) Create(ctx context.Context, cred *models.Credential) error {
	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now().UTC()
	}
	id, err := r.store.Add(ctx, docstore.CollectionCredentials, cred)
	if err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	cred.ID = id
	return nil
}

// UpdatePasswordHash replaces the stored password hash.
func (r *CredentialRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	patch := map[string]interface{}{"passwordHash": passwordHash}
	if err := r.store.Update(ctx, docstore.CollectionCredentials, id, patch); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("update credential %s: %w", id, err)
	}
	return nil
}

// Delete removes a credential. Used both for coach removal and as the
// compensating step when profile provisioning fails partway through.
func (r *CredentialRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, docstore.CollectionCredentials, id); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("delete credential %s: %w", id, err)
	}
	return nil
}
