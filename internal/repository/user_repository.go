package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

// UserRepository persists profile documents in the users collection.
type UserRepository struct {
	store docstore.Store
}

// NewUserRepository constructs the repository.
func NewUserRepository(store docstore.Store) *UserRepository {
	return &UserRepository{store: store}
}

// FindByID returns one profile, docstore.ErrNotFound when absent.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	doc, err := r.store.Get(ctx, docstore.CollectionUsers, id)
	if err != nil {
		if err == docstore.ErrNotFound {
			return nil, err
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	var user models.User
	if err := doc.Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", id, err)
	}
	return &user, nil
}

// FindByEmail returns the profile with the given email, docstore.ErrNotFound
// when no profile matches.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionUsers, docstore.Eq("email", email))
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	if len(docs) == 0 {
		return nil, docstore.ErrNotFound
	}
	var user models.User
	if err := docs[0].Decode(&user); err != nil {
		return nil, fmt.Errorf("decode user %s: %w", docs[0].ID, err)
	}
	return &user, nil
}

// ListCoaches returns every profile with the coach role.
func (r *UserRepository) ListCoaches(ctx context.Context) ([]models.User, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionUsers, docstore.Eq("role", string(models.RoleCoach)))
	if err != nil {
		return nil, fmt.Errorf("list coaches: %w", err)
	}
	coaches := make([]models.User, 0, len(docs))
	for _, doc := range docs {
		var user models.User
		if err := doc.Decode(&user); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", doc.ID, err)
		}
		coaches = append(coaches, user)
	}
	return coaches, nil
}

// CreateProfile writes the profile under the caller-chosen id, which must be
// the id of the credential provisioned for this user.
func (r *UserRepository) CreateProfile(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if err := r.store.Set(ctx, docstore.CollectionUsers, user.ID, user); err != nil {
		return fmt.Errorf("create user profile: %w", err)
	}
	return nil
}

// Delete removes the profile document.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if err := r.store.Delete(ctx, docstore.CollectionUsers, id); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return nil
}

// CountCoaches reports the number of coach profiles.
func (r *UserRepository) CountCoaches(ctx context.Context) (int, error) {
	count, err := r.store.Count(ctx, docstore.CollectionUsers, docstore.Eq("role", string(models.RoleCoach)))
	if err != nil {
		return 0, fmt.Errorf("count coaches: %w", err)
	}
	return count, nil
}
