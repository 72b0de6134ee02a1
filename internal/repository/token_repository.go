package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/coachdesk/coachdesk-api/internal/models"
	"github.com/coachdesk/coachdesk-api/internal/store/docstore"
)

// TokenRepository persists refresh token sessions.
type TokenRepository struct {
	store docstore.Store
}

// NewTokenRepository constructs the repository.
func NewTokenRepository(store docstore.Store) *TokenRepository {
	return &TokenRepository{store: store}
}

// Create stores a new refresh token session.
func (r *TokenRepository) Create(ctx context.Context, token *models.RefreshToken) error {
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	if err := r.store.Set(ctx, docstore.CollectionRefreshTokens, token.ID, token); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindByToken looks up a session by its opaque token value.
func (r *TokenRepository) FindByToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	docs, err := r.store.Query(ctx, docstore.CollectionRefreshTokens, docstore.Eq("token", token))
	if err != nil {
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	if len(docs) == 0 {
		return nil, docstore.ErrNotFound
	}
	var session models.RefreshToken
	if err := docs[0].Decode(&session); err != nil {
		return nil, fmt.Errorf("decode refresh token %s: %w", docs[0].ID, err)
	}
	return &session, nil
}

// Revoke marks one session revoked.
func (r *TokenRepository) Revoke(ctx context.Context, id string, revokedAt time.Time) error {
	patch := map[string]interface{}{
		"revoked":   true,
		"revokedAt": revokedAt.Format(time.RFC3339Nano),
	}
	if err := r.store.Update(ctx, docstore.CollectionRefreshTokens, id, patch); err != nil {
		if err == docstore.ErrNotFound {
			return err
		}
		return fmt.Errorf("revoke refresh token %s: %w", id, err)
	}
	return nil
}

// RevokeAllForUser marks every live session of the user revoked.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	docs, err := r.store.Query(ctx, docstore.CollectionRefreshTokens,
		docstore.Eq("userId", userID),
		docstore.Eq("revoked", false),
	)
	if err != nil {
		return fmt.Errorf("list refresh tokens for user %s: %w", userID, err)
	}
	now := time.Now().UTC()
	for _, doc := range docs {
		if err := r.Revoke(ctx, doc.ID, now); err != nil && err != docstore.ErrNotFound {
			return err
		}
	}
	return nil
}
