package repo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"crewline/internal/domain"
	"crewline/internal/store"
)

// HashAPIKey returns a stable SHA-256 hex digest for the provided key.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

// InsertAPIKey stores a hashed API key. KeyHash must already contain the hashed value.
func (r Repo) InsertAPIKey(ctx context.Context, key domain.APIKey) (domain.APIKey, error) {
	if key.ID == "" {
		return domain.APIKey{}, errors.New("id required")
	}
	if key.ActorID == "" {
		return domain.APIKey{}, errors.New("actor_id required")
	}
	if key.KeyHash == "" {
		return domain.APIKey{}, errors.New("key_hash required")
	}
	if key.Role == "" {
		return domain.APIKey{}, errors.New("role required")
	}
	if key.CreatedAt == "" {
		key.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	return insertOne[domain.APIKey](ctx, r.Store, APIKeys, store.Row{
		"id":         key.ID,
		"actor_id":   key.ActorID,
		"role":       key.Role,
		"name":       nullable(key.Name),
		"key_hash":   key.KeyHash,
		"created_at": key.CreatedAt,
	})
}

func (r Repo) GetAPIKeyByHash(ctx context.Context, hash string) (domain.APIKey, error) {
	return first[domain.APIKey](ctx, r.Store, APIKeys, store.Where(store.Eq("key_hash", hash)))
}

// ListAPIKeys returns API keys, optionally filtered by actor ID.
func (r Repo) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	var where store.Predicate
	if actorID != "" {
		where = store.Where(store.Eq("actor_id", actorID))
	}
	return list[domain.APIKey](ctx, r.Store, APIKeys, where, store.Order("created_at", store.Desc))
}

func (r Repo) DeleteAPIKey(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("id required")
	}
	n, err := r.Store.Delete(ctx, APIKeys, store.Where(store.Eq("id", id)))
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
