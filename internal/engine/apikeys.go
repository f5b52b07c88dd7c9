package engine

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"crewline/internal/domain"
	"crewline/internal/repo"
)

const apiKeyPrefix = "cl_"

type CreateAPIKeyOptions struct {
	ActorID string
	Role    domain.Role
	Name    string
}

// CreateAPIKey stores the hash of a fresh key and returns the raw key once.
func (e Engine) CreateAPIKey(ctx context.Context, opts CreateAPIKeyOptions) (domain.APIKey, string, error) {
	if strings.TrimSpace(opts.ActorID) == "" {
		return domain.APIKey{}, "", invalidInput("actor is required")
	}
	if _, ok := domain.ParseRole(string(opts.Role)); !ok {
		return domain.APIKey{}, "", invalidInput("unknown role %q", opts.Role)
	}
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("generate api key: %w", err)
	}
	raw := apiKeyPrefix + hex.EncodeToString(buf)
	key, err := e.Repo.InsertAPIKey(ctx, domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   strings.TrimSpace(opts.ActorID),
		Role:      string(opts.Role),
		Name:      strings.TrimSpace(opts.Name),
		KeyHash:   repo.HashAPIKey(raw),
		CreatedAt: e.timestamp(),
	})
	if err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	return key, raw, nil
}

func (e Engine) ListAPIKeys(ctx context.Context, actorID string) ([]domain.APIKey, error) {
	return e.Repo.ListAPIKeys(ctx, actorID)
}

func (e Engine) RevokeAPIKey(ctx context.Context, id string) error {
	if err := e.Repo.DeleteAPIKey(ctx, id); err != nil {
		return fmt.Errorf("api key %s: %w", id, err)
	}
	return nil
}
