// Package domain contains application Usecases orchestrating domain logic by credential.
package domain

import (
	"context"
	"crypto/subtle"
	"strings"

	"agent-runtime/internal/entities"
)

// Authenticate resolves an API key. The configured admin key yields an
// admin principal; revoked and unknown keys are ErrUnauthorized.
func (u *Usecase) Authenticate(ctx context.Context, key string) (*entities.Principal, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, entities.ErrUnauthorized
	}
	if u.adminKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(u.adminKey)) == 1 {
		return &entities.Principal{Admin: true}, nil
	}

	ctx, cancel := withTimeout(ctx, u.timeout)
	defer cancel()

	k, err := u.repo.GetAPIKeyByHash(ctx, entities.HashAPIKey(key))
	if err != nil {
		return nil, err
	}
	if k.RevokedAt != nil {
		return nil, entities.ErrUnauthorized
	}
	return &entities.Principal{TeamID: k.TeamID, KeyID: k.ID}, nil
}
