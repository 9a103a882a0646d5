// Package security resolves connection credentials into identities.
package security

import (
	"context"
	"errors"

	"github.com/cwrk-planet/ride-hub/internal/domain"
)

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrInvalidIssuer   = errors.New("invalid token issuer")
	ErrInvalidAudience = errors.New("invalid token audience")
	ErrTokenExpired    = errors.New("token expired or not yet valid")
	ErrInvalidSubject  = errors.New("invalid token subject")
	ErrInvalidRole     = errors.New("invalid token role")
	ErrUnknownToken    = errors.New("unknown token")
)

// Verifier validates a credential issued by the auth service.
type Verifier interface {
	Verify(ctx context.Context, credential string) (domain.Identity, error)
}

// StaticVerifier maps fixed tokens to identities. Local development only.
type StaticVerifier map[string]domain.Identity

func (s StaticVerifier) Verify(_ context.Context, credential string) (domain.Identity, error) {
	id, ok := s[credential]
	if !ok {
		return domain.Identity{}, ErrUnknownToken
	}
	if _, ok := domain.ParseRole(string(id.Role)); !ok {
		return domain.Identity{}, ErrInvalidRole
	}
	return id, nil
}
