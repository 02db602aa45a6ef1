package services

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the resolved caller behind a token.
type Identity struct {
	UserID uuid.UUID
	Role   string
}

// IdentityResolver turns a bearer token into an Identity.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}
