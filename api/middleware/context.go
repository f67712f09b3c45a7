package middleware

import (
	"context"

	"github.com/google/uuid"

	pkgAuth "github.com/angelmondragon/foodfund-backend/pkg/auth"
	"github.com/angelmondragon/foodfund-backend/pkg/enums"
)

type identityKey struct{}

// Identity is the authenticated member behind a request.
type Identity struct {
	UserID         uuid.UUID
	OrganizationID *uuid.UUID
	Role           enums.MemberRole
	TokenID        string
}

func (i Identity) orgString() string {
	if i.OrganizationID == nil {
		return ""
	}
	return i.OrganizationID.String()
}

// IdentityFromContext returns the identity set by Auth.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// WithClaims stores the identity carried by verified token claims.
func WithClaims(ctx context.Context, claims *pkgAuth.AccessTokenClaims) context.Context {
	if claims == nil {
		return ctx
	}
	return WithIdentity(ctx, Identity{
		UserID:         claims.UserID,
		OrganizationID: claims.OrganizationID,
		Role:           claims.Role,
		TokenID:        claims.ID,
	})
}

// UserIDFromContext returns "" for anonymous requests.
func UserIDFromContext(ctx context.Context) string {
	id, ok := IdentityFromContext(ctx)
	if !ok || id.UserID == uuid.Nil {
		return ""
	}
	return id.UserID.String()
}
