package middleware

import (
	"net/http"

	"github.com/angelmondragon/foodfund-backend/api/responses"
	pkgAuth "github.com/angelmondragon/foodfund-backend/pkg/auth"
	"github.com/angelmondragon/foodfund-backend/pkg/auth/session"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

// Auth verifies the bearer token, rejects denylisted token ids and stores the
// caller's Identity on the request context.
func Auth(cfg config.JWTConfig, revocations session.RevocationChecker, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			claims, err := authenticate(r, cfg, revocations)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}

			ctx = WithClaims(ctx, claims)
			if logg != nil {
				fields := map[string]any{
					"user_id":    claims.UserID.String(),
					"actor_role": string(claims.Role),
				}
				if claims.OrganizationID != nil {
					fields["organization_id"] = claims.OrganizationID.String()
				}
				ctx = logg.WithFields(ctx, fields)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authenticate(r *http.Request, cfg config.JWTConfig, revocations session.RevocationChecker) (*pkgAuth.AccessTokenClaims, error) {
	token, ok := pkgAuth.BearerToken(r.Header.Get("Authorization"))
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials")
	}
	claims, err := pkgAuth.ParseAccessToken(cfg, token)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token")
	}
	if claims.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing token id")
	}
	if revocations == nil {
		return claims, nil
	}
	revoked, err := revocations.IsRevoked(r.Context(), claims.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check token revocation")
	}
	if revoked {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "token revoked")
	}
	return claims, nil
}
