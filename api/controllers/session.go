package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/angelmondragon/foodfund-backend/api/responses"
	pkgAuth "github.com/angelmondragon/foodfund-backend/pkg/auth"
	"github.com/angelmondragon/foodfund-backend/pkg/config"
	"github.com/angelmondragon/foodfund-backend/pkg/errors"
	"github.com/angelmondragon/foodfund-backend/pkg/logger"
)

type tokenRevoker interface {
	Revoke(ctx context.Context, jti string, expiresAt time.Time) error
}

// AuthLogout denylists the presented access token until it expires.
func AuthLogout(revoker tokenRevoker, cfg config.JWTConfig, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if revoker == nil {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeInternal, "token revocation unavailable"))
			return
		}

		token, ok := pkgAuth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeUnauthorized, "missing credentials"))
			return
		}

		claims, err := pkgAuth.ParseAccessTokenAllowExpired(cfg, token)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeUnauthorized, err, "invalid token"))
			return
		}

		if claims.ID == "" {
			responses.WriteError(r.Context(), logg, w, errors.New(errors.CodeUnauthorized, "missing token id"))
			return
		}

		var expiresAt time.Time
		if claims.ExpiresAt != nil {
			expiresAt = claims.ExpiresAt.Time
		}
		if err := revoker.Revoke(r.Context(), claims.ID, expiresAt); err != nil {
			responses.WriteError(r.Context(), logg, w, errors.Wrap(errors.CodeDependency, err, "revoke token"))
			return
		}

		responses.WriteSuccess(w, map[string]string{"status": "logged_out"})
	}
}
