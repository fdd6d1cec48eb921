package auth

import (
	"context"
	"net/http"
	"strings"

	"store-core/internal/apperr"
	"store-core/internal/observability"
	"store-core/internal/respond"
)

type claimsKey struct{}

// ClaimsFrom returns the access token claims stored by Middleware.
func ClaimsFrom(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok
}

// Middleware accepts requests bearing a valid access token. A non-empty role
// must equal the token's role claim.
func Middleware(tokens *TokenService, role Role, logger *observability.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			respond.Error(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			respond.Error(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		claims, err := tokens.ValidateAccess(strings.TrimSpace(parts[1]))
		if err != nil {
			respond.Fail(w, logger, err)
			return
		}
		if role != "" && claims.Role != role {
			respond.Fail(w, logger, apperr.New(apperr.Forbidden, "insufficient role"))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey{}, claims)))
	})
}
