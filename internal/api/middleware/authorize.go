package middleware

import (
	"net/http"

	"github.com/phrazzld/gatekeeper/internal/api/shared"
	"github.com/phrazzld/gatekeeper/internal/domain"
)

// RequireAuthenticated responds 401 unless the gate attached an
// AuthenticatedContext.
func RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.AuthenticatedFrom(r.Context()); !ok {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole responds 401 for anonymous requests and 403 when the
// authenticated principal holds none of the given roles.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx, ok := shared.AuthenticatedFrom(r.Context())
			if !ok {
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Authentication required")
				return
			}
			for _, role := range roles {
				if authCtx.HasAuthority(role.Authority()) {
					next.ServeHTTP(w, r)
					return
				}
			}
			shared.RespondWithErrorAndLog(w, r, http.StatusForbidden, "Access denied", nil,
				shared.WithElevatedLogLevel())
		})
	}
}
