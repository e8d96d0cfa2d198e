package middleware

import (
	"net/http"

	"concierge/pkg/auth"
	httputil "concierge/pkg/http"
	"concierge/pkg/logger"
)

// Authenticate resolves the bearer token into an auth.Identity and stores it
// on the request context. Unauthenticated requests stop here with 401.
func Authenticate(resolver auth.Resolver, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := resolver.Resolve(r.Context(), httputil.BearerToken(r))
			if err != nil {
				log.Warn("Authentication failed",
					"request_id", RequestID(r.Context()),
					"path", r.URL.Path,
					"error", err,
				)
				_ = httputil.WriteError(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}
