package auth

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"
)

// APIKeyMiddleware rejects requests without a valid X-API-Key header. It is
// a no-op when expected is empty, and requests already carrying a principal
// (set by an upstream authorizer) are let through.
func APIKeyMiddleware(expected string, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := GetPrincipal(r.Context()); ok {
				next.ServeHTTP(w, r)
				return
			}

			if !ValidAPIKey(expected, r.Header.Get(HeaderAPIKey)) {
				log.Warn().
					Str("path", r.URL.Path).
					Str("remote_addr", r.RemoteAddr).
					Msg("rejected request with missing or invalid API key")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "missing or invalid API key"})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), PrincipalAPIKey)))
		})
	}
}
