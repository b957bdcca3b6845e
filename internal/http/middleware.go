package httpapp

import (
	"context"
	"net/http"
	"strings"

	"github.com/tonearm/royaltyd/internal/domain"
)

type contextKey string

const apiKeyContextKey contextKey = "apiKey"

// RequireScope authenticates the request's API key and checks the scope.
// The key may arrive as a bearer token or an X-API-Key header.
func (h *Handler) RequireScope(scope domain.Scope) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			value := r.Header.Get("X-API-Key")
			if value == "" {
				value = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			}
			if value == "" {
				h.respondError(w, domain.ErrUnauthorized)
				return
			}

			key, err := h.Keys.Validate(r.Context(), value, scope)
			if err != nil {
				h.respondError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), apiKeyContextKey, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// KeyFromContext returns the API key that authenticated the request.
func KeyFromContext(ctx context.Context) (*domain.ApiKey, bool) {
	key, ok := ctx.Value(apiKeyContextKey).(*domain.ApiKey)
	return key, ok
}
