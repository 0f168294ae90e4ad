package server

import (
	"net/http"

	"github.com/iemabdullah/ai-generator-2api/internal/auth"
	"github.com/iemabdullah/ai-generator-2api/internal/codec"
	"github.com/iemabdullah/ai-generator-2api/internal/domain"
)

// AuthMiddleware rejects requests without the master key before they reach
// the handler. If the authenticator is nil, the middleware is a no-op.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authenticator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := authenticator.Authorize(r); err != nil {
				AddError(r.Context(), err)
				codec.WriteError(w, domain.ErrUnauthorized("Unauthorized").WithCause(err))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
