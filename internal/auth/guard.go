package auth

import (
	"net/http"

	"github.com/keithlinneman/storefront-api/internal/apierror"
	"github.com/keithlinneman/storefront-api/internal/httpmw"
	"github.com/keithlinneman/storefront-api/internal/log"
)

// RequireAuth rejects requests without a valid bearer token and stores the
// claims for the rest of the chain.
func (m *Manager) RequireAuth() httpmw.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c, reason, err := m.verify(r)
			if err != nil {
				m.onFailure(reason)
				log.FromContext(r.Context()).Debug(r.Context(), "auth rejected", "reason", reason)
				apierror.Write(w, r, err)
				return
			}
			ctx := WithClaims(r.Context(), c)
			ctx = log.WithContext(ctx, log.FromContext(ctx).With("user.id", c.UserID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin must be mounted after RequireAuth. Without claims it answers
// 401 rather than trusting an unauthenticated request.
func (m *Manager) RequireAdmin() httpmw.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := ClaimsFromContext(r.Context())
			if c == nil {
				m.onFailure(ReasonMissing)
				apierror.Write(w, r, apierror.Unauthorized(MsgInvalidToken))
				return
			}
			if !c.IsAdmin {
				m.onFailure(ReasonForbidden)
				apierror.Write(w, r, apierror.Forbidden("Admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
