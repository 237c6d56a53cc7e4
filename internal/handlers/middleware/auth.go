package middleware

import (
	"net/http"

	"github.com/nkiryanov/rewardledger/internal/handlers/render"
	"github.com/nkiryanov/rewardledger/internal/handlers/userctx"
)

type authService interface {
	AccountFromRequest(r *http.Request) (string, error)
}

type adminSet interface {
	IsAdmin(accountID string) bool
}

// AuthMiddleware puts the authenticated account id to the request context
func AuthMiddleware(as authService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, err := as.AccountFromRequest(r)
			if err != nil {
				render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			ctx := userctx.New(r.Context(), accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminMiddleware must run after AuthMiddleware
func AdminMiddleware(admins adminSet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			accountID, ok := userctx.FromContext(r.Context())
			if !ok || !admins.IsAdmin(accountID) {
				render.ServiceError(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
