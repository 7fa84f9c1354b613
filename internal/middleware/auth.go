package middleware

import (
	"net/http"
	"strings"

	"github.com/lolmarket/topup-backend/internal/api/httpx"
	"github.com/lolmarket/topup-backend/internal/auth"
	"github.com/lolmarket/topup-backend/internal/models"
)

type AuthMiddleware struct {
	TM     *auth.TokenManager
	AppEnv string
}

func NewAuthMiddleware(tm *auth.TokenManager, appEnv string) *AuthMiddleware {
	return &AuthMiddleware{TM: tm, AppEnv: appEnv}
}

// Auth accepts "Bearer <access JWT>". In dev, "Bearer dev-<user id>" is also
// accepted so the storefront can be exercised without logging in.
func (m *AuthMiddleware) Auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ah := r.Header.Get("Authorization")
		if len(ah) < 7 || !strings.EqualFold(ah[:7], "bearer ") {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token", nil)
			return
		}
		token := strings.TrimSpace(ah[7:])

		if m.AppEnv == "dev" && strings.HasPrefix(token, "dev-") {
			u := UserCtx{UserID: strings.TrimPrefix(token, "dev-"), Role: models.RoleUser}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
			return
		}

		claims, isRefresh, err := m.TM.ParseAny(token)
		if err != nil || isRefresh {
			httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid access token", nil)
			return
		}
		u := UserCtx{UserID: claims.UserID, Role: claims.Role}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
	})
}
