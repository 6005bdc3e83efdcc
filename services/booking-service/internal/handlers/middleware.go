package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/m-oliynyk/salonhub/libs/auth"
)

type ctxKey int

const (
	ctxKeyClaims ctxKey = iota
)

// ClaimsFrom returns the staff claims stored by RequireStaff, or nil.
func ClaimsFrom(ctx context.Context) *auth.Claims {
	v, _ := ctx.Value(ctxKeyClaims).(*auth.Claims)
	return v
}

// RequireStaff verifies the Bearer token and rejects tokens without a unit
// scope. Verified claims are placed on the request context.
func RequireStaff(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				http.Error(w, "missing or invalid Authorization header", http.StatusUnauthorized)
				return
			}
			token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
			claims, err := auth.ParseAndVerifyHS256(token, secret)
			if err != nil {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			if claims.UnitID == "" {
				http.Error(w, "token has no unit scope", http.StatusForbidden)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
