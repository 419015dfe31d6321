// Package auth adapts the external identity provider. Requests arrive from a
// trusted gateway that has already authenticated the caller and stamps the
// identity headers; this package only carries them through the context.
package auth

import (
	"context"
	"net/http"
)

const (
	HeaderUserID = "X-User-Id"
	HeaderRole   = "X-User-Role"
)

const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

type ctxKey int

const (
	userKey ctxKey = iota
	roleKey
)

// Middleware rejects requests without a caller identity and exposes user id
// and role via the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		if userID == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"missing identity"}`))
			return
		}
		ctx := context.WithValue(r.Context(), userKey, userID)
		ctx = context.WithValue(ctx, roleKey, r.Header.Get(HeaderRole))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserID(ctx context.Context) string {
	v, _ := ctx.Value(userKey).(string)
	return v
}

func Role(ctx context.Context) string {
	v, _ := ctx.Value(roleKey).(string)
	return v
}

func IsInRole(ctx context.Context, role string) bool {
	return Role(ctx) == role
}
