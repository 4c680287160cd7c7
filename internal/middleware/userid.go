package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const userIDKey contextKey = "user_id"

// UserID lifts the authenticated user id from the X-User-ID header set by
// the fronting auth layer. Authentication itself happens upstream; this
// service only needs a valid identity for credit accounting.
func UserID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-User-ID")
		if _, err := uuid.Parse(raw); err != nil {
			http.Error(w, "missing or invalid user identity", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}
