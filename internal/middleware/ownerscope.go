package middleware

import (
	"context"
	"net/http"
)

const headerOwnerID = "X-Owner-ID"

type ownerCtxKey struct{}

// OwnerScope is middleware that extracts the acting organization from the
// X-Owner-ID header and stores it in the request context. Authorization
// itself is enforced upstream; by the time core operations run, access has
// already been granted, and they only consume the scoping value.
func OwnerScope(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		oid := r.Header.Get(headerOwnerID)
		ctx := context.WithValue(r.Context(), ownerCtxKey{}, oid)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// OwnerIDFromContext returns the owner ID stored in ctx, or empty if absent.
func OwnerIDFromContext(ctx context.Context) string {
	if oid, ok := ctx.Value(ownerCtxKey{}).(string); ok {
		return oid
	}
	return ""
}
