// Package middleware holds the HTTP middleware in front of the
// entitlement API: request ids for tracing and owner scoping for the
// hypervisor endpoints.
package middleware

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/entgrid/entitled/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID propagates the client's X-Request-ID, minting one when none
// was sent. The id lands in the request context and on the response
// header, so a check-in or regeneration trigger can be matched to its
// log lines from either side.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = generateID()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func generateID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
