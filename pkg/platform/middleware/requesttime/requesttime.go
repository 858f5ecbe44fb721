// Package requesttime provides middleware for request-scoped time.
// All operations within a single HTTP request use the same "now" timestamp,
// so a decision's decided_at, its events, and its log lines never disagree.
package requesttime

import (
	"net/http"
	"time"

	"fundledger/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request
// and stores it in the context for consistent time references throughout.
// The instant is truncated to microseconds, the resolution TIMESTAMPTZ
// columns preserve, so a timestamp that feeds the integrity hash reads back
// exactly as it was written.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now().UTC().Truncate(time.Microsecond))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
