// Package requesttime provides middleware for request-scoped time.
// All operations within a single HTTP request share the same "now", so audit
// timestamps and document timestamps agree.
package requesttime

import (
	"net/http"
	"time"

	"docflow/pkg/requestcontext"
)

// Middleware captures the current time at the start of the request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithTime(r.Context(), time.Now())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
