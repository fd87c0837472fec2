package middleware

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"carbonledger/pkg/requestcontext"
)

// RequestContext stamps every request with an ID and an arrival time. An
// inbound X-Request-ID is honored so IDs stay stable across proxies; the ID
// is echoed back on the response.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		ctx = requestcontext.WithTime(ctx, time.Now().UTC())

		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
